// Package store persists chapter analyses in SQLite. All mutation flows
// through a single Writer goroutine; readers are safe concurrently under
// WAL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/analysis"
)

// Store owns the database handle.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and runs migration.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, logger: logger.With("component", "store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for read-only queries.
func (s *Store) DB() *sql.DB { return s.db }

const schema = `
CREATE TABLE IF NOT EXISTS verses (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	ref            TEXT NOT NULL UNIQUE,
	book           TEXT NOT NULL,
	chapter        INTEGER NOT NULL,
	verse          INTEGER NOT NULL,
	hebrew         TEXT NOT NULL,
	english        TEXT NOT NULL,
	rationale      TEXT NOT NULL DEFAULT '',
	provider       TEXT NOT NULL DEFAULT '',
	model          TEXT NOT NULL DEFAULT '',
	analyzed_at    TIMESTAMP,
	truncated      INTEGER NOT NULL DEFAULT 0,
	recovered      INTEGER NOT NULL DEFAULT 0,
	needs_followup INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_verses_book_chapter ON verses(book, chapter);

CREATE TABLE IF NOT EXISTS figurative_instances (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	instance_key         TEXT NOT NULL UNIQUE,
	verse_id             INTEGER NOT NULL REFERENCES verses(id) ON DELETE CASCADE,
	hebrew_excerpt       TEXT NOT NULL DEFAULT '',
	english_excerpt      TEXT NOT NULL DEFAULT '',
	confidence           REAL NOT NULL DEFAULT 0,
	tag                  TEXT NOT NULL DEFAULT '{}',
	explanation          TEXT NOT NULL DEFAULT '',
	detected_facets      TEXT NOT NULL,
	validated_facets     TEXT,
	figurative           INTEGER NOT NULL DEFAULT 0,
	validation_rationale TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_instances_verse ON figurative_instances(verse_id);
CREATE INDEX IF NOT EXISTS idx_instances_unvalidated ON figurative_instances(validated_facets) WHERE validated_facets IS NULL;
`

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func marshalFacets(set analysis.FacetSet) (string, error) {
	if set == nil {
		set = analysis.FacetSet{}
	}
	b, err := json.Marshal(set)
	if err != nil {
		return "", fmt.Errorf("marshal facet set: %w", err)
	}
	return string(b), nil
}

func unmarshalFacets(raw string) (analysis.FacetSet, error) {
	if raw == "" {
		return nil, nil
	}
	var set analysis.FacetSet
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return nil, fmt.Errorf("unmarshal facet set: %w", err)
	}
	return set, nil
}

// Counts reports persisted row counts for one chapter.
func (s *Store) Counts(ctx context.Context, book string, chapter int) (verses, instances int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM verses WHERE book = ? AND chapter = ?`,
		book, chapter).Scan(&verses)
	if err != nil {
		return 0, 0, fmt.Errorf("count verses: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM figurative_instances fi
		 JOIN verses v ON v.id = fi.verse_id
		 WHERE v.book = ? AND v.chapter = ?`,
		book, chapter).Scan(&instances)
	if err != nil {
		return 0, 0, fmt.Errorf("count instances: %w", err)
	}
	return verses, instances, nil
}

// InstanceRow is the read-side view of one persisted instance, joined with
// its verse. Carries everything a re-validation request needs.
type InstanceRow struct {
	InstanceKey    string
	Book           string
	Chapter        int
	VerseRef       string
	HebrewExcerpt  string
	EnglishExcerpt string
	Confidence     float64
	Explanation    string
	Detected       analysis.FacetSet
}

// UnvalidatedInstances returns every persisted instance still lacking a
// validated facet set. These are the units the reconciliation pass redoes.
func (s *Store) UnvalidatedInstances(ctx context.Context) ([]InstanceRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fi.instance_key, v.book, v.chapter, v.ref,
		        fi.hebrew_excerpt, fi.english_excerpt, fi.confidence,
		        fi.explanation, fi.detected_facets
		 FROM figurative_instances fi
		 JOIN verses v ON v.id = fi.verse_id
		 WHERE fi.validated_facets IS NULL
		 ORDER BY v.book, v.chapter, v.verse, fi.instance_key`)
	if err != nil {
		return nil, fmt.Errorf("query unvalidated instances: %w", err)
	}
	defer rows.Close()

	var out []InstanceRow
	for rows.Next() {
		var row InstanceRow
		var detected string
		if err := rows.Scan(&row.InstanceKey, &row.Book, &row.Chapter, &row.VerseRef,
			&row.HebrewExcerpt, &row.EnglishExcerpt, &row.Confidence,
			&row.Explanation, &detected); err != nil {
			return nil, fmt.Errorf("scan instance row: %w", err)
		}
		if row.Detected, err = unmarshalFacets(detected); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
