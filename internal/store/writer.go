package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/analysis"
)

// ChapterPayload is one fully-prepared chapter: verse records plus
// instances with both facet sets already computed. Owned by the submitting
// worker until handed to the Writer, by the Writer thereafter.
type ChapterPayload struct {
	Book      string
	Chapter   int
	JobKey    string
	Verses    []analysis.VerseRecord
	Instances []analysis.FigurativeInstance
}

// ValidationUpdate backfills one instance's validated facet set. Used only
// by the reconciliation pass, routed through the Writer like every other
// mutation.
type ValidationUpdate struct {
	InstanceKey string
	Validated   analysis.FacetSet
	Figurative  bool
	Rationale   string
}

// CommitResult is the Writer's outcome for one submitted unit.
type CommitResult struct {
	Key              string
	Book             string
	Chapter          int
	VersesWritten    int
	InstancesWritten int
	Sanitized        bool
	Duration         time.Duration
	Err              error
}

type writeOp struct {
	key     string
	payload *ChapterPayload
	updates []ValidationUpdate
	result  chan<- *CommitResult
}

// Writer is the single consumer of all store mutations. Workers submit
// prepared chapters and block on the result; the Writer commits one
// chapter per transaction, strictly in arrival order.
type Writer struct {
	store  *Store
	logger *slog.Logger
	queue  chan writeOp

	mu      sync.RWMutex
	stopped bool
	results sync.Map // correlation key -> chan *CommitResult

	wg       sync.WaitGroup
	stopOnce sync.Once

	// Test seam: invoked inside the transaction after verse inserts.
	commitHook func(payload *ChapterPayload) error
}

// NewWriter creates a Writer with a bounded queue. A full queue makes
// Submit block, which is the pipeline's backpressure.
func NewWriter(store *Store, logger *slog.Logger, queueSize int) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Writer{
		store:  store,
		logger: logger.With("component", "writer"),
		queue:  make(chan writeOp, queueSize),
	}
}

// Start launches the writer goroutine.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop drains the queue and stops the writer. Pending submissions still
// receive results.
func (w *Writer) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		close(w.queue)
		w.mu.Unlock()
		w.wg.Wait()
	})
}

// Submit enqueues a prepared chapter and returns its correlation key. The
// caller then blocks on AwaitResult. Submit itself blocks only when the
// queue is full.
func (w *Writer) Submit(ctx context.Context, payload *ChapterPayload) (string, error) {
	return w.enqueue(ctx, writeOp{payload: payload})
}

// SubmitValidation enqueues a batch of validated-facet backfills.
func (w *Writer) SubmitValidation(ctx context.Context, updates []ValidationUpdate) (string, error) {
	return w.enqueue(ctx, writeOp{updates: updates})
}

func (w *Writer) enqueue(ctx context.Context, op writeOp) (string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return "", fmt.Errorf("writer stopped")
	}

	op.key = uuid.NewString()
	resultCh := make(chan *CommitResult, 1)
	op.result = resultCh
	w.results.Store(op.key, resultCh)

	select {
	case w.queue <- op:
		return op.key, nil
	case <-ctx.Done():
		w.results.Delete(op.key)
		return "", ctx.Err()
	}
}

// AwaitResult blocks until the Writer signals the outcome for key, or the
// timeout elapses. Each key yields exactly one result.
func (w *Writer) AwaitResult(ctx context.Context, key string, timeout time.Duration) (*CommitResult, error) {
	ch, ok := w.results.Load(key)
	if !ok {
		return nil, fmt.Errorf("unknown correlation key %s", key)
	}
	resultCh := ch.(chan *CommitResult)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		w.results.Delete(key)
		return res, nil
	case <-timer.C:
		// The caller gets exactly one shot at the result; an abandoned
		// wait must not leave its correlation entry behind.
		w.results.Delete(key)
		return nil, fmt.Errorf("timed out after %s waiting for writer on %s", timeout, key)
	case <-ctx.Done():
		w.results.Delete(key)
		return nil, ctx.Err()
	}
}

func (w *Writer) run(ctx context.Context) {
	defer w.wg.Done()

	for op := range w.queue {
		var res *CommitResult
		switch {
		case op.payload != nil:
			res = w.commitChapter(ctx, op.payload)
		case op.updates != nil:
			res = w.commitValidation(ctx, op.updates)
		default:
			res = &CommitResult{Err: fmt.Errorf("empty write op")}
		}
		res.Key = op.key
		op.result <- res
	}
}

// commitChapter writes one chapter atomically. On failure it makes a
// single sanitize-and-retry pass before reporting the failure to the
// waiting worker.
func (w *Writer) commitChapter(ctx context.Context, payload *ChapterPayload) *CommitResult {
	start := time.Now()

	res := w.tryCommitChapter(ctx, payload, false)
	if res.Err != nil {
		w.logger.Warn("chapter commit failed, retrying sanitized",
			"book", payload.Book, "chapter", payload.Chapter, "error", res.Err)

		sanitized, anomalies := sanitizePayload(payload)
		for _, a := range anomalies {
			w.logger.Warn("coerced out-of-vocabulary facet", "anomaly", a)
		}
		res = w.tryCommitChapter(ctx, sanitized, true)
		res.Sanitized = true
	}

	res.Book = payload.Book
	res.Chapter = payload.Chapter
	res.Duration = time.Since(start)

	if res.Err == nil {
		w.logger.Info("chapter committed",
			"book", payload.Book, "chapter", payload.Chapter,
			"verses", res.VersesWritten, "instances", res.InstancesWritten,
			"sanitized", res.Sanitized, "duration", res.Duration)
	}
	return res
}

func (w *Writer) tryCommitChapter(ctx context.Context, payload *ChapterPayload, sanitized bool) *CommitResult {
	res := &CommitResult{}

	// The vocabulary check stands in for a schema-level constraint; the
	// sanitized pass has already coerced violations away.
	if !sanitized {
		if err := checkFacetVocabulary(payload); err != nil {
			res.Err = err
			return res
		}
	}

	tx, err := w.store.db.BeginTx(ctx, nil)
	if err != nil {
		res.Err = fmt.Errorf("begin transaction: %w", err)
		return res
	}
	defer tx.Rollback()

	// Prior rows for this chapter are replaced wholesale so a retried job
	// lands exactly the same rows as a clean first run.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM verses WHERE book = ? AND chapter = ?`,
		payload.Book, payload.Chapter); err != nil {
		res.Err = fmt.Errorf("clear prior chapter rows: %w", err)
		return res
	}

	verseIDs := make(map[string]int64, len(payload.Verses))
	for _, v := range payload.Verses {
		r, err := tx.ExecContext(ctx,
			`INSERT INTO verses (ref, book, chapter, verse, hebrew, english, rationale,
			                     provider, model, analyzed_at, truncated, recovered, needs_followup)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.Ref, v.Book, v.Chapter, v.Number, v.Hebrew, v.English, v.Rationale,
			v.Provider, v.Model, v.AnalyzedAt, v.Truncated, v.Recovered, v.NeedsFollowUp)
		if err != nil {
			res.Err = fmt.Errorf("insert verse %s: %w", v.Ref, err)
			return res
		}
		id, err := r.LastInsertId()
		if err != nil {
			res.Err = fmt.Errorf("verse id for %s: %w", v.Ref, err)
			return res
		}
		verseIDs[v.Ref] = id
	}

	if w.commitHook != nil {
		if err := w.commitHook(payload); err != nil {
			res.Err = err
			return res
		}
	}

	for _, inst := range payload.Instances {
		verseID, ok := verseIDs[inst.VerseRef]
		if !ok {
			res.Err = fmt.Errorf("instance %s references unknown verse %s", inst.ID, inst.VerseRef)
			return res
		}

		detected, err := marshalFacets(inst.Detected)
		if err != nil {
			res.Err = err
			return res
		}
		var validated any
		if inst.Validated != nil {
			v, err := marshalFacets(inst.Validated)
			if err != nil {
				res.Err = err
				return res
			}
			validated = v
		}
		tag, err := marshalTag(inst.Tag)
		if err != nil {
			res.Err = err
			return res
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO figurative_instances (instance_key, verse_id, hebrew_excerpt,
			                                   english_excerpt, confidence, tag, explanation,
			                                   detected_facets, validated_facets, figurative,
			                                   validation_rationale)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inst.ID, verseID, inst.HebrewExcerpt, inst.EnglishExcerpt, inst.Confidence,
			tag, inst.Explanation, detected, validated, inst.Figurative,
			inst.ValidationRationale); err != nil {
			res.Err = fmt.Errorf("insert instance %s: %w", inst.ID, err)
			return res
		}
	}

	if err := tx.Commit(); err != nil {
		res.Err = fmt.Errorf("commit chapter %s %d: %w", payload.Book, payload.Chapter, err)
		return res
	}

	res.VersesWritten = len(payload.Verses)
	res.InstancesWritten = len(payload.Instances)
	return res
}

func (w *Writer) commitValidation(ctx context.Context, updates []ValidationUpdate) *CommitResult {
	start := time.Now()
	res := &CommitResult{}

	tx, err := w.store.db.BeginTx(ctx, nil)
	if err != nil {
		res.Err = fmt.Errorf("begin transaction: %w", err)
		return res
	}
	defer tx.Rollback()

	for _, u := range updates {
		clean, dropped := dropUnknownFacets(u.Validated)
		for _, f := range dropped {
			w.logger.Warn("coerced out-of-vocabulary facet",
				"anomaly", fmt.Sprintf("%s: validated facet %q", u.InstanceKey, f))
		}
		validated, err := marshalFacets(clean)
		if err != nil {
			res.Err = err
			return res
		}
		r, err := tx.ExecContext(ctx,
			`UPDATE figurative_instances
			 SET validated_facets = ?, figurative = ?, validation_rationale = ?
			 WHERE instance_key = ?`,
			validated, u.Figurative, u.Rationale, u.InstanceKey)
		if err != nil {
			res.Err = fmt.Errorf("backfill instance %s: %w", u.InstanceKey, err)
			return res
		}
		n, err := r.RowsAffected()
		if err == nil && n == 0 {
			w.logger.Warn("validation backfill matched no instance", "instance", u.InstanceKey)
		}
	}

	if err := tx.Commit(); err != nil {
		res.Err = fmt.Errorf("commit validation backfill: %w", err)
		return res
	}

	res.InstancesWritten = len(updates)
	res.Duration = time.Since(start)
	return res
}

func marshalTag(tag analysis.Tag) (string, error) {
	b, err := json.Marshal(tag)
	if err != nil {
		return "", fmt.Errorf("marshal tag: %w", err)
	}
	return string(b), nil
}
