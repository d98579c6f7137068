package store

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/analysis"
)

const awaitTimeout = 10 * time.Second

func newTestWriter(t *testing.T) (*Store, *Writer) {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "figlang.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	w := NewWriter(s, nil, 8)
	w.Start(context.Background())
	t.Cleanup(w.Stop)

	return s, w
}

func samplePayload(book string, chapter int) *ChapterPayload {
	verses := make([]analysis.VerseRecord, 3)
	for i := range verses {
		verses[i] = analysis.VerseRecord{
			Ref:        fmt.Sprintf("%s %d:%d", book, chapter, i+1),
			Book:       book,
			Chapter:    chapter,
			Number:     i + 1,
			Hebrew:     "עברית",
			English:    "english text",
			Rationale:  "rationale",
			Provider:   "mock",
			Model:      "mock-model",
			AnalyzedAt: time.Now().UTC(),
		}
	}

	instances := []analysis.FigurativeInstance{
		{
			ID:             fmt.Sprintf("%s.%d.1.1", book, chapter),
			VerseRef:       verses[0].Ref,
			EnglishExcerpt: "excerpt one",
			Confidence:     0.9,
			Detected:       analysis.FacetSet{analysis.FacetMetaphor: true},
			Validated:      analysis.FacetSet{analysis.FacetMetaphor: true},
			Figurative:     true,
		},
		{
			ID:             fmt.Sprintf("%s.%d.2.1", book, chapter),
			VerseRef:       verses[1].Ref,
			EnglishExcerpt: "excerpt two",
			Confidence:     0.7,
			Detected:       analysis.FacetSet{analysis.FacetIdiom: true},
			// Validation never ran for this one.
		},
	}

	return &ChapterPayload{
		Book:      book,
		Chapter:   chapter,
		JobKey:    analysis.JobKey(book, chapter),
		Verses:    verses,
		Instances: instances,
	}
}

func submitAndAwait(t *testing.T, w *Writer, payload *ChapterPayload) *CommitResult {
	t.Helper()
	ctx := context.Background()

	key, err := w.Submit(ctx, payload)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	res, err := w.AwaitResult(ctx, key, awaitTimeout)
	if err != nil {
		t.Fatalf("AwaitResult: %v", err)
	}
	return res
}

func TestWriterCommitsChapter(t *testing.T) {
	s, w := newTestWriter(t)

	res := submitAndAwait(t, w, samplePayload("Genesis", 1))
	if res.Err != nil {
		t.Fatalf("commit failed: %v", res.Err)
	}
	if res.VersesWritten != 3 || res.InstancesWritten != 2 {
		t.Errorf("written = %d verses %d instances", res.VersesWritten, res.InstancesWritten)
	}
	if res.Sanitized {
		t.Error("clean payload should not need the sanitized pass")
	}

	verses, instances, err := s.Counts(context.Background(), "Genesis", 1)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if verses != 3 || instances != 2 {
		t.Errorf("persisted = %d verses %d instances", verses, instances)
	}

	// The instance validation never covered is visible to the
	// reconciliation pass.
	unvalidated, err := s.UnvalidatedInstances(context.Background())
	if err != nil {
		t.Fatalf("UnvalidatedInstances: %v", err)
	}
	if len(unvalidated) != 1 || unvalidated[0].InstanceKey != "Genesis.1.2.1" {
		t.Errorf("unvalidated = %+v", unvalidated)
	}
	if !unvalidated[0].Detected[analysis.FacetIdiom] {
		t.Error("detected facet set lost on round trip")
	}
}

func TestWriterIdempotentResubmission(t *testing.T) {
	s, w := newTestWriter(t)

	for i := 0; i < 3; i++ {
		if res := submitAndAwait(t, w, samplePayload("Exodus", 3)); res.Err != nil {
			t.Fatalf("commit %d failed: %v", i, res.Err)
		}
	}

	verses, instances, err := s.Counts(context.Background(), "Exodus", 3)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if verses != 3 || instances != 2 {
		t.Errorf("resubmission changed row counts: %d verses %d instances", verses, instances)
	}
}

func TestWriterAtomicity(t *testing.T) {
	s, w := newTestWriter(t)
	w.commitHook = func(*ChapterPayload) error {
		return fmt.Errorf("injected write fault")
	}

	res := submitAndAwait(t, w, samplePayload("Genesis", 2))
	if res.Err == nil {
		t.Fatal("expected failure from injected fault")
	}

	verses, instances, err := s.Counts(context.Background(), "Genesis", 2)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if verses != 0 || instances != 0 {
		t.Errorf("partial chapter leaked: %d verses %d instances", verses, instances)
	}
}

func TestWriterSanitizeRetry(t *testing.T) {
	s, w := newTestWriter(t)

	payload := samplePayload("Genesis", 4)
	payload.Instances[1].Detected = analysis.FacetSet{
		analysis.FacetIdiom: true,
		"sarcasm":           true,
	}

	res := submitAndAwait(t, w, payload)
	if res.Err != nil {
		t.Fatalf("sanitized retry failed: %v", res.Err)
	}
	if !res.Sanitized {
		t.Error("result must report the sanitized pass")
	}

	unvalidated, err := s.UnvalidatedInstances(context.Background())
	if err != nil {
		t.Fatalf("UnvalidatedInstances: %v", err)
	}
	if len(unvalidated) != 1 {
		t.Fatalf("unvalidated = %d, want 1", len(unvalidated))
	}
	if _, ok := unvalidated[0].Detected["sarcasm"]; ok {
		t.Error("out-of-vocabulary facet persisted")
	}
	if !unvalidated[0].Detected[analysis.FacetIdiom] {
		t.Error("known facet dropped during sanitization")
	}
}

func TestWriterSerializesArrivalOrder(t *testing.T) {
	s, w := newTestWriter(t)

	var mu sync.Mutex
	var order []int
	w.commitHook = func(p *ChapterPayload) error {
		mu.Lock()
		order = append(order, p.Chapter)
		mu.Unlock()
		return nil
	}

	ctx := context.Background()
	keys := make([]string, 0, 5)
	for ch := 1; ch <= 5; ch++ {
		key, err := w.Submit(ctx, samplePayload("Numbers", ch))
		if err != nil {
			t.Fatalf("Submit chapter %d: %v", ch, err)
		}
		keys = append(keys, key)
	}
	for i, key := range keys {
		res, err := w.AwaitResult(ctx, key, awaitTimeout)
		if err != nil {
			t.Fatalf("AwaitResult %d: %v", i, err)
		}
		if res.Err != nil {
			t.Fatalf("chapter %d commit failed: %v", i+1, res.Err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, ch := range order {
		if ch != i+1 {
			t.Fatalf("commit order %v, want strict arrival order", order)
		}
	}

	total := 0
	for ch := 1; ch <= 5; ch++ {
		verses, _, err := s.Counts(context.Background(), "Numbers", ch)
		if err != nil {
			t.Fatalf("Counts: %v", err)
		}
		total += verses
	}
	if total != 15 {
		t.Errorf("total verses = %d, want 15", total)
	}
}

func TestWriterValidationBackfill(t *testing.T) {
	s, w := newTestWriter(t)

	if res := submitAndAwait(t, w, samplePayload("Genesis", 5)); res.Err != nil {
		t.Fatalf("commit failed: %v", res.Err)
	}

	ctx := context.Background()
	key, err := w.SubmitValidation(ctx, []ValidationUpdate{{
		InstanceKey: "Genesis.5.2.1",
		Validated:   analysis.FacetSet{analysis.FacetIdiom: true},
		Figurative:  true,
		Rationale:   "confirmed on reconciliation",
	}})
	if err != nil {
		t.Fatalf("SubmitValidation: %v", err)
	}
	res, err := w.AwaitResult(ctx, key, awaitTimeout)
	if err != nil {
		t.Fatalf("AwaitResult: %v", err)
	}
	if res.Err != nil {
		t.Fatalf("backfill failed: %v", res.Err)
	}

	unvalidated, err := s.UnvalidatedInstances(ctx)
	if err != nil {
		t.Fatalf("UnvalidatedInstances: %v", err)
	}
	if len(unvalidated) != 0 {
		t.Errorf("instances still unvalidated after backfill: %+v", unvalidated)
	}
}

func TestAwaitResultTimeout(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "figlang.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	// Writer never started: nothing will consume the queue.
	w := NewWriter(s, nil, 8)
	key, err := w.Submit(context.Background(), samplePayload("Genesis", 1))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := w.AwaitResult(context.Background(), key, 50*time.Millisecond); err == nil {
		t.Fatal("expected timeout")
	}

	// The abandoned wait must release its correlation entry.
	if _, ok := w.results.Load(key); ok {
		t.Error("correlation entry still present after timeout")
	}
}

func TestWriterBackfillSanitizesAndLogs(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "figlang.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	var logBuf bytes.Buffer
	w := NewWriter(s, slog.New(slog.NewTextHandler(&logBuf, nil)), 8)
	w.Start(context.Background())
	defer w.Stop()

	if res := submitAndAwait(t, w, samplePayload("Genesis", 7)); res.Err != nil {
		t.Fatalf("commit failed: %v", res.Err)
	}

	ctx := context.Background()
	key, err := w.SubmitValidation(ctx, []ValidationUpdate{{
		InstanceKey: "Genesis.7.2.1",
		Validated:   analysis.FacetSet{analysis.FacetIdiom: true, analysis.Facet("sarcasm"): true},
		Figurative:  true,
		Rationale:   "confirmed on reconciliation",
	}})
	if err != nil {
		t.Fatalf("SubmitValidation: %v", err)
	}
	res, err := w.AwaitResult(ctx, key, awaitTimeout)
	if err != nil {
		t.Fatalf("AwaitResult: %v", err)
	}
	if res.Err != nil {
		t.Fatalf("backfill failed: %v", res.Err)
	}

	if !strings.Contains(logBuf.String(), "sarcasm") {
		t.Error("dropped facet not surfaced in the anomaly log")
	}

	var validated string
	if err := s.db.QueryRow(
		`SELECT validated_facets FROM figurative_instances WHERE instance_key = ?`,
		"Genesis.7.2.1").Scan(&validated); err != nil {
		t.Fatalf("read back instance: %v", err)
	}
	if strings.Contains(validated, "sarcasm") {
		t.Errorf("out-of-vocabulary facet written: %s", validated)
	}
	if !strings.Contains(validated, "idiom") {
		t.Errorf("known facet lost in sanitize: %s", validated)
	}
}

func TestAwaitResultUnknownKey(t *testing.T) {
	_, w := newTestWriter(t)
	if _, err := w.AwaitResult(context.Background(), "no-such-key", time.Second); err == nil {
		t.Fatal("expected error for unknown correlation key")
	}
}
