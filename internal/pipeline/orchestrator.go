// Package pipeline orchestrates chapter jobs: a bounded worker pool runs
// fetch, detection, and validation concurrently while every durable write
// funnels through the single store writer.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/analysis"
	"github.com/ARobicsek/bible-figurative-language-sub002/internal/extract"
	"github.com/ARobicsek/bible-figurative-language-sub002/internal/metrics"
	"github.com/ARobicsek/bible-figurative-language-sub002/internal/store"
	"github.com/ARobicsek/bible-figurative-language-sub002/internal/tanakh"
)

// Failure categories.
const (
	CategoryFetchFailed      = "fetch_failed"
	CategoryDetectionFailed  = "detection_failed"
	CategoryValidationFailed = "validation_failed"
	CategoryWriteFailed      = "write_failed"
	CategoryPartialDetection = "partial_detection"
)

// RetryDirective is the exact unit to redo. A failure manifest replays as
// a job list built from these.
type RetryDirective struct {
	Book    string `json:"book"`
	Chapter int    `json:"chapter"`
	JobKey  string `json:"job_key"`
}

// FailureRecord describes one unit that never succeeded, at chapter or,
// where determinable, verse granularity.
type FailureRecord struct {
	Book     string         `json:"book"`
	Chapter  int            `json:"chapter"`
	Verse    int            `json:"verse,omitempty"`
	Category string         `json:"category"`
	Cause    string         `json:"cause"`
	Retry    RetryDirective `json:"retry"`
}

// JobOutcome is one chapter job's result.
type JobOutcome struct {
	JobKey    string        `json:"job_key"`
	Book      string        `json:"book"`
	Chapter   int           `json:"chapter"`
	Succeeded bool          `json:"succeeded"`
	Verses    int           `json:"verses"`
	Instances int           `json:"instances"`
	DataLoss  bool          `json:"data_loss"`
	Sanitized bool          `json:"sanitized"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// RunSummary is the run manifest payload.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	MaxParallel int       `json:"max_parallel"`

	Jobs           int `json:"jobs"`
	Succeeded      int `json:"succeeded"`
	Failed         int `json:"failed"`
	DataLossEvents int `json:"data_loss_events"`

	Reconciled   int `json:"reconciled_instances"`
	Unreconciled int `json:"unreconciled_instances"`

	Outcomes []JobOutcome    `json:"outcomes"`
	Failures []FailureRecord `json:"failures"`

	Usage      metrics.Summary       `json:"usage"`
	Extraction extract.StatsSnapshot `json:"extraction"`
}

// Config wires an Orchestrator.
type Config struct {
	Texts     tanakh.Provider
	Detector  *analysis.Detector
	Validator *analysis.Validator
	Writer    *store.Writer
	Store     *store.Store
	Metrics   *metrics.Recorder
	Extractor *extract.Extractor
	Logger    *slog.Logger

	// RunDir receives the run and failure manifests. Empty disables
	// manifest files (tests).
	RunDir string

	// AwaitTimeout bounds the wait on the writer per chapter.
	AwaitTimeout time.Duration
}

// Orchestrator runs the chapter pipeline end to end.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	outcomes []JobOutcome
	failures []FailureRecord
}

func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.AwaitTimeout == 0 {
		cfg.AwaitTimeout = 2 * time.Minute
	}
	return &Orchestrator{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "pipeline"),
	}
}

// BuildJobs expands a book and chapter list into the work list.
func BuildJobs(book tanakh.Book, chapters []int) []analysis.ChapterJob {
	jobs := make([]analysis.ChapterJob, 0, len(chapters))
	for _, ch := range chapters {
		jobs = append(jobs, analysis.ChapterJob{
			Book:    book.ID,
			Chapter: ch,
			Key:     analysis.JobKey(book.ID, ch),
		})
	}
	return jobs
}

// Run executes every job with at most maxParallel concurrent workers, runs
// the reconciliation pass, and writes the run and failure manifests. The
// returned error reflects infrastructure problems only; per-chapter
// failures land in the summary and manifest.
func (o *Orchestrator) Run(ctx context.Context, jobs []analysis.ChapterJob, maxParallel int) (*RunSummary, error) {
	if maxParallel <= 0 {
		maxParallel = 1
	}

	summary := &RunSummary{
		RunID:       uuid.NewString(),
		StartedAt:   time.Now().UTC(),
		MaxParallel: maxParallel,
		Jobs:        len(jobs),
	}
	o.logger.Info("run starting", "run_id", summary.RunID, "jobs", len(jobs), "max_parallel", maxParallel)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)

	for _, job := range jobs {
		job := job
		g.Go(func() error {
			// A failed chapter must not cancel its siblings; only
			// context cancellation stops the pool.
			o.runJob(gctx, job)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	reconciled, unreconciled := o.reconcile(ctx)
	summary.Reconciled = reconciled
	summary.Unreconciled = unreconciled

	o.mu.Lock()
	summary.Outcomes = o.outcomes
	summary.Failures = o.failures
	o.mu.Unlock()

	for _, out := range summary.Outcomes {
		if out.Succeeded {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		if out.DataLoss {
			summary.DataLossEvents++
		}
	}

	if o.cfg.Metrics != nil {
		summary.Usage = o.cfg.Metrics.Summarize()
	}
	if o.cfg.Extractor != nil {
		summary.Extraction = o.cfg.Extractor.Stats()
	}
	summary.FinishedAt = time.Now().UTC()

	if o.cfg.RunDir != "" {
		if err := writeManifests(o.cfg.RunDir, summary); err != nil {
			return summary, err
		}
	}

	o.logger.Info("run finished",
		"run_id", summary.RunID,
		"succeeded", summary.Succeeded, "failed", summary.Failed,
		"data_loss_events", summary.DataLossEvents,
		"reconciled", summary.Reconciled, "unreconciled", summary.Unreconciled)
	return summary, nil
}

func (o *Orchestrator) runJob(ctx context.Context, job analysis.ChapterJob) {
	start := time.Now()
	outcome := JobOutcome{
		JobKey:  job.Key,
		Book:    job.Book,
		Chapter: job.Chapter,
	}

	fail := func(category string, err error) {
		outcome.Error = err.Error()
		outcome.Duration = time.Since(start)
		o.record(outcome, &FailureRecord{
			Book:     job.Book,
			Chapter:  job.Chapter,
			Category: category,
			Cause:    err.Error(),
			Retry:    RetryDirective{Book: job.Book, Chapter: job.Chapter, JobKey: job.Key},
		})
	}

	verses := job.Verses
	if len(verses) == 0 {
		var err error
		verses, err = o.cfg.Texts.FetchChapter(ctx, job.Book, job.Chapter)
		if err != nil {
			fail(CategoryFetchFailed, err)
			return
		}
		job.Verses = verses
	}

	chapter, err := o.cfg.Detector.DetectChapter(ctx, job)
	if err != nil {
		fail(CategoryDetectionFailed, err)
		return
	}

	instances := chapter.Instances
	verdicts, err := o.cfg.Validator.ValidateChapter(ctx, job.Book, job.Chapter, instances)
	if err != nil {
		// The chapter still persists with unvalidated instances; the
		// reconciliation pass redoes just those.
		o.logger.Warn("validation failed, deferring to reconciliation",
			"book", job.Book, "chapter", job.Chapter, "error", err)
	} else {
		instances = analysis.Reconcile(instances, verdicts)
	}

	payload := &store.ChapterPayload{
		Book:      job.Book,
		Chapter:   job.Chapter,
		JobKey:    job.Key,
		Verses:    chapter.Verses,
		Instances: instances,
	}

	key, err := o.cfg.Writer.Submit(ctx, payload)
	if err != nil {
		fail(CategoryWriteFailed, err)
		return
	}
	res, err := o.cfg.Writer.AwaitResult(ctx, key, o.cfg.AwaitTimeout)
	if err != nil {
		fail(CategoryWriteFailed, err)
		return
	}
	if res.Err != nil {
		fail(CategoryWriteFailed, res.Err)
		return
	}

	outcome.Succeeded = true
	outcome.Verses = res.VersesWritten
	outcome.Instances = res.InstancesWritten
	outcome.Sanitized = res.Sanitized
	outcome.DataLoss = chapter.Meta.PossibleDataLoss
	outcome.Duration = time.Since(start)

	// Verses the analyzer never addressed stay flagged in the store and
	// surface in the manifest at verse granularity.
	var verseFailures []*FailureRecord
	for _, vn := range chapter.Meta.FollowUpVerses {
		verseFailures = append(verseFailures, &FailureRecord{
			Book:     job.Book,
			Chapter:  job.Chapter,
			Verse:    vn,
			Category: CategoryPartialDetection,
			Cause:    fmt.Sprintf("verse %d absent from analyzer output", vn),
			Retry:    RetryDirective{Book: job.Book, Chapter: job.Chapter, JobKey: job.Key},
		})
	}
	o.record(outcome, verseFailures...)
}

func (o *Orchestrator) record(outcome JobOutcome, failures ...*FailureRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
	for _, f := range failures {
		if f != nil {
			o.failures = append(o.failures, *f)
		}
	}
}

func (o *Orchestrator) recordFailure(f FailureRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, f)
}
