package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/analysis"
	"github.com/ARobicsek/bible-figurative-language-sub002/internal/calllog"
	"github.com/ARobicsek/bible-figurative-language-sub002/internal/config"
	"github.com/ARobicsek/bible-figurative-language-sub002/internal/extract"
	"github.com/ARobicsek/bible-figurative-language-sub002/internal/home"
	"github.com/ARobicsek/bible-figurative-language-sub002/internal/metrics"
	"github.com/ARobicsek/bible-figurative-language-sub002/internal/pipeline"
	"github.com/ARobicsek/bible-figurative-language-sub002/internal/providers"
	"github.com/ARobicsek/bible-figurative-language-sub002/internal/store"
	"github.com/ARobicsek/bible-figurative-language-sub002/internal/tanakh"
)

var (
	runBook     string
	runChapters string
	runParallel int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Analyze chapters of a book for figurative language",
	Example: `  figlang run --book Genesis --chapters all
  figlang run --book Deuteronomy --chapters 30-34 --parallel 4`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		book, err := tanakh.LookupBook(runBook)
		if err != nil {
			return err
		}
		chapters, err := tanakh.ParseChapterSelector(runChapters, book)
		if err != nil {
			return err
		}

		app, cleanup, err := buildApp()
		if err != nil {
			return err
		}
		defer cleanup()

		jobs := pipeline.BuildJobs(book, chapters)
		return executeRun(cmd, app, jobs)
	},
}

func init() {
	runCmd.Flags().StringVar(&runBook, "book", "", "book to analyze (e.g. Genesis)")
	runCmd.Flags().StringVar(&runChapters, "chapters", "all", "chapter selector: all, N, N-M, or comma list")
	runCmd.Flags().IntVar(&runParallel, "parallel", 0, "max concurrent chapter jobs (default from config)")
	runCmd.MarkFlagRequired("book")
}

// executeRun drives the orchestrator over the job list, prints the summary,
// and fails the command when any unit never succeeded.
func executeRun(cmd *cobra.Command, app *app, jobs []analysis.ChapterJob) error {
	parallel := runParallel
	if parallel <= 0 {
		parallel = app.cfg.Pipeline.MaxParallel
	}

	summary, err := app.orch.Run(cmd.Context(), jobs, parallel)
	if err != nil {
		return err
	}
	if err := printer.Print(summary); err != nil {
		return err
	}
	if len(summary.Failures) > 0 {
		return fmt.Errorf("%d units failed; retry with: figlang retry --manifest %s",
			len(summary.Failures), app.failureManifestPath())
	}
	return nil
}

// app holds the wired pipeline for one command invocation.
type app struct {
	home   *home.Dir
	cfg    *config.Config
	orch   *pipeline.Orchestrator
	runDir string
}

func (a *app) failureManifestPath() string {
	return filepath.Join(a.runDir, "failure_manifest.json")
}

// buildApp assembles the full pipeline from config: analyzer backends,
// stage clients, source-text provider, store, writer, and orchestrator.
func buildApp() (*app, func(), error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	dir, err := home.New(homeDir)
	if err != nil {
		return nil, nil, err
	}
	if err := dir.EnsureExists(); err != nil {
		return nil, nil, err
	}

	cfgPath := cfgFile
	if cfgPath == "" && dir.ConfigExists() {
		cfgPath = dir.ConfigPath()
	}
	mgr, err := config.NewManager(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	cfg := mgr.Get()

	rc := cfg.ToRegistryConfig()
	registry := providers.NewRegistryFromConfig(rc)
	registry.SetLogger(logger)

	mgr.OnChange(func(next *config.Config) {
		registry.Reload(next.ToRegistryConfig())
	})
	mgr.WatchConfig()

	runDir := dir.NewRunDir(time.Now())
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, nil, err
	}

	calls, err := calllog.NewRecorder(dir.CallLogPath(runDir), logger)
	if err != nil {
		return nil, nil, err
	}

	st, err := store.Open(dir.DatabasePath(), logger)
	if err != nil {
		calls.Close()
		return nil, nil, err
	}
	writer := store.NewWriter(st, logger, cfg.Pipeline.WriterQueueSize)
	writer.Start(context.Background())

	recorder := metrics.NewRecorder()
	extractor := extract.New(logger)

	detectClient := providers.NewFallbackClient(registry.Chain(rc), teeObserver{
		recorder.Stage("detection"),
		callLogObserver{calls, "stages.detection"},
	}, logger)
	validateClient := providers.NewFallbackClient(registry.Chain(rc), teeObserver{
		recorder.Stage("validation"),
		callLogObserver{calls, "stages.validation"},
	}, logger)

	detector := analysis.NewDetector(detectClient, extractor, logger, analysis.DetectorOptions{
		Temperature:      cfg.Stages.Detection.Temperature,
		MaxTokens:        cfg.Stages.Detection.MaxTokens,
		PromptRuneBudget: cfg.Pipeline.PromptRuneBudget,
	})
	validator := analysis.NewValidator(validateClient, extractor, logger, analysis.ValidatorOptions{
		Temperature: cfg.Stages.Validation.Temperature,
		MaxTokens:   cfg.Stages.Validation.MaxTokens,
	})

	texts := tanakh.NewCachedProvider(tanakh.NewClient(cfg.Source.BaseURL, logger), tanakh.NewCache())

	orch := pipeline.New(pipeline.Config{
		Texts:        texts,
		Detector:     detector,
		Validator:    validator,
		Writer:       writer,
		Store:        st,
		Metrics:      recorder,
		Extractor:    extractor,
		Logger:       logger,
		RunDir:       runDir,
		AwaitTimeout: time.Duration(cfg.Pipeline.AwaitTimeoutSeconds) * time.Second,
	})

	cleanup := func() {
		writer.Stop()
		st.Close()
		calls.Close()
	}
	return &app{home: dir, cfg: cfg, orch: orch, runDir: runDir}, cleanup, nil
}

// teeObserver fans one usage record out to several observers.
type teeObserver []providers.UsageObserver

func (t teeObserver) ObserveCall(result *providers.Result) {
	for _, o := range t {
		o.ObserveCall(result)
	}
}

// callLogObserver appends each backend attempt to the run's call log.
type callLogObserver struct {
	rec       *calllog.Recorder
	promptKey string
}

func (o callLogObserver) ObserveCall(result *providers.Result) {
	o.rec.Record(calllog.RecordOptions{PromptKey: o.promptKey}, result)
}
