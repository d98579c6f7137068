package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/analysis"
)

const (
	runManifestName     = "run_manifest.json"
	failureManifestName = "failure_manifest.json"
)

// FailureManifest is written after every run, even a fully successful one,
// so retry tooling can distinguish "nothing to redo" from "never ran".
type FailureManifest struct {
	RunID    string          `json:"run_id"`
	Failures []FailureRecord `json:"failures"`
}

func writeManifests(dir string, summary *RunSummary) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, runManifestName), summary); err != nil {
		return err
	}
	manifest := FailureManifest{RunID: summary.RunID, Failures: summary.Failures}
	if manifest.Failures == nil {
		manifest.Failures = []FailureRecord{}
	}
	return writeJSON(filepath.Join(dir, failureManifestName), manifest)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// LoadFailureManifest reads a prior run's failure manifest and rebuilds the
// job list, deduplicated to one job per chapter.
func LoadFailureManifest(path string) ([]analysis.ChapterJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read failure manifest: %w", err)
	}
	var manifest FailureManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse failure manifest: %w", err)
	}

	seen := make(map[string]bool)
	var jobs []analysis.ChapterJob
	for _, f := range manifest.Failures {
		if f.Retry.Book == "" || f.Retry.Chapter == 0 {
			continue
		}
		key := f.Retry.JobKey
		if key == "" {
			key = analysis.JobKey(f.Retry.Book, f.Retry.Chapter)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		jobs = append(jobs, analysis.ChapterJob{
			Book:    f.Retry.Book,
			Chapter: f.Retry.Chapter,
			Key:     key,
		})
	}
	return jobs, nil
}
