package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/home"
	"github.com/ARobicsek/bible-figurative-language-sub002/internal/pipeline"
)

var statsRun string

var statsCmd = &cobra.Command{
	Use:          "stats",
	Short:        "Print the manifest of a run (latest by default)",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := home.New(homeDir)
		if err != nil {
			return err
		}

		runDir := statsRun
		if runDir == "" {
			runDir, err = latestRunDir(dir)
			if err != nil {
				return err
			}
		} else if !filepath.IsAbs(runDir) {
			runDir = filepath.Join(dir.RunsPath(), runDir)
		}

		data, err := os.ReadFile(filepath.Join(runDir, "run_manifest.json"))
		if err != nil {
			return fmt.Errorf("read run manifest: %w", err)
		}
		var summary pipeline.RunSummary
		if err := json.Unmarshal(data, &summary); err != nil {
			return fmt.Errorf("parse run manifest: %w", err)
		}
		return printer.Print(summary)
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsRun, "run", "", "run directory name under ~/.figlang/runs (default: latest)")
}

// latestRunDir picks the most recent run directory. Run directory names are
// UTC timestamps, so lexical order is chronological order.
func latestRunDir(dir *home.Dir) (string, error) {
	entries, err := os.ReadDir(dir.RunsPath())
	if err != nil {
		return "", fmt.Errorf("read runs directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no runs found under %s", dir.RunsPath())
	}
	sort.Strings(names)
	return filepath.Join(dir.RunsPath(), names[len(names)-1]), nil
}
