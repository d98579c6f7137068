package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/pipeline"
)

var retryManifest string

var retryCmd = &cobra.Command{
	Use:          "retry",
	Short:        "Replay the failed units from a prior run's failure manifest",
	Example:      `  figlang retry --manifest ~/.figlang/runs/20250309T143005Z/failure_manifest.json`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := pipeline.LoadFailureManifest(retryManifest)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("failure manifest is empty; nothing to retry")
			return nil
		}

		app, cleanup, err := buildApp()
		if err != nil {
			return err
		}
		defer cleanup()

		return executeRun(cmd, app, jobs)
	},
}

func init() {
	retryCmd.Flags().StringVar(&retryManifest, "manifest", "", "path to a failure_manifest.json from a prior run")
	retryCmd.MarkFlagRequired("manifest")
}
