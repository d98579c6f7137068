package main

import (
	"github.com/spf13/cobra"

	"github.com/ARobicsek/bible-figurative-language-sub002/internal/output"
	"github.com/ARobicsek/bible-figurative-language-sub002/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string

	// printer is built from --output before any command runs.
	printer *output.Printer
)

var rootCmd = &cobra.Command{
	Use:   "figlang",
	Short: "Figurative language analysis pipeline for biblical Hebrew text",
	Long: `Figlang runs chapters of the Hebrew Bible through a two-phase LLM
analysis pipeline that detects and validates figurative language.

The pipeline includes:
  - Multi-backend analyzer client with ordered fallback
  - Tolerant structured-output extraction with repair strategies
  - Detection and validation stages with per-facet verdicts
  - A serialized SQLite writer with sanitize-and-retry
  - Replayable failure manifests and a validation reconciliation pass`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.figlang/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "figlang home directory (default: ~/.figlang)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		printer = output.NewPrinter(cmd.OutOrStdout(), format)
		return nil
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
