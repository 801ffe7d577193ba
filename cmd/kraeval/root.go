package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kraeval",
		Short: "kraeval - evaluation pipeline for KRA race predictions",
		Long: `kraeval evaluates LLM predictions for Korean horse racing.

It runs walk-forward evaluations over historical race data, scores
predictions with calibration-aware metrics, gates champion/challenger
promotions, and improves prompts through multi-model deliberation.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			// slog.SetLogLoggerLevel requires Go 1.22; this toolchain is 1.21.
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
		}
	}

	// Add subcommands
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newCompareCommand())
	cmd.AddCommand(newImproveCommand())
	cmd.AddCommand(newCheckCommand())
	cmd.AddCommand(newSplitCommand())
	cmd.AddCommand(newInitCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
