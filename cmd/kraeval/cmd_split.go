package main

import (
	"fmt"

	"github.com/coyaSONG/kra-analysis/internal/dataset"
	"github.com/coyaSONG/kra-analysis/internal/models"
	"github.com/coyaSONG/kra-analysis/internal/projectconfig"
	"github.com/coyaSONG/kra-analysis/internal/split"
	"github.com/spf13/cobra"
)

var (
	splitDataDir string
	splitFolds   int
)

func newSplitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Print the walk-forward fold boundaries for the race data",
		Long: `Print the walk-forward fold boundaries for the configured race data.

Races are sorted by date and partitioned into expanding-window folds; for
each fold the train/val/test sizes and date ranges are listed. Useful for
sanity-checking a data window before an evaluation run.`,
		Args: cobra.NoArgs,
		RunE: splitCommandE,
	}

	cmd.Flags().StringVar(&splitDataDir, "data-dir", "", "Race data directory (default: paths.data from config)")
	cmd.Flags().IntVar(&splitFolds, "splits", 0, "Number of walk-forward folds (default: split.splits from config)")

	return cmd
}

func splitCommandE(_ *cobra.Command, _ []string) error {
	cfg, err := projectconfig.Load(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dataDir := splitDataDir
	if dataDir == "" {
		dataDir = cfg.Paths.Data
	}
	races, err := dataset.LoadRaceDir(dataDir)
	if err != nil {
		return fmt.Errorf("failed to load races: %w", err)
	}
	if len(races) == 0 {
		return fmt.Errorf("no races found in %s", dataDir)
	}

	splitter, err := split.NewTemporalSplitter(cfg.Split.TrainRatio, cfg.Split.ValRatio, cfg.Split.TestRatio)
	if err != nil {
		return fmt.Errorf("invalid split ratios: %w", err)
	}

	nSplits := cfg.Split.Splits
	if splitFolds > 0 {
		nSplits = splitFolds
	}
	folds := splitter.WalkForwardSplits(races, nSplits)

	fmt.Printf("Races: %d  Folds: %d  Ratios: %.2f/%.2f/%.2f\n\n",
		len(races), len(folds), cfg.Split.TrainRatio, cfg.Split.ValRatio, cfg.Split.TestRatio)

	for i, fold := range folds {
		fmt.Printf("fold %d:\n", i+1)
		printPartition("train", fold.Train)
		printPartition("val", fold.Val)
		printPartition("test", fold.Test)
		fmt.Println()
	}
	return nil
}

func printPartition(name string, records []models.RaceRecord) {
	if len(records) == 0 {
		fmt.Printf("  %-5s   0 races\n", name)
		return
	}
	first, last := dateRange(records)
	fmt.Printf("  %-5s %3d races  %s .. %s\n", name, len(records), first, last)
}

func dateRange(records []models.RaceRecord) (first, last string) {
	first, last = records[0].RaceDate, records[0].RaceDate
	for _, r := range records[1:] {
		if r.RaceDate < first {
			first = r.RaceDate
		}
		if r.RaceDate > last {
			last = r.RaceDate
		}
	}
	return first, last
}
