package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/coyaSONG/kra-analysis/internal/metrics"
	"github.com/coyaSONG/kra-analysis/internal/promotion"
	"github.com/coyaSONG/kra-analysis/internal/report"
	"github.com/coyaSONG/kra-analysis/internal/statistics"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

var (
	compareOutputFormat string
	compareGate         string
	compareSeed         int64
)

func newCompareCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <champion-report.json> <challenger-report.json>",
		Short: "Compare champion and challenger evaluation reports",
		Long: `Compare a challenger evaluation report against the reigning champion.

Loads two v2 report files, applies the promotion gate, and prints a
metric-by-metric comparison with a bootstrap confidence interval on the
paired per-race hit-rate delta. Exits with code 1 when the challenger
is not promoted.`,
		Args: cobra.ExactArgs(2),
		RunE: compareCommandE,
	}

	cmd.Flags().StringVarP(&compareOutputFormat, "format", "f", "table", "Output format: table or json")
	cmd.Flags().StringVar(&compareGate, "gate", promotion.GateStrict, "Promotion gate policy")
	cmd.Flags().Int64Var(&compareSeed, "seed", 42, "Bootstrap resampling seed")

	return cmd
}

// loadedReport is one parsed v2 report plus the fields compare consumes.
type loadedReport struct {
	Path          string
	PromptVersion string
	Bundle        metrics.Bundle
	LeakagePassed bool
	Hits          map[string]float64 // race id -> 1.0 if any pick finished top-3
}

// comparisonOutput is the JSON form of the comparison.
type comparisonOutput struct {
	Champion    string                        `json:"champion"`
	Challenger  string                        `json:"challenger"`
	Decision    promotion.Decision            `json:"decision"`
	Metrics     map[string][2]float64         `json:"metrics"`
	HitDelta    statistics.ConfidenceInterval `json:"hit_rate_delta_ci"`
	PairedRaces int                           `json:"paired_races"`
	Significant bool                          `json:"significant"`
}

func compareCommandE(_ *cobra.Command, args []string) error {
	if compareOutputFormat != "table" && compareOutputFormat != "json" {
		return fmt.Errorf("unsupported format %q: must be table or json", compareOutputFormat)
	}

	champion, err := loadReportFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to load champion report: %w", err)
	}
	challenger, err := loadReportFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to load challenger report: %w", err)
	}

	decision := promotion.ShouldPromoteChallenger(champion.Bundle, challenger.Bundle, challenger.LeakagePassed, compareGate)

	champHits, challHits, paired := pairedHits(champion.Hits, challenger.Hits)
	ci := statistics.PairedDeltaCI(champHits, challHits, 0.95, compareSeed)

	out := comparisonOutput{
		Champion:    champion.PromptVersion,
		Challenger:  challenger.PromptVersion,
		Decision:    decision,
		PairedRaces: paired,
		HitDelta:    ci,
		Significant: statistics.IsSignificant(ci),
		Metrics: map[string][2]float64{
			"log_loss": {champion.Bundle.LogLoss, challenger.Bundle.LogLoss},
			"brier":    {champion.Bundle.Brier, challenger.Bundle.Brier},
			"ece":      {champion.Bundle.ECE, challenger.Bundle.ECE},
			"top1":     {champion.Bundle.TopK["top1"], challenger.Bundle.TopK["top1"]},
			"top3":     {champion.Bundle.TopK["top3"], challenger.Bundle.TopK["top3"]},
			"roi":      {champion.Bundle.ROI.AvgROI, challenger.Bundle.ROI.AvgROI},
			"coverage": {champion.Bundle.Coverage, challenger.Bundle.Coverage},
		},
	}

	if compareOutputFormat == "json" {
		if err := printComparisonJSON(out); err != nil {
			return err
		}
	} else {
		printComparisonTable(champion, challenger, out)
	}

	if !decision.Promote {
		return &GateFailureError{
			Message: fmt.Sprintf("challenger not promoted: %s", decision.Reason),
		}
	}
	return nil
}

func loadReportFile(path string) (*loadedReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if errs := report.ValidateSerialized(data); len(errs) > 0 {
		return nil, fmt.Errorf("%s is not a valid v2 report: %s", path, strings.Join(errs, "; "))
	}

	var doc struct {
		PromptVersion string         `json:"prompt_version"`
		MetricsV2     metrics.Bundle `json:"metrics_v2"`
		LeakageCheck  struct {
			Passed bool `json:"passed"`
		} `json:"leakage_check"`
		DetailedResults []struct {
			RaceID string `json:"race_id"`
			Reward struct {
				CorrectCount int `json:"correct_count"`
			} `json:"reward"`
		} `json:"detailed_results"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	hits := make(map[string]float64, len(doc.DetailedResults))
	for _, r := range doc.DetailedResults {
		hit := 0.0
		if r.Reward.CorrectCount > 0 {
			hit = 1.0
		}
		hits[r.RaceID] = hit
	}

	return &loadedReport{
		Path:          path,
		PromptVersion: doc.PromptVersion,
		Bundle:        doc.MetricsV2,
		LeakagePassed: doc.LeakageCheck.Passed,
		Hits:          hits,
	}, nil
}

// pairedHits aligns the two hit maps on their shared race ids so the
// bootstrap works over genuine pairs.
func pairedHits(champion, challenger map[string]float64) (champHits, challHits []float64, paired int) {
	for id, ch := range champion {
		if cl, ok := challenger[id]; ok {
			champHits = append(champHits, ch)
			challHits = append(challHits, cl)
		}
	}
	return champHits, challHits, len(champHits)
}

func printComparisonTable(champion, challenger *loadedReport, out comparisonOutput) {
	fmt.Println(strings.Repeat("=", 70))
	fmt.Println(" PROMOTION COMPARISON")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Println()

	fmt.Printf("  Champion:   %s  (%s)\n", out.Champion, champion.Path)
	fmt.Printf("  Challenger: %s  (%s)\n", out.Challenger, challenger.Path)
	fmt.Println()

	fmt.Println(strings.Repeat("-", 70))
	fmt.Printf("  %s%s%s%s\n", padCell("Metric", 14), padCell("Champion", 12), padCell("Challenger", 12), "Delta")
	fmt.Println(strings.Repeat("-", 70))

	// Fixed order: gate-relevant metrics first.
	for _, name := range []string{"log_loss", "ece", "top3", "roi", "brier", "top1", "coverage"} {
		pair := out.Metrics[name]
		delta := pair[1] - pair[0]
		fmt.Printf("  %s%s%s%+.4f\n",
			padCell(name, 14),
			padCell(fmt.Sprintf("%.4f", pair[0]), 12),
			padCell(fmt.Sprintf("%.4f", pair[1]), 12),
			delta)
	}
	fmt.Println()

	fmt.Printf("  Paired races:       %d\n", out.PairedRaces)
	fmt.Printf("  Hit-rate delta:     %+.4f  CI95=[%+.4f, %+.4f]\n", out.HitDelta.Mean, out.HitDelta.Lower, out.HitDelta.Upper)
	significance := "not significant"
	if out.Significant {
		significance = "significant"
	}
	fmt.Printf("  Significance:       %s\n", significance)
	fmt.Println()

	verdict := "NOT PROMOTED"
	if out.Decision.Promote {
		verdict = "PROMOTED"
	}
	fmt.Printf("  Decision: %s (%s)\n", verdict, out.Decision.Reason)
	fmt.Println()
}

func printComparisonJSON(out comparisonOutput) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal comparison: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// padCell pads s with spaces so its terminal display width reaches width.
func padCell(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s + " "
	}
	return s + strings.Repeat(" ", width-sw)
}
