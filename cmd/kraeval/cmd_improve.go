package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/coyaSONG/kra-analysis/internal/improver"
	"github.com/coyaSONG/kra-analysis/internal/metrics"
	"github.com/coyaSONG/kra-analysis/internal/models"
	"github.com/coyaSONG/kra-analysis/internal/projectconfig"
	"github.com/coyaSONG/kra-analysis/internal/report"
	"github.com/spf13/cobra"
)

var (
	improveReportPath string
	improveOutputPath string
	improveInsights   string
)

func newImproveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "improve <prompt.md> <new-version>",
		Short: "Improve a prompt through jury deliberation",
		Long: `Improve a prediction prompt through multi-model jury deliberation.

The jury reviews the current prompt sections alongside the evaluation
report's metrics and failure cases, proposes section edits, and edits
backed by enough distinct models are applied to a new prompt version.
The improved prompt is written next to the original unless --output is
given.`,
		Args: cobra.ExactArgs(2),
		RunE: improveCommandE,
	}

	cmd.Flags().StringVarP(&improveReportPath, "report", "r", "", "Evaluation report feeding metrics and failure cases (required)")
	cmd.Flags().StringVarP(&improveOutputPath, "output", "o", "", "Output path for the improved prompt (default: <prompt dir>/<new-version>.md)")
	cmd.Flags().StringVar(&improveInsights, "insights", "", "Failure-analysis notes enabling fallback reconstruction when the jury deadlocks")

	if err := cmd.MarkFlagRequired("report"); err != nil {
		panic(err)
	}

	return cmd
}

func improveCommandE(_ *cobra.Command, args []string) error {
	promptPath := args[0]
	newVersion := args[1]

	cfg, err := projectconfig.Load(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	source, err := os.ReadFile(promptPath)
	if err != nil {
		return fmt.Errorf("failed to read prompt: %w", err)
	}
	currentVersion := strings.TrimSuffix(filepath.Base(promptPath), filepath.Ext(promptPath))
	structure := improver.ParsePromptStructure(currentVersion, source)
	if len(structure.Sections()) == 0 {
		return fmt.Errorf("prompt %s has no '## section' headings to improve", promptPath)
	}

	bundle, failures, err := loadImprovementInputs(improveReportPath)
	if err != nil {
		return err
	}

	deliberator, _, panelSize, err := buildJuryPanel(cfg)
	if err != nil {
		return err
	}
	imp, err := improver.New(deliberator, improver.WithMinConsensus(cfg.Jury.MinConsensus))
	if err != nil {
		return fmt.Errorf("failed to build improver: %w", err)
	}

	fmt.Printf("Improving prompt: %s -> %s\n", currentVersion, newVersion)
	fmt.Printf("Jury: %d client(s), min consensus %d\n", panelSize, cfg.Jury.MinConsensus)
	fmt.Printf("Failure cases: %d\n", len(failures))
	fmt.Println()

	result, err := imp.Improve(context.Background(), structure, bundle, failures, improveInsights, newVersion)
	if err != nil {
		return fmt.Errorf("improvement cycle failed: %w", err)
	}

	fmt.Printf("Responses: %d succeeded, %d failed\n",
		len(result.Verdict.SuccessfulResponses), len(result.Verdict.FailedResponses))
	fmt.Printf("Outcome: %s\n", result.Reason)

	if len(result.Changes) == 0 {
		fmt.Println("No consensus edits; prompt left unchanged.")
		return nil
	}

	fmt.Println("\nApplied changes:")
	for _, c := range result.Changes {
		fmt.Printf("  - [%s] %s: %s (models: %s)\n", c.Action, c.Section, c.Description, strings.Join(c.Models, ", "))
	}

	outputPath := improveOutputPath
	if outputPath == "" {
		outputPath = filepath.Join(filepath.Dir(promptPath), newVersion+".md")
	}
	if err := os.WriteFile(outputPath, result.Structure.Render(), 0o644); err != nil {
		return fmt.Errorf("failed to write improved prompt: %w", err)
	}
	fmt.Printf("\nImproved prompt saved to: %s\n", outputPath)
	return nil
}

// loadImprovementInputs pulls the metrics bundle and the failed races out
// of a v2 evaluation report.
func loadImprovementInputs(path string) (metrics.Bundle, []improver.FailureCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return metrics.Bundle{}, nil, fmt.Errorf("failed to read report: %w", err)
	}
	if errs := report.ValidateSerialized(data); len(errs) > 0 {
		return metrics.Bundle{}, nil, fmt.Errorf("%s is not a valid v2 report: %s", path, strings.Join(errs, "; "))
	}

	var doc struct {
		MetricsV2       metrics.Bundle          `json:"metrics_v2"`
		DetailedResults []models.DetailedResult `json:"detailed_results"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return metrics.Bundle{}, nil, fmt.Errorf("failed to parse report: %w", err)
	}

	var failures []improver.FailureCase
	for _, r := range doc.DetailedResults {
		if r.Outcome() != models.OutcomeMiss {
			continue
		}
		failures = append(failures, improver.FailureCase{
			RaceID:     r.RaceID,
			Predicted:  r.Predicted,
			Actual:     r.Actual,
			Confidence: r.Confidence,
		})
	}
	return doc.MetricsV2, failures, nil
}
