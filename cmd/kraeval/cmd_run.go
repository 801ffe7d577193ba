package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/coyaSONG/kra-analysis/internal/dataset"
	"github.com/coyaSONG/kra-analysis/internal/ensemble"
	"github.com/coyaSONG/kra-analysis/internal/harness"
	"github.com/coyaSONG/kra-analysis/internal/jury"
	"github.com/coyaSONG/kra-analysis/internal/llm"
	"github.com/coyaSONG/kra-analysis/internal/metrics"
	"github.com/coyaSONG/kra-analysis/internal/models"
	"github.com/coyaSONG/kra-analysis/internal/projectconfig"
	"github.com/coyaSONG/kra-analysis/internal/report"
	"github.com/coyaSONG/kra-analysis/internal/runmeta"
	"github.com/coyaSONG/kra-analysis/internal/split"
	"github.com/spf13/cobra"
)

var (
	runDataDir     string
	runResultsPath string
	runOddsCSV     string
	runOutputDir   string
	runPromptPath  string
	runWorkers     int
	runSplits      int
	runVerbose     bool
	runCommitSHA   string
	runSnapshotID  string
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <prompt-version>",
		Short: "Run a walk-forward evaluation of a prompt version",
		Long: `Run a walk-forward evaluation of a prompt version over historical races.

Race data, ground-truth results, and the jury panel come from .kraeval.yaml.
The run writes a validated v2 report plus run metadata into the results
directory, and fails with exit code 1 when the leakage gate rejects the data.`,
		Args: cobra.ExactArgs(1),
		RunE: runCommandE,
	}

	cmd.Flags().StringVar(&runDataDir, "data-dir", "", "Race data directory (default: paths.data from config)")
	cmd.Flags().StringVar(&runResultsPath, "results", "", "Ground-truth results file or directory (default: paths.results from config)")
	cmd.Flags().StringVar(&runOddsCSV, "odds", "", "Odds snapshot CSV to backfill missing win odds")
	cmd.Flags().StringVarP(&runOutputDir, "output", "o", "", "Output directory for report artifacts (default: paths.results from config)")
	cmd.Flags().StringVar(&runPromptPath, "prompt", "", "Prompt file (default: <paths.prompts>/<prompt-version>.md)")
	cmd.Flags().IntVar(&runWorkers, "workers", 0, "Number of concurrent race evaluations (default: evaluation.workers from config)")
	cmd.Flags().IntVar(&runSplits, "splits", 0, "Number of walk-forward folds (default: split.splits from config)")
	cmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Verbose output with per-race progress")
	cmd.Flags().StringVar(&runCommitSHA, "commit", "local", "Commit SHA recorded in run metadata")
	cmd.Flags().StringVar(&runSnapshotID, "data-snapshot", "", "Data snapshot ID recorded in run metadata (default: data dir name)")

	return cmd
}

func runCommandE(cmd *cobra.Command, args []string) error {
	promptVersion := args[0]

	cfg, err := projectconfig.Load(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dataDir := runDataDir
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

	if runOddsCSV != "" {
		odds, err := dataset.LoadOddsCSV(runOddsCSV)
		if err != nil {
			return fmt.Errorf("failed to load odds CSV: %w", err)
		}
		filled := dataset.ApplyOdds(races, odds)
		if runVerbose {
			fmt.Printf("Backfilled %d odds quote(s) from %s\n", filled, runOddsCSV)
		}
	}

	resultsPath := runResultsPath
	if resultsPath == "" {
		resultsPath = cfg.Paths.Results
	}
	actuals, err := dataset.LoadResults(resultsPath)
	if err != nil {
		return fmt.Errorf("failed to load ground-truth results: %w", err)
	}

	promptPath := runPromptPath
	if promptPath == "" {
		promptPath = filepath.Join(cfg.Paths.Prompts, promptVersion+".md")
	}
	promptTemplate, err := os.ReadFile(promptPath)
	if err != nil {
		return fmt.Errorf("failed to read prompt %s: %w", promptPath, err)
	}

	predict, panelSize, err := buildJuryPredictor(cfg, string(promptTemplate))
	if err != nil {
		return err
	}

	splitter, err := split.NewTemporalSplitter(cfg.Split.TrainRatio, cfg.Split.ValRatio, cfg.Split.TestRatio)
	if err != nil {
		return fmt.Errorf("invalid split ratios: %w", err)
	}

	workers := cfg.Evaluation.Workers
	if runWorkers > 0 {
		workers = runWorkers
	}
	nSplits := cfg.Split.Splits
	if runSplits > 0 {
		nSplits = runSplits
	}

	listener := simpleProgressListener
	if runVerbose {
		listener = verboseProgressListener
	}

	h, err := harness.New(predict,
		func(raceID string) ([]int, bool) {
			order, ok := actuals[raceID]
			return order, ok
		},
		harness.WithWorkers(workers),
		harness.WithSplitter(splitter),
		harness.WithMetricsOptions(metrics.Options{
			ECEBins:        cfg.Evaluation.ECEBins,
			DeferThreshold: cfg.Evaluation.DeferThreshold,
		}),
		harness.WithProgressListener(listener),
	)
	if err != nil {
		return fmt.Errorf("failed to build harness: %w", err)
	}

	fmt.Printf("Running evaluation: %s\n", promptVersion)
	fmt.Printf("Races: %d\n", len(races))
	fmt.Printf("Jury: %d client(s)\n", panelSize)
	fmt.Printf("Folds: %d\n", nSplits)
	fmt.Printf("Workers: %d\n", workers)
	fmt.Println()

	outcome, err := h.Run(context.Background(), races, nSplits)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	printRunSummary(outcome)

	outputDir := runOutputDir
	if outputDir == "" {
		outputDir = cfg.Paths.Results
	}
	doc := report.BuildV2(promptVersion, outcome.Summary, outcome.Metrics, outcome.Results, outcome.Leakage, nil)
	reportPath, err := report.WriteArtifact(doc, outputDir, fmt.Sprintf("report_%s.json", promptVersion))
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Printf("Report saved to: %s\n", reportPath)

	snapshotID := runSnapshotID
	if snapshotID == "" {
		snapshotID = filepath.Base(filepath.Clean(dataDir))
	}
	meta := runmeta.New(runCommitSHA, promptVersion, snapshotID, cfg.Evaluation.Seed, "walk_forward")
	metaPath, err := runmeta.WriteArtifact(meta, outputDir, fmt.Sprintf("runmeta_%s.json", promptVersion))
	if err != nil {
		return fmt.Errorf("failed to write run metadata: %w", err)
	}
	fmt.Printf("Run metadata saved to: %s\n", metaPath)

	if !outcome.Leakage.Passed {
		return &GateFailureError{
			Message: fmt.Sprintf("leakage check failed: %s", strings.Join(outcome.Leakage.Issues, "; ")),
		}
	}
	return nil
}

// buildJuryPredictor assembles the jury panel from configured client specs
// and returns a predictor that deliberates each race and aggregates the
// panel's picks with weighted Borda voting.
func buildJuryPredictor(cfg *projectconfig.ProjectConfig, promptTemplate string) (harness.PredictFunc, int, error) {
	deliberator, weights, panelSize, err := buildJuryPanel(cfg)
	if err != nil {
		return nil, 0, err
	}
	aggregator := ensemble.NewJuryAggregator(weights)

	predict := func(ctx context.Context, race models.RaceRecord) (models.Prediction, error) {
		prompt, err := buildRacePrompt(promptTemplate, race)
		if err != nil {
			return models.Prediction{}, err
		}

		verdict := deliberator.Deliberate(ctx, prompt)
		if !verdict.QuorumReached {
			return models.Prediction{}, fmt.Errorf("jury quorum not reached: %d of %d responses succeeded",
				len(verdict.SuccessfulResponses), len(verdict.SuccessfulResponses)+len(verdict.FailedResponses))
		}

		var preds []models.Prediction
		for _, resp := range verdict.SuccessfulResponses {
			p, err := models.ParsePrediction(resp.ModelName, resp.Text)
			if err != nil {
				continue
			}
			preds = append(preds, p)
		}
		if len(preds) == 0 {
			return models.Prediction{}, fmt.Errorf("no parseable predictions from jury")
		}

		agg := aggregator.Aggregate(ensemble.FromPredictions(preds))
		if len(agg.Predicted) == 0 {
			return models.Prediction{}, fmt.Errorf("jury produced no picks")
		}
		return models.Prediction{ModelName: "jury", Predicted: agg.Predicted, Confidence: agg.Confidence}, nil
	}
	return predict, panelSize, nil
}

// buildJuryPanel creates the configured LLM clients and wraps them in a
// deliberator. The returned weight map feeds the Borda aggregation.
func buildJuryPanel(cfg *projectconfig.ProjectConfig) (*jury.Deliberator, map[string]float64, int, error) {
	if len(cfg.Jury.Clients) == 0 {
		return nil, nil, 0, fmt.Errorf("no jury clients configured: add jury.clients to .kraeval.yaml")
	}

	clients := make([]llm.Client, 0, len(cfg.Jury.Clients))
	weights := make(map[string]float64, len(cfg.Jury.Clients))
	for _, spec := range cfg.Jury.Clients {
		client, err := llm.Create(llm.Kind(spec.Kind), spec.Name, map[string]any{
			"command": spec.Command,
			"args":    spec.Args,
			"timeout": spec.Timeout,
		})
		if err != nil {
			return nil, nil, 0, fmt.Errorf("failed to create client %s: %w", spec.Name, err)
		}
		clients = append(clients, client)
		if spec.Weight > 0 {
			weights[spec.Name] = spec.Weight
		}
	}

	deliberator, err := jury.NewDeliberator(clients,
		jury.WithQuorum(cfg.Jury.Quorum),
		jury.WithConcurrency(cfg.Jury.Concurrency),
	)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to build jury: %w", err)
	}
	return deliberator, weights, len(clients), nil
}

// buildRacePrompt renders the per-race prompt: template, race card JSON,
// and the response contract the prediction parser expects.
func buildRacePrompt(template string, race models.RaceRecord) (string, error) {
	payload := race.Data
	if payload == nil {
		raw, err := json.Marshal(race)
		if err != nil {
			return "", fmt.Errorf("failed to marshal race %s: %w", race.RaceID, err)
		}
		var generic map[string]any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return "", fmt.Errorf("failed to marshal race %s: %w", race.RaceID, err)
		}
		payload = generic
	}
	card, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal race %s: %w", race.RaceID, err)
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(template))
	b.WriteString("\n\n## Race card\n\n```json\n")
	b.Write(card)
	b.WriteString("\n```\n\nRespond with JSON only: ")
	b.WriteString(`{"predicted": [<top 3 horse numbers in finish order>], "confidence": <0-100>}`)
	return b.String(), nil
}

func verboseProgressListener(event harness.ProgressEvent) {
	switch event.EventType {
	case harness.EventRunStart:
		fmt.Printf("Starting evaluation over %d race(s) in %d fold(s)...\n\n", event.TotalRaces, event.TotalFolds)
	case harness.EventRaceComplete:
		if event.Error != "" {
			fmt.Printf("  ✗ %s: %s\n", event.RaceID, event.Error)
			return
		}
		duration := time.Duration(event.DurationMs) * time.Millisecond
		fmt.Printf("  ✓ %s: %d/3 correct (%v)\n", event.RaceID, event.Correct, duration)
	case harness.EventFoldComplete:
		fmt.Printf("Fold %d/%d complete\n\n", event.Fold+1, event.TotalFolds)
	case harness.EventRunComplete:
		duration := time.Duration(event.DurationMs) * time.Millisecond
		fmt.Printf("Evaluation completed in %v\n\n", duration)
	}
}

func simpleProgressListener(event harness.ProgressEvent) {
	if event.EventType == harness.EventFoldComplete {
		fmt.Printf("✓ fold %d/%d\n", event.Fold+1, event.TotalFolds)
	}
}

func printRunSummary(outcome *harness.RunOutcome) {
	fmt.Println("=" + strings.Repeat("=", 50))
	fmt.Println(" EVALUATION RESULTS")
	fmt.Println("=" + strings.Repeat("=", 50))
	fmt.Println()

	s := outcome.Summary
	fmt.Printf("Total Races:      %d\n", s.TotalRaces)
	fmt.Printf("Valid Predictions: %d\n", s.ValidPredictions)
	fmt.Printf("Successful:       %d\n", s.SuccessfulPredictions)
	fmt.Printf("Success Rate:     %.1f%%\n", s.SuccessRate*100)
	fmt.Printf("Avg Correct:      %.2f\n", s.AverageCorrectHorses)
	fmt.Printf("Avg Time:         %.0fms\n", s.AvgExecutionTimeMs)
	byOutcome := make(map[models.PredictionOutcome]int)
	for _, r := range outcome.Results {
		byOutcome[r.Outcome()]++
	}
	fmt.Printf("Outcomes:         %d all correct / %d partial / %d miss\n",
		byOutcome[models.OutcomeAllCorrect], byOutcome[models.OutcomePartial], byOutcome[models.OutcomeMiss])
	fmt.Println()

	m := outcome.Metrics
	fmt.Printf("Log Loss:         %.4f\n", m.LogLoss)
	fmt.Printf("Brier:            %.4f\n", m.Brier)
	fmt.Printf("ECE:              %.4f\n", m.ECE)
	for _, k := range []string{"top1", "top3"} {
		if v, ok := m.TopK[k]; ok {
			fmt.Printf("%s Accuracy:    %.1f%%\n", strings.ToUpper(k[:1])+k[1:], v*100)
		}
	}
	fmt.Printf("ROI:              %+.3f (%d bets, %d wins)\n", m.ROI.AvgROI, m.ROI.Bets, m.ROI.Wins)
	fmt.Printf("Coverage:         %.1f%% (%d deferred)\n", m.Coverage*100, m.DeferredCount)
	fmt.Println()

	// Per-fold breakdown
	fmt.Println("-" + strings.Repeat("-", 50))
	fmt.Println(" PER-FOLD BREAKDOWN")
	fmt.Println("-" + strings.Repeat("-", 50))
	for _, fold := range outcome.Folds {
		top3 := fold.Metrics.TopK["top3"]
		fmt.Printf("  fold %d: train=%d val=%d test=%d  log_loss=%.4f  top3=%.1f%%\n",
			fold.Fold+1, fold.TrainSize, fold.ValSize, fold.TestSize, fold.Metrics.LogLoss, top3*100)
	}
	fmt.Println()

	if len(s.ErrorStats) > 0 {
		fmt.Println("Errors:")
		for kind, n := range s.ErrorStats {
			fmt.Printf("  - %s: %d\n", kind, n)
		}
		fmt.Println()
	}

	leakStatus := "passed"
	if !outcome.Leakage.Passed {
		leakStatus = "FAILED"
	}
	fmt.Printf("Leakage check:    %s (%d race(s) scanned)\n", leakStatus, outcome.Leakage.CheckedRaces)
	for _, issue := range outcome.Leakage.Issues {
		fmt.Printf("  - %s\n", issue)
	}
	fmt.Println()
}
