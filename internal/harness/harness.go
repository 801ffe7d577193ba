// Package harness drives a walk-forward evaluation of a prediction
// strategy over historical races: split, predict each test race
// concurrently, score, and assemble the report inputs.
package harness

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coyaSONG/kra-analysis/internal/leakage"
	"github.com/coyaSONG/kra-analysis/internal/metrics"
	"github.com/coyaSONG/kra-analysis/internal/models"
	"github.com/coyaSONG/kra-analysis/internal/report"
	"github.com/coyaSONG/kra-analysis/internal/split"
)

// defaultWorkers bounds concurrent race evaluations when unset.
const defaultWorkers = 4

// PredictFunc produces a ranked top-3 prediction for one race. The race
// payload carries pre-race data only; the harness never shows the
// predictor results.
type PredictFunc func(ctx context.Context, race models.RaceRecord) (models.Prediction, error)

// ResultsLookup returns the actual top-3 finish order for a race, and
// whether a result is known. Ground truth lives outside the race
// payloads so it can never leak into prediction input.
type ResultsLookup func(raceID string) ([]int, bool)

// EventType classifies a progress event.
type EventType string

const (
	EventRunStart     EventType = "run_start"
	EventRaceComplete EventType = "race_complete"
	EventFoldComplete EventType = "fold_complete"
	EventRunComplete  EventType = "run_complete"
)

// ProgressEvent is a progress update during a run.
type ProgressEvent struct {
	EventType  EventType
	RaceID     string
	Fold       int
	TotalFolds int
	TotalRaces int
	Correct    int
	Error      string
	DurationMs int64
}

// ProgressListener receives progress updates. Race events arrive from
// worker goroutines; listeners must tolerate concurrent calls.
type ProgressListener func(event ProgressEvent)

// FoldOutcome is one walk-forward fold's evaluation.
type FoldOutcome struct {
	Fold      int
	TrainSize int
	ValSize   int
	TestSize  int
	Results   []models.DetailedResult
	Metrics   metrics.Bundle
}

// RunOutcome is the full evaluation: per-fold outcomes plus the combined
// results, metrics, leakage report, and report summary.
type RunOutcome struct {
	Folds   []FoldOutcome
	Results []models.DetailedResult
	Metrics metrics.Bundle
	Leakage leakage.Report
	Summary report.Summary
}

// Harness evaluates a predictor over walk-forward folds.
type Harness struct {
	predict     PredictFunc
	actuals     ResultsLookup
	splitter    *split.TemporalSplitter
	workers     int
	metricsOpts metrics.Options
	listeners   []ProgressListener
}

// Option configures a Harness.
type Option func(*Harness)

// WithWorkers sets how many races are evaluated at once.
func WithWorkers(n int) Option {
	return func(h *Harness) { h.workers = n }
}

// WithSplitter replaces the default 70/15/15 temporal splitter.
func WithSplitter(s *split.TemporalSplitter) Option {
	return func(h *Harness) { h.splitter = s }
}

// WithMetricsOptions sets the quality-metrics computation options.
func WithMetricsOptions(opts metrics.Options) Option {
	return func(h *Harness) { h.metricsOpts = opts }
}

// WithProgressListener registers a progress callback.
func WithProgressListener(l ProgressListener) Option {
	return func(h *Harness) { h.listeners = append(h.listeners, l) }
}

// New builds a harness around a predictor and a ground-truth lookup.
func New(predict PredictFunc, actuals ResultsLookup, opts ...Option) (*Harness, error) {
	if predict == nil {
		return nil, errors.New("harness requires a predict function")
	}
	if actuals == nil {
		return nil, errors.New("harness requires a results lookup")
	}

	splitter, err := split.NewTemporalSplitter(0.7, 0.15, 0.15)
	if err != nil {
		return nil, err
	}

	h := &Harness{
		predict:  predict,
		actuals:  actuals,
		splitter: splitter,
		workers:  defaultWorkers,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.workers <= 0 {
		h.workers = defaultWorkers
	}
	return h, nil
}

// Run evaluates every walk-forward test fold over the given races.
func (h *Harness) Run(ctx context.Context, races []models.RaceRecord, nSplits int) (*RunOutcome, error) {
	if len(races) == 0 {
		return nil, errors.New("no races to evaluate")
	}

	folds := h.splitter.WalkForwardSplits(races, nSplits)

	totalTest := 0
	for _, f := range folds {
		totalTest += len(f.Test)
	}
	h.notify(ProgressEvent{EventType: EventRunStart, TotalFolds: len(folds), TotalRaces: totalTest})

	start := time.Now()
	errorStats := map[string]int{}
	outcome := &RunOutcome{}

	for fi, fold := range folds {
		results := h.evaluateRaces(ctx, fold.Test, errorStats)

		bundle := metrics.ComputeQualityMetrics(results, h.metricsOpts)
		if len(fold.Test) > 0 {
			bundle.JSONValidRate = float64(len(results)) / float64(len(fold.Test))
		}

		outcome.Folds = append(outcome.Folds, FoldOutcome{
			Fold:      fi,
			TrainSize: len(fold.Train),
			ValSize:   len(fold.Val),
			TestSize:  len(fold.Test),
			Results:   results,
			Metrics:   bundle,
		})
		outcome.Results = append(outcome.Results, results...)

		h.notify(ProgressEvent{EventType: EventFoldComplete, Fold: fi, TotalFolds: len(folds)})
	}

	outcome.Metrics = metrics.ComputeQualityMetrics(outcome.Results, h.metricsOpts)
	if totalTest > 0 {
		outcome.Metrics.JSONValidRate = float64(len(outcome.Results)) / float64(totalTest)
	}
	outcome.Leakage = leakage.CheckDetailedResults(outcome.Results)
	outcome.Summary = buildSummary(outcome.Results, totalTest, errorStats)

	h.notify(ProgressEvent{
		EventType:  EventRunComplete,
		TotalRaces: totalTest,
		DurationMs: time.Since(start).Milliseconds(),
	})
	return outcome, nil
}

// evaluateRaces runs the predictor over the races under a fixed-size
// worker pool and scores each prediction against the known result.
// Failed predictions and races without a known result produce no
// DetailedResult; they are tallied in errorStats instead.
func (h *Harness) evaluateRaces(ctx context.Context, races []models.RaceRecord, errorStats map[string]int) []models.DetailedResult {
	type slot struct {
		result  models.DetailedResult
		ok      bool
		errKind string
	}

	slots := make([]slot, len(races))
	semaphore := make(chan struct{}, h.workers)

	var wg sync.WaitGroup
	for i, race := range races {
		i, race := i, race
		wg.Add(1)
		go func() {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			raceStart := time.Now()
			pred, err := h.predict(ctx, race)
			elapsed := time.Since(raceStart).Milliseconds()

			if err != nil {
				slots[i] = slot{errKind: "predict_error"}
				h.notify(ProgressEvent{
					EventType:  EventRaceComplete,
					RaceID:     race.RaceID,
					Error:      err.Error(),
					DurationMs: elapsed,
				})
				return
			}

			actual, known := h.actuals(race.RaceID)
			if !known {
				slots[i] = slot{errKind: "missing_result"}
				h.notify(ProgressEvent{
					EventType:  EventRaceComplete,
					RaceID:     race.RaceID,
					Error:      "no recorded result",
					DurationMs: elapsed,
				})
				return
			}

			correct := models.CorrectCount(pred.Predicted, actual)
			slots[i] = slot{
				result: models.DetailedResult{
					RaceID:     race.RaceID,
					Predicted:  pred.Predicted,
					Actual:     actual,
					Reward:     models.Reward{CorrectCount: correct},
					Confidence: pred.Confidence,
					RaceData:   race.Data,
					ElapsedMs:  elapsed,
				},
				ok: true,
			}
			h.notify(ProgressEvent{
				EventType:  EventRaceComplete,
				RaceID:     race.RaceID,
				Correct:    correct,
				DurationMs: elapsed,
			})
		}()
	}
	wg.Wait()

	// Collect in input order so runs are reproducible.
	var results []models.DetailedResult
	for _, s := range slots {
		if s.ok {
			results = append(results, s.result)
		} else if s.errKind != "" {
			errorStats[s.errKind]++
		}
	}
	return results
}

// buildSummary aggregates the run-level counters. A race counts as
// successful only when all three picks hit.
func buildSummary(results []models.DetailedResult, totalRaces int, errorStats map[string]int) report.Summary {
	s := report.Summary{
		TotalRaces:       totalRaces,
		ValidPredictions: len(results),
		ErrorStats:       errorStats,
	}

	var totalElapsed int64
	for _, r := range results {
		if r.RaceID != "" {
			// TestDate is the latest race date seen in the results.
			if date := raceDate(r); date > s.TestDate {
				s.TestDate = date
			}
		}
		s.TotalCorrectHorses += r.Reward.CorrectCount
		if r.Reward.CorrectCount == 3 {
			s.SuccessfulPredictions++
		}
		totalElapsed += r.ElapsedMs
	}

	if len(results) > 0 {
		s.SuccessRate = float64(s.SuccessfulPredictions) / float64(len(results))
		s.AverageCorrectHorses = float64(s.TotalCorrectHorses) / float64(len(results))
		s.AvgExecutionTimeMs = float64(totalElapsed) / float64(len(results))
	}
	return s
}

func raceDate(r models.DetailedResult) string {
	if r.RaceData == nil {
		return ""
	}
	if v, ok := r.RaceData["race_date"].(string); ok {
		return v
	}
	if v, ok := r.RaceData["rcDate"].(string); ok {
		return v
	}
	return ""
}

func (h *Harness) notify(event ProgressEvent) {
	for _, l := range h.listeners {
		l(event)
	}
}
