// Package metrics computes prediction-quality metrics over per-race
// evaluation results: log-loss, Brier score, calibration error, top-k
// accuracy, betting ROI, and coverage under abstention.
package metrics

import (
	"math"
	"strconv"

	"github.com/coyaSONG/kra-analysis/internal/calibration"
	"github.com/coyaSONG/kra-analysis/internal/models"
)

// logLossFloor keeps cross-entropy finite when the winner got no mass.
const logLossFloor = 1e-15

// Options controls a quality-metrics computation.
type Options struct {
	// TopK lists the k values for top-k accuracy. Defaults to (1, 3).
	TopK []int
	// ECEBins is the reliability-diagram bin count. Defaults to 10.
	ECEBins int
	// DeferThreshold, when set, excludes results whose normalized
	// confidence falls below it; they count as deferred instead.
	DeferThreshold *float64
}

// ROIStats summarizes the win-bet simulation over the predicted top picks.
type ROIStats struct {
	AvgROI float64 `json:"avg_roi"`
	Bets   int     `json:"bets"`
	Wins   int     `json:"wins"`
}

// Bundle is the full metrics set a v2 report carries. Field names mirror
// the report schema's required metric keys.
type Bundle struct {
	LogLoss       float64            `json:"log_loss"`
	Brier         float64            `json:"brier"`
	ECE           float64            `json:"ece"`
	TopK          map[string]float64 `json:"topk"`
	ROI           ROIStats           `json:"roi"`
	Coverage      float64            `json:"coverage"`
	DeferredCount int                `json:"deferred_count"`
	Samples       int                `json:"samples"`
	JSONValidRate float64            `json:"json_valid_rate"`
}

// ComputeQualityMetrics derives the metrics bundle from per-race results.
//
// Probability scheme (fixed so champion/challenger comparisons stay
// apples-to-apples): the normalized confidence c, clamped to [0.05, 0.95],
// is split over the predicted picks in 3:2:1 proportion; the remaining
// 1-c is spread over the race's other valid entrants, weighted by inverse
// market odds when every such entrant has a quote and uniformly otherwise.
// When the prediction covers every valid entrant the predicted mass is
// renormalized to 1.
func ComputeQualityMetrics(results []models.DetailedResult, opts Options) Bundle {
	topk := opts.TopK
	if len(topk) == 0 {
		topk = []int{1, 3}
	}
	eceBins := opts.ECEBins
	if eceBins <= 0 {
		eceBins = calibration.DefaultBins
	}

	b := Bundle{
		TopK:    make(map[string]float64, len(topk)),
		Samples: len(results),
	}

	var (
		logLosses []float64
		briers    []float64
		returns   []float64
		eceConfs  []float64
		eceHits   []int
		hitCounts = make(map[int]int, len(topk))
		covered   int
	)

	for _, r := range results {
		conf := models.NormalizeConfidence(r.Confidence)
		if opts.DeferThreshold != nil && conf < *opts.DeferThreshold {
			b.DeferredCount++
			continue
		}
		covered++

		if len(r.Actual) == 0 {
			continue
		}

		correct := models.CorrectCount(r.Predicted, r.Actual)
		hit := 0
		if correct >= 1 {
			hit = 1
		}
		eceConfs = append(eceConfs, conf)
		eceHits = append(eceHits, hit)

		actualSet := make(map[int]bool, len(r.Actual))
		for _, n := range r.Actual {
			actualSet[n] = true
		}
		for _, k := range topk {
			if anyInTopK(r.Predicted, actualSet, k) {
				hitCounts[k]++
			}
		}

		dist := raceDistribution(r, conf)
		if len(dist) > 0 {
			winner := r.Actual[0]
			p := dist[winner]
			if p < logLossFloor {
				p = logLossFloor
			}
			logLosses = append(logLosses, -math.Log(p))
			briers = append(briers, brierOverPredicted(r.Predicted, actualSet, dist))
		}

		if ret, ok := simulateWinBet(r); ok {
			b.ROI.Bets++
			if ret > 0 {
				b.ROI.Wins++
			}
			returns = append(returns, ret)
		}
	}

	b.LogLoss = Mean(logLosses)
	b.Brier = Mean(briers)
	b.ECE = calibration.ReliabilityDiagram(eceConfs, eceHits, eceBins).ECE
	b.ROI.AvgROI = Mean(returns)
	if b.Samples > 0 {
		b.Coverage = float64(b.Samples-b.DeferredCount) / float64(b.Samples)
	}
	scored := len(eceConfs)
	for _, k := range topk {
		rate := 0.0
		if scored > 0 {
			rate = float64(hitCounts[k]) / float64(scored)
		}
		b.TopK[topKKey(k)] = rate
	}

	return b
}

func topKKey(k int) string {
	return "top" + strconv.Itoa(k)
}

func anyInTopK(predicted []int, actualSet map[int]bool, k int) bool {
	for i, n := range predicted {
		if i >= k {
			break
		}
		if actualSet[n] {
			return true
		}
	}
	return false
}

// raceDistribution implements the documented probability scheme. Returns
// nil when there is nothing to spread mass over.
func raceDistribution(r models.DetailedResult, conf float64) map[int]float64 {
	entrants := r.ValidEntrants()
	if len(entrants) == 0 {
		return nil
	}

	if conf < 0.05 {
		conf = 0.05
	}
	if conf > 0.95 {
		conf = 0.95
	}

	dist := make(map[int]float64, len(entrants))

	predicted := dedupe(r.Predicted)
	if len(predicted) > 3 {
		predicted = predicted[:3]
	}
	if len(predicted) == 0 {
		// No picks: uniform over the field.
		u := 1.0 / float64(len(entrants))
		for _, n := range entrants {
			dist[n] = u
		}
		return dist
	}

	rankWeights := []float64{3, 2, 1}
	weightSum := 0.0
	for i := range predicted {
		weightSum += rankWeights[i]
	}
	for i, n := range predicted {
		dist[n] = conf * rankWeights[i] / weightSum
	}

	rest := remaining(entrants, predicted)
	if len(rest) == 0 {
		// Prediction covers the whole field: renormalize to 1.
		for n := range dist {
			dist[n] /= conf
		}
		return dist
	}

	residual := 1.0 - conf
	odds := r.WinOdds()
	priorSum := 0.0
	priors := make([]float64, len(rest))
	for i, n := range rest {
		o, ok := odds[n]
		if !ok || o <= 0 {
			priorSum = 0
			break
		}
		priors[i] = 1.0 / o
		priorSum += priors[i]
	}
	if priorSum > 0 {
		for i, n := range rest {
			dist[n] = residual * priors[i] / priorSum
		}
	} else {
		u := residual / float64(len(rest))
		for _, n := range rest {
			dist[n] = u
		}
	}
	return dist
}

// brierOverPredicted is the mean squared gap between predicted mass and the
// in-actual-top-3 indicator, restricted to the predicted picks.
func brierOverPredicted(predicted []int, actualSet map[int]bool, dist map[int]float64) float64 {
	picks := dedupe(predicted)
	if len(picks) > 3 {
		picks = picks[:3]
	}
	if len(picks) == 0 {
		return 0
	}
	sum := 0.0
	for _, n := range picks {
		y := 0.0
		if actualSet[n] {
			y = 1.0
		}
		d := dist[n] - y
		sum += d * d
	}
	return sum / float64(len(picks))
}

// simulateWinBet places one unit on the top pick. A correct pick returns
// the market odds net of stake; a miss loses the stake. Races without a
// pick or without a known result carry no bet. A winning pick with no
// quoted odds returns the stake (net zero).
func simulateWinBet(r models.DetailedResult) (float64, bool) {
	if len(r.Predicted) == 0 || len(r.Actual) == 0 {
		return 0, false
	}
	pick := r.Predicted[0]
	if pick != r.Actual[0] {
		return -1.0, true
	}
	if o, ok := r.WinOdds()[pick]; ok && o > 0 {
		return o - 1.0, true
	}
	return 0, true
}

func dedupe(nums []int) []int {
	seen := make(map[int]bool, len(nums))
	out := make([]int, 0, len(nums))
	for _, n := range nums {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func remaining(entrants, predicted []int) []int {
	inPred := make(map[int]bool, len(predicted))
	for _, n := range predicted {
		inPred[n] = true
	}
	var rest []int
	for _, n := range entrants {
		if !inPred[n] {
			rest = append(rest, n)
		}
	}
	return rest
}
