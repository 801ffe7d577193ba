// Package statistics provides bootstrap confidence intervals for
// champion/challenger metric deltas. The percentile method keeps the
// implementation dependency-free and makes no normality assumption about
// per-race returns, which are heavily skewed by long-odds winners.
package statistics

import (
	"math"
	"math/rand"
	"sort"
)

// ConfidenceInterval is the result of a bootstrap resampling run.
type ConfidenceInterval struct {
	Lower           float64 `json:"lower"`
	Upper           float64 `json:"upper"`
	Mean            float64 `json:"mean"`
	ConfidenceLevel float64 `json:"confidence_level"`
	Resamples       int     `json:"resamples"`
}

// DefaultResamples is the bootstrap resample count.
const DefaultResamples = 10000

// BootstrapCI computes a percentile-method confidence interval over the
// values. confidenceLevel is in (0, 1), e.g. 0.95. A negative seed draws a
// non-deterministic one. Fewer than 2 values yield a degenerate interval.
func BootstrapCI(values []float64, confidenceLevel float64, seed int64) ConfidenceInterval {
	n := len(values)
	if n < 2 {
		m := mean(values)
		return ConfidenceInterval{
			Lower:           m,
			Upper:           m,
			Mean:            m,
			ConfidenceLevel: confidenceLevel,
		}
	}

	if seed < 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))

	resampleMeans := make([]float64, DefaultResamples)
	sample := make([]float64, n)
	for i := range resampleMeans {
		for j := range sample {
			sample[j] = values[rng.Intn(n)]
		}
		resampleMeans[i] = mean(sample)
	}
	sort.Float64s(resampleMeans)

	alpha := 1.0 - confidenceLevel
	lo := int(math.Floor(alpha / 2.0 * DefaultResamples))
	hi := int(math.Floor((1.0 - alpha/2.0) * DefaultResamples))
	if hi >= DefaultResamples {
		hi = DefaultResamples - 1
	}

	return ConfidenceInterval{
		Lower:           resampleMeans[lo],
		Upper:           resampleMeans[hi],
		Mean:            mean(values),
		ConfidenceLevel: confidenceLevel,
		Resamples:       DefaultResamples,
	}
}

// PairedDeltaCI bootstraps the mean of per-race deltas (challenger minus
// champion) for races both prompt versions were evaluated on. Slices must
// be aligned by race; mismatched or empty input yields a degenerate zero
// interval.
func PairedDeltaCI(champion, challenger []float64, confidenceLevel float64, seed int64) ConfidenceInterval {
	if len(champion) != len(challenger) || len(champion) == 0 {
		return ConfidenceInterval{ConfidenceLevel: confidenceLevel}
	}
	deltas := make([]float64, len(champion))
	for i := range champion {
		deltas[i] = challenger[i] - champion[i]
	}
	return BootstrapCI(deltas, confidenceLevel, seed)
}

// IsSignificant reports whether the interval excludes zero, i.e. the delta
// is distinguishable from noise at the interval's confidence level.
func IsSignificant(ci ConfidenceInterval) bool {
	return ci.Lower > 0 || ci.Upper < 0
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
