// Package calibration maps raw model confidence onto empirical success
// probability. Fitting uses equal-frequency histogram binning with linear
// interpolation between bin means; the reliability diagram uses fixed-width
// bins and reports Expected Calibration Error. No statistical library is
// needed for either.
package calibration

import "sort"

// DefaultBins is the bin count used when a caller passes 0.
const DefaultBins = 10

type bin struct {
	edge   float64 // minimum confidence in the chunk
	mean   float64 // average confidence in the chunk
	actual float64 // empirical success rate in the chunk
}

// HistogramCalibrator learns a confidence → empirical-accuracy mapping from
// a validation set. An unfit calibrator is the identity function.
type HistogramCalibrator struct {
	nBins int
	bins  []bin
}

// NewHistogramCalibrator creates a calibrator with the given bin count;
// pass 0 for [DefaultBins].
func NewHistogramCalibrator(nBins int) *HistogramCalibrator {
	if nBins <= 0 {
		nBins = DefaultBins
	}
	return &HistogramCalibrator{nBins: nBins}
}

// Fitted reports whether Fit has produced usable bins.
func (c *HistogramCalibrator) Fitted() bool {
	return len(c.bins) > 0
}

// Fit learns the mapping from (confidence, outcome) pairs. Confidences are
// on [0, 1]; actuals are 0 or 1. Degenerate input (empty or
// length-mismatched) leaves the calibrator unfit.
func (c *HistogramCalibrator) Fit(confidences []float64, actuals []int) {
	if len(confidences) == 0 || len(confidences) != len(actuals) {
		return
	}

	type pair struct {
		conf   float64
		actual int
	}
	pairs := make([]pair, len(confidences))
	for i := range confidences {
		pairs[i] = pair{conf: confidences[i], actual: actuals[i]}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].conf < pairs[j].conf })

	chunkSize := (len(pairs) + c.nBins - 1) / c.nBins
	if chunkSize < 1 {
		chunkSize = 1
	}

	c.bins = c.bins[:0]
	for start := 0; start < len(pairs); start += chunkSize {
		end := start + chunkSize
		if end > len(pairs) {
			end = len(pairs)
		}
		chunk := pairs[start:end]

		confSum := 0.0
		hitSum := 0.0
		for _, p := range chunk {
			confSum += p.conf
			hitSum += float64(p.actual)
		}
		n := float64(len(chunk))
		c.bins = append(c.bins, bin{
			edge:   chunk[0].conf,
			mean:   confSum / n,
			actual: hitSum / n,
		})
	}
}

// Calibrate maps a raw confidence onto the learned empirical scale. Outside
// the fitted range it clamps to the outermost bins; between bins it
// interpolates linearly over bin means. Unfit calibrators return the input
// unchanged.
func (c *HistogramCalibrator) Calibrate(confidence float64) float64 {
	if !c.Fitted() {
		return confidence
	}

	first, last := c.bins[0], c.bins[len(c.bins)-1]
	if confidence <= first.mean {
		return first.actual
	}
	if confidence >= last.mean {
		return last.actual
	}

	for i := 1; i < len(c.bins); i++ {
		lo, hi := c.bins[i-1], c.bins[i]
		if confidence > hi.mean {
			continue
		}
		span := hi.mean - lo.mean
		if span <= 0 {
			return lo.actual
		}
		t := (confidence - lo.mean) / span
		return lo.actual + t*(hi.actual-lo.actual)
	}
	return last.actual
}

// Diagram holds a fixed-width-bin reliability diagram plus its ECE.
type Diagram struct {
	BinCenters     []float64 `json:"bin_centers"`
	BinAccuracies  []float64 `json:"bin_accuracies"`
	BinConfidences []float64 `json:"bin_confidences"`
	BinCounts      []int     `json:"bin_counts"`
	ECE            float64   `json:"ece"`
}

// ReliabilityDiagram buckets (confidence, outcome) pairs into fixed-width
// bins of 1/bins and computes Expected Calibration Error as the
// count-weighted mean absolute gap between accuracy and confidence over
// non-empty bins. Unlike Fit it does not use equal-frequency chunks.
func ReliabilityDiagram(confidences []float64, actuals []int, bins int) Diagram {
	if bins <= 0 {
		bins = DefaultBins
	}

	d := Diagram{
		BinCenters:     make([]float64, bins),
		BinAccuracies:  make([]float64, bins),
		BinConfidences: make([]float64, bins),
		BinCounts:      make([]int, bins),
	}
	width := 1.0 / float64(bins)
	for i := 0; i < bins; i++ {
		d.BinCenters[i] = (float64(i) + 0.5) * width
	}

	if len(confidences) == 0 || len(confidences) != len(actuals) {
		return d
	}

	confSums := make([]float64, bins)
	hitSums := make([]float64, bins)
	for i, conf := range confidences {
		idx := int(conf * float64(bins))
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		d.BinCounts[idx]++
		confSums[idx] += conf
		hitSums[idx] += float64(actuals[i])
	}

	total := float64(len(confidences))
	for i := 0; i < bins; i++ {
		if d.BinCounts[i] == 0 {
			continue
		}
		n := float64(d.BinCounts[i])
		d.BinConfidences[i] = confSums[i] / n
		d.BinAccuracies[i] = hitSums[i] / n
		gap := d.BinAccuracies[i] - d.BinConfidences[i]
		if gap < 0 {
			gap = -gap
		}
		d.ECE += (n / total) * gap
	}
	return d
}
