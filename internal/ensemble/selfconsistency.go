package ensemble

import "fmt"

// DefaultAbstainThreshold is the consistency floor below which a caller
// should defer rather than act on the combined prediction.
const DefaultAbstainThreshold = 0.6

// SelfConsistencyEnsemble combines K stochastic samples drawn from a single
// model. Mechanically it is an unweighted Borda count; the extra piece is
// the abstention gate for low-agreement sample sets.
type SelfConsistencyEnsemble struct {
	threshold float64
}

// SampleResult is the combined outcome of repeated sampling.
type SampleResult struct {
	Predicted        []int           `json:"predicted"`
	Confidence       float64         `json:"confidence"`
	VoteCounts       map[int]float64 `json:"vote_counts"`
	ConsistencyScore float64         `json:"consistency_score"`
	Samples          int             `json:"samples"`
}

// NewSelfConsistencyEnsemble creates an ensemble with the given abstention
// threshold; pass 0 to use [DefaultAbstainThreshold].
func NewSelfConsistencyEnsemble(threshold float64) *SelfConsistencyEnsemble {
	if threshold <= 0 {
		threshold = DefaultAbstainThreshold
	}
	return &SelfConsistencyEnsemble{threshold: threshold}
}

// Aggregate merges sampled top-3 lists into a single ranked top-3. Each
// sample votes with equal weight. Confidences, when given, are averaged
// unweighted; a missing or empty confidences slice yields
// [DefaultConfidence].
func (e *SelfConsistencyEnsemble) Aggregate(samples [][]int, confidences []float64) SampleResult {
	res := SampleResult{
		Predicted:  []int{},
		Confidence: DefaultConfidence,
		VoteCounts: make(map[int]float64),
		Samples:    len(samples),
	}

	firstSeen := make(map[int]int)
	sets := make([]map[int]bool, 0, len(samples))
	for _, sample := range samples {
		set := make(map[int]bool)
		for rank, entrant := range sample {
			if rank >= 3 {
				break
			}
			if _, ok := firstSeen[entrant]; !ok {
				firstSeen[entrant] = len(firstSeen)
			}
			res.VoteCounts[entrant] += float64(3 - rank)
			set[entrant] = true
		}
		sets = append(sets, set)
	}

	res.Predicted = rankByScore(res.VoteCounts, firstSeen, 3)
	res.ConsistencyScore = consistency(sets)

	if len(confidences) > 0 {
		sum := 0.0
		for _, c := range confidences {
			sum += c
		}
		res.Confidence = sum / float64(len(confidences))
	}

	return res
}

// ShouldAbstain reports whether the given consistency score falls below the
// ensemble's threshold, signalling the caller to defer.
func (e *SelfConsistencyEnsemble) ShouldAbstain(consistencyScore float64) bool {
	return consistencyScore < e.threshold
}

// String describes the ensemble configuration, mostly for logs.
func (e *SelfConsistencyEnsemble) String() string {
	return fmt.Sprintf("self-consistency(threshold=%.2f)", e.threshold)
}
