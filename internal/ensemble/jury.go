// Package ensemble combines per-model top-3 predictions into a single
// ranked verdict using a weighted Borda count, and reports how much the
// contributing models agreed with each other.
package ensemble

import (
	"sort"

	"github.com/coyaSONG/kra-analysis/internal/models"
)

// AgreementLevel categorizes how aligned the jury's top-3 sets were.
type AgreementLevel string

const (
	AgreementUnanimous AgreementLevel = "unanimous"
	AgreementMajority  AgreementLevel = "majority"
	AgreementSplit     AgreementLevel = "split"
)

// DefaultConfidence is reported when no model supplied a usable confidence.
const DefaultConfidence = 50.0

// ModelPrediction is one jury member's input to aggregation.
type ModelPrediction struct {
	Predicted  []int   `json:"predicted"`
	Confidence float64 `json:"confidence"`
}

// JuryAggregation is the combined verdict over a set of model predictions.
// AgreementScore and ConsistencyScore are defined only relative to the
// inputs this aggregation was built from.
type JuryAggregation struct {
	Predicted        []int             `json:"predicted"`
	Confidence       float64           `json:"confidence"`
	ModelPredictions map[string][]int  `json:"model_predictions"`
	VoteCounts       map[int]float64   `json:"vote_counts"`
	AgreementLevel   AgreementLevel    `json:"agreement_level"`
	AgreementScore   float64           `json:"agreement_score"`
	ConsistencyScore float64           `json:"consistency_score"`
}

// JuryAggregator merges predictions from heterogeneous models, each with a
// fixed weight. A zero-value weight map means every model counts equally.
type JuryAggregator struct {
	weights map[string]float64
}

// NewJuryAggregator creates an aggregator. weights maps model name to vote
// weight; models absent from the map get weight 1.0.
func NewJuryAggregator(weights map[string]float64) *JuryAggregator {
	w := make(map[string]float64, len(weights))
	for name, v := range weights {
		w[name] = v
	}
	return &JuryAggregator{weights: w}
}

func (a *JuryAggregator) weight(model string) float64 {
	if w, ok := a.weights[model]; ok {
		return w
	}
	return 1.0
}

// Aggregate combines the given per-model predictions into one ranked top-3.
//
// Scoring is a weighted Borda count: rank 0 earns 3 points, rank 1 earns 2,
// rank 2 earns 1, each multiplied by the model's weight. Ties in the final
// ranking are broken by first appearance, where "first" means the order an
// entrant is first encountered while walking models in ascending name order.
// Model names give a deterministic stand-in for input iteration order, and
// the total is commutative, so the verdict never depends on response
// arrival order.
func (a *JuryAggregator) Aggregate(predictions map[string]ModelPrediction) JuryAggregation {
	agg := JuryAggregation{
		Predicted:        []int{},
		Confidence:       DefaultConfidence,
		ModelPredictions: make(map[string][]int, len(predictions)),
		VoteCounts:       make(map[int]float64),
	}

	names := make([]string, 0, len(predictions))
	for name := range predictions {
		names = append(names, name)
	}
	sort.Strings(names)

	firstSeen := make(map[int]int)
	for _, name := range names {
		pred := predictions[name]
		agg.ModelPredictions[name] = append([]int(nil), pred.Predicted...)

		w := a.weight(name)
		for rank, entrant := range pred.Predicted {
			if rank >= 3 {
				break
			}
			if _, ok := firstSeen[entrant]; !ok {
				firstSeen[entrant] = len(firstSeen)
			}
			agg.VoteCounts[entrant] += float64(3-rank) * w
		}
	}

	agg.Predicted = rankByScore(agg.VoteCounts, firstSeen, 3)
	agg.Confidence = a.weightedConfidence(names, predictions)

	sets := topSets(names, predictions)
	agg.AgreementLevel, agg.AgreementScore = agreement(sets)
	agg.ConsistencyScore = consistency(sets)

	return agg
}

// weightedConfidence averages the models' own confidences by vote weight.
func (a *JuryAggregator) weightedConfidence(names []string, predictions map[string]ModelPrediction) float64 {
	totalWeight := 0.0
	weighted := 0.0
	for _, name := range names {
		w := a.weight(name)
		totalWeight += w
		weighted += predictions[name].Confidence * w
	}
	if len(names) == 0 || totalWeight == 0 {
		return DefaultConfidence
	}
	return weighted / totalWeight
}

// rankByScore orders entrants by accumulated score descending, breaking
// ties by first-seen order, and returns the top limit entrants.
func rankByScore(scores map[int]float64, firstSeen map[int]int, limit int) []int {
	entrants := make([]int, 0, len(scores))
	for entrant := range scores {
		entrants = append(entrants, entrant)
	}
	sort.Slice(entrants, func(i, j int) bool {
		si, sj := scores[entrants[i]], scores[entrants[j]]
		if si != sj {
			return si > sj
		}
		return firstSeen[entrants[i]] < firstSeen[entrants[j]]
	})
	if len(entrants) > limit {
		entrants = entrants[:limit]
	}
	out := make([]int, len(entrants))
	copy(out, entrants)
	return out
}

func topSets(names []string, predictions map[string]ModelPrediction) []map[int]bool {
	sets := make([]map[int]bool, 0, len(names))
	for _, name := range names {
		set := make(map[int]bool)
		for rank, entrant := range predictions[name].Predicted {
			if rank >= 3 {
				break
			}
			set[entrant] = true
		}
		sets = append(sets, set)
	}
	return sets
}

// agreement classifies jury alignment. Fewer than two jurors cannot
// disagree, so that case is unanimous by convention.
func agreement(sets []map[int]bool) (AgreementLevel, float64) {
	if len(sets) < 2 {
		return AgreementUnanimous, 1.0
	}

	common := intersectAll(sets)
	if len(common) == 3 {
		return AgreementUnanimous, 1.0
	}

	avg := averagePairwiseIntersection(sets)
	if avg >= 2 {
		return AgreementMajority, avg / 3.0
	}
	return AgreementSplit, avg / 3.0
}

// consistency is the average pairwise Jaccard similarity over all model
// pairs. Fewer than two jurors score 1.0 by convention; a pair of empty
// sets scores 0.0.
func consistency(sets []map[int]bool) float64 {
	if len(sets) == 0 {
		return 0.0
	}
	if len(sets) == 1 {
		return 1.0
	}
	total := 0.0
	pairs := 0
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			total += jaccard(sets[i], sets[j])
			pairs++
		}
	}
	return total / float64(pairs)
}

func intersectAll(sets []map[int]bool) map[int]bool {
	common := make(map[int]bool, len(sets[0]))
	for entrant := range sets[0] {
		common[entrant] = true
	}
	for _, set := range sets[1:] {
		for entrant := range common {
			if !set[entrant] {
				delete(common, entrant)
			}
		}
	}
	return common
}

func averagePairwiseIntersection(sets []map[int]bool) float64 {
	total := 0
	pairs := 0
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			total += intersectionSize(sets[i], sets[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return float64(total) / float64(pairs)
}

func intersectionSize(a, b map[int]bool) int {
	n := 0
	for entrant := range a {
		if b[entrant] {
			n++
		}
	}
	return n
}

func jaccard(a, b map[int]bool) float64 {
	union := len(a)
	for entrant := range b {
		if !a[entrant] {
			union++
		}
	}
	if union == 0 {
		return 0.0
	}
	return float64(intersectionSize(a, b)) / float64(union)
}

// FromPredictions adapts a slice of [models.Prediction] into the map shape
// Aggregate consumes. Later duplicates of the same model name win.
func FromPredictions(preds []models.Prediction) map[string]ModelPrediction {
	out := make(map[string]ModelPrediction, len(preds))
	for _, p := range preds {
		out[p.ModelName] = ModelPrediction{Predicted: p.Predicted, Confidence: p.Confidence}
	}
	return out
}
