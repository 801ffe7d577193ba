package ensemble

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAggregate_Unanimous(t *testing.T) {
	agg := NewJuryAggregator(nil)

	result := agg.Aggregate(map[string]ModelPrediction{
		"m1": {Predicted: []int{1, 2, 3}, Confidence: 80},
		"m2": {Predicted: []int{1, 2, 3}, Confidence: 70},
		"m3": {Predicted: []int{1, 2, 3}, Confidence: 90},
	})

	assert.Equal(t, []int{1, 2, 3}, result.Predicted)
	assert.Equal(t, AgreementUnanimous, result.AgreementLevel)
	assert.Equal(t, 1.0, result.AgreementScore)
	assert.Equal(t, 1.0, result.ConsistencyScore)
	assert.InDelta(t, 80.0, result.Confidence, 1e-9)
}

func TestAggregate_MajorityBordaTotals(t *testing.T) {
	agg := NewJuryAggregator(nil)

	result := agg.Aggregate(map[string]ModelPrediction{
		"m1": {Predicted: []int{1, 2, 3}},
		"m2": {Predicted: []int{1, 2, 5}},
		"m3": {Predicted: []int{4, 6, 7}},
	})

	// 1 → 3+3=6, 2 → 2+2=4, 4 → 3, 3 → 1, 5 → 1
	assert.Equal(t, []int{1, 2, 4}, result.Predicted)
	assert.InDelta(t, 6.0, result.VoteCounts[1], 1e-9)
	assert.InDelta(t, 4.0, result.VoteCounts[2], 1e-9)
	assert.InDelta(t, 3.0, result.VoteCounts[4], 1e-9)
	assert.InDelta(t, 1.0, result.VoteCounts[3], 1e-9)
	assert.InDelta(t, 1.0, result.VoteCounts[5], 1e-9)
}

func TestAggregate_Deterministic(t *testing.T) {
	agg := NewJuryAggregator(map[string]float64{"m1": 1.5})
	input := map[string]ModelPrediction{
		"m1": {Predicted: []int{4, 1, 9}, Confidence: 62},
		"m2": {Predicted: []int{1, 4, 2}, Confidence: 55},
		"m3": {Predicted: []int{9, 2, 4}, Confidence: 71},
	}

	first := agg.Aggregate(input)
	for i := 0; i < 10; i++ {
		if !reflect.DeepEqual(first, agg.Aggregate(input)) {
			t.Fatalf("aggregation is not deterministic on iteration %d", i)
		}
	}
}

func TestAggregate_DisjointSetsAreSplit(t *testing.T) {
	agg := NewJuryAggregator(nil)

	result := agg.Aggregate(map[string]ModelPrediction{
		"m1": {Predicted: []int{1, 2, 3}},
		"m2": {Predicted: []int{4, 5, 6}},
		"m3": {Predicted: []int{7, 8, 9}},
	})

	assert.Equal(t, AgreementSplit, result.AgreementLevel)
	assert.Equal(t, 0.0, result.AgreementScore)
	assert.Equal(t, 0.0, result.ConsistencyScore)
}

func TestAggregate_WeightMonotonicity(t *testing.T) {
	// m2's top pick (5) ties m1's top pick (1) under equal weights; raising
	// m2's weight must pull 5 ahead.
	input := map[string]ModelPrediction{
		"m1": {Predicted: []int{1, 2, 3}},
		"m2": {Predicted: []int{5, 6, 7}},
	}

	equal := NewJuryAggregator(nil).Aggregate(input)
	boosted := NewJuryAggregator(map[string]float64{"m2": 2.0}).Aggregate(input)

	if boosted.VoteCounts[5] <= equal.VoteCounts[5] {
		t.Fatalf("boosting m2 should raise entrant 5's score: %.1f → %.1f",
			equal.VoteCounts[5], boosted.VoteCounts[5])
	}
	assert.Equal(t, 5, boosted.Predicted[0], "boosted model's top pick should rank first")
}

func TestAggregate_TieBreakFirstSeen(t *testing.T) {
	agg := NewJuryAggregator(nil)

	// Entrants 1 and 2 both score 3 points. Models are walked in name
	// order, so entrant 1 (from m1) is seen before entrant 2 (from m2).
	result := agg.Aggregate(map[string]ModelPrediction{
		"m1": {Predicted: []int{1}},
		"m2": {Predicted: []int{2}},
	})

	assert.Equal(t, []int{1, 2}, result.Predicted)
}

func TestAggregate_EmptyInput(t *testing.T) {
	result := NewJuryAggregator(nil).Aggregate(nil)

	assert.Empty(t, result.Predicted)
	assert.Equal(t, DefaultConfidence, result.Confidence)
	assert.Empty(t, result.ModelPredictions)
	assert.Empty(t, result.VoteCounts)
	assert.Equal(t, AgreementUnanimous, result.AgreementLevel)
	assert.Equal(t, 1.0, result.AgreementScore)
	assert.Equal(t, 0.0, result.ConsistencyScore)
}

func TestAggregate_SingleModel(t *testing.T) {
	result := NewJuryAggregator(nil).Aggregate(map[string]ModelPrediction{
		"solo": {Predicted: []int{7, 3}, Confidence: 64},
	})

	assert.Equal(t, []int{7, 3}, result.Predicted)
	assert.Equal(t, AgreementUnanimous, result.AgreementLevel)
	assert.Equal(t, 1.0, result.ConsistencyScore)
	assert.InDelta(t, 64.0, result.Confidence, 1e-9)
}

func TestAggregate_ShortPredictionsScoreOnlyPresentRanks(t *testing.T) {
	result := NewJuryAggregator(nil).Aggregate(map[string]ModelPrediction{
		"m1": {Predicted: []int{8}},
		"m2": {Predicted: []int{8, 4}},
	})

	assert.InDelta(t, 6.0, result.VoteCounts[8], 1e-9)
	assert.InDelta(t, 2.0, result.VoteCounts[4], 1e-9)
	assert.Len(t, result.Predicted, 2)
}

func TestAggregate_ZeroTotalWeightDefaultsConfidence(t *testing.T) {
	agg := NewJuryAggregator(map[string]float64{"m1": 0, "m2": 0})

	result := agg.Aggregate(map[string]ModelPrediction{
		"m1": {Predicted: []int{1, 2, 3}, Confidence: 90},
		"m2": {Predicted: []int{1, 2, 3}, Confidence: 10},
	})

	assert.Equal(t, DefaultConfidence, result.Confidence)
}

func TestAggregate_MajorityLevel(t *testing.T) {
	// Pairwise intersections: {1,2,3}∩{1,2,5}=2, {1,2,3}∩{1,2,6}=2,
	// {1,2,5}∩{1,2,6}=2 → average 2.0 → majority, score 2/3.
	result := NewJuryAggregator(nil).Aggregate(map[string]ModelPrediction{
		"m1": {Predicted: []int{1, 2, 3}},
		"m2": {Predicted: []int{1, 2, 5}},
		"m3": {Predicted: []int{1, 2, 6}},
	})

	assert.Equal(t, AgreementMajority, result.AgreementLevel)
	assert.InDelta(t, 2.0/3.0, result.AgreementScore, 1e-9)
}

func TestAggregate_NoDuplicatesInPredicted(t *testing.T) {
	result := NewJuryAggregator(nil).Aggregate(map[string]ModelPrediction{
		"m1": {Predicted: []int{1, 2, 3}},
		"m2": {Predicted: []int{3, 2, 1}},
		"m3": {Predicted: []int{2, 1, 3}},
	})

	seen := make(map[int]bool)
	for _, n := range result.Predicted {
		if seen[n] {
			t.Fatalf("duplicate entrant %d in predicted %v", n, result.Predicted)
		}
		seen[n] = true
	}
	assert.LessOrEqual(t, len(result.Predicted), 3)
}
