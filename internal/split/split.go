// Package split partitions race records chronologically so evaluation never
// trains or validates on races that run after its test window. Dates compare
// lexicographically, so they must be in a fixed-width sortable form such as
// YYYYMMDD.
package split

import (
	"fmt"
	"sort"

	"github.com/coyaSONG/kra-analysis/internal/models"
)

// ratioTolerance is how far the three ratios may drift from summing to 1.0.
const ratioTolerance = 0.01

// Result is one chronological partition of the input records.
type Result struct {
	Train []models.RaceRecord `json:"train"`
	Val   []models.RaceRecord `json:"val"`
	Test  []models.RaceRecord `json:"test"`
}

// TemporalSplitter produces chronological train/val/test partitions and
// expanding-window walk-forward folds.
type TemporalSplitter struct {
	trainRatio float64
	valRatio   float64
	testRatio  float64
}

// NewTemporalSplitter validates the partition ratios at construction; they
// must sum to 1.0 within a small tolerance.
func NewTemporalSplitter(trainRatio, valRatio, testRatio float64) (*TemporalSplitter, error) {
	sum := trainRatio + valRatio + testRatio
	if diff := sum - 1.0; diff > ratioTolerance || diff < -ratioTolerance {
		return nil, fmt.Errorf("split ratios must sum to 1.0, got %.3f (train=%.3f val=%.3f test=%.3f)",
			sum, trainRatio, valRatio, testRatio)
	}
	return &TemporalSplitter{
		trainRatio: trainRatio,
		valRatio:   valRatio,
		testRatio:  testRatio,
	}, nil
}

// Split sorts records by race date ascending and cuts them at the
// cumulative ratio boundaries. The remainder after the train and val floors
// goes to test.
func (s *TemporalSplitter) Split(records []models.RaceRecord) Result {
	sorted := sortByDate(records)
	n := len(sorted)

	trainEnd := int(float64(n) * s.trainRatio)
	valEnd := trainEnd + int(float64(n)*s.valRatio)

	return Result{
		Train: sorted[:trainEnd],
		Val:   sorted[trainEnd:valEnd],
		Test:  sorted[valEnd:],
	}
}

// WalkForwardSplits generates nSplits expanding-window folds over the
// sorted records. Each fold's test window sits strictly after everything it
// trains and validates on; successive folds push the window toward the tail
// and the last window absorbs any remainder. With fewer than nSplits*3
// records it degrades to a single Split.
func (s *TemporalSplitter) WalkForwardSplits(records []models.RaceRecord, nSplits int) []Result {
	if nSplits <= 0 {
		nSplits = 5
	}

	sorted := sortByDate(records)
	n := len(sorted)
	if n < nSplits*3 {
		return []Result{s.Split(sorted)}
	}

	testSize := n / (nSplits + 1)
	results := make([]Result, 0, nSplits)

	for i := 0; i < nSplits; i++ {
		testStart := n - (nSplits-i)*testSize
		testEnd := testStart + testSize
		if i == nSplits-1 {
			testEnd = n
		}

		available := sorted[:testStart]
		valSize := len(available) / 4
		if valSize < 1 {
			valSize = 1
		}
		train := available[:len(available)-valSize]
		val := available[len(available)-valSize:]
		if len(train) == 0 {
			train = available[:1]
			val = available[1:]
		}

		results = append(results, Result{
			Train: train,
			Val:   val,
			Test:  sorted[testStart:testEnd],
		})
	}
	return results
}

// sortByDate returns a date-ascending copy, leaving the caller's slice
// untouched. The sort is stable so same-day races keep their input order.
func sortByDate(records []models.RaceRecord) []models.RaceRecord {
	sorted := make([]models.RaceRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RaceDate < sorted[j].RaceDate
	})
	return sorted
}
