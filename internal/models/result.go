package models

import "sort"

// Reward summarizes how well a single prediction did.
type Reward struct {
	// CorrectCount is the size of the overlap between the predicted picks
	// and the actual top-3 finishers.
	CorrectCount int `json:"correct_count"`
}

// DetailedResult is one race's evaluation record: what was predicted, what
// actually happened, and the pre-race payload the prediction was made from.
// RaceData must never contain post-race fields once the result reaches
// leakage-sensitive consumers; the leakage checker enforces that.
type DetailedResult struct {
	RaceID     string         `json:"race_id"`
	Predicted  []int          `json:"predicted"`
	Actual     []int          `json:"actual"` // finish order: winner first
	Reward     Reward         `json:"reward"`
	Confidence float64        `json:"confidence"`
	RaceData   map[string]any `json:"race_data,omitempty"`
	ElapsedMs  int64          `json:"elapsed_ms,omitempty"`
}

// PredictionOutcome classifies how a prediction fared against the actual
// top-3 finishers.
type PredictionOutcome string

const (
	// OutcomeAllCorrect means every actual top-3 finisher was predicted.
	OutcomeAllCorrect PredictionOutcome = "all_correct"
	// OutcomePartial means at least one, but not all, finishers were hit.
	OutcomePartial PredictionOutcome = "partial"
	// OutcomeMiss means no predicted pick finished in the top 3.
	OutcomeMiss PredictionOutcome = "miss"
)

// Outcome classifies the result from its reward.
func (d DetailedResult) Outcome() PredictionOutcome {
	switch {
	case d.Reward.CorrectCount >= 3:
		return OutcomeAllCorrect
	case d.Reward.CorrectCount > 0:
		return OutcomePartial
	default:
		return OutcomeMiss
	}
}

// CorrectCount computes the overlap between predicted and actual picks.
func CorrectCount(predicted, actual []int) int {
	inActual := make(map[int]bool, len(actual))
	for _, n := range actual {
		inActual[n] = true
	}
	count := 0
	for _, n := range predicted {
		if inActual[n] {
			count++
		}
	}
	return count
}

// WinOdds extracts a program-number → win-odds map from the raw race
// payload. The payload shape drifts between upstream sources ("horses" vs
// "entries", int vs float encodings), so this is deliberately tolerant:
// anything it can't interpret is skipped.
func (d DetailedResult) WinOdds() map[int]float64 {
	odds := make(map[int]float64)
	for _, key := range []string{"horses", "entries"} {
		list, ok := d.RaceData[key].([]any)
		if !ok {
			continue
		}
		for _, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			no, ok := intField(entry, "horse_no", "no", "chulNo")
			if !ok {
				continue
			}
			if v, ok := floatField(entry, "win_odds", "winOdds"); ok && v > 0 {
				odds[no] = v
			}
		}
	}
	return odds
}

// ValidEntrants returns the program numbers of non-scratched entrants found
// in the raw payload. When the payload carries no entrant list, it falls
// back to the union of predicted and actual picks so downstream probability
// math always has a support set.
func (d DetailedResult) ValidEntrants() []int {
	odds := d.WinOdds()
	if len(odds) > 0 {
		nums := make([]int, 0, len(odds))
		for n := range odds {
			nums = append(nums, n)
		}
		sort.Ints(nums)
		return nums
	}
	seen := make(map[int]bool)
	var nums []int
	for _, n := range d.Predicted {
		if !seen[n] {
			seen[n] = true
			nums = append(nums, n)
		}
	}
	for _, n := range d.Actual {
		if !seen[n] {
			seen[n] = true
			nums = append(nums, n)
		}
	}
	return nums
}

func intField(m map[string]any, keys ...string) (int, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case int:
			return v, true
		case float64:
			return int(v), true
		}
	}
	return 0, false
}

func floatField(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		}
	}
	return 0, false
}
