// Package models holds the shared data types for the evaluation core:
// race records, per-model predictions, and per-race evaluation results.
package models

// Horse is one entrant in a race, identified by its program number.
// Program numbers are unique only within a single race.
type Horse struct {
	No      int     `json:"horse_no"`
	Name    string  `json:"horse_name,omitempty"`
	WinOdds float64 `json:"win_odds,omitempty"`
	Jockey  string  `json:"jockey,omitempty"`
	Trainer string  `json:"trainer,omitempty"`
}

// Scratched reports whether the entrant has been withdrawn.
// The market carries no win odds for scratched horses.
func (h Horse) Scratched() bool {
	return h.WinOdds <= 0
}

// RaceRecord is a single race as consumed by the pipeline. Data carries the
// full pre-race payload so the leakage checker can scan fields the typed
// view doesn't surface.
type RaceRecord struct {
	RaceID   string         `json:"race_id"`
	RaceDate string         `json:"race_date"` // sortable fixed-width form, e.g. 20240316
	Meet     string         `json:"meet,omitempty"`
	RaceNo   int            `json:"race_no,omitempty"`
	Horses   []Horse        `json:"horses,omitempty"`
	Data     map[string]any `json:"race_data,omitempty"`
}

// RunnerNumbers returns the program numbers of non-scratched entrants,
// in card order.
func (r RaceRecord) RunnerNumbers() []int {
	nums := make([]int, 0, len(r.Horses))
	for _, h := range r.Horses {
		if !h.Scratched() {
			nums = append(nums, h.No)
		}
	}
	return nums
}

// OddsByNumber returns a program-number → win-odds map for entrants with a
// quoted market price.
func (r RaceRecord) OddsByNumber() map[int]float64 {
	odds := make(map[int]float64, len(r.Horses))
	for _, h := range r.Horses {
		if h.WinOdds > 0 {
			odds[h.No] = h.WinOdds
		}
	}
	return odds
}
