package models

import (
	"encoding/json"
	"errors"
	"strings"
)

// Prediction is one model's answer for one race: an ordered pick of up to
// three program numbers plus the model's own confidence. Producers may
// report confidence on a 0–1 or 0–100 scale; consumers normalize via
// [NormalizeConfidence].
type Prediction struct {
	ModelName  string  `json:"model_name"`
	Predicted  []int   `json:"predicted"`
	Confidence float64 `json:"confidence"`
}

// ParsePrediction extracts a prediction from raw model output. Models
// wrap their JSON in code fences or prose more often than not, so the
// parser hunts for the outermost object. Duplicate picks are dropped and
// the list is cut to three.
func ParsePrediction(modelName, text string) (Prediction, error) {
	raw := text
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}

	var doc struct {
		Predicted  []int   `json:"predicted"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Prediction{}, errors.New("no prediction JSON in model output")
	}
	if len(doc.Predicted) == 0 {
		return Prediction{}, errors.New("model output has no picks")
	}

	seen := make(map[int]bool, 3)
	var picks []int
	for _, n := range doc.Predicted {
		if n <= 0 || seen[n] {
			continue
		}
		seen[n] = true
		picks = append(picks, n)
		if len(picks) == 3 {
			break
		}
	}
	if len(picks) == 0 {
		return Prediction{}, errors.New("model output has no valid picks")
	}

	return Prediction{ModelName: modelName, Predicted: picks, Confidence: doc.Confidence}, nil
}

// NormalizeConfidence maps a producer-scale confidence onto [0, 1].
// Values above 1 are assumed to be percentages.
func NormalizeConfidence(c float64) float64 {
	if c > 1 {
		c = c / 100.0
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
