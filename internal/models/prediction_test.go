package models

import (
	"math"
	"reflect"
	"testing"
)

func TestParsePrediction(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantPicks  []int
		wantConf   float64
		wantErrMsg string
	}{
		{
			name:      "bare JSON",
			text:      `{"predicted": [3, 7, 1], "confidence": 0.8}`,
			wantPicks: []int{3, 7, 1},
			wantConf:  0.8,
		},
		{
			name:      "fenced JSON",
			text:      "```json\n{\"predicted\": [5, 2, 9], \"confidence\": 70}\n```",
			wantPicks: []int{5, 2, 9},
			wantConf:  70,
		},
		{
			name:      "prose around the object",
			text:      `Sure! Based on the field I would pick {"predicted": [4, 8], "confidence": 0.55} for this race.`,
			wantPicks: []int{4, 8},
			wantConf:  0.55,
		},
		{
			name:      "duplicates dropped",
			text:      `{"predicted": [6, 6, 2, 6, 3], "confidence": 0.6}`,
			wantPicks: []int{6, 2, 3},
			wantConf:  0.6,
		},
		{
			name:      "non-positive picks dropped",
			text:      `{"predicted": [0, -1, 5, 1], "confidence": 0.5}`,
			wantPicks: []int{5, 1},
			wantConf:  0.5,
		},
		{
			name:      "cut to three",
			text:      `{"predicted": [1, 2, 3, 4, 5], "confidence": 0.9}`,
			wantPicks: []int{1, 2, 3},
			wantConf:  0.9,
		},
		{
			name:       "no JSON at all",
			text:       "I cannot make a prediction for this race.",
			wantErrMsg: "no prediction JSON in model output",
		},
		{
			name:       "malformed JSON",
			text:       `{"predicted": [3, 7, 1], "confidence":`,
			wantErrMsg: "no prediction JSON in model output",
		},
		{
			name:       "empty picks",
			text:       `{"predicted": [], "confidence": 0.4}`,
			wantErrMsg: "model output has no picks",
		},
		{
			name:       "only invalid picks",
			text:       `{"predicted": [0, -3], "confidence": 0.4}`,
			wantErrMsg: "model output has no valid picks",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePrediction("test-model", tt.text)
			if tt.wantErrMsg != "" {
				if err == nil {
					t.Fatalf("ParsePrediction() = %+v, want error %q", got, tt.wantErrMsg)
				}
				if err.Error() != tt.wantErrMsg {
					t.Errorf("ParsePrediction() error = %q, want %q", err.Error(), tt.wantErrMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePrediction() error = %v", err)
			}
			if got.ModelName != "test-model" {
				t.Errorf("ModelName = %q, want %q", got.ModelName, "test-model")
			}
			if !reflect.DeepEqual(got.Predicted, tt.wantPicks) {
				t.Errorf("Predicted = %v, want %v", got.Predicted, tt.wantPicks)
			}
			if math.Abs(got.Confidence-tt.wantConf) > 1e-9 {
				t.Errorf("Confidence = %f, want %f", got.Confidence, tt.wantConf)
			}
		})
	}
}

func TestNormalizeConfidence(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{name: "already unit scale", in: 0.85, want: 0.85},
		{name: "percentage scale", in: 85, want: 0.85},
		{name: "negative clamps to zero", in: -0.2, want: 0.0},
		{name: "over 100 clamps to one", in: 250, want: 1.0},
		{name: "boundary one", in: 1.0, want: 1.0},
		{name: "zero", in: 0.0, want: 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeConfidence(tt.in)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("NormalizeConfidence(%f) = %f, want %f", tt.in, got, tt.want)
			}
		})
	}
}
