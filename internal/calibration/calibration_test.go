package calibration

import (
	"math"
	"testing"
)

func TestCalibrate_UnfitIsIdentity(t *testing.T) {
	c := NewHistogramCalibrator(10)

	for _, x := range []float64{0.0, 0.3, 0.77, 1.0} {
		if got := c.Calibrate(x); got != x {
			t.Errorf("unfit Calibrate(%f) = %f, want identity", x, got)
		}
	}
}

func TestFit_DegenerateInputStaysUnfit(t *testing.T) {
	c := NewHistogramCalibrator(10)

	c.Fit(nil, nil)
	if c.Fitted() {
		t.Fatal("empty input should leave calibrator unfit")
	}

	c.Fit([]float64{0.5, 0.6}, []int{1})
	if c.Fitted() {
		t.Fatal("length-mismatched input should leave calibrator unfit")
	}
}

func TestCalibrate_ClampsAtEdges(t *testing.T) {
	c := NewHistogramCalibrator(2)
	// Two chunks: low-confidence chunk never succeeds, high always does.
	c.Fit(
		[]float64{0.1, 0.2, 0.8, 0.9},
		[]int{0, 0, 1, 1},
	)

	if got := c.Calibrate(0.01); got != 0.0 {
		t.Errorf("Calibrate below first bin mean = %f, want 0.0", got)
	}
	if got := c.Calibrate(0.99); got != 1.0 {
		t.Errorf("Calibrate above last bin mean = %f, want 1.0", got)
	}
}

func TestCalibrate_InterpolatesBetweenBins(t *testing.T) {
	c := NewHistogramCalibrator(2)
	// Bin means: 0.15 (actual 0.0) and 0.85 (actual 1.0).
	c.Fit(
		[]float64{0.1, 0.2, 0.8, 0.9},
		[]int{0, 0, 1, 1},
	)

	// Midpoint of the bin means should interpolate to 0.5.
	got := c.Calibrate(0.5)
	if math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Calibrate(0.5) = %f, want 0.5", got)
	}

	// Quarter of the way: 0.15 + 0.25*(0.85-0.15) = 0.325 → actual 0.25.
	got = c.Calibrate(0.325)
	if math.Abs(got-0.25) > 1e-9 {
		t.Errorf("Calibrate(0.325) = %f, want 0.25", got)
	}
}

func TestFit_OverconfidentModelMapsDown(t *testing.T) {
	c := NewHistogramCalibrator(2)
	// Model says 0.9 but wins only half the time.
	c.Fit(
		[]float64{0.88, 0.9, 0.9, 0.92},
		[]int{1, 0, 1, 0},
	)

	got := c.Calibrate(0.9)
	if got > 0.6 {
		t.Errorf("overconfident 0.9 should calibrate down toward 0.5, got %f", got)
	}
}

func TestReliabilityDiagram_PerfectCalibration(t *testing.T) {
	// Confidence 0.25 with 25% hits, 0.75 with 75% hits → ECE ~0.
	confs := []float64{0.25, 0.25, 0.25, 0.25, 0.75, 0.75, 0.75, 0.75}
	hits := []int{1, 0, 0, 0, 1, 1, 1, 0}

	d := ReliabilityDiagram(confs, hits, 4)

	if d.ECE > 1e-9 {
		t.Errorf("perfectly calibrated input should have ECE 0, got %f", d.ECE)
	}
	if d.BinCounts[1] != 4 || d.BinCounts[3] != 4 {
		t.Errorf("unexpected bin counts %v", d.BinCounts)
	}
}

func TestReliabilityDiagram_KnownECE(t *testing.T) {
	// All samples in one bin: confidence 0.9, accuracy 0.5 → ECE 0.4.
	confs := []float64{0.9, 0.9, 0.9, 0.9}
	hits := []int{1, 0, 1, 0}

	d := ReliabilityDiagram(confs, hits, 10)

	if math.Abs(d.ECE-0.4) > 1e-9 {
		t.Errorf("ECE = %f, want 0.4", d.ECE)
	}
}

func TestReliabilityDiagram_TopEdgeLandsInLastBin(t *testing.T) {
	d := ReliabilityDiagram([]float64{1.0}, []int{1}, 10)

	if d.BinCounts[9] != 1 {
		t.Errorf("confidence 1.0 should land in the last bin, counts %v", d.BinCounts)
	}
}

func TestReliabilityDiagram_EmptyInput(t *testing.T) {
	d := ReliabilityDiagram(nil, nil, 5)

	if d.ECE != 0 {
		t.Errorf("empty input ECE = %f, want 0", d.ECE)
	}
	if len(d.BinCenters) != 5 {
		t.Errorf("expected 5 bin centers, got %d", len(d.BinCenters))
	}
}
