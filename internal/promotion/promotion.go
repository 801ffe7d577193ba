// Package promotion decides whether a challenger prompt version may
// replace the current champion, based on their evaluation metrics.
package promotion

import "github.com/coyaSONG/kra-analysis/internal/metrics"

// GateStrict is the only supported selection gate: the challenger must
// strictly improve log-loss and must not regress calibration, top-3
// accuracy, or ROI.
const GateStrict = "strict"

// Reason strings for Decision. The first failing check wins.
const (
	ReasonLeakageFailed      = "leakage_failed"
	ReasonLogLossNotImproved = "log_loss_not_improved"
	ReasonECERegressed       = "ece_regressed"
	ReasonTop3AccRegressed   = "top3_accuracy_regressed"
	ReasonROIRegressed       = "roi_regressed"
	ReasonUnknownGate        = "unknown_gate"
	ReasonGatePassed         = "gate_passed"
)

// Decision is the gate's verdict. Deterministic given its inputs.
type Decision struct {
	Promote bool   `json:"promote"`
	Reason  string `json:"reason"`
}

// ShouldPromoteChallenger compares champion and challenger metric bundles
// under the named selection gate. A failed leakage check vetoes promotion
// regardless of metrics. Pure function, no side effects.
func ShouldPromoteChallenger(champion, challenger metrics.Bundle, leakagePassed bool, gate string) Decision {
	if !leakagePassed {
		return Decision{Promote: false, Reason: ReasonLeakageFailed}
	}
	if gate != GateStrict {
		return Decision{Promote: false, Reason: ReasonUnknownGate}
	}

	if !(challenger.LogLoss < champion.LogLoss) {
		return Decision{Promote: false, Reason: ReasonLogLossNotImproved}
	}
	if challenger.ECE > champion.ECE {
		return Decision{Promote: false, Reason: ReasonECERegressed}
	}
	if top3(challenger) < top3(champion) {
		return Decision{Promote: false, Reason: ReasonTop3AccRegressed}
	}
	if challenger.ROI.AvgROI < champion.ROI.AvgROI {
		return Decision{Promote: false, Reason: ReasonROIRegressed}
	}

	return Decision{Promote: true, Reason: ReasonGatePassed}
}

func top3(b metrics.Bundle) float64 {
	return b.TopK["top3"]
}
