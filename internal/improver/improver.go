// Package improver turns measured prediction failures into voted,
// consensus-filtered prompt edits. A jury of models reviews the current
// prompt alongside failure cases; only edits that at least min_consensus
// distinct models independently proposed get applied.
package improver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/coyaSONG/kra-analysis/internal/jury"
	"github.com/coyaSONG/kra-analysis/internal/metrics"
)

// DefaultMinConsensus is the distinct-model vote threshold for an edit.
const DefaultMinConsensus = 2

// maxFailureCases bounds how many failures go into the analysis prompt.
const maxFailureCases = 10

// sectionPreviewRunes bounds per-section content in the analysis prompt.
const sectionPreviewRunes = 200

// Result reasons.
const (
	ReasonChangesApplied   = "changes_applied"
	ReasonQuorumNotReached = "quorum_not_reached"
	ReasonNoConsensus      = "no_consensus"
	ReasonFallbackApplied  = "fallback_applied"
)

// FailureCase is one mispredicted race shown to the jury.
type FailureCase struct {
	RaceID     string  `json:"race_id"`
	Predicted  []int   `json:"predicted"`
	Actual     []int   `json:"actual"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Reconstructor is the fallback strategy used when the jury reaches no
// consensus but insight analysis is available.
type Reconstructor interface {
	Reconstruct(ctx context.Context, current *PromptStructure, insights, newVersion string) (*PromptStructure, []Change, error)
}

// Result is the outcome of one improvement cycle. Structure is always
// set: when no edits were approved it is an unchanged copy of the input.
type Result struct {
	Structure *PromptStructure
	Changes   []Change
	Verdict   jury.Verdict
	Reason    string
}

// Improver orchestrates one deliberate-parse-vote-apply cycle.
type Improver struct {
	jury         *jury.Deliberator
	minConsensus int
	fallback     Reconstructor
}

// Option configures an Improver.
type Option func(*Improver)

// WithMinConsensus sets the distinct-model vote threshold.
func WithMinConsensus(n int) Option {
	return func(imp *Improver) { imp.minConsensus = n }
}

// WithFallback installs a reconstruction strategy for no-consensus runs.
func WithFallback(r Reconstructor) Option {
	return func(imp *Improver) { imp.fallback = r }
}

// New builds an Improver over the given jury.
func New(d *jury.Deliberator, opts ...Option) (*Improver, error) {
	if d == nil {
		return nil, errors.New("improver requires a jury deliberator")
	}
	imp := &Improver{jury: d, minConsensus: DefaultMinConsensus}
	for _, opt := range opts {
		opt(imp)
	}
	if imp.minConsensus < 1 {
		return nil, errors.New("min consensus must be at least 1")
	}
	return imp, nil
}

// Improve runs one improvement cycle against the current prompt. It
// never mutates current. insights, when non-empty, enables the fallback
// reconstructor on no-consensus runs. A run that produces no approved
// edits is not an error: the Result carries the reason.
func (imp *Improver) Improve(ctx context.Context, current *PromptStructure, bundle metrics.Bundle, failures []FailureCase, insights, newVersion string) (Result, error) {
	prompt := BuildAnalysisPrompt(current, bundle, failures)

	verdict := imp.jury.Deliberate(ctx, prompt)

	// Without quorum the round counts as all-failed: no votes extracted.
	var mods []Modification
	if verdict.QuorumReached {
		for _, resp := range verdict.SuccessfulResponses {
			mods = append(mods, ParseModifications(resp.Text, resp.ModelName)...)
		}
	}

	approved := VoteModifications(mods, imp.minConsensus)

	if len(approved) == 0 {
		if imp.fallback != nil && insights != "" {
			structure, changes, err := imp.fallback.Reconstruct(ctx, current, insights, newVersion)
			if err != nil {
				return Result{Structure: current.Clone(), Verdict: verdict, Reason: ReasonNoConsensus},
					fmt.Errorf("fallback reconstruction: %w", err)
			}
			return Result{Structure: structure, Changes: changes, Verdict: verdict, Reason: ReasonFallbackApplied}, nil
		}

		reason := ReasonNoConsensus
		if !verdict.QuorumReached {
			reason = ReasonQuorumNotReached
		}
		return Result{Structure: current.Clone(), Verdict: verdict, Reason: reason}, nil
	}

	next, changes := ApplyModifications(current, approved, newVersion)
	return Result{Structure: next, Changes: changes, Verdict: verdict, Reason: ReasonChangesApplied}, nil
}

// BuildAnalysisPrompt renders the natural-language deliberation prompt:
// current section previews, summary metrics, and up to maxFailureCases
// representative failures, followed by the required response format.
func BuildAnalysisPrompt(current *PromptStructure, bundle metrics.Bundle, failures []FailureCase) string {
	var b strings.Builder

	b.WriteString("You are reviewing a horse-racing prediction prompt that is underperforming.\n\n")

	fmt.Fprintf(&b, "Current prompt (%s) sections:\n", current.Version)
	for _, tag := range current.Sections() {
		body, _ := current.Content(tag)
		fmt.Fprintf(&b, "- %s: %s\n", tag, preview(body, sectionPreviewRunes))
	}

	b.WriteString("\nMeasured performance:\n")
	fmt.Fprintf(&b, "- log_loss: %.4f\n", bundle.LogLoss)
	fmt.Fprintf(&b, "- brier: %.4f\n", bundle.Brier)
	fmt.Fprintf(&b, "- ece: %.4f\n", bundle.ECE)
	for _, k := range sortedKeys(bundle.TopK) {
		fmt.Fprintf(&b, "- %s accuracy: %.4f\n", k, bundle.TopK[k])
	}
	fmt.Fprintf(&b, "- avg ROI: %.4f over %d bets\n", bundle.ROI.AvgROI, bundle.ROI.Bets)
	fmt.Fprintf(&b, "- coverage: %.4f (%d deferred of %d)\n", bundle.Coverage, bundle.DeferredCount, bundle.Samples)

	if len(failures) > maxFailureCases {
		failures = failures[:maxFailureCases]
	}
	if len(failures) > 0 {
		b.WriteString("\nRepresentative failures:\n")
		for _, f := range failures {
			fmt.Fprintf(&b, "- race %s: predicted %v, actual %v, confidence %.1f", f.RaceID, f.Predicted, f.Actual, f.Confidence)
			if f.Reasoning != "" {
				fmt.Fprintf(&b, ", reasoning: %s", f.Reasoning)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString(`
Propose prompt edits as JSON:
{"modifications": [{"section": "<section tag>", "action": "modify|add|remove", "description": "<what changes>", "content": "<new section content>", "reasoning": "<why>", "priority": <1 highest - 10 lowest>}]}

Respond with the JSON object only.
`)
	return b.String()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
