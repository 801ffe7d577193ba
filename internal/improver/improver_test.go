package improver

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coyaSONG/kra-analysis/internal/jury"
	"github.com/coyaSONG/kra-analysis/internal/llm"
	"github.com/coyaSONG/kra-analysis/internal/metrics"
)

func juryOf(t *testing.T, clients ...llm.Client) *jury.Deliberator {
	t.Helper()
	d, err := jury.NewDeliberator(clients)
	require.NoError(t, err)
	return d
}

func respondWith(name, text string) *llm.MockClient {
	return &llm.MockClient{ModelName: name, Script: []*llm.Response{{Success: true, Text: text}}}
}

func failing(name string) *llm.MockClient {
	return &llm.MockClient{ModelName: name, Script: []*llm.Response{{Success: false, Error: "timeout"}}}
}

func currentPrompt() *PromptStructure {
	ps := NewPromptStructure("v2.3")
	ps.SetSection("role", "Analyst.")
	ps.SetSection("rules", "Old rules.")
	return ps
}

const modifyRules = `{"modifications": [{"section": "rules", "action": "modify", "description": "tighten", "content": "New rules.", "priority": 2}]}`

func TestImprove_ConsensusApplied(t *testing.T) {
	imp, err := New(juryOf(t,
		respondWith("m1", modifyRules),
		respondWith("m2", "```json\n"+modifyRules+"\n```"),
		respondWith("m3", `{"modifications": [{"section": "style", "action": "add", "content": "solo idea"}]}`),
	))
	require.NoError(t, err)

	res, err := imp.Improve(context.Background(), currentPrompt(), metrics.Bundle{}, nil, "", "v2.4")
	require.NoError(t, err)

	assert.Equal(t, ReasonChangesApplied, res.Reason)
	require.Len(t, res.Changes, 1)
	assert.Equal(t, "rules", res.Changes[0].Section)
	assert.Equal(t, "v2.4", res.Structure.Version)

	body, _ := res.Structure.Content("rules")
	assert.Equal(t, "New rules.", body)

	// Solo proposal from m3 had no consensus.
	_, ok := res.Structure.Content("style")
	assert.False(t, ok)
}

func TestImprove_DoesNotMutateCurrent(t *testing.T) {
	current := currentPrompt()
	imp, err := New(juryOf(t, respondWith("m1", modifyRules), respondWith("m2", modifyRules)))
	require.NoError(t, err)

	_, err = imp.Improve(context.Background(), current, metrics.Bundle{}, nil, "", "v2.4")
	require.NoError(t, err)

	body, _ := current.Content("rules")
	assert.Equal(t, "Old rules.", body)
	assert.Equal(t, "v2.3", current.Version)
}

func TestImprove_QuorumNotReached(t *testing.T) {
	imp, err := New(juryOf(t, respondWith("m1", modifyRules), failing("m2"), failing("m3")))
	require.NoError(t, err)

	res, err := imp.Improve(context.Background(), currentPrompt(), metrics.Bundle{}, nil, "", "v2.4")
	require.NoError(t, err)

	assert.Equal(t, ReasonQuorumNotReached, res.Reason)
	assert.Empty(t, res.Changes)
	assert.Equal(t, "v2.3", res.Structure.Version)
}

func TestImprove_NoConsensus(t *testing.T) {
	imp, err := New(juryOf(t,
		respondWith("m1", `{"modifications": [{"section": "rules", "action": "modify", "content": "a"}]}`),
		respondWith("m2", `{"modifications": [{"section": "role", "action": "modify", "content": "b"}]}`),
	))
	require.NoError(t, err)

	res, err := imp.Improve(context.Background(), currentPrompt(), metrics.Bundle{}, nil, "", "v2.4")
	require.NoError(t, err)

	assert.Equal(t, ReasonNoConsensus, res.Reason)
	assert.Empty(t, res.Changes)
}

type stubReconstructor struct {
	structure *PromptStructure
	changes   []Change
	err       error

	gotInsights string
}

func (s *stubReconstructor) Reconstruct(_ context.Context, _ *PromptStructure, insights, newVersion string) (*PromptStructure, []Change, error) {
	s.gotInsights = insights
	if s.err != nil {
		return nil, nil, s.err
	}
	out := s.structure.Clone()
	out.Version = newVersion
	return out, s.changes, nil
}

func TestImprove_FallbackOnNoConsensus(t *testing.T) {
	rebuilt := NewPromptStructure("")
	rebuilt.SetSection("role", "Rebuilt.")
	fallback := &stubReconstructor{structure: rebuilt, changes: []Change{{Section: "role", Action: ActionModify}}}

	imp, err := New(
		juryOf(t, failing("m1"), failing("m2")),
		WithFallback(fallback),
	)
	require.NoError(t, err)

	res, err := imp.Improve(context.Background(), currentPrompt(), metrics.Bundle{}, nil, "models disagree on rules", "v2.4")
	require.NoError(t, err)

	assert.Equal(t, ReasonFallbackApplied, res.Reason)
	assert.Equal(t, "v2.4", res.Structure.Version)
	assert.Equal(t, "models disagree on rules", fallback.gotInsights)
	assert.Len(t, res.Changes, 1)
}

func TestImprove_FallbackNeedsInsights(t *testing.T) {
	fallback := &stubReconstructor{structure: NewPromptStructure("")}
	imp, err := New(juryOf(t, failing("m1"), failing("m2")), WithFallback(fallback))
	require.NoError(t, err)

	res, err := imp.Improve(context.Background(), currentPrompt(), metrics.Bundle{}, nil, "", "v2.4")
	require.NoError(t, err)

	assert.Equal(t, ReasonQuorumNotReached, res.Reason)
	assert.Empty(t, fallback.gotInsights)
}

func TestImprove_FallbackError(t *testing.T) {
	fallback := &stubReconstructor{err: errors.New("boom")}
	imp, err := New(juryOf(t, failing("m1"), failing("m2")), WithFallback(fallback))
	require.NoError(t, err)

	res, err := imp.Improve(context.Background(), currentPrompt(), metrics.Bundle{}, nil, "insights", "v2.4")
	require.Error(t, err)
	assert.Equal(t, "v2.3", res.Structure.Version)
}

func TestBuildAnalysisPrompt(t *testing.T) {
	bundle := metrics.Bundle{
		LogLoss: 1.9,
		TopK:    map[string]float64{"top1": 0.2, "top3": 0.5},
		ROI:     metrics.ROIStats{AvgROI: -0.12, Bets: 40},
		Samples: 50,
	}
	failures := make([]FailureCase, 15)
	for i := range failures {
		failures[i] = FailureCase{RaceID: "race", Predicted: []int{1, 2, 3}, Actual: []int{4, 5, 6}, Confidence: 80}
	}

	prompt := BuildAnalysisPrompt(currentPrompt(), bundle, failures)

	assert.Contains(t, prompt, "rules")
	assert.Contains(t, prompt, "log_loss: 1.9000")
	assert.Contains(t, prompt, `"modifications"`)

	// Capped at ten failure cases.
	assert.Equal(t, 10, strings.Count(prompt, "- race race:"))
}
