package jury

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coyaSONG/kra-analysis/internal/llm"
)

func scripted(name string, resp *llm.Response) *llm.MockClient {
	return &llm.MockClient{ModelName: name, Script: []*llm.Response{resp}}
}

func TestNewDeliberator_Validation(t *testing.T) {
	_, err := NewDeliberator(nil)
	require.Error(t, err)

	clients := []llm.Client{scripted("m1", &llm.Response{Success: true})}

	_, err = NewDeliberator(clients, WithQuorum(0))
	require.Error(t, err)

	_, err = NewDeliberator(clients, WithConcurrency(0))
	require.Error(t, err)
}

func TestDeliberate_AllSucceed(t *testing.T) {
	clients := []llm.Client{
		scripted("charlie", &llm.Response{Success: true, Text: "c"}),
		scripted("alpha", &llm.Response{Success: true, Text: "a"}),
		scripted("bravo", &llm.Response{Success: true, Text: "b"}),
	}
	d, err := NewDeliberator(clients)
	require.NoError(t, err)

	v := d.Deliberate(context.Background(), "analyze")

	require.Len(t, v.SuccessfulResponses, 3)
	assert.Empty(t, v.FailedResponses)
	assert.True(t, v.QuorumReached)

	// Stable model-name order regardless of completion order.
	assert.Equal(t, "alpha", v.SuccessfulResponses[0].ModelName)
	assert.Equal(t, "bravo", v.SuccessfulResponses[1].ModelName)
	assert.Equal(t, "charlie", v.SuccessfulResponses[2].ModelName)
}

func TestDeliberate_PartialFailureStillCompletes(t *testing.T) {
	clients := []llm.Client{
		scripted("m1", &llm.Response{Success: true, Text: "ok"}),
		scripted("m2", &llm.Response{Success: false, Error: "exit status 1"}),
		scripted("m3", &llm.Response{Success: true, Text: "ok"}),
	}
	d, err := NewDeliberator(clients)
	require.NoError(t, err)

	v := d.Deliberate(context.Background(), "analyze")

	assert.Len(t, v.SuccessfulResponses, 2)
	assert.Len(t, v.FailedResponses, 1)
	assert.True(t, v.QuorumReached)
	assert.Equal(t, "m2", v.FailedResponses[0].ModelName)
}

func TestDeliberate_QuorumNotReached(t *testing.T) {
	clients := []llm.Client{
		scripted("m1", &llm.Response{Success: true, Text: "ok"}),
		scripted("m2", &llm.Response{Success: false, Error: "timeout"}),
		scripted("m3", &llm.Response{Success: false, Error: "timeout"}),
	}
	d, err := NewDeliberator(clients)
	require.NoError(t, err)

	v := d.Deliberate(context.Background(), "analyze")

	assert.False(t, v.QuorumReached)
	assert.Len(t, v.SuccessfulResponses, 1)
}

func TestDeliberate_TimeoutBecomesFailedResponse(t *testing.T) {
	clients := []llm.Client{
		scripted("fast", &llm.Response{Success: true, Text: "ok"}),
		&llm.MockClient{ModelName: "hung", Delay: time.Minute},
	}
	d, err := NewDeliberator(clients, WithTimeout(20*time.Millisecond), WithQuorum(1))
	require.NoError(t, err)

	v := d.Deliberate(context.Background(), "analyze")

	require.Len(t, v.FailedResponses, 1)
	assert.Equal(t, "hung", v.FailedResponses[0].ModelName)
	assert.True(t, v.QuorumReached)
}

func TestDeliberate_BoundedConcurrency(t *testing.T) {
	// With concurrency 1 and three 30ms clients the round takes at
	// least 90ms; mostly this asserts nothing deadlocks under the limit.
	clients := []llm.Client{
		&llm.MockClient{ModelName: "m1", Delay: 30 * time.Millisecond},
		&llm.MockClient{ModelName: "m2", Delay: 30 * time.Millisecond},
		&llm.MockClient{ModelName: "m3", Delay: 30 * time.Millisecond},
	}
	d, err := NewDeliberator(clients, WithConcurrency(1))
	require.NoError(t, err)

	start := time.Now()
	v := d.Deliberate(context.Background(), "analyze")
	elapsed := time.Since(start)

	assert.Len(t, v.SuccessfulResponses, 3)
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
}
