package llm

import (
	"context"
	"sync"
	"time"
)

// MockClient is a scripted Client for tests. Responses are served in
// order; once exhausted the last one repeats. A nil script produces
// generic successes.
type MockClient struct {
	ModelName string
	Script    []*Response
	Delay     time.Duration

	mu      sync.Mutex
	next    int
	prompts []string
}

func (m *MockClient) Name() string { return m.ModelName }

func (m *MockClient) Predict(ctx context.Context, prompt string) *Response {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return &Response{
				ModelName: m.ModelName,
				Success:   false,
				Error:     ctx.Err().Error(),
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, prompt)

	if len(m.Script) == 0 {
		return &Response{ModelName: m.ModelName, Success: true, Text: "ok"}
	}

	idx := m.next
	if idx >= len(m.Script) {
		idx = len(m.Script) - 1
	}
	m.next++

	r := *m.Script[idx]
	if r.ModelName == "" {
		r.ModelName = m.ModelName
	}
	return &r
}

// Prompts returns the prompts Predict has seen, in call order.
func (m *MockClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}
