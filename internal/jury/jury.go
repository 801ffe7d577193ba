// Package jury fans an analysis prompt out to a panel of LLM clients and
// collects their responses into a verdict. Individual model failures are
// expected and recorded, never propagated: the deliberation always
// completes with whatever responses arrived.
package jury

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coyaSONG/kra-analysis/internal/llm"
)

const (
	// DefaultQuorum is the minimum successful responses for a verdict
	// to be actionable.
	DefaultQuorum = 2

	// DefaultConcurrency bounds how many clients run at once. External
	// CLIs are heavyweight; a hung one must not starve the rest.
	DefaultConcurrency = 3

	// DefaultTimeout bounds the whole deliberation.
	DefaultTimeout = 10 * time.Minute
)

// Verdict is the outcome of one deliberation round. Successful responses
// are sorted by model name so downstream voting sees a stable order
// regardless of arrival timing.
type Verdict struct {
	SuccessfulResponses []*llm.Response `json:"successful_responses"`
	FailedResponses     []*llm.Response `json:"failed_responses"`
	QuorumReached       bool            `json:"quorum_reached"`
}

// Deliberator runs a fixed panel of clients with bounded concurrency.
type Deliberator struct {
	clients     []llm.Client
	quorum      int
	concurrency int
	timeout     time.Duration
}

// Option configures a Deliberator.
type Option func(*Deliberator)

// WithQuorum sets the minimum successful-response count.
func WithQuorum(n int) Option {
	return func(d *Deliberator) { d.quorum = n }
}

// WithConcurrency sets how many clients may run simultaneously.
func WithConcurrency(n int) Option {
	return func(d *Deliberator) { d.concurrency = n }
}

// WithTimeout bounds the whole deliberation round.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Deliberator) { d.timeout = timeout }
}

// NewDeliberator builds a deliberator over the given panel. An empty
// panel is a configuration error.
func NewDeliberator(clients []llm.Client, opts ...Option) (*Deliberator, error) {
	if len(clients) == 0 {
		return nil, errors.New("jury requires at least one client")
	}

	d := &Deliberator{
		clients:     clients,
		quorum:      DefaultQuorum,
		concurrency: DefaultConcurrency,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.quorum < 1 {
		return nil, errors.New("jury quorum must be at least 1")
	}
	if d.concurrency < 1 {
		return nil, errors.New("jury concurrency must be at least 1")
	}
	return d, nil
}

// Deliberate sends the prompt to every panel member and partitions the
// responses. It never fails: timeouts and CLI errors end up in
// FailedResponses.
func (d *Deliberator) Deliberate(ctx context.Context, prompt string) Verdict {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	responses := make([]*llm.Response, len(d.clients))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, client := range d.clients {
		i, client := i, client
		g.Go(func() error {
			responses[i] = client.Predict(ctx, prompt)
			return nil
		})
	}
	_ = g.Wait()

	var verdict Verdict
	for i, resp := range responses {
		if resp == nil {
			resp = &llm.Response{
				ModelName: d.clients[i].Name(),
				Success:   false,
				Error:     "no response",
			}
		}
		if resp.Success {
			verdict.SuccessfulResponses = append(verdict.SuccessfulResponses, resp)
		} else {
			verdict.FailedResponses = append(verdict.FailedResponses, resp)
		}
	}

	sort.Slice(verdict.SuccessfulResponses, func(i, j int) bool {
		return verdict.SuccessfulResponses[i].ModelName < verdict.SuccessfulResponses[j].ModelName
	})
	sort.Slice(verdict.FailedResponses, func(i, j int) bool {
		return verdict.FailedResponses[i].ModelName < verdict.FailedResponses[j].ModelName
	})

	verdict.QuorumReached = len(verdict.SuccessfulResponses) >= d.quorum
	return verdict
}
