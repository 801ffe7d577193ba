// Package llm abstracts the external model command-line tools behind a
// narrow client interface. The rest of the pipeline consumes only the
// Response envelope and never learns which concrete tool produced it.
//
// Transient failures (timeouts, non-zero exits, missing binaries) become
// failed Responses, never returned errors: a jury member that hangs or
// crashes must not abort the deliberation that invoked it.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// defaultTimeoutSeconds bounds a single model invocation when the client
// config does not set one. External CLIs routinely take minutes on long
// prompts.
const defaultTimeoutSeconds = 300

// Kind selects the invocation shape of a concrete CLI tool.
type Kind string

const (
	// KindExec is the `<tool> exec <prompt> --full-auto --json
	// --skip-git-repo-check` shape; the response text lives in a
	// `result` field or in `items[].content[].text`.
	KindExec Kind = "exec"

	// KindPromptFlag is the `<tool> -p <prompt>` shape; the response
	// text lives in a `result` field or is the raw stdout.
	KindPromptFlag Kind = "prompt_flag"
)

// Response is the envelope every client invocation produces, success or
// not.
type Response struct {
	Text      string `json:"text"`
	ModelName string `json:"model_name"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Client runs one prediction round-trip against an external model.
type Client interface {
	// Name identifies the model for weighting and attribution.
	Name() string

	// Predict sends the prompt and always returns a Response; failures
	// are recorded in the envelope rather than returned.
	Predict(ctx context.Context, prompt string) *Response
}

// Create builds a client of the given kind from mapstructure params.
func Create(kind Kind, name string, params map[string]any) (Client, error) {
	var spec struct {
		Command string   `mapstructure:"command"`
		Args    []string `mapstructure:"args"`
		Timeout int      `mapstructure:"timeout"`
	}
	if err := mapstructure.Decode(params, &spec); err != nil {
		return nil, fmt.Errorf("decoding client params for %q: %w", name, err)
	}
	if spec.Command == "" {
		return nil, fmt.Errorf("llm client %q must have a 'command'", name)
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds
	}

	base := cliClient{
		name:    name,
		command: spec.Command,
		args:    spec.Args,
		timeout: time.Duration(timeout) * time.Second,
	}

	switch kind {
	case KindExec:
		return &codexClient{cliClient: base}, nil
	case KindPromptFlag:
		return &promptFlagClient{cliClient: base}, nil
	default:
		return nil, fmt.Errorf("unknown llm client kind %q", kind)
	}
}

// cliClient carries the pieces shared by the subprocess-backed clients.
type cliClient struct {
	name    string
	command string
	args    []string
	timeout time.Duration
}

func (c *cliClient) Name() string { return c.name }

// run spawns the tool with a hard wall-clock timeout and returns the
// trimmed stdout. Any failure, including the timeout kill, surfaces as a
// failed Response.
func (c *cliClient) run(ctx context.Context, args []string) (string, *Response) {
	start := time.Now()

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, c.command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	latency := time.Since(start).Milliseconds()

	if err != nil {
		msg := fmt.Sprintf("command failed: %v", err)
		if timeoutCtx.Err() == context.DeadlineExceeded {
			msg = fmt.Sprintf("timed out after %s", c.timeout)
		}
		if errOut := strings.TrimSpace(stderr.String()); errOut != "" {
			msg = fmt.Sprintf("%s; stderr: %s", msg, errOut)
		}
		return "", &Response{
			ModelName: c.name,
			Success:   false,
			Error:     msg,
			LatencyMs: latency,
		}
	}

	return strings.TrimSpace(stdout.String()), &Response{
		ModelName: c.name,
		Success:   true,
		LatencyMs: latency,
	}
}
