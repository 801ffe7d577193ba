package llm

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate(t *testing.T) {
	c, err := Create(KindExec, "codex", map[string]any{
		"command": "codex",
		"timeout": 60,
	})
	require.NoError(t, err)
	assert.Equal(t, "codex", c.Name())

	c, err = Create(KindPromptFlag, "claude", map[string]any{
		"command": "claude",
	})
	require.NoError(t, err)
	assert.Equal(t, "claude", c.Name())
}

func TestCreate_Errors(t *testing.T) {
	_, err := Create(KindExec, "codex", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command")

	_, err = Create(Kind("grpc"), "x", map[string]any{"command": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown llm client kind")
}

func TestExtractExecText(t *testing.T) {
	cases := []struct {
		name string
		out  string
		want string
	}{
		{
			name: "result field",
			out:  `{"result": "{\"predicted\": [1,2,3]}"}`,
			want: `{"predicted": [1,2,3]}`,
		},
		{
			name: "items content text",
			out:  `{"items": [{"content": [{"text": "first"}, {"text": "second"}]}]}`,
			want: "first\nsecond",
		},
		{
			name: "result wins over items",
			out:  `{"result": "answer", "items": [{"content": [{"text": "ignored"}]}]}`,
			want: "answer",
		},
		{
			name: "not json falls back to raw",
			out:  "plain text answer",
			want: "plain text answer",
		},
		{
			name: "json without known fields falls back to raw",
			out:  `{"status": "done"}`,
			want: `{"status": "done"}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractExecText(tc.out))
		})
	}
}

func TestCLIClient_MissingBinaryIsFailedResponse(t *testing.T) {
	c, err := Create(KindPromptFlag, "ghost", map[string]any{
		"command": "kraeval-no-such-binary",
		"timeout": 5,
	})
	require.NoError(t, err)

	resp := c.Predict(context.Background(), "hello")
	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	assert.Equal(t, "ghost", resp.ModelName)
	assert.NotEmpty(t, resp.Error)
}

func TestPromptFlagClient_ParsesResultField(t *testing.T) {
	// A stub tool that ignores its arguments and prints a fixed JSON
	// document, standing in for the real CLI.
	script := filepath.Join(t.TempDir(), "fake-llm")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho '{\"result\": \"the answer\"}'\n"), 0o755))

	c := &promptFlagClient{cliClient: cliClient{
		name:    "echoer",
		command: script,
		timeout: 10 * time.Second,
	}}

	resp := c.Predict(context.Background(), "prompt")
	require.True(t, resp.Success, "error: %s", resp.Error)
	assert.Equal(t, "the answer", resp.Text)
	assert.GreaterOrEqual(t, resp.LatencyMs, int64(0))
}

func TestMockClient(t *testing.T) {
	m := &MockClient{
		ModelName: "mock",
		Script: []*Response{
			{Success: true, Text: "first"},
			{Success: false, Error: "boom"},
		},
	}

	r1 := m.Predict(context.Background(), "p1")
	assert.True(t, r1.Success)
	assert.Equal(t, "first", r1.Text)
	assert.Equal(t, "mock", r1.ModelName)

	r2 := m.Predict(context.Background(), "p2")
	assert.False(t, r2.Success)

	// Exhausted script repeats its last entry.
	r3 := m.Predict(context.Background(), "p3")
	assert.False(t, r3.Success)

	assert.Equal(t, []string{"p1", "p2", "p3"}, m.Prompts())
}

func TestMockClient_DelayHonorsContext(t *testing.T) {
	m := &MockClient{ModelName: "slow", Delay: time.Minute}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	resp := m.Predict(ctx, "p")
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}
