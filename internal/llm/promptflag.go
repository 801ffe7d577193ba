package llm

import (
	"context"
	"encoding/json"
)

// promptFlagClient drives tools invoked as `<tool> -p <prompt>`. Output
// is either a JSON document with a `result` field or plain text.
type promptFlagClient struct {
	cliClient
}

func (c *promptFlagClient) Predict(ctx context.Context, prompt string) *Response {
	args := append([]string{"-p", prompt}, c.args...)

	out, resp := c.run(ctx, args)
	if !resp.Success {
		return resp
	}

	var doc struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err == nil && doc.Result != "" {
		resp.Text = doc.Result
	} else {
		resp.Text = out
	}
	return resp
}
