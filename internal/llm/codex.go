package llm

import (
	"context"
	"encoding/json"
)

// codexClient drives tools with the `exec` subcommand shape. The tool
// emits a JSON document whose answer lives either in a top-level `result`
// string or under `items[].content[].text`.
type codexClient struct {
	cliClient
}

func (c *codexClient) Predict(ctx context.Context, prompt string) *Response {
	args := append([]string{"exec", prompt, "--full-auto", "--json", "--skip-git-repo-check"}, c.args...)

	out, resp := c.run(ctx, args)
	if !resp.Success {
		return resp
	}

	resp.Text = extractExecText(out)
	return resp
}

// extractExecText pulls the answer out of the tool's JSON output, falling
// back to the raw stdout when the shape is unrecognized. Unparseable
// output is not an error here: the caller still gets text to work with,
// and downstream JSON extraction decides whether it is usable.
func extractExecText(out string) string {
	var doc struct {
		Result string `json:"result"`
		Items  []struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"items"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		return out
	}

	if doc.Result != "" {
		return doc.Result
	}

	var text string
	for _, item := range doc.Items {
		for _, content := range item.Content {
			if content.Text == "" {
				continue
			}
			if text != "" {
				text += "\n"
			}
			text += content.Text
		}
	}
	if text != "" {
		return text
	}
	return out
}
