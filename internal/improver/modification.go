package improver

import (
	"encoding/json"
	"strings"
)

// Action is the kind of edit a modification proposes.
type Action string

const (
	ActionModify Action = "modify"
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
)

const (
	// priorityHighest and priorityLowest bound the 1-10 priority scale.
	priorityHighest = 1
	priorityLowest  = 10

	// priorityDefault is assumed when a model omits the field.
	priorityDefault = 5
)

// Modification is one proposed prompt edit extracted from a model's
// deliberation response.
type Modification struct {
	Section     string `json:"section"`
	Action      Action `json:"action"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Reasoning   string `json:"reasoning"`
	Priority    int    `json:"priority"`
	SourceModel string `json:"source_model,omitempty"`
}

// ParseModifications extracts the {"modifications": [...]} block from a
// model response, tolerant of markdown code fences and surrounding prose.
// Malformed or missing JSON yields nil, never an error: a model that
// produced garbage simply contributes no votes.
func ParseModifications(response, sourceModel string) []Modification {
	raw := extractJSONBlock(response)
	if raw == "" {
		return nil
	}

	var doc struct {
		Modifications []Modification `json:"modifications"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil
	}

	var out []Modification
	for _, m := range doc.Modifications {
		if m.Section == "" {
			continue
		}
		switch m.Action {
		case ActionModify, ActionAdd, ActionRemove:
		default:
			continue
		}
		if m.Priority == 0 {
			m.Priority = priorityDefault
		}
		if m.Priority < priorityHighest {
			m.Priority = priorityHighest
		}
		if m.Priority > priorityLowest {
			m.Priority = priorityLowest
		}
		m.SourceModel = sourceModel
		out = append(out, m)
	}
	return out
}

// extractJSONBlock finds the JSON object in a response: a fenced block
// when present, otherwise the outermost brace-delimited span.
func extractJSONBlock(s string) string {
	for _, fence := range []string{"```json", "```"} {
		start := strings.Index(s, fence)
		if start < 0 {
			continue
		}
		rest := s[start+len(fence):]
		end := strings.Index(rest, "```")
		if end < 0 {
			continue
		}
		block := strings.TrimSpace(rest[:end])
		if strings.HasPrefix(block, "{") {
			return block
		}
	}

	open := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if open < 0 || last <= open {
		return ""
	}
	return s[open : last+1]
}
