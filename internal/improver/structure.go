package improver

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// PromptStructure is an ordered mapping of section tag to section body,
// round-trippable with the `##`-sectioned markdown prompt files the
// models are driven by.
type PromptStructure struct {
	Version string

	order   []string
	content map[string]string
}

// NewPromptStructure returns an empty structure for the given version.
func NewPromptStructure(version string) *PromptStructure {
	return &PromptStructure{
		Version: version,
		content: map[string]string{},
	}
}

// ParsePromptStructure splits a markdown prompt into its level-2
// sections. Text before the first heading is ignored. Duplicate tags
// keep the last body but the first position.
func ParsePromptStructure(version string, source []byte) *PromptStructure {
	ps := NewPromptStructure(version)

	md := goldmark.New()
	reader := text.NewReader(source)
	doc := md.Parser().Parse(reader)

	// Byte offsets of each level-2 heading line, paired with its tag.
	type headingPos struct {
		tag       string
		lineStart int
		lineEnd   int
	}
	var headings []headingPos

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok || h.Level != 2 || h.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}

		seg := h.Lines().At(0)
		lineStart := seg.Start
		for lineStart > 0 && source[lineStart-1] != '\n' {
			lineStart--
		}
		lineEnd := seg.Stop
		for lineEnd < len(source) && source[lineEnd] != '\n' {
			lineEnd++
		}
		if lineEnd < len(source) {
			lineEnd++ // past the newline
		}

		tag := strings.TrimSpace(string(source[seg.Start:seg.Stop]))
		headings = append(headings, headingPos{tag: tag, lineStart: lineStart, lineEnd: lineEnd})
		return ast.WalkSkipChildren, nil
	})

	for i, h := range headings {
		end := len(source)
		if i+1 < len(headings) {
			end = headings[i+1].lineStart
		}
		body := strings.TrimSpace(string(source[h.lineEnd:end]))
		ps.SetSection(h.tag, body)
	}
	return ps
}

// Sections returns the section tags in order. The slice is a copy.
func (ps *PromptStructure) Sections() []string {
	out := make([]string, len(ps.order))
	copy(out, ps.order)
	return out
}

// Content returns a section's body and whether the section exists.
func (ps *PromptStructure) Content(tag string) (string, bool) {
	body, ok := ps.content[tag]
	return body, ok
}

// SetSection replaces a section's body, appending the section when new.
func (ps *PromptStructure) SetSection(tag, body string) {
	if _, ok := ps.content[tag]; !ok {
		ps.order = append(ps.order, tag)
	}
	ps.content[tag] = body
}

// RemoveSection deletes a section. Removing an absent tag is a no-op.
func (ps *PromptStructure) RemoveSection(tag string) {
	if _, ok := ps.content[tag]; !ok {
		return
	}
	delete(ps.content, tag)
	for i, t := range ps.order {
		if t == tag {
			ps.order = append(ps.order[:i], ps.order[i+1:]...)
			break
		}
	}
}

// Clone returns a deep copy.
func (ps *PromptStructure) Clone() *PromptStructure {
	out := NewPromptStructure(ps.Version)
	for _, tag := range ps.order {
		out.SetSection(tag, ps.content[tag])
	}
	return out
}

// Render serializes the structure back to sectioned markdown.
func (ps *PromptStructure) Render() []byte {
	var buf bytes.Buffer
	for _, tag := range ps.order {
		fmt.Fprintf(&buf, "## %s\n\n", tag)
		if body := ps.content[tag]; body != "" {
			buf.WriteString(body)
			buf.WriteString("\n\n")
		}
	}
	return buf.Bytes()
}

// preview returns the first n runes of a section body, for embedding in
// analysis prompts without blowing up their size.
func preview(body string, n int) string {
	runes := []rune(body)
	if len(runes) <= n {
		return body
	}
	return string(runes[:n]) + "…"
}
