package prompt

import (
	"bytes"
	"fmt"
	"strings"

	"interviewforge/internal/catalog"
)

// Stage names the kind of call an envelope belongs to.
type Stage string

const (
	StageAssign Stage = "assign"
	StageWrite  Stage = "write"
	StageDigest Stage = "digest"
	StageRefine Stage = "refine"
)

// Envelope is everything the completion service receives for one call.
// ChunkIndex is 1-based; ChunkCount is the number of calls in the pass.
type Envelope struct {
	Stage          Stage
	Instructions   string
	Content        string
	ExpectedShape  string
	ChunkIndex     int
	ChunkCount     int
	CarriedSummary string

	// Simplify asks for a shorter structured answer. Set on the single
	// retry after an unparseable response.
	Simplify bool
}

// Partial reports whether the envelope shows only part of the workload.
func (e Envelope) Partial() bool { return e.ChunkCount > 1 }

// Body renders every section except the instructions, for clients that
// send instructions separately as a system message.
func (e Envelope) Body() string {
	var buf bytes.Buffer
	if e.Partial() {
		writeSection(&buf, "POSITION", fmt.Sprintf(
			"This is part %d of %d. You only see this part of the material; answer for it alone.",
			e.ChunkIndex, e.ChunkCount))
	}
	writeSection(&buf, "PREVIOUS_PARTS_SUMMARY", e.CarriedSummary)
	writeSection(&buf, "CONTENT", e.Content)
	writeSection(&buf, "OUTPUT_FORMAT", e.ExpectedShape)
	writeSection(&buf, "CONSTRAINTS", formatList(e.constraints()))
	return strings.TrimSpace(buf.String()) + "\n"
}

// Render is the full single-message prompt.
func (e Envelope) Render() string {
	var buf bytes.Buffer
	writeSection(&buf, "INSTRUCTIONS", e.Instructions)
	buf.WriteString(e.Body())
	return buf.String()
}

// Size estimates the capacity units the rendered envelope consumes.
func (e Envelope) Size() int { return catalog.EstimateSize(e.Render()) }

func (e Envelope) constraints() []string {
	out := []string{
		"Reply with a single JSON value and nothing else.",
		"Do not wrap the JSON in markdown fences.",
	}
	if e.Simplify {
		out = append(out,
			"Your previous reply could not be parsed. Keep this reply short and strictly valid.",
			"Leave rationale and summary fields empty or under ten words.",
		)
	}
	return out
}

// RenderItems lists items one per line as "[id] (category) text".
func RenderItems(items []catalog.Item) string {
	var buf strings.Builder
	for _, it := range items {
		text := strings.Join(strings.Fields(it.Text), " ")
		fmt.Fprintf(&buf, "[%s] (%s) %s\n", it.ID, it.Category, text)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func formatList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	var buf strings.Builder
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		fmt.Fprintf(&buf, "- %s\n", item)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func writeSection(buf *bytes.Buffer, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	buf.WriteString("[")
	buf.WriteString(title)
	buf.WriteString("]\n")
	buf.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
}
