package prompt

import (
	"fmt"
	"strings"

	"interviewforge/internal/catalog"
)

// Entity is a key items can be assigned to, e.g. a stakeholder id.
type Entity struct {
	Key   string `json:"key" yaml:"key"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Expected output shapes. Responses are validated against these after
// repair.
const (
	ShapeAssignment = `{"assignments":[{"id":"<item id from CONTENT>","entities":["<entity key>"],"rationale":"<one sentence>"}]}
Every item id in CONTENT must appear exactly once. Use only entity keys listed under ENTITIES.`

	ShapeText = `{"text":"<the generated section>","summary":"<at most %d words on what this part covered>"}`

	ShapeDigest = `{"digests":[{"id":"<item id>","digest":"<at most %d words>"}]}
Return one digest per item id in CONTENT.`

	ShapeRefine = `{"text":"<the refined document>"}`
)

// Assignment builds the envelope of one assignment chunk. ctx is shared
// background rendered ahead of the work items.
func Assignment(task string, entities []Entity, ctx, work []catalog.Item, index, count int) Envelope {
	var content strings.Builder
	content.WriteString("ENTITIES:\n")
	for _, e := range entities {
		if e.Label != "" {
			fmt.Fprintf(&content, "- %s: %s\n", e.Key, e.Label)
		} else {
			fmt.Fprintf(&content, "- %s\n", e.Key)
		}
	}
	if len(ctx) > 0 {
		content.WriteString("\nBACKGROUND:\n")
		content.WriteString(RenderItems(ctx))
		content.WriteString("\n")
	}
	content.WriteString("\nITEMS TO ASSIGN:\n")
	content.WriteString(RenderItems(work))
	return Envelope{
		Stage:         StageAssign,
		Instructions:  strings.TrimSpace(task) + "\nAssign every listed item to the entities it concerns.",
		Content:       content.String(),
		ExpectedShape: ShapeAssignment,
		ChunkIndex:    index,
		ChunkCount:    count,
	}
}

// Writing builds the envelope of one text-generation chunk.
func Writing(task string, items []catalog.Item, carried string, summaryWords, index, count int) Envelope {
	return Envelope{
		Stage:          StageWrite,
		Instructions:   strings.TrimSpace(task),
		Content:        RenderItems(items),
		ExpectedShape:  fmt.Sprintf(ShapeText, summaryWords),
		ChunkIndex:     index,
		ChunkCount:     count,
		CarriedSummary: carried,
	}
}

// Digest builds a pass-one condensation envelope.
func Digest(items []catalog.Item, words, index, count int) Envelope {
	return Envelope{
		Stage:         StageDigest,
		Instructions:  "Condense each item into a short factual digest. Keep names, numbers and decisions.",
		Content:       RenderItems(items),
		ExpectedShape: fmt.Sprintf(ShapeDigest, words),
		ChunkIndex:    index,
		ChunkCount:    count,
	}
}

// Refine builds the optional final envelope that revisits a draft with
// the original text of the most important items.
func Refine(task, draft string, originals []catalog.Item) Envelope {
	var content strings.Builder
	content.WriteString("DRAFT:\n")
	content.WriteString(strings.TrimSpace(draft))
	content.WriteString("\n\nSOURCE MATERIAL:\n")
	content.WriteString(RenderItems(originals))
	return Envelope{
		Stage:         StageRefine,
		Instructions:  strings.TrimSpace(task) + "\nImprove the draft using the source material. Do not drop content from the draft.",
		Content:       content.String(),
		ExpectedShape: ShapeRefine,
		ChunkIndex:    1,
		ChunkCount:    1,
	}
}
