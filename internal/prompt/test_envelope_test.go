package prompt

import (
	"strings"
	"testing"

	"interviewforge/internal/catalog"
)

func TestEnvelope_RenderSections(t *testing.T) {
	items := []catalog.Item{
		{ID: "q1", Category: catalog.CategoryItemList, Text: "Who signs off\n on budget?"},
		{ID: "q2", Category: catalog.CategoryItemList, Text: "What is slow?"},
	}
	env := Assignment("Route interview questions.", []Entity{{Key: "s1", Label: "CFO"}, {Key: "s2"}}, nil, items, 2, 3)
	out := env.Render()

	for _, sec := range []string{"[INSTRUCTIONS]", "[POSITION]", "[CONTENT]", "[OUTPUT_FORMAT]", "[CONSTRAINTS]"} {
		if !strings.Contains(out, sec) {
			t.Fatalf("expected section %s in prompt:\n%s", sec, out)
		}
	}
	if !strings.Contains(out, "part 2 of 3") {
		t.Fatalf("expected chunk position in prompt")
	}
	if !strings.Contains(out, "[q1] (item-list) Who signs off on budget?") {
		t.Fatalf("expected flattened item line, got:\n%s", out)
	}
	if !strings.Contains(out, "- s1: CFO") || !strings.Contains(out, "- s2\n") {
		t.Fatalf("expected entity list")
	}
	if strings.Contains(out, "[PREVIOUS_PARTS_SUMMARY]") {
		t.Fatalf("empty carried summary must not render")
	}
	if strings.Contains(env.Body(), "[INSTRUCTIONS]") {
		t.Fatalf("body must not repeat instructions")
	}
}

func TestEnvelope_SinglePartOmitsPosition(t *testing.T) {
	env := Writing("Write the report.", nil, "", 40, 1, 1)
	if strings.Contains(env.Render(), "[POSITION]") {
		t.Fatalf("single-part envelope should not carry a position section")
	}
}

func TestEnvelope_SimplifyAndCarry(t *testing.T) {
	env := Writing("Write the report.", nil, "Part one covered onboarding.", 40, 2, 2)
	env.Simplify = true
	out := env.Render()
	if !strings.Contains(out, "[PREVIOUS_PARTS_SUMMARY]\nPart one covered onboarding.") {
		t.Fatalf("expected carried summary section, got:\n%s", out)
	}
	if !strings.Contains(out, "could not be parsed") {
		t.Fatalf("expected simplify constraint")
	}
	if env.Size() <= 0 {
		t.Fatalf("expected positive size estimate")
	}
}

func TestRefine_IncludesDraftAndSources(t *testing.T) {
	env := Refine("Write the report.", "draft body", []catalog.Item{{ID: "s", Category: catalog.CategorySummary, Text: "Project summary"}})
	if env.Stage != StageRefine || env.ChunkCount != 1 {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if !strings.Contains(env.Content, "DRAFT:\ndraft body") || !strings.Contains(env.Content, "[s] (summary) Project summary") {
		t.Fatalf("unexpected content:\n%s", env.Content)
	}
}
