package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"interviewforge/internal/prompt"
)

// OfflineClient answers every envelope deterministically from its own
// content without any network access. It backs local runs and demos.
type OfflineClient struct{}

func NewOfflineClient() *OfflineClient { return &OfflineClient{} }

func (OfflineClient) Name() string { return "offline" }
func (OfflineClient) Close() error { return nil }

var itemLine = regexp.MustCompile(`^\[([^\]]+)\] \(([^)]+)\) (.*)$`)

type offlineItem struct{ id, text string }

func (OfflineClient) Send(ctx context.Context, env prompt.Envelope) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var out any
	switch env.Stage {
	case prompt.StageAssign:
		out = offlineAssign(env.Content)
	case prompt.StageDigest:
		var ds []map[string]string
		for _, it := range offlineItems(env.Content, "") {
			ds = append(ds, map[string]string{"id": it.id, "digest": firstWords(it.text, 20)})
		}
		out = map[string]any{"digests": ds}
	case prompt.StageRefine:
		draft, _, _ := strings.Cut(strings.TrimPrefix(env.Content, "DRAFT:\n"), "\n\nSOURCE MATERIAL:")
		out = map[string]string{"text": draft}
	default:
		var lines []string
		for _, it := range offlineItems(env.Content, "") {
			lines = append(lines, firstWords(it.text, 30))
		}
		out = map[string]string{
			"text":    strings.Join(lines, "\n"),
			"summary": fmt.Sprintf("part %d covered %d items", env.ChunkIndex, len(lines)),
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func offlineAssign(content string) map[string]any {
	var keys []string
	inEntities := false
	for _, line := range strings.Split(content, "\n") {
		switch {
		case line == "ENTITIES:":
			inEntities = true
		case inEntities && strings.HasPrefix(line, "- "):
			key, _, _ := strings.Cut(strings.TrimPrefix(line, "- "), ":")
			keys = append(keys, strings.TrimSpace(key))
		default:
			inEntities = false
		}
	}
	var as []map[string]any
	for i, it := range offlineItems(content, "ITEMS TO ASSIGN:") {
		var ents []string
		lower := strings.ToLower(it.text)
		for _, k := range keys {
			if strings.Contains(lower, strings.ToLower(k)) {
				ents = append(ents, k)
			}
		}
		if len(ents) == 0 && len(keys) > 0 {
			ents = []string{keys[i%len(keys)]}
		}
		as = append(as, map[string]any{"id": it.id, "entities": ents, "rationale": "offline assignment"})
	}
	return map[string]any{"assignments": as}
}

// offlineItems parses rendered item lines, starting after marker when set.
func offlineItems(content, marker string) []offlineItem {
	if marker != "" {
		_, after, ok := strings.Cut(content, marker)
		if !ok {
			return nil
		}
		content = after
	}
	var out []offlineItem
	for _, line := range strings.Split(content, "\n") {
		if m := itemLine.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			out = append(out, offlineItem{id: m[1], text: m[3]})
		}
	}
	return out
}

func firstWords(s string, n int) string {
	f := strings.Fields(s)
	if len(f) > n {
		f = f[:n]
	}
	return strings.Join(f, " ")
}
