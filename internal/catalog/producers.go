package catalog

import (
	"fmt"
	"strings"
)

// Default priority tiers per category. Producers use these unless the
// caller overrides them on the returned items.
const (
	TierCore       = 0
	TierProfile    = 1
	TierQuestions  = 1
	TierInterview  = 2
	TierFiles      = 3
	TierBackground = 4
)

type Project struct {
	ID           string
	Name         string
	Summary      string
	Goals        []string
	Instructions string
}

type Stakeholder struct {
	ID      string
	Name    string
	Role    string
	Profile string
}

type Answer struct {
	QuestionID string
	Question   string
	Answer     string
}

type Interview struct {
	StakeholderID string
	Answers       []Answer
}

type FileExtract struct {
	ID   string
	Name string
	Text string
}

type Question struct {
	ID    string
	Topic string
	Text  string
}

// FromProject yields the project summary, instructions and metadata.
func FromProject(p Project) []Item {
	var out []Item
	if s := strings.TrimSpace(p.Summary); s != "" {
		text := s
		if len(p.Goals) > 0 {
			text += "\nGoals:\n- " + strings.Join(p.Goals, "\n- ")
		}
		out = append(out, Item{ID: "project:" + p.ID + ":summary", Category: CategorySummary, Tier: TierCore, Text: text})
	}
	if s := strings.TrimSpace(p.Instructions); s != "" {
		out = append(out, Item{ID: "project:" + p.ID + ":instructions", Category: CategoryInstructions, Tier: TierCore, Text: s})
	}
	if s := strings.TrimSpace(p.Name); s != "" {
		out = append(out, Item{ID: "project:" + p.ID + ":meta", Category: CategoryMetadata, Tier: TierBackground, Text: "Project name: " + s})
	}
	return finish(out)
}

// FromStakeholders yields one profile item per stakeholder.
func FromStakeholders(list []Stakeholder) []Item {
	out := make([]Item, 0, len(list))
	for _, s := range list {
		var b strings.Builder
		b.WriteString(strings.TrimSpace(s.Name))
		if r := strings.TrimSpace(s.Role); r != "" {
			b.WriteString(" (" + r + ")")
		}
		if p := strings.TrimSpace(s.Profile); p != "" {
			b.WriteString(": " + p)
		}
		out = append(out, Item{ID: s.ID, Category: CategoryProfile, Tier: TierProfile, Text: b.String()})
	}
	return finish(out)
}

// FromInterviews yields one qa-pair item per non-empty answer.
func FromInterviews(list []Interview) []Item {
	var out []Item
	for _, iv := range list {
		for _, a := range iv.Answers {
			ans := strings.TrimSpace(a.Answer)
			if ans == "" {
				continue
			}
			out = append(out, Item{
				ID:       fmt.Sprintf("qa:%s:%s", iv.StakeholderID, a.QuestionID),
				Category: CategoryQAPair,
				Tier:     TierInterview,
				Text:     "Q: " + strings.TrimSpace(a.Question) + "\nA: " + ans,
			})
		}
	}
	return finish(out)
}

// FromFiles yields file-excerpt items. Extracts larger than maxSize units
// are cut into consecutive excerpts named <id>#<n>.
func FromFiles(list []FileExtract, maxSize int) []Item {
	var out []Item
	for _, f := range list {
		text := strings.TrimSpace(f.Text)
		if text == "" {
			continue
		}
		parts := []string{text}
		if maxSize > 0 && EstimateSize(text) > maxSize {
			parts = splitText(text, maxSize)
		}
		for i, part := range parts {
			id := f.ID
			if len(parts) > 1 {
				id = fmt.Sprintf("%s#%d", f.ID, i+1)
			}
			out = append(out, Item{ID: id, Category: CategoryFileExcerpt, Tier: TierFiles, Text: "[" + f.Name + "] " + part})
		}
	}
	return finish(out)
}

// FromQuestions yields the question catalog as item-list entries.
func FromQuestions(list []Question) []Item {
	out := make([]Item, 0, len(list))
	for _, q := range list {
		text := strings.TrimSpace(q.Text)
		if t := strings.TrimSpace(q.Topic); t != "" {
			text = "[" + t + "] " + text
		}
		out = append(out, Item{ID: q.ID, Category: CategoryItemList, Tier: TierQuestions, Text: text})
	}
	return finish(out)
}

func finish(items []Item) []Item {
	for i := range items {
		if items[i].Size <= 0 {
			items[i].Size = EstimateSize(items[i].Text)
		}
	}
	return items
}

func splitText(text string, maxSize int) []string {
	var parts []string
	rest := text
	for rest != "" {
		head := Clip(rest, maxSize)
		if head == "" {
			// a single unbroken run longer than maxSize
			head = rest
		}
		parts = append(parts, head)
		rest = strings.TrimSpace(rest[len(head):])
	}
	return parts
}
