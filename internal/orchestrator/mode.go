package orchestrator

import (
	"fmt"
	"strings"

	"interviewforge/internal/catalog"
	"interviewforge/internal/merge"
	"interviewforge/internal/prompt"
)

// Mode selects what a run produces.
//
// Assignment runs map work items to Entities; every other item is shared
// background. Text runs turn the whole catalog into prose.
type Mode struct {
	Kind     merge.Kind      `json:"kind" yaml:"kind"`
	Task     string          `json:"task" yaml:"task"`
	Entities []prompt.Entity `json:"entities,omitempty" yaml:"entities,omitempty"`

	// WorkCategories picks the items to assign. Defaults to item-list.
	WorkCategories []catalog.Category `json:"work_categories,omitempty" yaml:"work_categories,omitempty"`

	// SummaryWords bounds the per-chunk summary asked from text runs.
	SummaryWords int `json:"summary_words,omitempty" yaml:"summary_words,omitempty"`
}

func (m Mode) Validate() error {
	switch m.Kind {
	case merge.KindAssignment:
		if len(m.Entities) == 0 {
			return ErrNoEntities
		}
		for _, e := range m.Entities {
			if strings.TrimSpace(e.Key) == "" {
				return fmt.Errorf("%w: empty entity key", ErrNoEntities)
			}
		}
	case merge.KindText:
	default:
		return fmt.Errorf("%w: %q", ErrMode, m.Kind)
	}
	return nil
}

func (m Mode) workCategories() []catalog.Category {
	if len(m.WorkCategories) == 0 {
		return []catalog.Category{catalog.CategoryItemList}
	}
	return m.WorkCategories
}

func (m Mode) entityKeys() []string {
	out := make([]string, 0, len(m.Entities))
	for _, e := range m.Entities {
		out = append(out, strings.TrimSpace(e.Key))
	}
	return out
}

func (m Mode) summaryWords(capUnits int) int {
	if m.SummaryWords > 0 {
		return m.SummaryWords
	}
	if capUnits > 0 {
		return max(capUnits*3/4, 20)
	}
	return 80
}
