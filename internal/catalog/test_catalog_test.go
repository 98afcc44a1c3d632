package catalog

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_OrdersByTierThenInsertion(t *testing.T) {
	c, err := New([]Item{
		{ID: "c", Category: CategoryQAPair, Tier: 2, Text: "three"},
		{ID: "a", Category: CategorySummary, Tier: 0, Text: "one"},
		{ID: "d", Category: CategoryQAPair, Tier: 2, Text: "four"},
		{ID: "b", Category: CategoryProfile, Tier: 1, Text: "two"},
		{ID: "e", Category: CategoryMetadata, Tier: -3, Text: "zero"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "e", "b", "c", "d"}, c.IDs())
	assert.Equal(t, 5, c.Len())

	e, ok := c.Get("e")
	require.True(t, ok)
	assert.Equal(t, 0, e.Tier)
	assert.Equal(t, 4, e.Seq)
}

func TestNew_FillsSizeEstimate(t *testing.T) {
	c, err := New([]Item{
		{ID: "x", Category: CategoryQAPair, Text: "alpha beta gamma"},
		{ID: "y", Category: CategoryQAPair, Text: "ignored", Size: 40},
	})
	require.NoError(t, err)
	x, _ := c.Get("x")
	assert.Equal(t, 4, x.Size)
	assert.Equal(t, 44, c.TotalSize())
}

func TestNew_Rejects(t *testing.T) {
	_, err := New([]Item{{ID: " ", Category: CategoryQAPair}})
	assert.True(t, errors.Is(err, ErrEmptyID))

	_, err = New([]Item{
		{ID: "a", Category: CategoryQAPair},
		{ID: "a", Category: CategoryProfile},
	})
	assert.True(t, errors.Is(err, ErrDuplicateID))

	_, err = New([]Item{{ID: "a", Category: "bogus"}})
	assert.True(t, errors.Is(err, ErrCategory))
}

func TestSelect_SplitsByCategory(t *testing.T) {
	c, err := New([]Item{
		{ID: "q1", Category: CategoryItemList, Tier: 1, Text: "question"},
		{ID: "s", Category: CategorySummary, Text: "summary"},
		{ID: "q2", Category: CategoryItemList, Tier: 1, Text: "question"},
	})
	require.NoError(t, err)
	work, rest := c.Select(CategoryItemList)
	assert.Equal(t, []string{"q1", "q2"}, IDs(work))
	assert.Equal(t, []string{"s"}, IDs(rest))
}

func TestEstimateSize(t *testing.T) {
	assert.Equal(t, 0, EstimateSize("   "))
	assert.Equal(t, 2, EstimateSize("hi there"))
	// one unbroken run: rune heuristic wins
	assert.Equal(t, 5, EstimateSize(strings.Repeat("x", 20)))
}

func TestClip_WordAligned(t *testing.T) {
	text := "one two three four five six"
	got := Clip(text, 4)
	assert.Equal(t, "one two three", got)
	assert.LessOrEqual(t, EstimateSize(got), 4)
	assert.Equal(t, text, Clip(text, 100))
	assert.Equal(t, "", Clip(text, 0))
}

func TestProducers(t *testing.T) {
	items := FromProject(Project{ID: "p1", Name: "Atlas", Summary: "Rebuild intake", Goals: []string{"faster"}, Instructions: "Be concise"})
	require.Len(t, items, 3)
	assert.Equal(t, CategorySummary, items[0].Category)
	assert.Contains(t, items[0].Text, "- faster")
	assert.Equal(t, TierBackground, items[2].Tier)

	qa := FromInterviews([]Interview{{
		StakeholderID: "s1",
		Answers: []Answer{
			{QuestionID: "q1", Question: "What hurts?", Answer: "Paper forms"},
			{QuestionID: "q2", Question: "Skipped", Answer: "  "},
		},
	}})
	require.Len(t, qa, 1)
	assert.Equal(t, "qa:s1:q1", qa[0].ID)
	assert.Greater(t, qa[0].Size, 0)

	files := FromFiles([]FileExtract{{ID: "f1", Name: "notes.md", Text: strings.Repeat("word ", 20)}}, 10)
	require.Len(t, files, 3)
	assert.Equal(t, "f1#1", files[0].ID)
	assert.Equal(t, "f1#3", files[2].ID)

	qs := FromQuestions([]Question{{ID: "q9", Topic: "ops", Text: "Who approves?"}})
	assert.Equal(t, "[ops] Who approves?", qs[0].Text)

	profiles := FromStakeholders([]Stakeholder{{ID: "s1", Name: "Ana", Role: "CFO", Profile: "Owns budget"}})
	assert.Equal(t, "Ana (CFO): Owns budget", profiles[0].Text)

	all := append(append(append(items, qa...), files...), qs...)
	all = append(all, profiles...)
	_, err := New(all)
	require.NoError(t, err)
}
