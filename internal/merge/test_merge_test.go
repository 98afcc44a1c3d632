package merge

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return out
}

func TestAccumulator_MergeIsIdempotent(t *testing.T) {
	acc := NewAccumulator(KindAssignment, ids("q", 4), []string{"alice", "bob"})
	r := ChunkResult{
		Index: 1,
		Kind:  KindAssignment,
		Assignments: []Assignment{
			{Entity: "alice", ItemIDs: []string{"q1", "q2"}, Rationale: "owns budget"},
			{Entity: "bob", ItemIDs: []string{"q3"}},
		},
	}
	require.True(t, acc.Add(r))
	first := acc.Result()
	assert.False(t, acc.Add(r))
	assert.Equal(t, first, acc.Result())
}

func TestAccumulator_UnionAndRationale(t *testing.T) {
	acc := NewAccumulator(KindAssignment, ids("q", 6), nil)
	acc.Add(ChunkResult{Index: 2, Kind: KindAssignment, Assignments: []Assignment{
		{Entity: "alice", ItemIDs: []string{"q5", "q4"}, Rationale: "finance lead"},
	}})
	acc.Add(ChunkResult{Index: 1, Kind: KindAssignment, Assignments: []Assignment{
		{Entity: "alice", ItemIDs: []string{"q1", "q4"}, Rationale: "sponsor"},
		{Entity: "alice", ItemIDs: []string{"q2"}, Rationale: "sponsor"},
	}})

	got := acc.Result()
	require.Len(t, got.Assignments, 1)
	assert.Equal(t, []string{"q1", "q2", "q4", "q5"}, got.Assignments[0].ItemIDs)
	assert.Equal(t, "sponsor | finance lead", got.Assignments[0].Rationale)
	assert.Equal(t, []int{1, 2}, got.Chunks)
}

func TestAccumulator_RejectsForeignAndOutOfScope(t *testing.T) {
	acc := NewAccumulator(KindAssignment, ids("q", 3), []string{"alice"})
	acc.Add(ChunkResult{
		Index: 1,
		Kind:  KindAssignment,
		Scope: []string{"q1", "q2"},
		Assignments: []Assignment{
			{Entity: "alice", ItemIDs: []string{"q1", "q99", "q3"}},
			{Entity: "mallory", ItemIDs: []string{"q2"}},
		},
	})

	got := acc.Result()
	require.Len(t, got.Assignments, 1)
	assert.Equal(t, []string{"q1"}, got.Assignments[0].ItemIDs)
	assert.Equal(t, []Anomaly{
		{Chunk: 1, Kind: AnomalyForeignID, Value: "q99"},
		{Chunk: 1, Kind: AnomalyOutOfScope, Value: "q3"},
		{Chunk: 1, Kind: AnomalyUnknownEntity, Value: "mallory"},
	}, acc.Anomalies())
	assert.Equal(t, []string{"q1"}, acc.Covered())
}

func TestAccumulator_TextGaps(t *testing.T) {
	acc := NewAccumulator(KindText, ids("i", 3), nil)
	acc.Add(ChunkResult{Index: 3, Kind: KindText, Text: "third", Scope: []string{"i3"}})
	acc.MarkFailed(2)
	acc.Add(ChunkResult{Index: 1, Kind: KindText, Text: "first\n", Scope: []string{"i1"}})
	// a late result for a failed chunk is ignored
	assert.False(t, acc.Add(ChunkResult{Index: 2, Kind: KindText, Text: "late", Scope: []string{"i2"}}))

	got := acc.Result()
	assert.Equal(t, "first\n\n"+fmt.Sprintf(GapMarker, 2)+"\n\nthird", got.Text)
	assert.Equal(t, []int{2}, got.Gaps)
	assert.Equal(t, []int{2}, acc.Failed())
	assert.Equal(t, []string{"i1", "i3"}, acc.Covered())
	assert.Equal(t, []string{"i1", "i3"}, acc.Used())
}

func TestAccumulator_KindMismatch(t *testing.T) {
	acc := NewAccumulator(KindAssignment, ids("q", 1), nil)
	assert.False(t, acc.Add(ChunkResult{Index: 1, Kind: KindText, Text: "x"}))
	assert.Len(t, acc.AnomaliesFor(1), 1)
	assert.Empty(t, acc.MergedChunks())
}

func TestVerify(t *testing.T) {
	r := Verify([]string{"q3", "q1", "q2"}, []string{"q1", "zz"})
	assert.Equal(t, []string{"q1"}, r.Covered)
	assert.Equal(t, []string{"q3", "q2"}, r.Uncovered)
	assert.False(t, r.Complete())

	gap := r.Gap()
	require.NotNil(t, gap)
	assert.Equal(t, []string{"q2", "q3"}, gap.IDs)
	assert.Contains(t, gap.Error(), "2 item(s) uncovered: q2, q3")

	assert.Nil(t, Verify([]string{"a"}, []string{"a"}).Gap())
}
