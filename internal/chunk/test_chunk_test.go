package chunk

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interviewforge/internal/catalog"
)

func flatten(chunks []Chunk) []catalog.Item {
	var out []catalog.Item
	for _, c := range chunks {
		out = append(out, c.Items...)
	}
	return out
}

func questions(n, size int) []catalog.Item {
	out := make([]catalog.Item, n)
	for i := range out {
		out[i] = catalog.Item{ID: fmt.Sprintf("q%d", i+1), Category: catalog.CategoryItemList, Size: size}
	}
	return out
}

func TestSplit_75By30(t *testing.T) {
	in := questions(75, 2)
	chunks, err := Split(in, 30)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	var sizes []int
	for i, c := range chunks {
		assert.Equal(t, i+1, c.Index)
		sizes = append(sizes, len(c.Items))
	}
	assert.Equal(t, []int{30, 30, 15}, sizes)
	assert.Equal(t, 30, chunks[2].TotalSize)
	assert.Equal(t, catalog.IDs(in), catalog.IDs(flatten(chunks)))
}

func TestSplit_CountIsCeil(t *testing.T) {
	for n := 0; n <= 40; n++ {
		for k := 1; k <= 12; k++ {
			chunks, err := Split(questions(n, 1), k)
			require.NoError(t, err)
			require.Len(t, chunks, (n+k-1)/k, "n=%d k=%d", n, k)
			require.Len(t, flatten(chunks), n)
		}
	}
}

func TestSplit_BadSize(t *testing.T) {
	_, err := Split(questions(3, 1), 0)
	assert.True(t, errors.Is(err, ErrBatchSize))
	_, err = Pack(questions(3, 1), -1, 10)
	assert.True(t, errors.Is(err, ErrBatchSize))
}

func TestPack_SizeAndCountBounds(t *testing.T) {
	in := []catalog.Item{
		{ID: "a", Size: 4}, {ID: "b", Size: 4}, {ID: "c", Size: 4},
		{ID: "big", Size: 50},
		{ID: "d", Size: 1}, {ID: "e", Size: 1}, {ID: "f", Size: 1},
	}
	p, err := Pack(in, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"big"}, catalog.IDs(p.Rejected))

	var got [][]string
	for _, c := range p.Chunks {
		got = append(got, c.IDs())
		assert.LessOrEqual(t, c.TotalSize, 10)
		assert.LessOrEqual(t, len(c.Items), 2)
	}
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e", "f"}}, got)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, catalog.IDs(flatten(p.Chunks)))
}
