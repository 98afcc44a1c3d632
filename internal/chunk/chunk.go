package chunk

import (
	"errors"
	"fmt"

	"interviewforge/internal/catalog"
)

// Chunk is an ordered, non-empty batch of items sized for one call.
// Index is 1-based.
type Chunk struct {
	Index     int
	Items     []catalog.Item
	TotalSize int
}

func (c Chunk) IDs() []string { return catalog.IDs(c.Items) }

var ErrBatchSize = errors.New("chunk: batch size must be positive")

// Split cuts items into batches of size by position only. N items yield
// ceil(N/size) chunks and concatenating them in index order gives the
// input back.
func Split(items []catalog.Item, size int) ([]Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrBatchSize, size)
	}
	out := make([]Chunk, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, newChunk(len(out)+1, items[start:end]))
	}
	return out, nil
}

// Packing is the outcome of Pack.
type Packing struct {
	Chunks   []Chunk
	Rejected []catalog.Item
}

// Pack is Split with an additional size bound: a chunk is closed early
// when the next item would push it past room. Items larger than room on
// their own cannot be placed and are returned in Rejected.
func Pack(items []catalog.Item, size, room int) (Packing, error) {
	if size <= 0 {
		return Packing{}, fmt.Errorf("%w: got %d", ErrBatchSize, size)
	}
	var (
		p      Packing
		cur    []catalog.Item
		curLen int
	)
	flush := func() {
		if len(cur) == 0 {
			return
		}
		p.Chunks = append(p.Chunks, newChunk(len(p.Chunks)+1, cur))
		cur, curLen = nil, 0
	}
	for _, it := range items {
		if it.Size > room {
			p.Rejected = append(p.Rejected, it)
			continue
		}
		if len(cur) == size || curLen+it.Size > room {
			flush()
		}
		cur = append(cur, it)
		curLen += it.Size
	}
	flush()
	return p, nil
}

func newChunk(index int, items []catalog.Item) Chunk {
	c := Chunk{Index: index, Items: append([]catalog.Item(nil), items...)}
	c.TotalSize = catalog.TotalSize(c.Items)
	return c
}
