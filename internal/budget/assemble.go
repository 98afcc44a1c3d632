package budget

import "interviewforge/internal/catalog"

// Assembly is the outcome of fitting items into one call.
type Assembly struct {
	Included []catalog.Item
	Dropped  []catalog.Item
	Size     int
}

func (a Assembly) IncludedIDs() []string { return catalog.IDs(a.Included) }
func (a Assembly) DroppedIDs() []string  { return catalog.IDs(a.Dropped) }

// Assemble takes the longest prefix of items whose sizes sum to at most
// room. Items must already be in priority-then-insertion order. The first
// item that does not fit ends the prefix; it and everything after it are
// dropped.
func Assemble(items []catalog.Item, room int) Assembly {
	var a Assembly
	cut := len(items)
	for i, it := range items {
		if a.Size+it.Size > room {
			cut = i
			break
		}
		a.Size += it.Size
	}
	a.Included = append([]catalog.Item(nil), items[:cut]...)
	if cut < len(items) {
		a.Dropped = append([]catalog.Item(nil), items[cut:]...)
	}
	return a
}
