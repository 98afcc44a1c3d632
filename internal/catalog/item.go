package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Category classifies where a content item came from.
type Category string

const (
	CategorySummary      Category = "summary"
	CategoryInstructions Category = "instructions"
	CategoryQAPair       Category = "qa-pair"
	CategoryProfile      Category = "profile"
	CategoryFileExcerpt  Category = "file-excerpt"
	CategoryItemList     Category = "item-list"
	CategoryMetadata     Category = "metadata"
)

var categories = map[Category]struct{}{
	CategorySummary:      {},
	CategoryInstructions: {},
	CategoryQAPair:       {},
	CategoryProfile:      {},
	CategoryFileExcerpt:  {},
	CategoryItemList:     {},
	CategoryMetadata:     {},
}

func (c Category) Valid() bool {
	_, ok := categories[c]
	return ok
}

// Item is one unit of content offered to the completion service.
// Items are immutable once a Catalog owns them.
type Item struct {
	ID       string   `json:"id" yaml:"id"`
	Category Category `json:"category" yaml:"category"`
	Tier     int      `json:"priority_tier" yaml:"priority_tier"`
	Text     string   `json:"text" yaml:"text"`
	Size     int      `json:"size_estimate" yaml:"size_estimate"`

	// Seq is the insertion position inside the owning catalog.
	Seq int `json:"-" yaml:"-"`
}

var (
	ErrEmptyID     = errors.New("catalog: item id is required")
	ErrDuplicateID = errors.New("catalog: duplicate item id")
	ErrCategory    = errors.New("catalog: unknown category")
)

// Catalog holds the items of one generation request in
// priority-then-insertion order.
type Catalog struct {
	items []Item
	byID  map[string]int
	total int
}

// New validates items and builds a catalog. Missing size estimates are
// filled with EstimateSize.
func New(items []Item) (*Catalog, error) {
	c := &Catalog{
		items: make([]Item, 0, len(items)),
		byID:  make(map[string]int, len(items)),
	}
	for i, it := range items {
		it.ID = strings.TrimSpace(it.ID)
		if it.ID == "" {
			return nil, fmt.Errorf("item %d: %w", i, ErrEmptyID)
		}
		if _, dup := c.byID[it.ID]; dup {
			return nil, fmt.Errorf("item %q: %w", it.ID, ErrDuplicateID)
		}
		if !it.Category.Valid() {
			return nil, fmt.Errorf("item %q category %q: %w", it.ID, it.Category, ErrCategory)
		}
		if it.Tier < 0 {
			it.Tier = 0
		}
		if it.Size <= 0 {
			it.Size = EstimateSize(it.Text)
		}
		it.Seq = i
		c.byID[it.ID] = i
		c.items = append(c.items, it)
		c.total += it.Size
	}
	sort.SliceStable(c.items, func(i, j int) bool {
		return c.items[i].Tier < c.items[j].Tier
	})
	for i, it := range c.items {
		c.byID[it.ID] = i
	}
	return c, nil
}

func (c *Catalog) Len() int { return len(c.items) }

// TotalSize is the sum of all size estimates.
func (c *Catalog) TotalSize() int { return c.total }

// Ordered returns a copy of the items in priority-then-insertion order.
func (c *Catalog) Ordered() []Item {
	return append([]Item(nil), c.items...)
}

func (c *Catalog) Get(id string) (Item, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Item{}, false
	}
	return c.items[i], true
}

func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// IDs returns every item id in catalog order.
func (c *Catalog) IDs() []string {
	return IDs(c.items)
}

// Select returns the ordered items whose category is one of cats.
// The second slice holds the rest, also in order.
func (c *Catalog) Select(cats ...Category) (matched, rest []Item) {
	want := make(map[Category]struct{}, len(cats))
	for _, cat := range cats {
		want[cat] = struct{}{}
	}
	for _, it := range c.items {
		if _, ok := want[it.Category]; ok {
			matched = append(matched, it)
		} else {
			rest = append(rest, it)
		}
	}
	return matched, rest
}

// IDs lists the ids of items, preserving order.
func IDs(items []Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

// TotalSize sums the size estimates of items.
func TotalSize(items []Item) int {
	n := 0
	for _, it := range items {
		n += it.Size
	}
	return n
}
