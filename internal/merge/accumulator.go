package merge

import (
	"fmt"
	"sort"
	"strings"
)

// Kind is the shape every chunk result of one run shares.
type Kind string

const (
	KindAssignment Kind = "assignment"
	KindText       Kind = "text"
)

// RationaleSep joins rationale fragments contributed by different chunks.
const RationaleSep = " | "

// GapMarker is rendered in place of a text segment whose chunk failed.
const GapMarker = "[part %d unavailable]"

// Assignment maps one entity to the items assigned to it.
type Assignment struct {
	Entity    string   `json:"entity"`
	ItemIDs   []string `json:"item_ids"`
	Rationale string   `json:"rationale,omitempty"`
}

// ChunkResult is the validated output of one chunk call. Exactly one of
// Assignments or Text is meaningful, depending on Kind.
type ChunkResult struct {
	Index       int
	Kind        Kind
	Assignments []Assignment
	Text        string
	Summary     string

	// Scope lists the item ids the chunk was shown. Assigned ids outside
	// it are rejected. Empty means any catalog id is accepted.
	Scope []string
}

// Anomaly records something a chunk returned that was not merged.
type Anomaly struct {
	Chunk int    `json:"chunk"`
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

const (
	AnomalyForeignID     = "foreign-id"
	AnomalyOutOfScope    = "out-of-scope"
	AnomalyUnknownEntity = "unknown-entity"
	AnomalyKindMismatch  = "kind-mismatch"
)

// Merged is the combined output of every successful chunk.
type Merged struct {
	Kind        Kind         `json:"kind"`
	Assignments []Assignment `json:"assignments,omitempty"`
	Text        string       `json:"text,omitempty"`
	Chunks      []int        `json:"chunks"`
	Gaps        []int        `json:"gaps,omitempty"`
}

type fragment struct {
	chunk int
	text  string
}

type entityState struct {
	ids       map[string]struct{}
	rationale []fragment
}

// Accumulator collects chunk results of one run. It is not safe for
// concurrent use; the orchestrator feeds it from a single goroutine.
type Accumulator struct {
	kind     Kind
	order    map[string]int // catalog position of every known item id
	entities map[string]struct{}

	merged    map[int]struct{}
	failed    map[int]struct{}
	assigned  map[string]*entityState
	segments  map[int]string
	scopes    map[int][]string
	anomalies []Anomaly
}

// NewAccumulator builds an accumulator for a run over the given catalog
// ids (in catalog order). entities restricts assignment keys; nil
// accepts any key.
func NewAccumulator(kind Kind, ids []string, entities []string) *Accumulator {
	a := &Accumulator{
		kind:     kind,
		order:    make(map[string]int, len(ids)),
		merged:   map[int]struct{}{},
		failed:   map[int]struct{}{},
		assigned: map[string]*entityState{},
		segments: map[int]string{},
		scopes:   map[int][]string{},
	}
	for i, id := range ids {
		a.order[id] = i
	}
	if len(entities) > 0 {
		a.entities = make(map[string]struct{}, len(entities))
		for _, e := range entities {
			a.entities[e] = struct{}{}
		}
	}
	return a
}

func (a *Accumulator) Kind() Kind { return a.kind }

// Add merges r and reports whether anything was merged. A chunk index
// that already resolved, merged or failed, is ignored.
func (a *Accumulator) Add(r ChunkResult) bool {
	if a.resolved(r.Index) {
		return false
	}
	if r.Kind != a.kind {
		a.note(r.Index, AnomalyKindMismatch, string(r.Kind))
		return false
	}
	var scope map[string]struct{}
	if len(r.Scope) > 0 {
		scope = make(map[string]struct{}, len(r.Scope))
		for _, id := range r.Scope {
			scope[id] = struct{}{}
		}
	}
	switch a.kind {
	case KindAssignment:
		for _, as := range r.Assignments {
			a.addAssignment(r.Index, as, scope)
		}
	case KindText:
		a.segments[r.Index] = strings.TrimSpace(r.Text)
	}
	a.merged[r.Index] = struct{}{}
	a.scopes[r.Index] = append([]string(nil), r.Scope...)
	return true
}

func (a *Accumulator) addAssignment(chunk int, as Assignment, scope map[string]struct{}) {
	key := strings.TrimSpace(as.Entity)
	if a.entities != nil {
		if _, ok := a.entities[key]; !ok {
			a.note(chunk, AnomalyUnknownEntity, key)
			return
		}
	}
	var accepted []string
	for _, id := range as.ItemIDs {
		id = strings.TrimSpace(id)
		if _, ok := a.order[id]; !ok {
			a.note(chunk, AnomalyForeignID, id)
			continue
		}
		if scope != nil {
			if _, ok := scope[id]; !ok {
				a.note(chunk, AnomalyOutOfScope, id)
				continue
			}
		}
		accepted = append(accepted, id)
	}
	if len(accepted) == 0 {
		return
	}
	st := a.assigned[key]
	if st == nil {
		st = &entityState{ids: map[string]struct{}{}}
		a.assigned[key] = st
	}
	for _, id := range accepted {
		st.ids[id] = struct{}{}
	}
	if r := strings.TrimSpace(as.Rationale); r != "" {
		st.rationale = append(st.rationale, fragment{chunk: chunk, text: r})
	}
}

// MarkFailed records that chunk index produced nothing usable.
func (a *Accumulator) MarkFailed(index int) {
	if a.resolved(index) {
		return
	}
	a.failed[index] = struct{}{}
}

func (a *Accumulator) resolved(index int) bool {
	if _, ok := a.merged[index]; ok {
		return true
	}
	_, ok := a.failed[index]
	return ok
}

// Failed returns the failed chunk indices in ascending order.
func (a *Accumulator) Failed() []int { return sortedKeys(a.failed) }

// MergedChunks returns the merged chunk indices in ascending order.
func (a *Accumulator) MergedChunks() []int { return sortedKeys(a.merged) }

// Anomalies returns everything rejected so far, ordered by chunk.
func (a *Accumulator) Anomalies() []Anomaly {
	out := append([]Anomaly(nil), a.anomalies...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Chunk < out[j].Chunk })
	return out
}

// AnomaliesFor returns the anomalies of one chunk.
func (a *Accumulator) AnomaliesFor(index int) []Anomaly {
	var out []Anomaly
	for _, an := range a.anomalies {
		if an.Chunk == index {
			out = append(out, an)
		}
	}
	return out
}

// Covered lists, in catalog order, the ids the merged output accounts
// for: assigned ids in assignment runs, ids of merged chunks in text runs.
func (a *Accumulator) Covered() []string {
	set := map[string]struct{}{}
	switch a.kind {
	case KindAssignment:
		for _, st := range a.assigned {
			for id := range st.ids {
				set[id] = struct{}{}
			}
		}
	case KindText:
		for idx := range a.merged {
			for _, id := range a.scopes[idx] {
				set[id] = struct{}{}
			}
		}
	}
	return a.inOrder(set)
}

// Used lists, in catalog order, the ids of every merged chunk's scope.
func (a *Accumulator) Used() []string {
	set := map[string]struct{}{}
	for idx := range a.merged {
		for _, id := range a.scopes[idx] {
			set[id] = struct{}{}
		}
	}
	return a.inOrder(set)
}

// Result renders the merged output. It is deterministic regardless of
// the order chunks arrived in.
func (a *Accumulator) Result() Merged {
	m := Merged{Kind: a.kind, Chunks: a.MergedChunks(), Gaps: a.Failed()}
	switch a.kind {
	case KindAssignment:
		keys := make([]string, 0, len(a.assigned))
		for k := range a.assigned {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			st := a.assigned[k]
			m.Assignments = append(m.Assignments, Assignment{
				Entity:    k,
				ItemIDs:   a.inOrder(st.ids),
				Rationale: joinRationale(st.rationale),
			})
		}
	case KindText:
		idx := append(a.MergedChunks(), a.Failed()...)
		sort.Ints(idx)
		parts := make([]string, 0, len(idx))
		for _, i := range idx {
			if _, failed := a.failed[i]; failed {
				parts = append(parts, fmt.Sprintf(GapMarker, i))
				continue
			}
			if s := a.segments[i]; s != "" {
				parts = append(parts, s)
			}
		}
		m.Text = strings.Join(parts, "\n\n")
	}
	return m
}

func (a *Accumulator) note(chunk int, kind, value string) {
	a.anomalies = append(a.anomalies, Anomaly{Chunk: chunk, Kind: kind, Value: value})
}

func (a *Accumulator) inOrder(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return a.order[out[i]] < a.order[out[j]] })
	return out
}

// joinRationale orders fragments by chunk and drops repeats.
func joinRationale(frags []fragment) string {
	sorted := append([]fragment(nil), frags...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].chunk < sorted[j].chunk })
	seen := map[string]struct{}{}
	var parts []string
	for _, f := range sorted {
		if _, dup := seen[f.text]; dup {
			continue
		}
		seen[f.text] = struct{}{}
		parts = append(parts, f.text)
	}
	return strings.Join(parts, RationaleSep)
}

func sortedKeys(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
