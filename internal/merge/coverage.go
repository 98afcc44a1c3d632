package merge

import (
	"fmt"
	"sort"
	"strings"
)

// CoverageReport compares the ids a run had to account for with the ids
// the merged output covers.
type CoverageReport struct {
	Required  []string `json:"required"`
	Covered   []string `json:"covered"`
	Uncovered []string `json:"uncovered"`
}

func (r CoverageReport) Complete() bool { return len(r.Uncovered) == 0 }

// Verify checks required against covered. Both output lists keep the
// order of required.
func Verify(required, covered []string) CoverageReport {
	have := make(map[string]struct{}, len(covered))
	for _, id := range covered {
		have[id] = struct{}{}
	}
	r := CoverageReport{
		Required:  append([]string{}, required...),
		Covered:   []string{},
		Uncovered: []string{},
	}
	for _, id := range required {
		if _, ok := have[id]; ok {
			r.Covered = append(r.Covered, id)
		} else {
			r.Uncovered = append(r.Uncovered, id)
		}
	}
	return r
}

// CoverageGapWarning names the required items the merged output misses.
// It is attached to a result, never returned as a failure.
type CoverageGapWarning struct {
	IDs []string
}

func (w *CoverageGapWarning) Error() string {
	return fmt.Sprintf("coverage gap: %d item(s) uncovered: %s", len(w.IDs), strings.Join(w.IDs, ", "))
}

// Gap returns a warning listing the uncovered ids sorted, or nil when r
// is complete.
func (r CoverageReport) Gap() *CoverageGapWarning {
	if r.Complete() {
		return nil
	}
	ids := append([]string(nil), r.Uncovered...)
	sort.Strings(ids)
	return &CoverageGapWarning{IDs: ids}
}
