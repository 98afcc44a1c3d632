package orchestrator

import (
	"encoding/json"
	"time"

	"interviewforge/internal/budget"
	"interviewforge/internal/merge"
	"interviewforge/internal/prompt"
)

// Outcome of one chunk call as recorded in diagnostics.
const (
	OutcomeMerged    = "merged"
	OutcomeFailed    = "failed"
	OutcomeDiscarded = "discarded"
	OutcomeCached    = "cached"
	OutcomeFallback  = "fallback"
	OutcomeDropped   = "dropped"
)

// Diagnostic is one structured record of what happened during a run.
type Diagnostic struct {
	Stage       prompt.Stage    `json:"stage"`
	Chunk       int             `json:"chunk"`
	Chunks      int             `json:"chunks"`
	Strategy    budget.Strategy `json:"strategy"`
	Items       []string        `json:"items,omitempty"`
	Dropped     []string        `json:"dropped,omitempty"`
	RequestSize int             `json:"request_size,omitempty"`
	Attempts    int             `json:"attempts,omitempty"`
	Simplified  bool            `json:"simplified,omitempty"`
	RepairSteps []string        `json:"repair_steps,omitempty"`
	Truncated   bool            `json:"truncated,omitempty"`
	Anomalies   []merge.Anomaly `json:"anomalies,omitempty"`
	Outcome     string          `json:"outcome"`
	Error       string          `json:"error,omitempty"`
	Elapsed     time.Duration   `json:"elapsed,omitempty"`
}

// Result is the caller-facing outcome of Generate. Partial results are
// normal: dropped, failed and uncovered items are listed explicitly.
type Result struct {
	RunID        string               `json:"run_id"`
	Strategy     budget.Strategy      `json:"strategy"`
	Merged       merge.Merged         `json:"merged"`
	UsedIDs      []string             `json:"used_ids"`
	DroppedIDs   []string             `json:"dropped_ids"`
	FailedChunks []int                `json:"failed_chunks"`
	Coverage     merge.CoverageReport `json:"coverage"`
	Diagnostics  []Diagnostic         `json:"diagnostics"`
	Cancelled    bool                 `json:"cancelled"`

	// CoverageGap is set when exhaustive coverage was requested and
	// required items remain uncovered.
	CoverageGap *merge.CoverageGapWarning `json:"-"`

	// Warnings holds every recoverable condition of the run:
	// *BudgetExceededWarning, *ChunkTransientError, *repair.ChunkParseError,
	// *merge.CoverageGapWarning and *OperationCancelled.
	Warnings []error `json:"-"`
}

func newResult(runID string) *Result {
	return &Result{
		RunID:        runID,
		UsedIDs:      []string{},
		DroppedIDs:   []string{},
		FailedChunks: []int{},
		Diagnostics:  []Diagnostic{},
	}
}

// MarshalJSON adds the warning messages and the coverage gap ids.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	msgs := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		msgs = append(msgs, w.Error())
	}
	var gap []string
	if r.CoverageGap != nil {
		gap = r.CoverageGap.IDs
	}
	return json.Marshal(struct {
		plain
		Warnings    []string `json:"warnings"`
		CoverageGap []string `json:"coverage_gap,omitempty"`
	}{plain(r), msgs, gap})
}

func (r *Result) warn(err error) {
	if err != nil {
		r.Warnings = append(r.Warnings, err)
	}
}

func (r *Result) drop(ids []string) {
	r.DroppedIDs = append(r.DroppedIDs, ids...)
}
