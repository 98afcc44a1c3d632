package orchestrator

import (
	"context"

	"interviewforge/internal/budget"
	"interviewforge/internal/catalog"
	"interviewforge/internal/chunk"
	"interviewforge/internal/merge"
	"interviewforge/internal/prompt"
)

// assign maps every work item to entities. Work items are partitioned
// into independent chunks that each carry the same background prefix,
// so chunks run concurrently.
func (e *Engine) assign(ctx context.Context, r *run) error {
	work, background := r.cat.Select(r.mode.workCategories()...)
	r.required = catalog.IDs(work)
	r.acc = merge.NewAccumulator(merge.KindAssignment, r.cat.IDs(), r.mode.entityKeys())

	// background may take at most half of a call
	room := r.cfg.Budget().PerCallRoom(0)
	shared := budget.Assemble(background, room/2)
	r.shared = shared.IncludedIDs()

	workRoom := room - shared.Size
	packing, err := chunk.Pack(work, r.cfg.ChunkBatchSize, workRoom)
	if err != nil {
		return err
	}
	// chunks never depend on each other, whatever the catalog size
	r.strategy = budget.SinglePass
	if len(packing.Chunks) > 1 {
		r.strategy = budget.Partitioned
	}
	e.dropped(r, prompt.StageAssign, shared.DroppedIDs(), room/2)
	e.dropped(r, prompt.StageAssign, catalog.IDs(packing.Rejected), workRoom)

	tasks := make([]task, 0, len(packing.Chunks))
	for _, c := range packing.Chunks {
		env := prompt.Assignment(r.mode.Task, r.mode.Entities, shared.Included, c.Items, c.Index, len(packing.Chunks))
		tasks = append(tasks, task{env: env, items: c.Items, decode: decodeAssignments})
	}

	return e.fanOut(ctx, r, tasks, func(d done) {
		diag, ok := e.settle(ctx, r, d)
		idx := d.task.env.ChunkIndex
		switch {
		case ok:
			r.acc.Add(merge.ChunkResult{
				Index:       idx,
				Kind:        merge.KindAssignment,
				Assignments: d.att.value.([]merge.Assignment),
				Scope:       catalog.IDs(d.task.items),
			})
			diag.Anomalies = r.acc.AnomaliesFor(idx)
		case diag.Outcome == OutcomeFailed:
			r.acc.MarkFailed(idx)
		}
		e.emit(r, diag)
	})
}
