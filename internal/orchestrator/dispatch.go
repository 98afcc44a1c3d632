package orchestrator

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"interviewforge/internal/catalog"
	"interviewforge/internal/prompt"
)

// task is one planned chunk call.
type task struct {
	env    prompt.Envelope
	items  []catalog.Item
	decode decoder
}

type done struct {
	task task
	att  attempt
}

// fanOut runs independent tasks concurrently, at most cfg.Concurrency at
// a time. Finished calls are handed to handle from a single collector
// goroutine, so handle may write run state without locking. A fatal
// error stops the remaining tasks and is returned.
func (e *Engine) fanOut(ctx context.Context, r *run, tasks []task, handle func(done)) error {
	if len(tasks) == 0 {
		return nil
	}
	cctx := e.reserve(ctx, r, len(tasks))

	results := make(chan done)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for d := range results {
			handle(d)
		}
	}()

	g, gctx := errgroup.WithContext(cctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, t := range tasks {
		g.Go(func() error {
			att := e.call(gctx, r, t.env, t.decode)
			results <- done{task: t, att: att}
			if isFatal(att.err) {
				return att.err
			}
			return nil
		})
	}
	err := g.Wait()
	close(results)
	<-collected
	return err
}

// reserve takes rate permits for n calls up front when a broker is
// configured. Without a lease, calls acquire permits one by one.
func (e *Engine) reserve(ctx context.Context, r *run, n int) context.Context {
	if e.broker == nil || n <= 0 {
		return ctx
	}
	lease, err := e.broker.Reserve(ctx, n)
	if err != nil {
		e.log.Warn("permit reservation failed", zap.String("run", r.id), zap.Int("calls", n), zap.Error(err))
		return ctx
	}
	return lease.Context(ctx)
}

// settle turns a finished call into a diagnostic and reports whether
// its value may be merged. Results that arrive after the caller
// cancelled are discarded.
func (e *Engine) settle(ctx context.Context, r *run, d done) (Diagnostic, bool) {
	diag := Diagnostic{
		Stage:       d.task.env.Stage,
		Chunk:       d.task.env.ChunkIndex,
		Chunks:      d.task.env.ChunkCount,
		Strategy:    r.strategy,
		Items:       catalog.IDs(d.task.items),
		RequestSize: d.task.env.Size(),
		Attempts:    d.att.attempts,
		Simplified:  d.att.simplified,
		RepairSteps: d.att.out.Steps,
		Truncated:   d.att.out.Truncated,
		Elapsed:     d.att.elapsed,
	}
	switch err := d.att.err; {
	case err == nil && cancelled(ctx):
		diag.Outcome = OutcomeDiscarded
		return diag, false
	case err == nil:
		diag.Outcome = OutcomeMerged
		return diag, true
	case isCancelled(err):
		diag.Outcome = OutcomeDiscarded
		diag.Error = err.Error()
		return diag, false
	default:
		diag.Outcome = OutcomeFailed
		diag.Error = err.Error()
		if !isFatal(err) {
			r.res.warn(err)
		}
		return diag, false
	}
}

// emit records d in the result, the log and the observer.
func (e *Engine) emit(r *run, d Diagnostic) {
	r.res.Diagnostics = append(r.res.Diagnostics, d)
	fields := []zap.Field{
		zap.String("run", r.id),
		zap.String("stage", string(d.Stage)),
		zap.Int("chunk", d.Chunk),
		zap.Int("chunks", d.Chunks),
		zap.String("outcome", d.Outcome),
		zap.Int("attempts", d.Attempts),
	}
	if len(d.RepairSteps) > 0 {
		fields = append(fields, zap.Strings("repair", d.RepairSteps))
	}
	if len(d.Dropped) > 0 {
		fields = append(fields, zap.Strings("dropped", d.Dropped))
	}
	if n := len(d.Anomalies); n > 0 {
		fields = append(fields, zap.Int("anomalies", n))
	}
	switch d.Outcome {
	case OutcomeFailed, OutcomeDropped:
		e.log.Warn("chunk "+d.Outcome, append(fields, zap.String("error", d.Error))...)
	default:
		e.log.Debug("chunk "+d.Outcome, fields...)
	}
	if e.observer != nil {
		e.observer.Observe(r.id, d)
	}
}

// dropped reports items that could not be placed in any call.
func (e *Engine) dropped(r *run, stage prompt.Stage, ids []string, room int) {
	if len(ids) == 0 {
		return
	}
	r.res.drop(ids)
	r.res.warn(&BudgetExceededWarning{IDs: ids, Room: room})
	e.emit(r, Diagnostic{Stage: stage, Strategy: r.strategy, Dropped: ids, Outcome: OutcomeDropped})
}
