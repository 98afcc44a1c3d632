package orchestrator

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"interviewforge/internal/budget"
	"interviewforge/internal/catalog"
	"interviewforge/internal/chunk"
	"interviewforge/internal/merge"
	"interviewforge/internal/prompt"
)

// write produces prose from the whole catalog with the strategy its
// total size calls for.
func (e *Engine) write(ctx context.Context, r *run) error {
	items := r.cat.Ordered()
	r.required = r.cat.IDs()
	r.strategy = budget.SelectStrategy(r.cat.TotalSize(), r.cfg)
	r.acc = merge.NewAccumulator(merge.KindText, r.cat.IDs(), nil)
	b := r.cfg.Budget()

	switch r.strategy {
	case budget.SinglePass:
		asm := budget.Assemble(items, b.SinglePassRoom())
		e.dropped(r, prompt.StageWrite, asm.DroppedIDs(), b.SinglePassRoom())
		return e.sequence(ctx, r, single(asm.Included))
	case budget.Sequential:
		room := b.PerCallRoom(r.cfg.CarriedSummaryCap)
		packing, err := chunk.Pack(items, r.cfg.ChunkBatchSize, room)
		if err != nil {
			return err
		}
		e.dropped(r, prompt.StageWrite, catalog.IDs(packing.Rejected), room)
		return e.sequence(ctx, r, packing.Chunks)
	default:
		return e.hierarchical(ctx, r, items)
	}
}

func single(items []catalog.Item) []chunk.Chunk {
	if len(items) == 0 {
		return nil
	}
	return []chunk.Chunk{{Index: 1, Items: items, TotalSize: catalog.TotalSize(items)}}
}

// sequence runs text chunks strictly in index order. Each request after
// the first carries a clipped summary of what earlier parts produced.
func (e *Engine) sequence(ctx context.Context, r *run, chunks []chunk.Chunk) error {
	ctx = e.reserve(ctx, r, len(chunks))
	words := r.mode.summaryWords(r.cfg.CarriedSummaryCap)
	carried := ""
	for _, c := range chunks {
		if cancelled(ctx) {
			return &OperationCancelled{Err: context.Cause(ctx)}
		}
		env := prompt.Writing(r.mode.Task, c.Items, carried, words, c.Index, len(chunks))
		att := e.call(ctx, r, env, decodeText)
		diag, ok := e.settle(ctx, r, done{task: task{env: env, items: c.Items}, att: att})
		switch {
		case ok:
			reply := att.value.(textReply)
			r.acc.Add(merge.ChunkResult{
				Index:   c.Index,
				Kind:    merge.KindText,
				Text:    reply.Text,
				Summary: reply.Summary,
				Scope:   c.IDs(),
			})
			if s := catalog.Clip(reply.Summary, r.cfg.CarriedSummaryCap); s != "" && r.strategy.CarriesSummary() {
				carried = s
			}
		case diag.Outcome == OutcomeFailed:
			r.acc.MarkFailed(c.Index)
		}
		e.emit(r, diag)
		if isFatal(att.err) {
			return att.err
		}
	}
	return nil
}

// hierarchical condenses every item into a digest (pass one, concurrent,
// cached), writes from the digests (pass two, sequential) and optionally
// refines the draft against the most important originals.
func (e *Engine) hierarchical(ctx context.Context, r *run, items []catalog.Item) error {
	b := r.cfg.Budget()
	digests := make(map[string]string, len(items))
	fallback := func(it catalog.Item) string { return catalog.Clip(it.Text, r.cfg.DigestSize) }

	var pending, cached []catalog.Item
	for _, it := range items {
		if e.digests != nil {
			if d, ok := e.digests.Get(it.ID, it.Text, r.cfg.DigestSize); ok {
				digests[it.ID] = d
				cached = append(cached, it)
				continue
			}
		}
		pending = append(pending, it)
	}
	if len(cached) > 0 {
		e.emit(r, Diagnostic{Stage: prompt.StageDigest, Strategy: r.strategy, Items: catalog.IDs(cached), Outcome: OutcomeCached})
	}

	room := b.PerCallRoom(0)
	packing, err := chunk.Pack(pending, r.cfg.ChunkBatchSize, room)
	if err != nil {
		return err
	}
	// too large for a digest call; clipped instead of dropped
	if len(packing.Rejected) > 0 {
		for _, it := range packing.Rejected {
			digests[it.ID] = fallback(it)
		}
		e.emit(r, Diagnostic{Stage: prompt.StageDigest, Strategy: r.strategy, Items: catalog.IDs(packing.Rejected), Outcome: OutcomeFallback})
	}

	tasks := make([]task, 0, len(packing.Chunks))
	for _, c := range packing.Chunks {
		env := prompt.Digest(c.Items, r.cfg.DigestSize, c.Index, len(packing.Chunks))
		tasks = append(tasks, task{env: env, items: c.Items, decode: decodeDigests})
	}
	err = e.fanOut(ctx, r, tasks, func(d done) {
		diag, ok := e.settle(ctx, r, d)
		scope := make(map[string]catalog.Item, len(d.task.items))
		for _, it := range d.task.items {
			scope[it.ID] = it
		}
		if ok {
			for _, de := range d.att.value.([]digestEntry) {
				id := strings.TrimSpace(de.ID)
				it, in := scope[id]
				if !in {
					kind := merge.AnomalyForeignID
					if r.cat.Has(id) {
						kind = merge.AnomalyOutOfScope
					}
					diag.Anomalies = append(diag.Anomalies, merge.Anomaly{Chunk: diag.Chunk, Kind: kind, Value: id})
					continue
				}
				if text := strings.TrimSpace(de.Digest); text != "" {
					digests[id] = text
					if e.digests != nil {
						e.digests.Put(it.ID, it.Text, r.cfg.DigestSize, text)
					}
				}
			}
		} else if diag.Outcome == OutcomeFailed {
			diag.Outcome = OutcomeFallback
		}
		// items the reply skipped, or a failed chunk, fall back to clipped text
		for _, it := range d.task.items {
			if _, have := digests[it.ID]; !have {
				digests[it.ID] = fallback(it)
			}
		}
		e.emit(r, diag)
	})
	if e.digests != nil {
		if ferr := e.digests.Flush(); ferr != nil {
			e.log.Warn("digest cache flush failed", zap.String("run", r.id), zap.Error(ferr))
		}
	}
	if err != nil {
		return err
	}
	if cancelled(ctx) {
		return &OperationCancelled{Err: context.Cause(ctx)}
	}

	condensed := make([]catalog.Item, 0, len(items))
	for _, it := range items {
		d, ok := digests[it.ID]
		if !ok {
			d = fallback(it)
		}
		it.Text = d
		it.Size = catalog.EstimateSize(d)
		condensed = append(condensed, it)
	}

	var chunks []chunk.Chunk
	if catalog.TotalSize(condensed) <= b.SinglePassRoom() {
		chunks = single(condensed)
	} else {
		room := b.PerCallRoom(r.cfg.CarriedSummaryCap)
		packing, err := chunk.Pack(condensed, r.cfg.ChunkBatchSize, room)
		if err != nil {
			return err
		}
		e.dropped(r, prompt.StageWrite, catalog.IDs(packing.Rejected), room)
		chunks = packing.Chunks
	}
	if err := e.sequence(ctx, r, chunks); err != nil {
		return err
	}
	if r.cfg.Refine {
		return e.refine(ctx, r, items)
	}
	return nil
}

// refine revisits the pass-two draft with as many top-priority originals
// as fit next to it in one call. A failed refinement keeps the draft.
func (e *Engine) refine(ctx context.Context, r *run, items []catalog.Item) error {
	draft := r.acc.Result().Text
	if strings.TrimSpace(draft) == "" || cancelled(ctx) {
		return nil
	}
	room := r.cfg.Budget().PerCallRoom(0) - catalog.EstimateSize(draft)
	if room <= 0 {
		e.emit(r, Diagnostic{Stage: prompt.StageRefine, Strategy: r.strategy, Outcome: OutcomeDropped, Error: "draft leaves no room for source material"})
		return nil
	}
	originals := budget.Assemble(items, room).Included
	env := prompt.Refine(r.mode.Task, draft, originals)
	att := e.call(ctx, r, env, decodeRefined)
	diag, ok := e.settle(ctx, r, done{task: task{env: env, items: originals}, att: att})
	if ok {
		r.refined = att.value.(string)
	}
	e.emit(r, diag)
	if isFatal(att.err) {
		return att.err
	}
	return nil
}
