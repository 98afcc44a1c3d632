package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"interviewforge/internal/budget"
	"interviewforge/internal/catalog"
	"interviewforge/internal/llm"
	llmclient "interviewforge/internal/llm/client"
	"interviewforge/internal/merge"
)

// DigestCache stores pass-one digests of hierarchical runs, keyed by
// item and digest word limit. Flush is called once per digest pass.
type DigestCache interface {
	Get(id, text string, words int) (string, bool)
	Put(id, text string, words int, digest string)
	Flush() error
}

// Observer receives every diagnostic of a run as it is recorded. Calls
// for one run never overlap.
type Observer interface {
	Observe(runID string, d Diagnostic)
}

type ObserverFunc func(runID string, d Diagnostic)

func (f ObserverFunc) Observe(runID string, d Diagnostic) { f(runID, d) }

// Engine runs bounded, chunked generation over a content catalog. It
// holds no per-run state and may serve concurrent Generate calls.
type Engine struct {
	client   llmclient.Client
	log      *zap.Logger
	digests  DigestCache
	broker   llm.PermitBroker
	observer Observer
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func WithDigestCache(c DigestCache) Option { return func(e *Engine) { e.digests = c } }

// WithBroker reserves rate permits for all calls of a pass before the
// pass starts.
func WithBroker(b llm.PermitBroker) Option { return func(e *Engine) { e.broker = b } }

func WithObserver(o Observer) Option { return func(e *Engine) { e.observer = o } }

func New(client llmclient.Client, opts ...Option) *Engine {
	e := &Engine{client: client, log: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	e.log = e.log.Named("orchestrator")
	return e
}

var errRunDeadline = errors.New("run deadline exceeded")

// run is the state of one Generate call. Only the goroutine that owns
// the accumulator touches acc and res.
type run struct {
	id       string
	cfg      budget.Config
	mode     Mode
	cat      *catalog.Catalog
	strategy budget.Strategy
	acc      *merge.Accumulator
	res      *Result

	required []string // ids the coverage check expects
	shared   []string // background ids rendered into every chunk
	refined  string
}

// Generate assembles items under cfg and produces the output mode asks
// for. Chunk failures, dropped items and coverage gaps are reported in
// the result. Only a fatal service error (or invalid input) returns a
// nil result; cancellation returns what was merged so far.
func (e *Engine) Generate(ctx context.Context, items []catalog.Item, cfg budget.Config, mode Mode) (*Result, error) {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	cat, err := catalog.New(items)
	if err != nil {
		return nil, fmt.Errorf("build catalog: %w", err)
	}

	runID := llm.RunFrom(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = llm.WithRun(ctx, runID)
	}
	r := &run{id: runID, cfg: cfg, mode: mode, cat: cat, res: newResult(runID)}
	e.log.Info("generate started",
		zap.String("run", runID),
		zap.String("mode", string(mode.Kind)),
		zap.Int("items", cat.Len()),
		zap.Int("total", cat.TotalSize()))

	start := time.Now()
	rctx, cancel := context.WithDeadlineCause(ctx, start.Add(cfg.Deadline), errRunDeadline)
	defer cancel()

	switch mode.Kind {
	case merge.KindAssignment:
		err = e.assign(rctx, r)
	default:
		err = e.write(rctx, r)
	}
	if err != nil && !isCancelled(err) {
		e.log.Error("generate aborted", zap.String("run", runID), zap.Error(err))
		return nil, err
	}

	e.finish(ctx, r)
	e.log.Info("generate finished",
		zap.String("run", runID),
		zap.String("strategy", string(r.strategy)),
		zap.Ints("failed_chunks", r.res.FailedChunks),
		zap.Int("dropped", len(r.res.DroppedIDs)),
		zap.Int("uncovered", len(r.res.Coverage.Uncovered)),
		zap.Bool("cancelled", r.res.Cancelled),
		zap.Duration("elapsed", time.Since(start)))
	return r.res, nil
}

func (e *Engine) finish(ctx context.Context, r *run) {
	res := r.res
	res.Strategy = r.strategy
	if r.acc == nil {
		r.acc = merge.NewAccumulator(r.mode.Kind, r.cat.IDs(), nil)
	}
	res.Merged = r.acc.Result()
	if r.refined != "" {
		res.Merged.Text = r.refined
	}
	res.FailedChunks = r.acc.Failed()

	used := map[string]struct{}{}
	for _, id := range r.acc.Used() {
		used[id] = struct{}{}
	}
	if len(res.Merged.Chunks) > 0 {
		for _, id := range r.shared {
			used[id] = struct{}{}
		}
	}
	for _, id := range r.cat.IDs() {
		if _, ok := used[id]; ok {
			res.UsedIDs = append(res.UsedIDs, id)
		}
	}

	res.Coverage = merge.Verify(r.required, r.acc.Covered())
	if gap := res.Coverage.Gap(); gap != nil && r.cfg.RequireExhaustiveCoverage {
		res.CoverageGap = gap
		res.warn(gap)
	}
	if err := ctx.Err(); err != nil {
		res.Cancelled = true
		res.warn(&OperationCancelled{Err: context.Cause(ctx)})
	}
}

// cancelled reports whether the caller gave up on the run. The run's own
// deadline is not a cancellation: finished calls are still merged.
func cancelled(ctx context.Context) bool {
	return ctx.Err() != nil && !errors.Is(context.Cause(ctx), errRunDeadline)
}
