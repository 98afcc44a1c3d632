package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	llmclient "interviewforge/internal/llm/client"
	"interviewforge/internal/prompt"
	"interviewforge/internal/repair"
)

const maxBackoff = 30 * time.Second

// decoder parses and validates one raw reply.
type decoder func(raw string) (any, repair.Outcome, error)

// attempt is everything one chunk's calls produced.
type attempt struct {
	value      any
	out        repair.Outcome
	attempts   int
	simplified bool
	err        error
	elapsed    time.Duration
}

// call sends env until it yields a valid reply or the chunk has to give
// up. Transient errors are retried with exponential backoff inside the
// run deadline; an unparseable reply earns one retry asking for a
// simpler answer; fatal errors return at once.
func (e *Engine) call(ctx context.Context, r *run, env prompt.Envelope, decode decoder) (att attempt) {
	var (
		transient int
		start     = time.Now()
	)
	defer func() { att.elapsed = time.Since(start) }()

	for {
		if ctx.Err() != nil {
			att.err = stopError(ctx, env.ChunkIndex, att.attempts)
			return att
		}
		att.attempts++

		// An in-flight call outlives cancellation; its result is
		// discarded at merge time instead.
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.CallTimeout)
		raw, err := e.client.Send(cctx, env)
		timedOut := cctx.Err() == context.DeadlineExceeded
		cancel()

		if err == nil {
			value, out, perr := decode(raw)
			att.out = out
			if perr == nil {
				att.value, att.err = value, nil
				return att
			}
			att.err = perr
			if env.Simplify {
				return att
			}
			e.log.Debug("unparseable reply, retrying simplified",
				zap.String("run", r.id),
				zap.String("stage", string(env.Stage)),
				zap.Int("chunk", env.ChunkIndex),
				zap.Error(perr))
			env.Simplify = true
			att.simplified = true
			continue
		}

		switch {
		case llmclient.IsFatal(err):
			att.err = &ServiceFatalError{Chunk: env.ChunkIndex, Err: err}
			return att
		case llmclient.IsTransient(err):
		case timedOut:
			err = llmclient.NewTransient(llmclient.Timeout, err)
		default:
			err = llmclient.NewTransient(llmclient.ServiceUnavailable, err)
		}

		if transient >= r.cfg.RetryCount {
			att.err = &ChunkTransientError{Chunk: env.ChunkIndex, Attempts: att.attempts, Err: err}
			return att
		}
		delay := backoff(r.cfg.RetryBaseDelay, transient)
		transient++
		if dl, ok := ctx.Deadline(); ok && time.Now().Add(delay).After(dl) {
			att.err = &ChunkTransientError{
				Chunk:    env.ChunkIndex,
				Attempts: att.attempts,
				Err:      fmt.Errorf("no retry budget left before deadline: %w", err),
			}
			return att
		}
		e.log.Debug("transient failure, backing off",
			zap.String("run", r.id),
			zap.String("stage", string(env.Stage)),
			zap.Int("chunk", env.ChunkIndex),
			zap.Int("attempt", att.attempts),
			zap.Duration("delay", delay),
			zap.Error(err))
		sleep(ctx, delay)
	}
}

// backoff is base * 2^n, capped.
func backoff(base time.Duration, n int) time.Duration {
	d := base
	for i := 0; i < n && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// stopError explains why a chunk could not (re)start: the run deadline
// passed, or the caller cancelled.
func stopError(ctx context.Context, chunk, attempts int) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, errRunDeadline) {
		return &ChunkTransientError{Chunk: chunk, Attempts: attempts, Err: cause}
	}
	return &OperationCancelled{Err: cause}
}
