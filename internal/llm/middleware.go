package llm

import (
	"context"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	llmclient "interviewforge/internal/llm/client"
	"interviewforge/internal/prompt"
)

// Middleware decorates a Client to inject cross-cutting concerns
// (rate limiting, timeouts, logging, hooks, usage accounting).
type Middleware func(llmclient.Client) llmclient.Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner llmclient.Client, mws ...Middleware) llmclient.Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// -------- Rate Limiting --------

// RateLimit limits request rate using rpsLimiter.
// If rps <= 0, the limiter is effectively disabled.
func RateLimit(rps float64, burst int) Middleware {
	return func(next llmclient.Client) llmclient.Client {
		return &rateLimited{next: next, rl: newRPSLimiter(rps, burst)}
	}
}

// RateLimitWith shares an existing limiter, typically the one backing a
// PermitBroker, so reserved credits and per-call acquisition draw from
// the same bucket.
func RateLimitWith(l *Limiter) Middleware {
	return func(next llmclient.Client) llmclient.Client {
		var rl *rpsLimiter
		if l != nil {
			rl = l.rl
		}
		return &rateLimited{next: next, rl: rl, shared: true}
	}
}

type rateLimited struct {
	next   llmclient.Client
	rl     *rpsLimiter
	shared bool
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error {
	if !c.shared {
		c.rl.Stop()
	}
	return c.next.Close()
}
func (c *rateLimited) Send(ctx context.Context, env prompt.Envelope) (string, error) {
	if c.rl != nil {
		// Prefer reserved credits embedded in the context.
		if !TakeCredit(ctx) {
			if err := c.rl.Acquire(ctx); err != nil {
				return "", err
			}
		}
	}
	return c.next.Send(ctx, env)
}

// RateLimitFromEnv reads RPS/BURST from environment variables with the
// given prefixes in priority order. For example, ("LLM","GEMINI")
// checks LLM_RPS/LLM_BURST first, then GEMINI_RPS/GEMINI_BURST.
// fallback applies when none of them is set.
func RateLimitFromEnv(fallback llmclient.RateLimitConfig, prefixes ...string) Middleware {
	find := func(suffix string) string {
		for _, p := range prefixes {
			if p == "" {
				continue
			}
			if v := os.Getenv(p + suffix); v != "" {
				return v
			}
		}
		return ""
	}
	rps, burst := fallback.RPS, fallback.Burst
	if v := find("_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			rps = f
		}
	}
	if v := find("_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			burst = n
		}
	}
	return RateLimit(rps, burst)
}

// -------- Per-call timeout --------

// Timeout bounds every single Send. The caller's deadline still applies
// when it is shorter.
func Timeout(d time.Duration) Middleware {
	return func(next llmclient.Client) llmclient.Client {
		if d <= 0 {
			return next
		}
		return &timed{next: next, d: d}
	}
}

type timed struct {
	next llmclient.Client
	d    time.Duration
}

func (t *timed) Name() string { return t.next.Name() }
func (t *timed) Close() error { return t.next.Close() }
func (t *timed) Send(ctx context.Context, env prompt.Envelope) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	out, err := t.next.Send(cctx, env)
	if err != nil && ctx.Err() == nil && cctx.Err() == context.DeadlineExceeded && !llmclient.IsTransient(err) {
		err = llmclient.NewTransient(llmclient.Timeout, err)
	}
	return out, err
}

// -------- Logging & Hooks --------

// WithLogging logs request size and errors. A nil logger disables it.
func WithLogging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next llmclient.Client) llmclient.Client {
		return &logging{next: next, log: logger.Named("llm")}
	}
}

type logging struct {
	next llmclient.Client
	log  *zap.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }
func (l *logging) Send(ctx context.Context, env prompt.Envelope) (string, error) {
	fields := []zap.Field{
		zap.String("client", l.next.Name()),
		zap.String("stage", string(env.Stage)),
		zap.Int("chunk", env.ChunkIndex),
		zap.Int("chunks", env.ChunkCount),
		zap.Bool("simplify", env.Simplify),
	}
	if run := RunFrom(ctx); run != "" {
		fields = append(fields, zap.String("run", run))
	}
	start := time.Now()
	l.log.Debug("llm request", append(fields, zap.Int("bytes", len(env.Instructions)+len(env.Body())))...)
	raw, err := l.next.Send(ctx, env)
	fields = append(fields, zap.Duration("elapsed", time.Since(start)))
	if err != nil {
		l.log.Warn("llm error", append(fields, zap.Error(err))...)
		return raw, err
	}
	l.log.Debug("llm response", append(fields, zap.Int("bytes", len(raw)))...)
	return raw, err
}

// WithHooks calls HookFrom(ctx).Before/After around Send.
// If no hook is present in the context, it is a no-op.
func WithHooks() Middleware {
	return func(next llmclient.Client) llmclient.Client {
		return &hooked{next: next}
	}
}

type hooked struct{ next llmclient.Client }

func (h *hooked) Name() string { return h.next.Name() }
func (h *hooked) Close() error { return h.next.Close() }
func (h *hooked) Send(ctx context.Context, env prompt.Envelope) (string, error) {
	hook := HookFrom(ctx)
	if hook != nil {
		hook.Before(ctx, env)
	}
	raw, err := h.next.Send(ctx, env)
	if hook != nil {
		hook.After(ctx, env, raw, err)
	}
	return raw, err
}
