package llm

import (
	"context"

	"interviewforge/internal/prompt"
)

// CallHook observes every call passing the WithHooks middleware.
// Implementations must be safe for concurrent use.
type CallHook interface {
	Before(ctx context.Context, env prompt.Envelope)
	After(ctx context.Context, env prompt.Envelope, raw string, err error)
}

// HookFuncs adapts plain functions to CallHook. Nil fields are skipped.
type HookFuncs struct {
	BeforeFn func(ctx context.Context, env prompt.Envelope)
	AfterFn  func(ctx context.Context, env prompt.Envelope, raw string, err error)
}

func (h HookFuncs) Before(ctx context.Context, env prompt.Envelope) {
	if h.BeforeFn != nil {
		h.BeforeFn(ctx, env)
	}
}

func (h HookFuncs) After(ctx context.Context, env prompt.Envelope, raw string, err error) {
	if h.AfterFn != nil {
		h.AfterFn(ctx, env, raw, err)
	}
}

type ctxKeyHook struct{}
type ctxKeyRun struct{}

// WithHook attaches a CallHook to ctx.
func WithHook(ctx context.Context, hook CallHook) context.Context {
	return context.WithValue(ctx, ctxKeyHook{}, hook)
}

// HookFrom returns the hook stored in the context.
func HookFrom(ctx context.Context) CallHook {
	h, _ := ctx.Value(ctxKeyHook{}).(CallHook)
	return h
}

// WithRun tags ctx with a run id for logs and usage records.
func WithRun(ctx context.Context, run string) context.Context {
	return context.WithValue(ctx, ctxKeyRun{}, run)
}

// RunFrom returns the run id stored in the context, or "".
func RunFrom(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeyRun{}).(string)
	return s
}
