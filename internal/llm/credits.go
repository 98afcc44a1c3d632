package llm

import (
	"context"
	"sync/atomic"
)

type creditsKey struct{}

type credits struct{ n atomic.Int32 }

// WithCredits returns a context that carries n consumable credits.
// If n <= 0, the original context is returned.
func WithCredits(ctx context.Context, n int) context.Context {
	if n <= 0 {
		return ctx
	}
	c := &credits{}
	c.n.Store(int32(n))
	return context.WithValue(ctx, creditsKey{}, c)
}

// TakeCredit atomically consumes one credit from the context if available.
func TakeCredit(ctx context.Context) bool {
	c, ok := ctx.Value(creditsKey{}).(*credits)
	if !ok || c == nil {
		return false
	}
	for {
		cur := c.n.Load()
		if cur <= 0 {
			return false
		}
		if c.n.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// CreditsLeft reports the unconsumed credits carried by ctx.
func CreditsLeft(ctx context.Context) int {
	c, ok := ctx.Value(creditsKey{}).(*credits)
	if !ok || c == nil {
		return 0
	}
	return int(c.n.Load())
}
