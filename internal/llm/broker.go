package llm

import "context"

// Acquirer hands out one permit per call.
type Acquirer interface {
	Acquire(ctx context.Context) error
}

// PermitBroker reserves N permits up-front, typically one per planned
// chunk call of a run.
type PermitBroker interface {
	Reserve(ctx context.Context, n int) (Lease, error)
}

// Lease injects reserved credits into a context.
type Lease interface {
	Context(ctx context.Context) context.Context
	Credits() int
}

type broker struct{ rl Acquirer }

// NewBroker returns a PermitBroker backed by the given limiter.
func NewBroker(rl Acquirer) PermitBroker { return &broker{rl: rl} }

// Reserve acquires n permits and returns a lease that embeds n credits
// into a context. Unused credits are not returned to the limiter.
func (b *broker) Reserve(ctx context.Context, n int) (Lease, error) {
	if n <= 0 || b == nil || b.rl == nil {
		return lease{n: 0}, nil
	}
	for i := 0; i < n; i++ {
		if err := b.rl.Acquire(ctx); err != nil {
			return nil, err
		}
	}
	return lease{n: n}, nil
}

type lease struct{ n int }

func (l lease) Context(ctx context.Context) context.Context { return WithCredits(ctx, l.n) }
func (l lease) Credits() int                                { return l.n }
