package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLimiter struct {
	calls  atomic.Int32
	failAt int32
}

func (f *fakeLimiter) Acquire(ctx context.Context) error {
	n := f.calls.Add(1)
	if f.failAt > 0 && n == f.failAt {
		return errors.New("boom")
	}
	return nil
}

func TestBrokerReserveSuccess(t *testing.T) {
	fl := &fakeLimiter{}
	lease, err := NewBroker(fl).Reserve(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int32(3), fl.calls.Load())
	assert.Equal(t, 3, lease.Credits())

	ctx := lease.Context(context.Background())
	for i := 0; i < 3; i++ {
		assert.True(t, TakeCredit(ctx), "credit %d available", i)
	}
	assert.False(t, TakeCredit(ctx), "no extra credits")
}

func TestBrokerReserveError(t *testing.T) {
	fl := &fakeLimiter{failAt: 2}
	_, err := NewBroker(fl).Reserve(context.Background(), 3)
	require.Error(t, err)
	assert.Equal(t, int32(2), fl.calls.Load())
}

func TestBrokerUnlimited(t *testing.T) {
	var l *Limiter
	lease, err := NewBroker(l).Reserve(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, lease.Credits(), "a nil limiter grants every permit")

	lease, err = NewBroker(nil).Reserve(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 0, lease.Credits())
}

func TestWithCreditsAndTakeCredit(t *testing.T) {
	ctx := WithCredits(context.Background(), 10)

	var wg sync.WaitGroup
	var taken atomic.Int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for TakeCredit(ctx) {
				taken.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.False(t, TakeCredit(ctx), "expected no credits left")
	assert.Equal(t, int64(10), taken.Load(), "exact number of credits consumed")
	assert.Equal(t, context.Background(), WithCredits(context.Background(), 0))
}
