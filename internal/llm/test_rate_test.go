package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	llmclient "interviewforge/internal/llm/client"
	"interviewforge/internal/prompt"
)

func TestMain(m *testing.M) {
	// the genai dependency chain starts the opencensus view worker on load
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// fast fake client that returns immediately
type fastClient struct {
	mu    sync.Mutex
	times []time.Time
	err   error
	delay time.Duration
}

func (f *fastClient) Name() string { return "fast" }
func (f *fastClient) Close() error { return nil }
func (f *fastClient) Send(ctx context.Context, env prompt.Envelope) (string, error) {
	f.mu.Lock()
	f.times = append(f.times, time.Now())
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return `{}`, f.err
}

func (f *fastClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.times)
}

func TestRate_RPS_2PerSecond_Burst1_Spacing(t *testing.T) {
	base := &fastClient{}
	cli := Wrap(base, RateLimit(2, 1))
	t.Cleanup(func() { _ = cli.Close() })

	ctx := context.Background()
	start := time.Now()
	_, err := cli.Send(ctx, prompt.Envelope{})
	require.NoError(t, err)
	_, err = cli.Send(ctx, prompt.Envelope{})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 450*time.Millisecond, "second call should wait for a refill")
	assert.Equal(t, 2, base.calls())
}

func TestRate_CreditsBypassLimiter(t *testing.T) {
	base := &fastClient{}
	cli := Wrap(base, RateLimit(0.5, 1))
	t.Cleanup(func() { _ = cli.Close() })

	ctx := WithCredits(context.Background(), 3)
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := cli.Send(ctx, prompt.Envelope{})
		require.NoError(t, err)
	}
	assert.Less(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, 0, CreditsLeft(ctx))
}

func TestRate_AcquireHonoursContext(t *testing.T) {
	cli := Wrap(&fastClient{}, RateLimit(0.1, 1))
	t.Cleanup(func() { _ = cli.Close() })

	_, err := cli.Send(context.Background(), prompt.Envelope{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = cli.Send(ctx, prompt.Envelope{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimitFromEnv_PrefixPriority(t *testing.T) {
	t.Setenv("LLM_RPS", "")
	t.Setenv("GEMINI_RPS", "1000")
	t.Setenv("GEMINI_BURST", "4")
	base := &fastClient{}
	cli := Wrap(base, RateLimitFromEnv(llmclient.RateLimitConfig{RPS: 0.01, Burst: 1}, "LLM", "GEMINI"))
	t.Cleanup(func() { _ = cli.Close() })

	start := time.Now()
	for i := 0; i < 4; i++ {
		_, err := cli.Send(context.Background(), prompt.Envelope{})
		require.NoError(t, err)
	}
	assert.Less(t, time.Since(start), 200*time.Millisecond, "env burst should override the fallback")
}

func TestTimeout_MarksDeadlineAsTransient(t *testing.T) {
	base := &fastClient{delay: time.Second}
	cli := Wrap(base, Timeout(30*time.Millisecond))
	_, err := cli.Send(context.Background(), prompt.Envelope{})
	require.Error(t, err)
	assert.True(t, llmclient.IsTransient(err), "got %v", err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = cli.Send(ctx, prompt.Envelope{})
	assert.False(t, llmclient.IsTransient(err), "caller cancellation stays as is")
}

func TestWithHooksAndLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := &fastClient{err: errors.New("boom")}
	cli := Wrap(base, WithLogging(zap.New(core)), WithHooks())

	var before, after int
	var mu sync.Mutex
	ctx := WithHook(WithRun(context.Background(), "run-1"), HookFuncs{
		BeforeFn: func(context.Context, prompt.Envelope) { mu.Lock(); before++; mu.Unlock() },
		AfterFn: func(_ context.Context, env prompt.Envelope, _ string, err error) {
			mu.Lock()
			defer mu.Unlock()
			after++
			assert.Equal(t, 2, env.ChunkIndex)
			assert.EqualError(t, err, "boom")
		},
	})
	_, err := cli.Send(ctx, prompt.Envelope{Stage: prompt.StageAssign, ChunkIndex: 2, ChunkCount: 3})
	require.Error(t, err)
	assert.Equal(t, 1, before)
	assert.Equal(t, 1, after)

	warns := logs.FilterMessage("llm error").All()
	require.Len(t, warns, 1)
	assert.Equal(t, "run-1", warns[0].ContextMap()["run"])
	assert.Equal(t, int64(2), warns[0].ContextMap()["chunk"])
}
