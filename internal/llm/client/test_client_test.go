package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interviewforge/internal/catalog"
	"interviewforge/internal/prompt"
)

func TestParseGroqRateLimitHeaders_GroqFormat(t *testing.T) {
	h := http.Header{}
	h.Set("retry-after", "2")
	h.Set("x-ratelimit-limit-requests", "14400")
	h.Set("x-ratelimit-limit-tokens", "18000")
	h.Set("x-ratelimit-remaining-requests", "14370")
	h.Set("x-ratelimit-remaining-tokens", "17997")
	h.Set("x-ratelimit-reset-requests", "2m59.56s")
	h.Set("x-ratelimit-reset-tokens", "7.66s")

	got, ok := parseGroqRateLimitHeaders(h)
	require.True(t, ok)
	assert.Equal(t, RateLimitHeaders{
		RetryAfterSeconds: 2,
		LimitRequests:     14400,
		LimitTokens:       18000,
		RemainingRequests: 14370,
		RemainingTokens:   17997,
		ResetRequests:     2*time.Minute + 59*time.Second + 560*time.Millisecond,
		ResetTokens:       7*time.Second + 660*time.Millisecond,
	}, got)

	_, ok = parseGroqRateLimitHeaders(http.Header{})
	assert.False(t, ok)
}

func TestHeaderRateLimitControlAdapter_NextWait(t *testing.T) {
	a := HeaderRateLimitControlAdapter{}
	assert.Equal(t, 3*time.Second, a.NextWait(RateLimitHeaders{RetryAfterSeconds: 3}))
	assert.Equal(t, 5*time.Second, a.NextWait(RateLimitHeaders{LimitTokens: 100, ResetTokens: 5 * time.Second}))
	assert.Equal(t, 11*time.Second, a.NextWait(RateLimitHeaders{LimitRequests: 10, ResetRequests: 11 * time.Second}))
	// no limit header seen: a zero remaining count means nothing
	assert.Equal(t, time.Duration(0), a.NextWait(RateLimitHeaders{ResetTokens: 5 * time.Second}))
}

func TestClassifyStatus(t *testing.T) {
	base := errors.New("boom")
	cases := []struct {
		code      int
		transient bool
		fatal     bool
	}{
		{429, true, false},
		{408, true, false},
		{503, true, false},
		{500, true, false},
		{401, false, true},
		{403, false, true},
		{400, false, true},
		{422, false, true},
	}
	for _, c := range cases {
		err := ClassifyStatus(c.code, base)
		assert.Equal(t, c.transient, IsTransient(err), "code %d", c.code)
		assert.Equal(t, c.fatal, IsFatal(err), "code %d", c.code)
		assert.ErrorIs(t, err, base)
	}
	var te *TransientError
	require.True(t, errors.As(ClassifyStatus(429, base), &te))
	assert.Equal(t, RateLimited, te.Kind)
}

func TestClassifyTransport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, IsTransient(ClassifyTransport(ctx, context.Canceled)))
	assert.True(t, IsTransient(ClassifyTransport(context.Background(), context.DeadlineExceeded)))
	assert.Nil(t, ClassifyTransport(context.Background(), nil))
}

func TestGroqClient_SendAndClassify(t *testing.T) {
	var gotAuth string
	var gotReq groqChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		if strings.Contains(gotReq.Messages[1].Content, "FAIL_MARKER") {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("retry-after", "1")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"text\":\"ok\"}"}}]}`)
	}))
	defer srv.Close()

	var seen []RateLimitHeaders
	c := NewGroqClient("k", "m").WithBaseURL(srv.URL)
	c.SetRateLimitHeaderHandler(func(h RateLimitHeaders) { seen = append(seen, h) })

	env := prompt.Writing("Write.", []catalog.Item{{ID: "a", Category: catalog.CategoryQAPair, Text: "x"}}, "", 10, 1, 1)
	out, err := c.Send(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, `{"text":"ok"}`, out)
	assert.Equal(t, "Bearer k", gotAuth)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "Write.", gotReq.Messages[0].Content)
	require.Len(t, seen, 1)
	assert.Equal(t, time.Second, c.RetryAfter())

	_, err = c.Send(context.Background(), prompt.Envelope{Content: "FAIL_MARKER"})
	assert.True(t, IsTransient(err), "429 must be transient: %v", err)
}

func TestScriptedClient_QueuesPerChunk(t *testing.T) {
	s := NewScriptedClient().
		On(prompt.StageAssign, 1, Reply{Err: NewTransient(Timeout, errors.New("slow"))}, Reply{Text: "ok"})
	ctx := context.Background()
	env := prompt.Envelope{Stage: prompt.StageAssign, ChunkIndex: 1}

	_, err := s.Send(ctx, env)
	assert.True(t, IsTransient(err))
	out, err := s.Send(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	out, _ = s.Send(ctx, env)
	assert.Equal(t, "ok", out, "last reply repeats")
	assert.Equal(t, 3, s.CallsFor(prompt.StageAssign, 1))

	_, err = s.Send(ctx, prompt.Envelope{Stage: prompt.StageAssign, ChunkIndex: 2})
	assert.True(t, IsFatal(err))
}

func TestOfflineClient_AssignsEveryItem(t *testing.T) {
	items := []catalog.Item{
		{ID: "q1", Category: catalog.CategoryItemList, Text: "Budget approval for finance"},
		{ID: "q2", Category: catalog.CategoryItemList, Text: "Warehouse staffing"},
	}
	env := prompt.Assignment("Route.", []prompt.Entity{{Key: "finance"}, {Key: "ops"}}, nil, items, 1, 1)
	out, err := OfflineClient{}.Send(context.Background(), env)
	require.NoError(t, err)

	var got struct {
		Assignments []struct {
			ID       string   `json:"id"`
			Entities []string `json:"entities"`
		} `json:"assignments"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Assignments, 2)
	assert.Equal(t, "q1", got.Assignments[0].ID)
	assert.Equal(t, []string{"finance"}, got.Assignments[0].Entities)
	assert.Equal(t, []string{"ops"}, got.Assignments[1].Entities)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(context.Background(), ProviderConfig{Provider: "nope"})
	require.Error(t, err)
	c, err := New(context.Background(), ProviderConfig{Provider: "offline"})
	require.NoError(t, err)
	assert.Equal(t, "offline", c.Name())
	assert.Equal(t, RateLimitConfig{RPS: 0.25, Burst: 1}, DefaultRateLimit(ProviderConfig{Provider: "gemini"}))
}
