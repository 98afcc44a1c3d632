package llmclient

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitHeaders represents normalized provider rate-limit signals.
type RateLimitHeaders struct {
	RetryAfterSeconds int

	LimitRequests     int
	LimitTokens       int
	RemainingRequests int
	RemainingTokens   int

	ResetRequests time.Duration
	ResetTokens   time.Duration
}

type RateLimitHeaderHandler func(headers RateLimitHeaders)

// RateLimitHeaderAwareClient is implemented by clients that expose the
// provider's rate-limit headers of their last response.
type RateLimitHeaderAwareClient interface {
	SetRateLimitHeaderHandler(handler RateLimitHeaderHandler)
	LastRateLimitHeaders() (RateLimitHeaders, bool)
}

// HeaderRateLimitControlAdapter turns normalized signals into a wait.
type HeaderRateLimitControlAdapter struct{}

func (HeaderRateLimitControlAdapter) NextWait(h RateLimitHeaders) time.Duration {
	switch {
	case h.RetryAfterSeconds > 0:
		return time.Duration(h.RetryAfterSeconds) * time.Second
	case h.LimitTokens > 0 && h.RemainingTokens == 0 && h.ResetTokens > 0:
		return h.ResetTokens
	case h.LimitRequests > 0 && h.RemainingRequests == 0 && h.ResetRequests > 0:
		return h.ResetRequests
	}
	return 0
}

// Groq semantics: request fields are per day, token fields per minute.
var groqIntHeaders = map[string]func(*RateLimitHeaders, int){
	"retry-after":                    func(r *RateLimitHeaders, v int) { r.RetryAfterSeconds = v },
	"x-ratelimit-limit-requests":     func(r *RateLimitHeaders, v int) { r.LimitRequests = v },
	"x-ratelimit-limit-tokens":       func(r *RateLimitHeaders, v int) { r.LimitTokens = v },
	"x-ratelimit-remaining-requests": func(r *RateLimitHeaders, v int) { r.RemainingRequests = v },
	"x-ratelimit-remaining-tokens":   func(r *RateLimitHeaders, v int) { r.RemainingTokens = v },
}

var groqDurHeaders = map[string]func(*RateLimitHeaders, time.Duration){
	"x-ratelimit-reset-requests": func(r *RateLimitHeaders, v time.Duration) { r.ResetRequests = v },
	"x-ratelimit-reset-tokens":   func(r *RateLimitHeaders, v time.Duration) { r.ResetTokens = v },
}

func parseGroqRateLimitHeaders(h http.Header) (RateLimitHeaders, bool) {
	var out RateLimitHeaders
	found := false
	for key, set := range groqIntHeaders {
		if n, err := strconv.Atoi(strings.TrimSpace(h.Get(key))); err == nil {
			set(&out, n)
			found = true
		}
	}
	for key, set := range groqDurHeaders {
		if d, err := time.ParseDuration(strings.TrimSpace(h.Get(key))); err == nil {
			set(&out, d)
			found = true
		}
	}
	return out, found
}
