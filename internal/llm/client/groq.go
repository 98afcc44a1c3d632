package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"interviewforge/internal/prompt"
)

// GroqClient calls the Groq Chat Completions API (OpenAI-compatible) and asks for JSON.
// See: https://console.groq.com/docs/api-reference
type GroqClient struct {
	http    *http.Client
	apiKey  string
	model   string
	baseURL string

	rlMu      sync.RWMutex
	rlLast    RateLimitHeaders
	rlHasLast bool
	rlHandler RateLimitHeaderHandler
}

// NewGroqClient creates a Groq client. If apiKey is empty, it falls back to GROQ_API_KEY env var.
func NewGroqClient(apiKey, model string) *GroqClient {
	if apiKey == "" {
		apiKey = os.Getenv("GROQ_API_KEY")
	}
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	return &GroqClient{
		// per-call deadlines come from the context
		http:    &http.Client{},
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://api.groq.com/openai/v1/chat/completions",
	}
}

// WithBaseURL points the client at another OpenAI-compatible endpoint.
func (g *GroqClient) WithBaseURL(u string) *GroqClient {
	g.baseURL = u
	return g
}

func (g *GroqClient) Name() string { return "Groq:" + g.model }
func (g *GroqClient) Close() error { return nil }

func (g *GroqClient) SetRateLimitHeaderHandler(handler RateLimitHeaderHandler) {
	g.rlMu.Lock()
	defer g.rlMu.Unlock()
	g.rlHandler = handler
}

func (g *GroqClient) LastRateLimitHeaders() (RateLimitHeaders, bool) {
	g.rlMu.RLock()
	defer g.rlMu.RUnlock()
	return g.rlLast, g.rlHasLast
}

type groqChatReq struct {
	Model          string            `json:"model"`
	Messages       []groqMessage     `json:"messages"`
	Temperature    float32           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}
type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
type groqChatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Send posts the envelope as a system + user message pair.
func (g *GroqClient) Send(ctx context.Context, env prompt.Envelope) (string, error) {
	reqBody := groqChatReq{
		Model: g.model,
		Messages: []groqMessage{
			{Role: "system", Content: env.Instructions},
			{Role: "user", Content: env.Body()},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", NewFatal(MalformedRequest, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL, bytes.NewReader(b))
	if err != nil {
		return "", NewFatal(MalformedRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return "", ClassifyTransport(ctx, err)
	}
	defer resp.Body.Close()
	g.recordRateLimit(resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("groq: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body)))
		return "", ClassifyStatus(resp.StatusCode, err)
	}
	var out groqChatResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", NewTransient(ServiceUnavailable, fmt.Errorf("groq: decode envelope: %w", err))
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}

func (g *GroqClient) recordRateLimit(h http.Header) {
	parsed, ok := parseGroqRateLimitHeaders(h)
	if !ok {
		return
	}
	g.rlMu.Lock()
	g.rlLast, g.rlHasLast = parsed, true
	handler := g.rlHandler
	g.rlMu.Unlock()
	if handler != nil {
		handler(parsed)
	}
}

// RetryAfter reports how long the provider asked callers to back off,
// based on the last response seen.
func (g *GroqClient) RetryAfter() time.Duration {
	h, ok := g.LastRateLimitHeaders()
	if !ok {
		return 0
	}
	return HeaderRateLimitControlAdapter{}.NextWait(h)
}
