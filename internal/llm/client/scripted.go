package llmclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"interviewforge/internal/prompt"
)

// Reply is one canned answer of a ScriptedClient.
type Reply struct {
	Text  string
	Err   error
	Delay time.Duration
}

type scriptKey struct {
	stage prompt.Stage
	index int
}

// ScriptedClient returns canned replies per (stage, chunk index). Each
// call consumes the next reply queued for its key; the last reply
// repeats once the queue is exhausted. Keys without a script fall back
// to Fallback, or fail with a malformed-request error.
type ScriptedClient struct {
	Fallback func(env prompt.Envelope) (string, error)

	mu      sync.Mutex
	scripts map[scriptKey][]Reply
	used    map[scriptKey]int
	calls   []prompt.Envelope
}

func NewScriptedClient() *ScriptedClient {
	return &ScriptedClient{
		scripts: make(map[scriptKey][]Reply),
		used:    make(map[scriptKey]int),
	}
}

// On queues replies for one chunk of a stage.
func (s *ScriptedClient) On(stage prompt.Stage, index int, replies ...Reply) *ScriptedClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scriptKey{stage, index}
	s.scripts[k] = append(s.scripts[k], replies...)
	return s
}

func (s *ScriptedClient) Name() string { return "scripted" }
func (s *ScriptedClient) Close() error { return nil }

func (s *ScriptedClient) Send(ctx context.Context, env prompt.Envelope) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, env)
	k := scriptKey{env.Stage, env.ChunkIndex}
	queue := s.scripts[k]
	var (
		r  Reply
		ok bool
	)
	if n := len(queue); n > 0 {
		i := min(s.used[k], n-1)
		s.used[k]++
		r, ok = queue[i], true
	}
	fallback := s.Fallback
	s.mu.Unlock()

	if !ok {
		if fallback != nil {
			return fallback(env)
		}
		return "", NewFatal(MalformedRequest, fmt.Errorf("scripted: no reply for %s chunk %d", env.Stage, env.ChunkIndex))
	}
	if r.Delay > 0 {
		t := time.NewTimer(r.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ClassifyTransport(ctx, ctx.Err())
		case <-t.C:
		}
	}
	return r.Text, r.Err
}

// Calls returns every envelope received so far, in arrival order.
func (s *ScriptedClient) Calls() []prompt.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]prompt.Envelope(nil), s.calls...)
}

// CallsFor counts the calls received for one chunk of a stage.
func (s *ScriptedClient) CallsFor(stage prompt.Stage, index int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Stage == stage && c.ChunkIndex == index {
			n++
		}
	}
	return n
}
