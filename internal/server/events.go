package server

import (
	"strings"
	"sync"
	"time"

	"interviewforge/internal/orchestrator"
)

const (
	completedRunRetention = 30 * time.Second
	subscriberBuffer      = 64
)

type EventType string

const (
	EventDiagnostic EventType = "diagnostic"
	EventComplete   EventType = "complete"
)

// Event is one message of a run's event stream. Seq starts at 1 and has
// no gaps within a run.
type Event struct {
	Type       EventType                `json:"type"`
	RunID      string                   `json:"run_id"`
	Seq        int                      `json:"seq"`
	Diagnostic *orchestrator.Diagnostic `json:"diagnostic,omitempty"`
	Status     string                   `json:"status,omitempty"`
}

type runEvents struct {
	history []Event
	subs    map[int]chan Event
	done    bool
}

// Hub fans diagnostics out to websocket subscribers. It keeps each run's
// history so late subscribers get a full replay. Finished runs are
// forgotten after a retention period.
type Hub struct {
	mu        sync.Mutex
	runs      map[string]*runEvents
	nextSub   int
	retention time.Duration
}

func NewHub() *Hub {
	return &Hub{runs: make(map[string]*runEvents), retention: completedRunRetention}
}

// Observe implements orchestrator.Observer.
func (h *Hub) Observe(runID string, d orchestrator.Diagnostic) {
	h.publish(runID, Event{Type: EventDiagnostic, Diagnostic: &d})
}

// Finish publishes the completion event and closes every subscription.
func (h *Hub) Finish(runID, status string) {
	runID = strings.TrimSpace(runID)
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.entryLocked(runID)
	if e.done {
		return
	}
	h.appendLocked(runID, e, Event{Type: EventComplete, Status: status})
	e.done = true
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	time.AfterFunc(h.retention, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.runs[runID] == e {
			delete(h.runs, runID)
		}
	})
}

// Subscribe returns the events published so far and a channel carrying
// the rest. The channel is closed when the run finishes, when cancel is
// called, or when the subscriber falls too far behind. A run that has
// not started yet can be subscribed to.
func (h *Hub) Subscribe(runID string) (backlog []Event, events <-chan Event, cancel func()) {
	runID = strings.TrimSpace(runID)
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.entryLocked(runID)
	backlog = append([]Event(nil), e.history...)
	ch := make(chan Event, subscriberBuffer)
	if e.done {
		close(ch)
		return backlog, ch, func() {}
	}
	id := h.nextSub
	h.nextSub++
	e.subs[id] = ch
	return backlog, ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
		if len(e.subs) == 0 && len(e.history) == 0 && !e.done && h.runs[runID] == e {
			delete(h.runs, runID)
		}
	}
}

func (h *Hub) publish(runID string, ev Event) {
	runID = strings.TrimSpace(runID)
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.entryLocked(runID)
	if e.done {
		return
	}
	h.appendLocked(runID, e, ev)
}

func (h *Hub) appendLocked(runID string, e *runEvents, ev Event) {
	ev.RunID = runID
	ev.Seq = len(e.history) + 1
	e.history = append(e.history, ev)
	for id, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop it; it can reconnect and replay.
			close(ch)
			delete(e.subs, id)
		}
	}
}

func (h *Hub) entryLocked(runID string) *runEvents {
	e, ok := h.runs[runID]
	if !ok {
		e = &runEvents{subs: make(map[int]chan Event)}
		h.runs[runID] = e
	}
	return e
}
