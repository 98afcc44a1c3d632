package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	eventsWSWriteWait = 10 * time.Second
	eventsWSPongWait  = 60 * time.Second
	eventsWSPingEvery = (eventsWSPongWait * 9) / 10
)

var eventsWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// HandleRunEvents streams a run's events over a websocket: the backlog
// first, then live events until the run completes. Clients may connect
// before starting the run by choosing its run_id themselves.
func (h *Handler) HandleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("id"))
	if runID == "" {
		http.Error(w, "run id is required", http.StatusBadRequest)
		return
	}
	conn, err := eventsWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ctx, stop := context.WithCancel(r.Context())
	defer stop()

	backlog, events, unsubscribe := h.svc.Hub().Subscribe(runID)
	defer unsubscribe()

	if err := conn.SetReadDeadline(time.Now().Add(eventsWSPongWait)); err != nil {
		_ = conn.Close()
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventsWSPongWait))
	})

	// Inbound messages are ignored; reading surfaces the client's close.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer stop()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	defer func() {
		_ = conn.Close()
		<-readerDone
	}()

	send := func(ev Event) bool {
		if err := conn.SetWriteDeadline(time.Now().Add(eventsWSWriteWait)); err != nil {
			return false
		}
		if err := conn.WriteJSON(ev); err != nil {
			h.log.Debug("run events write failed", zap.String("run", runID), zap.Error(err))
			return false
		}
		return ev.Type != EventComplete
	}
	closeWith := func(reason string) {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(eventsWSWriteWait))
	}

	for _, ev := range backlog {
		if !send(ev) {
			closeWith("run finished")
			return
		}
	}

	ticker := time.NewTicker(eventsWSPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				closeWith("stream ended")
				return
			}
			if !send(ev) {
				closeWith("run finished")
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(eventsWSWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
