package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nstogner/dispatch/pkg/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// watchEvent is pushed to monitor clients whenever a conversation changes.
type watchEvent struct {
	Type          string                `json:"type"`
	Conversation  *domain.Conversation  `json:"conversation,omitempty"`
	Conversations []domain.Conversation `json:"conversations,omitempty"`
}

// watchCommand is received from monitor clients.
type watchCommand struct {
	Action string `json:"action"`
	ID     string `json:"id"`
}

func (s *Server) handleWatchWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	done := make(chan struct{})
	updates, unsubscribe := s.registry.Subscribe()
	defer unsubscribe()

	// Writes go through a mutex so the snapshot push and keepalive do not
	// interleave on the wire.
	var writeMu sync.Mutex
	writeJSON := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return ws.WriteJSON(v)
	}

	// Initial snapshot.
	if err := writeJSON(watchEvent{Type: "snapshot", Conversations: s.registry.List()}); err != nil {
		slog.Error("Failed initial snapshot", "error", err)
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)

	// Writer goroutine: pushes changed conversations to the client.
	go func() {
		defer wg.Done()
		defer ws.Close()

		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case id := <-updates:
				conv, ok := s.registry.Get(id)
				if !ok {
					// Deleted. Push a fresh snapshot.
					if err := writeJSON(watchEvent{Type: "snapshot", Conversations: s.registry.List()}); err != nil {
						return
					}
					continue
				}
				if err := writeJSON(watchEvent{Type: "update", Conversation: &conv}); err != nil {
					return
				}
			case <-ticker.C:
				writeMu.Lock()
				err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	// Reader loop: accepts cancel commands.
	for {
		var cmd watchCommand
		if err := ws.ReadJSON(&cmd); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Error("WebSocket read error", "error", err)
			}
			break
		}

		if cmd.Action == "cancel" && cmd.ID != "" {
			if err := s.registry.MarkCancelled(cmd.ID); err != nil {
				slog.Warn("Cancel via websocket failed", "id", cmd.ID, "error", err)
			}
		}
	}

	close(done)
	wg.Wait()
}
