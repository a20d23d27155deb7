package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWatch streams the entries of a run: everything recorded so far,
// then new entries as they are appended.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if _, err := s.runs.GetRun(r.Context(), runID); err != nil {
		http.Error(w, "Run not found", statusFor(err))
		return
	}

	// Subscribe before the initial sync so no append is missed.
	updates := s.stream.Subscribe()
	defer s.stream.Unsubscribe(updates)

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	lastID := ""
	if err := s.syncStream(ws, runID, &lastID); err != nil {
		slog.Error("Failed initial stream sync", "error", err)
		return
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)

	// Writer goroutine: pushes new entries to the client.
	go func() {
		defer wg.Done()
		defer ws.Close()

		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case id := <-updates:
				if id != runID {
					continue
				}
				if err := s.syncStream(ws, runID, &lastID); err != nil {
					slog.Error("Failed stream sync", "error", err)
					return
				}
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop: the feed is read-only, reads only detect the close.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("WebSocket read error", "error", err)
			}
			break
		}
	}

	close(done)
	wg.Wait()
}

func (s *Server) syncStream(ws *websocket.Conn, runID string, lastID *string) error {
	entries, err := s.stream.GetEntriesAfter(context.Background(), runID, *lastID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := ws.WriteJSON(e); err != nil {
			return err
		}
		*lastID = e.ID
	}
	return nil
}
