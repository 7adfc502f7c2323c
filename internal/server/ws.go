package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// registerMonitorRoute serves the read-only event feed for dashboards.
func registerMonitorRoute(mux *http.ServeMux, hub *Hub, logger *slog.Logger) {
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("monitor upgrade failed", "error", err)
			return
		}
		defer func() { _ = conn.Close() }()

		hello, err := json.Marshal(ConnectionEvent{
			Event:     newEvent("connection", time.Time{}),
			Connected: true,
		})
		if err == nil {
			if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
				return
			}
		}

		m := hub.Subscribe()
		defer hub.Unsubscribe(m)

		// Monitors never send; a read error means the peer went away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case msg, ok := <-m.Events():
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
						time.Now().Add(time.Second))
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-gone:
				if n := m.Dropped(); n > 0 {
					logger.Debug("monitor disconnected", "dropped_events", n)
				}
				return
			}
		}
	})
}
