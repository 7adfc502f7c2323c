package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sjawhar/call-insights/internal/session"
)

const (
	defaultWriteTimeout = 10 * time.Second
	maxFrameBytes       = 8 << 20
)

var errConnectionClosed = errors.New("connection closed")

// SessionRegistry is the part of session.Registry the streaming endpoint uses.
type SessionRegistry interface {
	Create(id string, sink session.Sink) *session.Session
	Get(id string) (*session.Session, bool)
	Release(s *session.Session)
	Active() []string
}

// wsSink writes flush results back on the streaming connection. Writes are
// serialized since gorilla connections allow one concurrent writer.
type wsSink struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
	closed  bool
}

func (s *wsSink) Deliver(ctx context.Context, msg session.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errConnectionClosed
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	return s.conn.WriteJSON(msg)
}

func (s *wsSink) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func registerStreamRoute(mux *http.ServeMux, reg SessionRegistry, writeTimeout time.Duration, logger *slog.Logger) {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	mux.HandleFunc("GET /api/ws/transcribe", func(w http.ResponseWriter, r *http.Request) {
		id, ok := sessionIDFrom(r)
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		log := logger.With("session_id", id)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("ws upgrade error", "error", err)
			return
		}
		conn.SetReadLimit(maxFrameBytes)
		log.Info("stream connected", "remote", r.RemoteAddr)

		sink := &wsSink{conn: conn, timeout: writeTimeout}
		s := reg.Create(id, sink)
		defer func() {
			// Release drains the queue and runs the final flush, which may
			// still reach a peer that only half-closed.
			reg.Release(s)
			sink.close()
			_ = conn.Close()
			log.Info("stream closed", "chunks", s.Chunks())
		}()

		// A consumer that ends on its own takes the connection with it.
		reading := make(chan struct{})
		defer close(reading)
		go func() {
			select {
			case <-s.Done():
				log.Info("session ended, closing stream")
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
					time.Now().Add(time.Second))
				_ = conn.Close()
			case <-reading:
			}
		}()

		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn("stream read error", "error", err)
				}
				return
			}
			if kind != websocket.BinaryMessage {
				log.Debug("ignoring non-binary frame", "type", kind, "bytes", len(data))
				continue
			}
			// A reconnect under the same id replaces this connection's session.
			if cur, ok := reg.Get(id); !ok || cur != s {
				log.Info("session no longer registered, dropping connection")
				return
			}
			s.Enqueue(data)
		}
	})
}

// sessionIDFrom returns the caller's session_id or a generated one. An
// explicit id must be safe to use as a path segment.
func sessionIDFrom(r *http.Request) (string, bool) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		return newSessionID(), true
	}
	return id, validSessionID(id)
}

func newSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
