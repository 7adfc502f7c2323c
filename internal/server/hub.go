package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sjawhar/call-insights/internal/transcribe"
)

const monitorBuffer = 64

// Monitor is one dashboard subscription to the event feed.
type Monitor struct {
	events  chan []byte
	dropped atomic.Int64
}

// Events yields encoded events. The channel is closed on Unsubscribe or
// when the hub shuts down.
func (m *Monitor) Events() <-chan []byte {
	return m.events
}

func (m *Monitor) Dropped() int64 {
	return m.dropped.Load()
}

// Hub fans session events out to monitors. A monitor whose buffer is full
// misses the event; sessions never wait on dashboards.
type Hub struct {
	mu       sync.RWMutex
	monitors map[*Monitor]struct{}
	closed   bool
	dropped  atomic.Int64
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{monitors: make(map[*Monitor]struct{}), logger: logger}
}

// Subscribe registers a monitor. After Close the returned monitor's channel
// is already closed.
func (h *Hub) Subscribe() *Monitor {
	m := &Monitor{events: make(chan []byte, monitorBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(m.events)
		return m
	}
	h.monitors[m] = struct{}{}
	return m
}

func (h *Hub) Unsubscribe(m *Monitor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.monitors[m]; !ok {
		return
	}
	delete(h.monitors, m)
	close(m.events)
}

// Close disconnects every monitor and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for m := range h.monitors {
		close(m.events)
	}
	clear(h.monitors)
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.monitors)
}

// Dropped counts events lost to full monitor buffers since start.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for m := range h.monitors {
		select {
		case m.events <- msg:
		default:
			h.dropped.Add(1)
			if m.dropped.Add(1) == 1 {
				h.logger.Debug("monitor falling behind, dropping events")
			}
		}
	}
}

func (h *Hub) BroadcastSessionStarted(sessionID string) {
	h.publish(SessionStartedEvent{
		Event:     newEvent("session_started", time.Time{}),
		SessionID: sessionID,
	})
}

func (h *Hub) BroadcastTranscript(u transcribe.Utterance, running string) {
	h.publish(TranscriptEvent{
		Event:      newEvent("transcript", u.Timestamp),
		SessionID:  u.SessionID,
		Chunk:      u.Chunk,
		Text:       u.Text,
		Sentiment:  u.Sentiment,
		Transcript: running,
	})
}

func (h *Hub) BroadcastSessionEnded(sessionID string, duration time.Duration, chunks int) {
	h.publish(SessionEndedEvent{
		Event:     newEvent("session_ended", time.Time{}),
		SessionID: sessionID,
		Duration:  duration.Seconds(),
		Chunks:    chunks,
	})
}

func (h *Hub) publish(event any) {
	if h.Subscribers() == 0 {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("encode monitor event", "error", err)
		return
	}
	h.Broadcast(payload)
}
