package session

import (
	"context"
	"sync"
	"time"

	"github.com/sjawhar/call-insights/internal/audio"
	"github.com/sjawhar/call-insights/internal/sentiment"
	"github.com/sjawhar/call-insights/internal/storage"
)

type normalizeCall struct {
	sessionID string
	bytes     int
	cache     *audio.HeaderCache
}

type normalizerMock struct {
	mu    sync.Mutex
	calls []normalizeCall
	// block, when set, holds Normalize until closed or ctx is done.
	block chan struct{}
}

func (m *normalizerMock) Normalize(ctx context.Context, raw []byte, sessionID string, cache *audio.HeaderCache) audio.Result {
	m.mu.Lock()
	m.calls = append(m.calls, normalizeCall{sessionID: sessionID, bytes: len(raw), cache: cache})
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return audio.Result{Reason: audio.ReasonDecodeFailed}
		}
	}
	return audio.Result{Audio: raw, Reason: audio.ReasonDecoded}
}

func (m *normalizerMock) snapshot() []normalizeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]normalizeCall(nil), m.calls...)
}

func (m *normalizerMock) sizesFor(sessionID string) []int {
	var sizes []int
	for _, c := range m.snapshot() {
		if c.sessionID == sessionID {
			sizes = append(sizes, c.bytes)
		}
	}
	return sizes
}

type transcriberFunc func(ctx context.Context, wav []byte, sessionID string, chunk int) string

func (f transcriberFunc) Transcribe(ctx context.Context, wav []byte, sessionID string, chunk int) string {
	return f(ctx, wav, sessionID, chunk)
}

type classifierMock struct {
	mu    sync.Mutex
	texts []string
}

func (c *classifierMock) Classify(_ context.Context, text string) sentiment.Label {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return sentiment.Heuristic(text)
}

type sinkMock struct {
	mu       sync.Mutex
	msgs     []Message
	err      error
	attempts int
}

func (s *sinkMock) Deliver(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *sinkMock) messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.msgs...)
}

type storeMock struct {
	mu      sync.Mutex
	created []string
	flushes []storage.FlushRecord
	status  map[string]string
	chunks  map[string]int
}

func newStoreMock() *storeMock {
	return &storeMock{status: map[string]string{}, chunks: map[string]int{}}
}

func (s *storeMock) CreateSession(id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, id)
	s.status[id] = storage.StatusActive
	return nil
}

func (s *storeMock) RecordFlush(rec storage.FlushRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes = append(s.flushes, rec)
	return nil
}

func (s *storeMock) EndSession(id string, _ time.Time, status string, chunks int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[id] = status
	s.chunks[id] = chunks
	return nil
}

func (s *storeMock) reasons(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, f := range s.flushes {
		if f.SessionID == id {
			out = append(out, f.Reason)
		}
	}
	return out
}

func (s *storeMock) statusOf(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[id]
}

type metricsMock struct {
	mu              sync.Mutex
	opened, closed  int
	fragments       int
	flushes         map[FlushReason]int
	deliveryFailure int
}

func newMetricsMock() *metricsMock {
	return &metricsMock{flushes: map[FlushReason]int{}}
}

func (m *metricsMock) SessionOpened() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened++
}

func (m *metricsMock) SessionClosed(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
}

func (m *metricsMock) FragmentReceived(int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fragments++
}

func (m *metricsMock) FlushCompleted(reason FlushReason, _ audio.Reason, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes[reason]++
}

func (m *metricsMock) DeliveryFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveryFailure++
}

// stepClock advances by step on every read, so each fragment appears step
// after the previous one.
type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}
