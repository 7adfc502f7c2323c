package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/sjawhar/call-insights/internal/audio"
	"github.com/sjawhar/call-insights/internal/sentiment"
	"github.com/sjawhar/call-insights/internal/storage"
	"github.com/sjawhar/call-insights/internal/transcribe"
)

// Message is delivered to the connection after every flush.
type Message struct {
	Transcript string          `json:"transcript"`
	Sentiment  sentiment.Label `json:"sentiment"`
	Chunk      int             `json:"chunk"`
}

// Sink delivers flush results to the peer. Errors are logged and otherwise
// ignored by the session.
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}

type Normalizer interface {
	Normalize(ctx context.Context, raw []byte, sessionID string, cache *audio.HeaderCache) audio.Result
}

type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte, sessionID string, chunk int) string
}

type Classifier interface {
	Classify(ctx context.Context, text string) sentiment.Label
}

type Store interface {
	CreateSession(id string, startedAt time.Time) error
	RecordFlush(rec storage.FlushRecord) error
	EndSession(id string, endedAt time.Time, status string, chunks int) error
}

type EventBroadcaster interface {
	BroadcastSessionStarted(sessionID string)
	BroadcastTranscript(u transcribe.Utterance, running string)
	BroadcastSessionEnded(sessionID string, duration time.Duration, chunks int)
}

type Metrics interface {
	SessionOpened()
	SessionClosed(status string)
	FragmentReceived(bytes int)
	FlushCompleted(reason FlushReason, normalize audio.Reason, elapsed time.Duration)
	DeliveryFailed()
}

type nopMetrics struct{}

func (nopMetrics) SessionOpened()                                          {}
func (nopMetrics) SessionClosed(string)                                    {}
func (nopMetrics) FragmentReceived(int)                                    {}
func (nopMetrics) FlushCompleted(FlushReason, audio.Reason, time.Duration) {}
func (nopMetrics) DeliveryFailed()                                         {}

// Deps are the collaborators shared by every session of a Registry. Any of
// them may be nil; a session without a Normalizer or Transcriber still
// flushes, delivering empty transcripts.
type Deps struct {
	Normalizer  Normalizer
	Transcriber Transcriber
	Classifier  Classifier
	Store       Store
	Events      EventBroadcaster
	Metrics     Metrics
	Logger      *slog.Logger
	// Now drives silence accounting; defaults to time.Now.
	Now func() time.Time
}
