package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sjawhar/call-insights/internal/audio"
	"github.com/sjawhar/call-insights/internal/sentiment"
	"github.com/sjawhar/call-insights/internal/storage"
	"github.com/sjawhar/call-insights/internal/transcribe"
)

// Config holds the per-session tunables. Zero durations fall back to the
// defaults in withDefaults.
type Config struct {
	SampleRate       int
	SilenceThreshold float64
	MinPause         time.Duration
	MinBuffer        time.Duration
	MaxBuffer        time.Duration
	MinFinalBytes    int
	CloseTimeout     time.Duration
	// SharedHeaders, when set, is used by every session instead of a
	// per-session header cache.
	SharedHeaders *audio.HeaderCache
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.MinPause <= 0 {
		c.MinPause = 2 * time.Second
	}
	if c.MinBuffer <= 0 {
		c.MinBuffer = 5 * time.Second
	}
	if c.MaxBuffer <= 0 {
		c.MaxBuffer = 12 * time.Second
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = 5 * time.Second
	}
	return c
}

// Session owns one connection's audio. A single consumer goroutine drains
// the queue and is the only writer of buffer, silence, chunk and transcript.
type Session struct {
	id        string
	startedAt time.Time
	cfg       Config
	deps      Deps
	sink      Sink
	log       *slog.Logger

	queue   *fragmentQueue
	headers *audio.HeaderCache
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	closeOnce sync.Once
	forced    atomic.Bool
	chunks    atomic.Int64

	// consumer-owned
	buffer     *AudioBuffer
	silence    *SilenceTracker
	policy     FlushPolicy
	chunk      int
	transcript string
}

func newSession(id string, sink Sink, cfg Config, deps Deps) *Session {
	cfg = cfg.withDefaults()
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        id,
		startedAt: time.Now().UTC(),
		cfg:       cfg,
		deps:      deps,
		sink:      sink,
		log:       deps.Logger.With("session_id", id),
		queue:     newFragmentQueue(),
		headers:   cfg.SharedHeaders,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		buffer:    NewAudioBuffer(cfg.SampleRate),
		silence:   NewSilenceTracker(cfg.SilenceThreshold, deps.Now),
		policy:    FlushPolicy{MinPause: cfg.MinPause, MinBuffer: cfg.MinBuffer, MaxBuffer: cfg.MaxBuffer},
	}
	if s.headers == nil {
		s.headers = audio.NewHeaderCache()
	}

	if deps.Store != nil {
		if err := deps.Store.CreateSession(id, s.startedAt); err != nil {
			s.log.Warn("record session start failed", "error", err)
		}
	}
	if deps.Events != nil {
		deps.Events.BroadcastSessionStarted(id)
	}
	deps.Metrics.SessionOpened()
	s.log.Info("session started")

	go s.run()
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// Chunks is the number of flushes performed so far.
func (s *Session) Chunks() int {
	return int(s.chunks.Load())
}

// Done is closed when the consumer has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Enqueue hands a fragment to the consumer and takes ownership of data. It
// never blocks and is a no-op once the session is closing.
func (s *Session) Enqueue(data []byte) {
	if len(data) == 0 {
		return
	}
	if !s.queue.push(data) {
		s.log.Debug("fragment dropped, session closing", "bytes", len(data))
	}
}

// Close asks the consumer to drain and perform its final flush, waiting up
// to the close timeout before canceling it. It is safe to call repeatedly.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.queue.close()

		timer := time.NewTimer(s.cfg.CloseTimeout)
		defer timer.Stop()

		select {
		case <-s.done:
		case <-timer.C:
			s.log.Warn("session did not drain in time, canceling", "timeout", s.cfg.CloseTimeout, "pending", s.queue.len())
			s.forced.Store(true)
			s.cancel()
			<-s.done
		}
		s.cancel()
	})
	<-s.done
}

func (s *Session) run() {
	status := storage.StatusCompleted
	defer func() {
		if n := s.queue.shutdown(); n > 0 {
			s.log.Warn("consumer exited with fragments pending", "dropped", n)
		}
		if s.forced.Load() {
			status = storage.StatusCanceled
		}
		s.finish(status)
		close(s.done)
	}()

	for {
		item, ok := s.queue.pop(s.ctx)
		if !ok {
			return
		}
		if item.close {
			if err := s.safely(s.finalFlush); err != nil {
				s.log.Error("final flush failed", "error", err)
				status = storage.StatusFailed
			}
			return
		}
		if err := s.safely(func() { s.handleFragment(item.data) }); err != nil {
			s.log.Error("session consumer failed", "error", err)
			status = storage.StatusFailed
			if err := s.safely(s.finalFlush); err != nil {
				s.log.Error("final flush failed", "error", err)
			}
			return
		}
	}
}

func (s *Session) safely(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	fn()
	return nil
}

func (s *Session) handleFragment(data []byte) {
	s.buffer.Append(data)
	s.deps.Metrics.FragmentReceived(len(data))

	silence := s.silence.Observe(audio.Loudness(data))
	if reason, ok := s.policy.Evaluate(s.buffer.Duration(), silence); ok {
		s.flush(reason)
	}
}

func (s *Session) finalFlush() {
	if s.buffer.Len() > s.cfg.MinFinalBytes {
		s.flush(FlushFinal)
		return
	}
	if n := s.buffer.Len(); n > 0 {
		s.log.Debug("discarding short tail", "bytes", n)
		s.buffer.Flush()
	}
}

// flush runs normalize, transcribe, stitch, classify and deliver for the
// current buffer before the consumer takes the next fragment.
func (s *Session) flush(reason FlushReason) {
	start := time.Now()
	raw := s.buffer.Flush()
	s.silence.Reset()
	s.chunk++
	s.chunks.Store(int64(s.chunk))
	chunk := s.chunk
	log := s.log.With("chunk", chunk, "reason", reason)

	res := audio.Result{Reason: audio.ReasonDecodeFailed}
	if s.deps.Normalizer != nil {
		res = s.deps.Normalizer.Normalize(s.ctx, raw, s.id, s.headers)
	}
	if len(res.Audio) == 0 {
		log.Debug("no usable audio", "normalize", res.Reason, "bytes", len(raw))
	}

	var text string
	if s.deps.Transcriber != nil {
		text = s.deps.Transcriber.Transcribe(s.ctx, res.Audio, s.id, chunk)
	}

	label := sentiment.Neutral
	if text != "" && s.deps.Classifier != nil {
		label = s.deps.Classifier.Classify(s.ctx, text)
	}

	s.transcript = transcribe.Stitch(s.transcript, text)

	msg := Message{Transcript: s.transcript, Sentiment: label, Chunk: chunk}
	if s.sink != nil {
		if err := s.sink.Deliver(s.ctx, msg); err != nil {
			log.Warn("delivery failed", "error", err)
			s.deps.Metrics.DeliveryFailed()
		}
	}

	now := time.Now().UTC()
	if text != "" && s.deps.Events != nil {
		s.deps.Events.BroadcastTranscript(transcribe.Utterance{
			SessionID: s.id,
			Chunk:     chunk,
			Text:      text,
			Sentiment: string(label),
			Timestamp: now,
		}, s.transcript)
	}
	if s.deps.Store != nil {
		rec := storage.FlushRecord{
			SessionID:       s.id,
			Chunk:           chunk,
			Reason:          string(reason),
			AudioBytes:      len(raw),
			PCMBytes:        len(res.Audio),
			Normalize:       string(res.Reason),
			TranscriptChars: len(text),
			Sentiment:       string(label),
			FlushedAt:       now,
		}
		if err := s.deps.Store.RecordFlush(rec); err != nil {
			log.Warn("record flush failed", "error", err)
		}
	}

	elapsed := time.Since(start)
	s.deps.Metrics.FlushCompleted(reason, res.Reason, elapsed)
	log.Info("flushed", "audio_bytes", len(raw), "pcm_bytes", len(res.Audio), "chars", len(text), "sentiment", label, "elapsed", elapsed)
}

func (s *Session) finish(status string) {
	endedAt := time.Now().UTC()
	if s.deps.Store != nil {
		if err := s.deps.Store.EndSession(s.id, endedAt, status, s.chunk); err != nil {
			s.log.Warn("record session end failed", "error", err)
		}
	}
	if s.deps.Events != nil {
		s.deps.Events.BroadcastSessionEnded(s.id, endedAt.Sub(s.startedAt), s.chunk)
	}
	s.deps.Metrics.SessionClosed(status)
	s.log.Info("session ended", "status", status, "chunks", s.chunk)
}
