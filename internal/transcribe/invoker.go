package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
)

// Observer is notified after every provider call.
type Observer interface {
	ObserveTranscription(provider string, elapsed time.Duration, err error)
}

// Invoker runs provider calls on a bounded worker pool so a slow backend
// never stalls a session's fragment loop for longer than its own call.
type Invoker struct {
	provider Provider
	name     string
	pool     *semaphore.Weighted
	observer Observer
	logger   *slog.Logger
}

type result struct {
	text    string
	err     error
	elapsed time.Duration
}

func NewInvoker(provider Provider, name string, workers int, observer Observer, logger *slog.Logger) *Invoker {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		provider: provider,
		name:     name,
		pool:     semaphore.NewWeighted(int64(workers)),
		observer: observer,
		logger:   logger,
	}
}

// Transcribe returns the recognized text of wav, or "" when there is no
// audio, no provider, or the call fails. Failures are logged, never returned.
func (i *Invoker) Transcribe(ctx context.Context, wav []byte, sessionID string, chunk int) string {
	if i == nil || i.provider == nil || len(wav) == 0 {
		return ""
	}
	log := i.logger.With("session_id", sessionID, "chunk", chunk)

	if err := i.pool.Acquire(ctx, 1); err != nil {
		log.Warn("transcription canceled while waiting for a worker", "error", err)
		return ""
	}

	done := make(chan result, 1)
	go func() {
		defer i.pool.Release(1)
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("provider panic: %v", r), elapsed: time.Since(start)}
			}
		}()
		text, err := i.provider.Transcribe(ctx, wav)
		done <- result{text: text, err: err, elapsed: time.Since(start)}
	}()

	select {
	case r := <-done:
		if i.observer != nil {
			i.observer.ObserveTranscription(i.name, r.elapsed, r.err)
		}
		if r.err != nil {
			log.Warn("transcription failed", "provider", i.name, "error", r.err)
			return ""
		}
		log.Debug("transcribed utterance", "provider", i.name, "chars", len(r.text), "elapsed", r.elapsed)
		return r.text
	case <-ctx.Done():
		log.Warn("transcription abandoned", "provider", i.name, "error", ctx.Err())
		return ""
	}
}
