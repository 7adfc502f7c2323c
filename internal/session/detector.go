package session

import "time"

type FlushReason string

const (
	FlushMaxDuration FlushReason = "max_duration"
	FlushPause       FlushReason = "pause"
	FlushFinal       FlushReason = "final"
)

// SilenceTracker accumulates wall-clock time spent below the loudness
// threshold. Any fragment at or above the threshold resets it.
type SilenceTracker struct {
	threshold float64
	now       func() time.Time
	last      time.Time
	silence   time.Duration
}

func NewSilenceTracker(threshold float64, now func() time.Time) *SilenceTracker {
	if now == nil {
		now = time.Now
	}
	return &SilenceTracker{threshold: threshold, now: now, last: now()}
}

// Observe records a fragment of the given loudness and returns the
// accumulated silence.
func (t *SilenceTracker) Observe(loudness float64) time.Duration {
	now := t.now()
	elapsed := now.Sub(t.last)
	t.last = now

	if loudness < t.threshold {
		if elapsed > 0 {
			t.silence += elapsed
		}
	} else {
		t.silence = 0
	}
	return t.silence
}

func (t *SilenceTracker) Silence() time.Duration {
	return t.silence
}

func (t *SilenceTracker) Reset() {
	t.silence = 0
}

// FlushPolicy decides when a buffer becomes an utterance.
type FlushPolicy struct {
	MinPause  time.Duration
	MinBuffer time.Duration
	MaxBuffer time.Duration
}

// Evaluate checks the hard maximum first, then a pause over a long enough
// buffer.
func (p FlushPolicy) Evaluate(buffered, silence time.Duration) (FlushReason, bool) {
	if p.MaxBuffer > 0 && buffered >= p.MaxBuffer {
		return FlushMaxDuration, true
	}
	if silence >= p.MinPause && buffered >= p.MinBuffer {
		return FlushPause, true
	}
	return "", false
}
