package session

import (
	"time"

	"github.com/sjawhar/call-insights/internal/audio"
)

// AudioBuffer accumulates fragment bytes between flushes. Its duration is
// estimated as if the bytes were mono 16-bit PCM at sampleRate.
type AudioBuffer struct {
	data       []byte
	sampleRate int
}

func NewAudioBuffer(sampleRate int) *AudioBuffer {
	return &AudioBuffer{sampleRate: sampleRate}
}

func (b *AudioBuffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

func (b *AudioBuffer) Len() int {
	return len(b.data)
}

func (b *AudioBuffer) Duration() time.Duration {
	return audio.PCMDuration(len(b.data), b.sampleRate)
}

// Flush returns the accumulated bytes and empties the buffer.
func (b *AudioBuffer) Flush() []byte {
	out := b.data
	b.data = nil
	return out
}
