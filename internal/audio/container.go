package audio

import (
	"bytes"
	"sync"
)

var (
	// wavMagic opens every RIFF/WAVE file.
	wavMagic = []byte("RIFF")
	// ebmlMagic is the EBML master header that starts a WebM/Matroska stream.
	ebmlMagic = []byte{0x1a, 0x45, 0xdf, 0xa3}
)

// Container identifies how an inbound fragment must be treated.
type Container int

const (
	// ContainerFragment is a headerless slice of a streamed container.
	ContainerFragment Container = iota
	// ContainerWAV is already decodable PCM.
	ContainerWAV
	// ContainerEBML carries the streaming container's master header.
	ContainerEBML
)

func (c Container) String() string {
	switch c {
	case ContainerWAV:
		return "wav"
	case ContainerEBML:
		return "ebml"
	default:
		return "fragment"
	}
}

// Detect sniffs the leading magic bytes of b.
func Detect(b []byte) Container {
	switch {
	case bytes.HasPrefix(b, wavMagic):
		return ContainerWAV
	case bytes.HasPrefix(b, ebmlMagic):
		return ContainerEBML
	default:
		return ContainerFragment
	}
}

// HeaderCache holds the master header of a streamed container so that later
// fragments, which the encoder emitted without one, can still be decoded.
// It is written at most once.
type HeaderCache struct {
	mu     sync.RWMutex
	header []byte
}

func NewHeaderCache() *HeaderCache {
	return &HeaderCache{}
}

// Get returns the cached header or nil. A nil cache is always empty.
func (c *HeaderCache) Get() []byte {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.header
}

// Offer stores header if nothing is cached yet and reports whether it did.
// Concurrent first writers race; exactly one wins.
func (c *HeaderCache) Offer(header []byte) bool {
	if c == nil || len(header) == 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.header != nil {
		return false
	}
	c.header = bytes.Clone(header)
	return true
}
