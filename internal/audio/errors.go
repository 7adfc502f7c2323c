package audio

import "errors"

var (
	ErrInputTooSmall = errors.New("audio input too small")
	ErrDecodeFailed  = errors.New("audio decode failed")
)

// Err maps a failing Reason to its sentinel error, or nil when the Result
// carries usable audio.
func (r Reason) Err() error {
	switch r {
	case ReasonInputTooSmall, ReasonDecodedTooSmall:
		return ErrInputTooSmall
	case ReasonDecodeFailed:
		return ErrDecodeFailed
	default:
		return nil
	}
}
