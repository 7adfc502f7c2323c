package audio

import (
	"context"
	"log/slog"
)

// Decoder turns container bytes into canonical PCM WAV.
type Decoder interface {
	Decode(ctx context.Context, input []byte, mode DecodeMode) ([]byte, error)
}

// Reason explains what Normalize did with its input.
type Reason string

const (
	ReasonDecoded         Reason = "decoded"
	ReasonPassthrough     Reason = "passthrough"
	ReasonWrapped         Reason = "wrapped"
	ReasonInputTooSmall   Reason = "input_too_small"
	ReasonDecodeFailed    Reason = "decode_failed"
	ReasonDecodedTooSmall Reason = "decoded_too_small"
)

// Result of a normalization. Empty Audio means the input was unusable;
// Reason says why.
type Result struct {
	Audio    []byte
	Reason   Reason
	Repaired bool
}

type Options struct {
	SampleRate       int
	MinFragmentBytes int
	MinDecodedBytes  int
	HeaderBytes      int
	// RawPCM treats non-WAV input as headerless mono 16-bit PCM and wraps it
	// without invoking the decoder.
	RawPCM bool
}

type Normalizer struct {
	opts    Options
	decoder Decoder
	logger  *slog.Logger
}

func NewNormalizer(opts Options, decoder Decoder, logger *slog.Logger) *Normalizer {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.HeaderBytes <= 0 {
		opts.HeaderBytes = 2048
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{opts: opts, decoder: decoder, logger: logger}
}

// Normalize converts raw into canonical PCM WAV. Fragments of a streamed
// container that lost their master header are repaired from cache, and a
// header seen on a successful decode is offered to cache for later calls.
func (n *Normalizer) Normalize(ctx context.Context, raw []byte, sessionID string, cache *HeaderCache) Result {
	log := n.logger.With("session_id", sessionID)

	if len(raw) < n.opts.MinFragmentBytes {
		log.Debug("audio too small to normalize", "bytes", len(raw))
		return Result{Reason: ReasonInputTooSmall}
	}

	kind := Detect(raw)
	if kind == ContainerWAV {
		return Result{Audio: raw, Reason: ReasonPassthrough}
	}

	if n.opts.RawPCM {
		wrapped, err := EncodePCM16(raw, n.opts.SampleRate)
		if err != nil {
			log.Warn("wrap raw pcm failed", "error", err)
			return Result{Reason: ReasonDecodeFailed}
		}
		return n.checkDecoded(log, Result{Audio: wrapped, Reason: ReasonWrapped})
	}

	input := raw
	repaired := false
	if kind != ContainerEBML {
		if header := cache.Get(); len(header) > 0 {
			input = make([]byte, 0, len(header)+len(raw))
			input = append(input, header...)
			input = append(input, raw...)
			repaired = true
		}
	}

	out, err := n.decoder.Decode(ctx, input, DecodeContainer)
	if err != nil {
		log.Warn("decode failed, retrying as stream", "error", err, "repaired", repaired)
		if ctx.Err() != nil {
			return Result{Reason: ReasonDecodeFailed, Repaired: repaired}
		}
		out, err = n.decoder.Decode(ctx, input, DecodeStream)
		if err != nil {
			log.Warn("stream decode failed", "error", err, "repaired", repaired)
			return Result{Reason: ReasonDecodeFailed, Repaired: repaired}
		}
	}

	if kind == ContainerEBML {
		header := raw[:min(n.opts.HeaderBytes, len(raw))]
		if cache.Offer(header) {
			log.Debug("cached container header", "bytes", len(header))
		}
	}

	return n.checkDecoded(log, Result{Audio: out, Reason: ReasonDecoded, Repaired: repaired})
}

func (n *Normalizer) checkDecoded(log *slog.Logger, res Result) Result {
	if len(res.Audio) < n.opts.MinDecodedBytes {
		log.Debug("decoded audio too small", "bytes", len(res.Audio))
		return Result{Reason: ReasonDecodedTooSmall, Repaired: res.Repaired}
	}
	return res
}
