package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// DecodeMode selects how the decoder interprets its input.
type DecodeMode int

const (
	// DecodeContainer lets the decoder probe the input as a seekable file.
	DecodeContainer DecodeMode = iota
	// DecodeStream feeds the input as a forced WebM elementary stream on stdin,
	// which tolerates fragments the prober rejects.
	DecodeStream
)

func (m DecodeMode) String() string {
	if m == DecodeStream {
		return "stream"
	}
	return "container"
}

// FFmpegDecoder transcodes arbitrary audio into mono 16-bit PCM WAV by
// running an ffmpeg subprocess.
type FFmpegDecoder struct {
	Path       string
	SampleRate int
	Filter     string
}

func NewFFmpegDecoder(path string, sampleRate int, filter string) *FFmpegDecoder {
	if path == "" {
		path = "ffmpeg"
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &FFmpegDecoder{Path: path, SampleRate: sampleRate, Filter: filter}
}

func (d *FFmpegDecoder) Decode(ctx context.Context, input []byte, mode DecodeMode) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "call-insights-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	outputPath := filepath.Join(tmpDir, "out.wav")
	args := []string{"-y", "-hide_banner", "-loglevel", "warning"}

	var stdin *bytes.Reader
	switch mode {
	case DecodeStream:
		args = append(args, "-f", "webm", "-i", "pipe:0")
		stdin = bytes.NewReader(input)
	default:
		inputPath := filepath.Join(tmpDir, "in.webm")
		if err := os.WriteFile(inputPath, input, 0o600); err != nil {
			return nil, fmt.Errorf("write decoder input: %w", err)
		}
		args = append(args, "-i", inputPath)
	}

	args = append(args, d.outputArgs(outputPath)...)

	cmd := exec.CommandContext(ctx, d.Path, args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg %s decode: %w: %s", ErrDecodeFailed, mode, err, excerpt(stderr.String(), 300))
	}

	out, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("read decoder output: %w", err)
	}
	return out, nil
}

func (d *FFmpegDecoder) outputArgs(outputPath string) []string {
	args := []string{
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(d.SampleRate),
		"-ac", "1",
	}
	if strings.TrimSpace(d.Filter) != "" {
		args = append(args, "-af", d.Filter)
	}
	return append(args, outputPath)
}

func excerpt(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
