package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

const (
	pcmChannels = 1
	pcmBitDepth = 16
	bytesPerPCM = pcmBitDepth / 8
)

var errInvalidWAV = errors.New("invalid wav data")

// Format describes decoded PCM.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// PCMDuration returns how long n bytes of mono 16-bit PCM last at sampleRate.
func PCMDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := n / bytesPerPCM
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// EncodePCM16 wraps raw little-endian mono 16-bit samples in a WAV container.
// A trailing odd byte is dropped.
func EncodePCM16(pcm []byte, sampleRate int) ([]byte, error) {
	samples := make([]int, len(pcm)/bytesPerPCM)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: pcmChannels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: pcmBitDepth,
	}

	out := &writerseeker.WriterSeeker{}
	encoder := wav.NewEncoder(out, sampleRate, pcmBitDepth, pcmChannels, 1)
	if err := encoder.Write(buf); err != nil {
		return nil, fmt.Errorf("encoder write buffer: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("encoder close: %w", err)
	}

	riff, err := io.ReadAll(out.Reader())
	if err != nil {
		return nil, fmt.Errorf("read wav into memory: %w", err)
	}
	return riff, nil
}

// DecodeWAV returns the integer samples and format of a RIFF/WAVE payload.
func DecodeWAV(data []byte) ([]int, Format, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, Format{}, errInvalidWAV
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, Format{}, fmt.Errorf("decode wav samples: %w", err)
	}

	return buf.Data, Format{
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
		BitDepth:   int(decoder.BitDepth),
	}, nil
}
