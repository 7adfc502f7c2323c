package audio

import (
	"encoding/binary"
	"math"
)

// Loudness returns the root-mean-square sample magnitude of a fragment.
// WAV fragments are decoded first; anything else is read as raw
// little-endian 16-bit samples. Fragments that cannot be read as samples
// count as silence.
func Loudness(fragment []byte) float64 {
	if Detect(fragment) == ContainerWAV {
		samples, _, err := DecodeWAV(fragment)
		if err != nil {
			return 0
		}
		return rmsInts(samples)
	}

	if len(fragment) == 0 || len(fragment)%bytesPerPCM != 0 {
		return 0
	}

	var sum float64
	n := len(fragment) / bytesPerPCM
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(fragment[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

func rmsInts(samples []int) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
