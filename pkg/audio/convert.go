package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Downmix averages interleaved multi-channel samples into a mono signal.
// Mono input (channels <= 1) is returned as a copy. A trailing partial frame
// is dropped.
func Downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}
	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += samples[i*channels+ch]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// PCM16ToFloat32 converts little-endian int16 PCM to float32 samples.
// A trailing odd byte is ignored.
func PCM16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768
	}
	return out
}

// PCMToFloat32 converts little-endian integer PCM of the given bit depth to
// float32 samples. 8-bit PCM is unsigned as per the WAV convention; all
// wider depths are signed.
func PCMToFloat32(data []byte, bits int) ([]float32, error) {
	switch bits {
	case 8:
		out := make([]float32, len(data))
		for i, b := range data {
			out[i] = (float32(b) - 128) / 128
		}
		return out, nil
	case 16:
		return PCM16ToFloat32(data), nil
	case 24:
		out := make([]float32, len(data)/3)
		for i := range out {
			b := data[i*3:]
			v := int32(b[0]) | int32(b[1])<<8 | int32(int8(b[2]))<<16
			out[i] = float32(v) / (1 << 23)
		}
		return out, nil
	case 32:
		out := make([]float32, len(data)/4)
		for i := range out {
			v := int32(binary.LittleEndian.Uint32(data[i*4:]))
			out[i] = float32(float64(v) / (1 << 31))
		}
		return out, nil
	}
	return nil, fmt.Errorf("audio: unsupported PCM bit depth %d", bits)
}

// FloatToFloat32 converts little-endian IEEE float samples (32 or 64 bit) to
// float32 samples.
func FloatToFloat32(data []byte, bits int) ([]float32, error) {
	switch bits {
	case 32:
		out := make([]float32, len(data)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		}
		return out, nil
	case 64:
		out := make([]float32, len(data)/8)
		for i := range out {
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:])))
		}
		return out, nil
	}
	return nil, fmt.Errorf("audio: unsupported float bit depth %d", bits)
}

// IntToFloat32 scales signed integer samples of the given bit depth to
// float32 samples in [-1, 1].
func IntToFloat32(samples []int32, bits int) []float32 {
	if bits < 1 || bits > 32 {
		bits = 16
	}
	scale := float32(int64(1) << (bits - 1))
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / scale
	}
	return out
}
