// Package audio decodes reference recordings, converts between sample
// representations, resamples, and writes the synthesized output as WAV.
//
// Decoded audio is represented as a [Clip]: interleaved float32 samples plus
// the sample rate and channel count. [Clip.Mono] down-mixes to the single
// channel [types.Waveform] consumed by the rest of the pipeline.
package audio

import "github.com/MrWong99/voxclone/pkg/types"

// Clip is decoded audio with interleaved float32 samples in [-1, 1].
type Clip struct {
	// Samples is interleaved when Channels > 1 (L, R, L, R, ...).
	Samples []float32

	// SampleRate in Hz.
	SampleRate int

	// Channels is the number of interleaved channels (1 = mono).
	Channels int
}

// Frames returns the number of sample frames (samples per channel).
func (c Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Mono down-mixes c to a single channel by averaging all channels.
func (c Clip) Mono() types.Waveform {
	return types.Waveform{
		Samples:    Downmix(c.Samples, c.Channels),
		SampleRate: c.SampleRate,
	}
}
