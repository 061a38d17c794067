package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/MrWong99/voxclone/pkg/types"
)

// Resample converts w to the target sample rate using a high-quality
// polyphase resampler. When the rates already match, w is returned as-is.
func Resample(w types.Waveform, rate int) (types.Waveform, error) {
	if rate <= 0 {
		return types.Waveform{}, fmt.Errorf("audio: invalid target sample rate %d", rate)
	}
	if w.SampleRate <= 0 {
		return types.Waveform{}, fmt.Errorf("audio: invalid source sample rate %d", w.SampleRate)
	}
	if w.SampleRate == rate || len(w.Samples) == 0 {
		return types.Waveform{Samples: w.Samples, SampleRate: rate}, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(w.SampleRate),
		OutputRate: float64(rate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return types.Waveform{}, fmt.Errorf("audio: create resampler %d->%d: %w", w.SampleRate, rate, err)
	}

	input := make([]float64, len(w.Samples))
	for i, s := range w.Samples {
		input[i] = float64(s)
	}
	out, err := r.Process(input)
	if err != nil {
		return types.Waveform{}, fmt.Errorf("audio: resample: %w", err)
	}
	tail, err := r.Flush()
	if err != nil {
		return types.Waveform{}, fmt.Errorf("audio: flush resampler: %w", err)
	}
	out = append(out, tail...)

	samples := make([]float32, len(out))
	for i, s := range out {
		samples[i] = float32(s)
	}
	return types.Waveform{Samples: samples, SampleRate: rate}, nil
}
