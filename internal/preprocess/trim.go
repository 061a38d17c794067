package preprocess

import (
	"fmt"

	"github.com/MrWong99/voxclone/pkg/provider/vad"
	"github.com/MrWong99/voxclone/pkg/types"
)

// TrimLongSilences drops runs of silence longer than six 30 ms windows.
// Window flags from the detector are smoothed with a moving average of width
// eight and dilated so short pauses between words survive. Trailing samples
// that do not fill a whole window are discarded.
func TrimLongSilences(w types.Waveform, engine vad.Engine) (types.Waveform, error) {
	cfg := vad.Config{
		SampleRate:       w.SampleRate,
		FrameSizeMs:      defaultWindowMs,
		SpeechThreshold:  0.5,
		SilenceThreshold: 0.5,
	}
	sess, err := engine.NewSession(cfg)
	if err != nil {
		return types.Waveform{}, fmt.Errorf("create vad session: %w", err)
	}
	defer sess.Close()

	window := cfg.FrameSamples()
	n := len(w.Samples) / window
	flags := make([]bool, n)
	for i := range n {
		ev, err := sess.ProcessFrame(w.Samples[i*window : (i+1)*window])
		if err != nil {
			return types.Waveform{}, fmt.Errorf("vad window %d: %w", i, err)
		}
		flags[i] = ev.IsSpeech()
	}

	mask := dilate(smooth(flags, defaultAverageWidth), defaultMaxSilence+1)

	out := make([]float32, 0, n*window)
	for i, keep := range mask {
		if keep {
			out = append(out, w.Samples[i*window:(i+1)*window]...)
		}
	}
	return types.Waveform{Samples: out, SampleRate: w.SampleRate}, nil
}

// smooth applies a centred moving average of the given width to flags and
// rounds the result back to booleans.
func smooth(flags []bool, width int) []bool {
	n := len(flags)
	out := make([]bool, n)
	// Prefix sums over a zero-padded signal.
	pad := (width - 1) / 2
	sum := make([]int, n+width)
	for i := range n + width - 1 {
		v := 0
		if j := i - pad; j >= 0 && j < n && flags[j] {
			v = 1
		}
		sum[i+1] = sum[i] + v
	}
	for i := range n {
		count := sum[i+width] - sum[i]
		out[i] = 2*count >= width
	}
	return out
}

// dilate marks every window within width/2 of a set window.
func dilate(mask []bool, width int) []bool {
	n := len(mask)
	out := make([]bool, n)
	half := width / 2
	for i, set := range mask {
		if !set {
			continue
		}
		lo := max(i-half, 0)
		hi := min(i+width-half-1, n-1)
		for j := lo; j <= hi; j++ {
			out[j] = true
		}
	}
	return out
}
