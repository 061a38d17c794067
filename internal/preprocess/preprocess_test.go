package preprocess

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/voxclone/pkg/audio"
	"github.com/MrWong99/voxclone/pkg/provider/vad"
	vadmock "github.com/MrWong99/voxclone/pkg/provider/vad/mock"
	"github.com/MrWong99/voxclone/pkg/types"
)

func sine(n, rate int, freq, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func writeWAV(t *testing.T, name string, w types.Waveform) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := audio.WriteWAVFile(path, w); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReference_Preprocess(t *testing.T) {
	t.Parallel()

	const rate = 16000
	var samples []float32
	samples = append(samples, sine(rate/2, rate, 220, 0.3)...)
	samples = append(samples, make([]float32, rate)...)
	samples = append(samples, sine(rate/2, rate, 220, 0.3)...)
	path := writeWAV(t, "voiceA.wav", types.Waveform{Samples: samples, SampleRate: rate})

	ref, err := New().Preprocess(context.Background(), path)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if ref.Path != path {
		t.Errorf("Path = %q, want %q", ref.Path, path)
	}
	if ref.Waveform.SampleRate != DefaultSampleRate {
		t.Errorf("SampleRate = %d, want %d", ref.Waveform.SampleRate, DefaultSampleRate)
	}
	in := len(samples)
	if got := ref.Waveform.Len(); got >= in*7/10 || got <= in*45/100 {
		t.Errorf("trimmed length = %d, want between 45%% and 70%% of %d", got, in)
	}
}

func TestReference_PreprocessResamples(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, "voice.wav", types.Waveform{Samples: sine(44100, 44100, 440, 0.3), SampleRate: 44100})

	ref, err := New(WithTrimSilence(false)).Preprocess(context.Background(), path)
	if err != nil {
		t.Fatalf("Preprocess: %v", err)
	}
	if ref.Waveform.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", ref.Waveform.SampleRate)
	}
	if n := ref.Waveform.Len(); n < 14400 || n > 17600 {
		t.Errorf("Len = %d, want about 16000", n)
	}
}

func TestReference_PreprocessErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	corrupt := filepath.Join(dir, "corrupt.wav")
	if err := os.WriteFile(corrupt, []byte("RIFF\x10\x00\x00\x00WAVEjunkjunk"), 0o644); err != nil {
		t.Fatal(err)
	}
	text := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(text, []byte("not audio at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	silent := writeWAV(t, "silent.wav", types.Waveform{Samples: make([]float32, 16000), SampleRate: 16000})

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"missing", filepath.Join(dir, "nope.wav"), os.ErrNotExist},
		{"corrupt wav", corrupt, ErrUndecodable},
		{"unknown format", text, ErrUndecodable},
		{"digital silence", silent, ErrSilent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New().Preprocess(context.Background(), tt.path)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Preprocess error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	quiet := types.Waveform{Samples: sine(16000, 16000, 200, 0.01), SampleRate: 16000}
	got, err := Normalize(quiet, -30)
	if err != nil {
		t.Fatal(err)
	}
	if db := vad.RMSDBFS(got.Samples); math.Abs(db+30) > 0.01 {
		t.Errorf("normalised level = %.3f dBFS, want -30", db)
	}
	if quiet.Samples[100] != sine(16000, 16000, 200, 0.01)[100] {
		t.Error("Normalize modified its input")
	}

	loud := types.Waveform{Samples: sine(16000, 16000, 200, 0.5), SampleRate: 16000}
	got, err = Normalize(loud, -30)
	if err != nil {
		t.Fatal(err)
	}
	if got.Samples[100] != loud.Samples[100] {
		t.Error("Normalize lowered a loud waveform")
	}

	if _, err := Normalize(types.Waveform{Samples: make([]float32, 10), SampleRate: 16000}, -30); !errors.Is(err, ErrSilent) {
		t.Errorf("Normalize(silence) error = %v, want ErrSilent", err)
	}
}

func scripted(pattern ...int) []vad.Event {
	var evs []vad.Event
	speech := true
	for _, n := range pattern {
		for range n {
			if speech {
				evs = append(evs, vad.Event{Type: vad.SpeechContinue, Probability: 1})
			} else {
				evs = append(evs, vad.Event{Type: vad.Silence})
			}
		}
		speech = !speech
	}
	return evs
}

func TestTrimLongSilences(t *testing.T) {
	t.Parallel()

	const window = 480 // 30 ms at 16 kHz

	tests := []struct {
		name        string
		pattern     []int // alternating speech/silence window counts
		wantWindows int
	}{
		{"short pause kept", []int{10, 3, 10}, 23},
		{"long pause dropped", []int{10, 20, 10}, 27},
		{"speech only", []int{12}, 12},
		{"silence only", []int{0, 15}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			evs := scripted(tt.pattern...)
			eng := &vadmock.Engine{Session: &vadmock.Session{Events: evs}}
			// A partial trailing window is discarded.
			w := types.Waveform{Samples: make([]float32, len(evs)*window+100), SampleRate: 16000}

			got, err := TrimLongSilences(w, eng)
			if err != nil {
				t.Fatal(err)
			}
			if got.Len() != tt.wantWindows*window {
				t.Errorf("kept %d samples, want %d windows (%d samples)", got.Len(), tt.wantWindows, tt.wantWindows*window)
			}
			if len(eng.Configs) != 1 || eng.Configs[0].FrameSizeMs != 30 {
				t.Errorf("NewSession configs = %+v", eng.Configs)
			}
		})
	}
}

func TestTrimLongSilences_VADError(t *testing.T) {
	t.Parallel()

	boom := errors.New("detector failed")
	eng := &vadmock.Engine{Session: &vadmock.Session{ProcessFrameErr: boom}}
	_, err := TrimLongSilences(types.Waveform{Samples: make([]float32, 4800), SampleRate: 16000}, eng)
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
	if s := eng.Session.(*vadmock.Session); s.CloseCallCount != 1 {
		t.Errorf("session closed %d times, want 1", s.CloseCallCount)
	}
}
