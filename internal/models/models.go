// Package models loads the speaker encoder, synthesizer and vocoder once per
// process and hands them out as an immutable [Bundle].
//
// Loading is all-or-nothing: artifacts are validated locally first, then the
// three networks are loaded in order (encoder, synthesizer, vocoder). Any
// failure closes whatever was already loaded and is fatal for the caller.
package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/voxclone/internal/accel"
	"github.com/MrWong99/voxclone/pkg/provider/encoder"
	"github.com/MrWong99/voxclone/pkg/provider/synthesizer"
	"github.com/MrWong99/voxclone/pkg/provider/vocoder"
)

// Backend loads model artifacts into an inference runtime.
type Backend interface {
	LoadEncoder(ctx context.Context, path string) (encoder.Provider, error)
	LoadSynthesizer(ctx context.Context, dir string) (synthesizer.Provider, error)
	LoadVocoder(ctx context.Context, path string) (vocoder.Provider, error)
}

// Bundle holds the loaded networks and the accelerator they run on. It is
// created by [Load] and never modified afterwards.
type Bundle struct {
	accel       accel.Info
	paths       Paths
	encoder     encoder.Provider
	synthesizer synthesizer.Provider
	vocoder     vocoder.Provider
}

// Accelerator returns the device selected for inference.
func (b *Bundle) Accelerator() accel.Info { return b.accel }

// Paths returns the artifact locations the bundle was loaded from.
func (b *Bundle) Paths() Paths { return b.paths }

// Encoder returns the speaker encoder.
func (b *Bundle) Encoder() encoder.Provider { return b.encoder }

// Synthesizer returns the text-to-spectrogram model.
func (b *Bundle) Synthesizer() synthesizer.Provider { return b.synthesizer }

// Vocoder returns the spectrogram-to-waveform model.
func (b *Bundle) Vocoder() vocoder.Provider { return b.vocoder }

// SampleRate returns the output sample rate of the synthesizer.
func (b *Bundle) SampleRate() int { return b.synthesizer.SampleRate() }

// Close releases all three models. Errors are joined.
func (b *Bundle) Close() error {
	var errs []error
	for _, c := range []interface{ Close() error }{b.vocoder, b.synthesizer, b.encoder} {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load validates p and loads the three networks through backend. info is the
// accelerator previously validated by [accel.Guard].
func Load(ctx context.Context, backend Backend, info accel.Info, p Paths) (*Bundle, error) {
	if err := ValidatePaths(p); err != nil {
		return nil, err
	}

	b := &Bundle{accel: info, paths: p}
	var loaded []interface{ Close() error }
	fail := func(err error) (*Bundle, error) {
		for i := len(loaded) - 1; i >= 0; i-- {
			if cerr := loaded[i].Close(); cerr != nil {
				slog.Warn("failed to release model after load error", "err", cerr)
			}
		}
		return nil, err
	}

	start := time.Now()
	enc, err := backend.LoadEncoder(ctx, p.Encoder)
	if err != nil {
		return fail(fmt.Errorf("models: load encoder %q: %w", p.Encoder, err))
	}
	b.encoder = enc
	loaded = append(loaded, enc)
	slog.Info("encoder loaded", "path", p.Encoder, "model", enc.ModelID(), "dims", enc.Dimensions(), "elapsed", time.Since(start))

	start = time.Now()
	syn, err := backend.LoadSynthesizer(ctx, p.SynthesizerCheckpoint())
	if err != nil {
		return fail(fmt.Errorf("models: load synthesizer %q: %w", p.SynthesizerCheckpoint(), err))
	}
	b.synthesizer = syn
	loaded = append(loaded, syn)
	if syn.SampleRate() <= 0 {
		return fail(fmt.Errorf("models: synthesizer %q reports sample rate %d", p.SynthesizerCheckpoint(), syn.SampleRate()))
	}
	slog.Info("synthesizer loaded", "path", p.SynthesizerCheckpoint(), "model", syn.ModelID(), "sample_rate", syn.SampleRate(), "elapsed", time.Since(start))

	start = time.Now()
	voc, err := backend.LoadVocoder(ctx, p.Vocoder)
	if err != nil {
		return fail(fmt.Errorf("models: load vocoder %q: %w", p.Vocoder, err))
	}
	b.vocoder = voc
	slog.Info("vocoder loaded", "path", p.Vocoder, "model", voc.ModelID(), "elapsed", time.Since(start))

	return b, nil
}

// NewBundle assembles a Bundle from already-loaded providers. It is meant for
// tests and for embedding the pipeline in other programs.
func NewBundle(info accel.Info, enc encoder.Provider, syn synthesizer.Provider, voc vocoder.Provider) *Bundle {
	return &Bundle{accel: info, encoder: enc, synthesizer: syn, vocoder: voc}
}
