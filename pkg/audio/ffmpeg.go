package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpeg decodes arbitrary containers by running the ffmpeg binary and
// reading raw float32 mono samples from its stdout.
type FFmpeg struct {
	// Path is the ffmpeg executable. Empty means "ffmpeg" from $PATH.
	Path string

	// SampleRate is the rate ffmpeg resamples to. Zero keeps ffmpeg's
	// default of 16000 Hz.
	SampleRate int
}

// Available reports whether the ffmpeg executable can be found.
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.bin())
	return err == nil
}

func (f *FFmpeg) bin() string {
	if f.Path == "" {
		return "ffmpeg"
	}
	return f.Path
}

// Decode converts the file at path to mono float32 at f.SampleRate.
func (f *FFmpeg) Decode(ctx context.Context, path string) (Clip, error) {
	rate := f.SampleRate
	if rate <= 0 {
		rate = 16000
	}

	cmd := exec.CommandContext(ctx, f.bin(),
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-i", path,
		"-f", "f32le", "-acodec", "pcm_f32le",
		"-ac", "1", "-ar", strconv.Itoa(rate),
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return Clip{}, fmt.Errorf("audio: ffmpeg not found: %w", ErrUnsupportedFormat)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return Clip{}, fmt.Errorf("audio: ffmpeg failed: %w\nstderr: %s", err, msg)
		}
		return Clip{}, fmt.Errorf("audio: ffmpeg failed: %w", err)
	}

	samples, err := FloatToFloat32(stdout.Bytes(), 32)
	if err != nil {
		return Clip{}, err
	}
	return Clip{Samples: samples, SampleRate: rate, Channels: 1}, nil
}
