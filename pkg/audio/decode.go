package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned when no decoder recognises the input.
var ErrUnsupportedFormat = errors.New("audio: unsupported audio format")

// Decoder reads reference recordings from disk. WAV, MP3 and FLAC are decoded
// natively; any other container (m4a, ogg, opus, ...) is handed to FFmpeg
// when it is configured.
//
// The zero value decodes the native formats only.
type Decoder struct {
	// FFmpeg, when non-nil, decodes formats without a native decoder.
	FFmpeg *FFmpeg
}

// Decode reads and decodes the audio file at path.
func (d *Decoder) Decode(ctx context.Context, path string) (Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: read %q: %w", path, err)
	}
	if len(data) == 0 {
		return Clip{}, fmt.Errorf("audio: %q is empty: %w", path, ErrUnsupportedFormat)
	}

	var clip Clip
	switch sniff(data, path) {
	case "wav":
		clip, err = DecodeWAV(data)
	case "flac":
		clip, err = DecodeFLAC(bytes.NewReader(data))
	case "mp3":
		clip, err = DecodeMP3(bytes.NewReader(data))
	default:
		if d.FFmpeg == nil {
			return Clip{}, fmt.Errorf("audio: %q: %w (no ffmpeg configured)", path, ErrUnsupportedFormat)
		}
		clip, err = d.FFmpeg.Decode(ctx, path)
	}
	if err != nil {
		return Clip{}, fmt.Errorf("audio: decode %q: %w", path, err)
	}
	if clip.Frames() == 0 {
		return Clip{}, fmt.Errorf("audio: %q contains no samples", path)
	}
	return clip, nil
}

// sniff identifies the container from its magic bytes, falling back to the
// file extension for formats without a reliable signature.
func sniff(data []byte, path string) string {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return "wav"
	case len(data) >= 4 && string(data[0:4]) == "fLaC":
		return "flac"
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return "mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0 && data[1]&0x06 != 0:
		// MPEG audio frame sync with a non-reserved layer.
		return "mp3"
	}
	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		return "mp3"
	}
	return ""
}
