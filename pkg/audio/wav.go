package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/MrWong99/voxclone/pkg/types"
)

// WAV format codes found in the fmt chunk.
const (
	wavFormatPCM        = 1
	wavFormatIEEEFloat  = 3
	wavFormatExtensible = 0xFFFE
)

// ErrMalformedWAV is returned when RIFF/WAVE data cannot be parsed.
var ErrMalformedWAV = errors.New("audio: malformed WAV data")

// wavInfo holds the metadata extracted from a WAV header.
type wavInfo struct {
	Format        int
	Channels      int
	SampleRate    int
	BitsPerSample int
	DataOffset    int
	DataSize      int
}

// parseWAV walks the RIFF chunks in wav and returns the format metadata and
// the location of the sample data. Unknown chunks (LIST, fact, ...) are
// skipped.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, fmt.Errorf("%w: too short to be a RIFF file", ErrMalformedWAV)
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, fmt.Errorf("%w: missing RIFF header", ErrMalformedWAV)
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, fmt.Errorf("%w: missing WAVE identifier", ErrMalformedWAV)
	}

	var info wavInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || offset+8+16 > len(wav) {
				return wavInfo{}, fmt.Errorf("%w: truncated fmt chunk", ErrMalformedWAV)
			}
			fmtData := wav[offset+8:]
			info.Format = int(binary.LittleEndian.Uint16(fmtData[0:2]))
			info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(fmtData[14:16]))
			if info.Format == wavFormatExtensible && chunkSize >= 26 && offset+8+26 <= len(wav) {
				// The first two bytes of the SubFormat GUID carry the real format code.
				info.Format = int(binary.LittleEndian.Uint16(fmtData[24:26]))
			}
			foundFmt = true
		case "data":
			if !foundFmt {
				return wavInfo{}, fmt.Errorf("%w: data chunk before fmt chunk", ErrMalformedWAV)
			}
			info.DataOffset = offset + 8
			// Streamed writers leave the size at 0 or 0xFFFFFFFF.
			info.DataSize = min(chunkSize, len(wav)-info.DataOffset)
			if chunkSize == 0 {
				info.DataSize = len(wav) - info.DataOffset
			}
			return info, nil
		}

		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, fmt.Errorf("%w: missing data chunk", ErrMalformedWAV)
}

// DecodeWAV decodes an in-memory WAV file. Integer PCM (8/16/24/32 bit) and
// IEEE float (32/64 bit) encodings are supported, including their
// WAVE_FORMAT_EXTENSIBLE variants.
func DecodeWAV(wav []byte) (Clip, error) {
	info, err := parseWAV(wav)
	if err != nil {
		return Clip{}, err
	}
	if info.Channels <= 0 || info.SampleRate <= 0 {
		return Clip{}, fmt.Errorf("%w: %d channels at %d Hz", ErrMalformedWAV, info.Channels, info.SampleRate)
	}

	data := wav[info.DataOffset : info.DataOffset+info.DataSize]
	var samples []float32
	switch info.Format {
	case wavFormatPCM:
		samples, err = PCMToFloat32(data, info.BitsPerSample)
	case wavFormatIEEEFloat:
		samples, err = FloatToFloat32(data, info.BitsPerSample)
	default:
		return Clip{}, fmt.Errorf("%w: unsupported WAV format code %#x", ErrUnsupportedFormat, info.Format)
	}
	if err != nil {
		return Clip{}, err
	}

	// Drop a trailing partial frame.
	samples = samples[:len(samples)/info.Channels*info.Channels]
	return Clip{Samples: samples, SampleRate: info.SampleRate, Channels: info.Channels}, nil
}

// EncodeWAV writes w as a single-channel WAV file with 32-bit IEEE float
// samples to dst.
func EncodeWAV(dst io.Writer, w types.Waveform) error {
	if w.SampleRate <= 0 {
		return fmt.Errorf("audio: invalid sample rate %d", w.SampleRate)
	}

	const (
		channels      = 1
		bitsPerSample = 32
		blockAlign    = channels * bitsPerSample / 8
		fmtSize       = 18 // non-PCM formats carry a cbSize field
		factSize      = 4
	)
	dataSize := len(w.Samples) * blockAlign
	riffSize := 4 + (8 + fmtSize) + (8 + factSize) + (8 + dataSize)

	le := binary.LittleEndian
	buf := make([]byte, 0, 12+8+fmtSize+8+factSize+8+dataSize)

	buf = append(buf, "RIFF"...)
	buf = le.AppendUint32(buf, uint32(riffSize))
	buf = append(buf, "WAVE"...)

	buf = append(buf, "fmt "...)
	buf = le.AppendUint32(buf, fmtSize)
	buf = le.AppendUint16(buf, wavFormatIEEEFloat)
	buf = le.AppendUint16(buf, channels)
	buf = le.AppendUint32(buf, uint32(w.SampleRate))
	buf = le.AppendUint32(buf, uint32(w.SampleRate*blockAlign))
	buf = le.AppendUint16(buf, blockAlign)
	buf = le.AppendUint16(buf, bitsPerSample)
	buf = le.AppendUint16(buf, 0)

	buf = append(buf, "fact"...)
	buf = le.AppendUint32(buf, factSize)
	buf = le.AppendUint32(buf, uint32(len(w.Samples)))

	buf = append(buf, "data"...)
	buf = le.AppendUint32(buf, uint32(dataSize))
	for _, s := range w.Samples {
		buf = le.AppendUint32(buf, math.Float32bits(s))
	}

	_, err := dst.Write(buf)
	return err
}

// WriteWAVFile encodes w with [EncodeWAV] and stores it at path, replacing
// any existing file. The data is written to a temporary file in the same
// directory and renamed into place so readers never observe a partial file.
func WriteWAVFile(path string, w types.Waveform) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".voxclone-*.wav")
	if err != nil {
		return fmt.Errorf("audio: create temp file in %q: %w", dir, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = EncodeWAV(tmp, w); err != nil {
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("audio: chmod %q: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("audio: close %q: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("audio: rename to %q: %w", path, err)
	}
	return nil
}
