package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
)

// DecodeFLAC decodes a FLAC stream into interleaved float32 samples.
func DecodeFLAC(r io.Reader) (Clip, error) {
	stream, err := flac.New(r)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: flac: %w", err)
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	bits := int(stream.Info.BitsPerSample)
	if channels == 0 {
		return Clip{}, errors.New("audio: flac: stream declares no channels")
	}

	var interleaved []int32
	if stream.Info.NSamples > 0 {
		interleaved = make([]int32, 0, int(stream.Info.NSamples)*channels)
	}
	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Clip{}, fmt.Errorf("audio: flac: parse frame: %w", err)
		}
		if len(frame.Subframes) != channels {
			return Clip{}, fmt.Errorf("audio: flac: frame has %d subframes, want %d", len(frame.Subframes), channels)
		}
		n := len(frame.Subframes[0].Samples)
		for i := range n {
			for ch := range channels {
				interleaved = append(interleaved, frame.Subframes[ch].Samples[i])
			}
		}
	}

	return Clip{
		Samples:    IntToFloat32(interleaved, bits),
		SampleRate: int(stream.Info.SampleRate),
		Channels:   channels,
	}, nil
}
