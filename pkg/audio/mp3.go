package audio

import (
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 decodes an MPEG-1/2 Layer III stream. The decoder always emits
// 16-bit stereo, so the returned clip has two channels.
func DecodeMP3(r io.Reader) (Clip, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: mp3: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return Clip{}, fmt.Errorf("audio: mp3: read samples: %w", err)
	}
	return Clip{
		Samples:    PCM16ToFloat32(pcm),
		SampleRate: dec.SampleRate(),
		Channels:   2,
	}, nil
}
