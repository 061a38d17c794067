package worker

import (
	"context"
	"fmt"
	"net/http"

	"github.com/MrWong99/voxclone/pkg/provider/encoder"
	"github.com/MrWong99/voxclone/pkg/provider/synthesizer"
	"github.com/MrWong99/voxclone/pkg/provider/vocoder"
	"github.com/MrWong99/voxclone/pkg/types"
)

// Compile-time interface assertions.
var (
	_ encoder.Provider     = (*Encoder)(nil)
	_ synthesizer.Provider = (*Synthesizer)(nil)
	_ vocoder.Provider     = (*Vocoder)(nil)
)

// model is the state shared by every loaded network.
type model struct {
	c          *Client
	handle     string
	modelID    string
	sampleRate int
}

func (m *model) ModelID() string { return m.modelID }

func (m *model) Close() error { return m.c.unload(m.handle) }

// ---- Encoder ----

// Encoder is a speaker encoder loaded into the worker.
type Encoder struct {
	model
	dims int
}

// LoadEncoder loads the encoder checkpoint at path.
func (c *Client) LoadEncoder(ctx context.Context, path string) (encoder.Provider, error) {
	resp, err := c.load(ctx, KindEncoder, path)
	if err != nil {
		return nil, err
	}
	return &Encoder{
		model: model{c: c, handle: resp.Handle, modelID: resp.ModelID, sampleRate: resp.SampleRate},
		dims:  resp.EmbeddingDim,
	}, nil
}

// Embed computes the speaker embedding of wav.
func (e *Encoder) Embed(ctx context.Context, wav types.Waveform) (types.SpeakerEmbedding, error) {
	if e.sampleRate > 0 && wav.SampleRate != e.sampleRate {
		return nil, fmt.Errorf("worker: encoder expects %d Hz input, got %d Hz", e.sampleRate, wav.SampleRate)
	}
	var resp embedResponse
	req := embedRequest{Handle: e.handle, SampleRate: wav.SampleRate, Samples: wav.Samples}
	if err := e.c.do(ctx, http.MethodPost, embedEndpoint, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("worker: encoder returned an empty embedding")
	}
	if e.dims > 0 && len(resp.Embedding) != e.dims {
		return nil, fmt.Errorf("worker: encoder returned %d values, want %d", len(resp.Embedding), e.dims)
	}
	return types.SpeakerEmbedding(resp.Embedding), nil
}

// Dimensions returns the embedding size reported at load time.
func (e *Encoder) Dimensions() int { return e.dims }

// SampleRate returns the input rate the encoder expects.
func (e *Encoder) SampleRate() int { return e.sampleRate }

// ---- Synthesizer ----

// Synthesizer is a text-to-spectrogram model loaded into the worker.
type Synthesizer struct {
	model
}

// LoadSynthesizer loads the synthesizer checkpoint directory at dir.
func (c *Client) LoadSynthesizer(ctx context.Context, dir string) (synthesizer.Provider, error) {
	resp, err := c.load(ctx, KindSynthesizer, dir)
	if err != nil {
		return nil, err
	}
	if resp.SampleRate <= 0 {
		return nil, fmt.Errorf("worker: synthesizer %q reported no sample rate", dir)
	}
	return &Synthesizer{
		model: model{c: c, handle: resp.Handle, modelID: resp.ModelID, sampleRate: resp.SampleRate},
	}, nil
}

// Synthesize produces one spectrogram per (text, embedding) pair.
func (s *Synthesizer) Synthesize(ctx context.Context, texts []string, embeddings []types.SpeakerEmbedding) ([]types.MelSpectrogram, error) {
	if err := synthesizer.CheckBatch(texts, embeddings); err != nil {
		return nil, err
	}
	req := synthesizeRequest{Handle: s.handle, Texts: texts, Embeddings: make([][]float32, len(embeddings))}
	for i, e := range embeddings {
		req.Embeddings[i] = e
	}

	var resp synthesizeResponse
	if err := s.c.do(ctx, http.MethodPost, synthesizeEndpoint, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Spectrograms) != len(texts) {
		return nil, fmt.Errorf("%w: worker returned %d spectrograms for %d texts", synthesizer.ErrBatchMismatch, len(resp.Spectrograms), len(texts))
	}

	rate := resp.SampleRate
	if rate == 0 {
		rate = s.sampleRate
	}
	out := make([]types.MelSpectrogram, len(resp.Spectrograms))
	for i, m := range resp.Spectrograms {
		out[i] = types.MelSpectrogram{Frames: m.Frames, Bins: m.Bins, Data: m.Data, SampleRate: rate}
		if err := out[i].Validate(); err != nil {
			return nil, fmt.Errorf("worker: spectrogram %d: %w", i, err)
		}
	}
	return out, nil
}

// SampleRate returns the output rate of the synthesizer's model family.
func (s *Synthesizer) SampleRate() int { return s.sampleRate }

// ---- Vocoder ----

// Vocoder is a neural vocoder loaded into the worker.
type Vocoder struct {
	model
}

// LoadVocoder loads the vocoder checkpoint at path.
func (c *Client) LoadVocoder(ctx context.Context, path string) (vocoder.Provider, error) {
	resp, err := c.load(ctx, KindVocoder, path)
	if err != nil {
		return nil, err
	}
	return &Vocoder{
		model: model{c: c, handle: resp.Handle, modelID: resp.ModelID, sampleRate: resp.SampleRate},
	}, nil
}

// Vocode reconstructs a waveform from m.
func (v *Vocoder) Vocode(ctx context.Context, m types.MelSpectrogram) (types.Waveform, error) {
	if err := m.Validate(); err != nil {
		return types.Waveform{}, err
	}
	var resp vocodeResponse
	req := vocodeRequest{Handle: v.handle, Mel: mel{Frames: m.Frames, Bins: m.Bins, Data: m.Data}}
	if err := v.c.do(ctx, http.MethodPost, vocodeEndpoint, req, &resp); err != nil {
		return types.Waveform{}, err
	}

	rate := resp.SampleRate
	if rate == 0 {
		rate = m.SampleRate
	}
	if rate == 0 {
		rate = v.sampleRate
	}
	return types.Waveform{Samples: resp.Samples, SampleRate: rate}, nil
}
