// Package pipeline clones a reference voice onto typed sentences.
//
// The reference voice is preprocessed and embedded exactly once
// ([Pipeline.PrepareVoice]). Each [Pipeline.Cycle] then reads a sentence,
// synthesizes a mel spectrogram conditioned on the embedding, vocodes it,
// appends one second of silence and writes a float32 mono WAV file.
//
// [Pipeline.Run] drives the cycles. A failing cycle is reported to the
// operator and the loop restarts with the same embedding; models and the
// embedding are never recomputed. The loop ends when the input is closed,
// the context is cancelled, the first success in one-shot mode, or when
// the optional retry budget runs out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/voxclone/internal/models"
	"github.com/MrWong99/voxclone/internal/observe"
	"github.com/MrWong99/voxclone/internal/preprocess"
	"github.com/MrWong99/voxclone/internal/prompt"
	"github.com/MrWong99/voxclone/internal/resilience"
	"github.com/MrWong99/voxclone/pkg/audio"
	"github.com/MrWong99/voxclone/pkg/types"
)

// ErrRetriesExhausted is returned by [Pipeline.Run] when the configured number
// of consecutive cycles failed.
var ErrRetriesExhausted = resilience.ErrRetriesExhausted

// ErrNoVoice is returned when the operator supplies an empty reference path.
var ErrNoVoice = errors.New("pipeline: no reference voice given")

// Stage names a step of the pipeline. It labels errors, spans and metrics.
type Stage string

const (
	StagePreprocess Stage = "preprocess"
	StageEmbed      Stage = "embed"
	StageText       Stage = "text"
	StageSynthesize Stage = "synthesize"
	StageVocode     Stage = "vocode"
	StageWrite      Stage = "write"
)

// StageError records which stage failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Voice is the reference speaker prepared once per process.
type Voice struct {
	Reference types.ReferenceAudio

	// Embeddings holds a single embedding. It is passed to the synthesizer
	// unchanged on every cycle.
	Embeddings []types.SpeakerEmbedding
}

// Result is the outcome of one cycle.
type Result struct {
	Cycle int    `json:"cycle"`
	Text  string `json:"text,omitempty"`

	// Path, Samples, RawSamples and SampleRate are set on success. Samples
	// includes the trailing silence; RawSamples is the vocoder output.
	Path       string        `json:"path,omitempty"`
	Samples    int           `json:"samples,omitempty"`
	RawSamples int           `json:"raw_samples,omitempty"`
	SampleRate int           `json:"sample_rate,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`

	// Stage and Err are set on failure.
	Stage Stage `json:"stage,omitempty"`
	Err   error `json:"-"`
}

// OK reports whether the cycle wrote an output file.
func (r Result) OK() bool { return r.Err == nil }

// Config holds the per-run settings.
type Config struct {
	// VoicePath is the reference recording. Empty means ask the operator.
	VoicePath string

	// OutputPath is replaced on every successful cycle.
	OutputPath string

	// Once stops the loop after the first successful cycle.
	Once bool

	// MaxRetries is the number of retries allowed after a failed cycle before
	// Run gives up; a success resets the count. Zero means unlimited.
	MaxRetries int
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithVoiceSource sets where the reference path is read from when
// Config.VoicePath is empty.
func WithVoiceSource(s prompt.Source) Option {
	return func(p *Pipeline) { p.voiceSrc = s }
}

// WithTextSource sets where sentences are read from.
func WithTextSource(s prompt.Source) Option {
	return func(p *Pipeline) { p.textSrc = s }
}

// WithOutput sets the writer for operator-facing progress messages.
// Default: os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(p *Pipeline) { p.out = w }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// Pipeline owns the cycle loop. It is single-caller: Run, PrepareVoice and
// Cycle must not be called concurrently. [Pipeline.Snapshot] may be called
// from any goroutine.
type Pipeline struct {
	bundle   *models.Bundle
	pre      preprocess.Preprocessor
	cfg      Config
	voiceSrc prompt.Source
	textSrc  prompt.Source
	out      io.Writer
	metrics  *observe.Metrics
	budget   *resilience.Budget

	mu       sync.Mutex
	snapshot Snapshot
}

// New creates a Pipeline over an already loaded bundle.
func New(bundle *models.Bundle, pre preprocess.Preprocessor, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		bundle: bundle,
		pre:    pre,
		cfg:    cfg,
		out:    os.Stdout,
		budget: resilience.NewBudget(resilience.BudgetConfig{Name: "cycles", MaxRetries: cfg.MaxRetries}),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if p.textSrc == nil {
		p.textSrc = prompt.NewScanner(os.Stdin, p.out)
	}
	if p.voiceSrc == nil {
		p.voiceSrc = p.textSrc
	}
	return p
}

// ─── Voice preparation ───────────────────────────────────────────────────────

// PrepareVoice resolves, preprocesses and embeds the reference voice. Every
// error is fatal for the process and is wrapped in a [*StageError].
func (p *Pipeline) PrepareVoice(ctx context.Context) (Voice, error) {
	path := p.cfg.VoicePath
	if path == "" {
		line, err := p.voiceSrc.Read(ctx, prompt.VoiceQuestion)
		if err != nil {
			return Voice{}, &StageError{Stage: StagePreprocess, Err: err}
		}
		path = strings.TrimSpace(prompt.StripQuotes(line))
		if path == "" {
			return Voice{}, &StageError{Stage: StagePreprocess, Err: ErrNoVoice}
		}
	}
	fmt.Fprintf(p.out, "Input voice file: %s\n", path)

	var ref types.ReferenceAudio
	err := p.stage(ctx, StagePreprocess, func(ctx context.Context) error {
		var err error
		ref, err = p.pre.Preprocess(ctx, path)
		return err
	})
	if err != nil {
		return Voice{}, err
	}

	var emb types.SpeakerEmbedding
	err = p.stage(ctx, StageEmbed, func(ctx context.Context) error {
		var err error
		emb, err = p.bundle.Encoder().Embed(ctx, ref.Waveform)
		return err
	})
	if err != nil {
		return Voice{}, err
	}

	observe.Logger(ctx).Info("reference voice embedded",
		"path", path,
		"duration", ref.Waveform.Duration(),
		"dims", emb.Dim(),
	)
	return Voice{Reference: ref, Embeddings: []types.SpeakerEmbedding{emb}}, nil
}

// ─── Cycle ───────────────────────────────────────────────────────────────────

// Cycle runs one text-to-file pass with voice. It never panics on model
// failures; the error and failing stage are reported in the Result.
func (p *Pipeline) Cycle(ctx context.Context, voice Voice) Result {
	start := time.Now()
	res := Result{}
	fail := func(err error) Result {
		var se *StageError
		if errors.As(err, &se) {
			res.Stage = se.Stage
		}
		res.Err = err
		res.Elapsed = time.Since(start)
		return res
	}

	var text string
	if err := p.stage(ctx, StageText, func(ctx context.Context) error {
		var err error
		text, err = p.textSrc.Read(ctx, prompt.TextQuestion)
		if err != nil {
			return err
		}
		return types.SynthesisRequest{Text: text, Embeddings: voice.Embeddings}.Validate()
	}); err != nil {
		return fail(err)
	}
	res.Text = text

	var mel types.MelSpectrogram
	if err := p.stage(ctx, StageSynthesize, func(ctx context.Context) error {
		texts, embeds := types.SynthesisRequest{Text: text, Embeddings: voice.Embeddings}.Batch()
		mels, err := p.bundle.Synthesizer().Synthesize(ctx, texts, embeds)
		if err != nil {
			return err
		}
		if len(mels) != len(texts) {
			return fmt.Errorf("got %d spectrograms for %d texts", len(mels), len(texts))
		}
		mel = mels[0]
		return nil
	}); err != nil {
		return fail(err)
	}
	fmt.Fprintln(p.out, "Created mel spectrogram")

	fmt.Fprintln(p.out, "Synthesizing waveform:")
	var wav types.Waveform
	if err := p.stage(ctx, StageVocode, func(ctx context.Context) error {
		var err error
		wav, err = p.bundle.Vocoder().Vocode(ctx, mel)
		return err
	}); err != nil {
		return fail(err)
	}

	rate := mel.SampleRate
	if rate <= 0 {
		rate = p.bundle.SampleRate()
	}
	padded := wav.PadSilence(rate)
	padded.SampleRate = rate

	if err := p.stage(ctx, StageWrite, func(context.Context) error {
		return audio.WriteWAVFile(p.cfg.OutputPath, padded)
	}); err != nil {
		return fail(err)
	}
	fmt.Fprintf(p.out, "Saving output as %s\n", p.cfg.OutputPath)

	res.Path = p.cfg.OutputPath
	res.Samples = padded.Len()
	res.RawSamples = wav.Len()
	res.SampleRate = rate
	res.Elapsed = time.Since(start)
	p.metrics.RecordOutput(ctx, padded.Duration())
	return res
}

// stage runs fn inside a span, records its duration and wraps any error in a
// [*StageError]. Model calls run on a context detached from cancellation so
// an in-flight stage always completes; the text prompt keeps ctx so a
// shutdown can interrupt it.
func (p *Pipeline) stage(ctx context.Context, s Stage, fn func(context.Context) error) error {
	ctx, span := observe.StartStage(ctx, string(s))
	callCtx := ctx
	if s != StageText {
		callCtx = context.WithoutCancel(ctx)
	}

	start := time.Now()
	err := fn(callCtx)
	elapsed := time.Since(start)

	if s != StageText {
		p.metrics.RecordStage(ctx, string(s), elapsed, err)
	}
	observe.EndSpan(span, err)
	if err != nil {
		return &StageError{Stage: s, Err: err}
	}
	observe.Logger(ctx).Debug("stage completed", "stage", s, "elapsed", elapsed)
	return nil
}

// ─── Driver ──────────────────────────────────────────────────────────────────

// Run prepares the voice and loops over cycles until the input is closed,
// ctx is cancelled, one-shot mode succeeds, or the retry budget runs out.
// A closed input or a cancelled context ends the loop without error.
func (p *Pipeline) Run(ctx context.Context) error {
	voice, err := p.PrepareVoice(ctx)
	if err != nil {
		if stopped(ctx, err) {
			return nil
		}
		return err
	}
	p.publish(func(s *Snapshot) {
		s.Voice = voice.Reference.Path
		s.Ready = true
	})

	for n := 1; ; n++ {
		if ctx.Err() != nil {
			slog.Info("stopping synthesis loop", "reason", context.Cause(ctx))
			return nil
		}

		res := p.Cycle(ctx, voice)
		res.Cycle = n
		if res.Err != nil && stopped(ctx, res.Err) {
			return nil
		}
		p.publish(func(s *Snapshot) { s.record(res) })

		if res.Err != nil {
			p.metrics.RecordCycle(ctx, observe.StatusError)
			slog.Warn("cycle failed", "cycle", n, "stage", res.Stage, "err", res.Err)
			fmt.Fprintf(p.out, "Caught exception: %v\n", res.Err)
			fmt.Fprint(p.out, "Restarting\n\n")
			if err := p.budget.RecordFailure(res.Err); err != nil {
				return err
			}
			continue
		}

		p.metrics.RecordCycle(ctx, observe.StatusOK)
		p.budget.RecordSuccess()
		slog.Info("cycle completed",
			"cycle", n,
			"path", res.Path,
			"samples", res.Samples,
			"sample_rate", res.SampleRate,
			"elapsed", res.Elapsed,
		)
		if p.cfg.Once {
			return nil
		}
	}
}

// stopped reports whether err means the operator or a signal ended the run.
func stopped(ctx context.Context, err error) bool {
	return errors.Is(err, prompt.ErrInputClosed) || (ctx.Err() != nil && errors.Is(err, ctx.Err()))
}

// ─── Status ──────────────────────────────────────────────────────────────────

// Snapshot is the publicly observable state of a running pipeline.
type Snapshot struct {
	Ready     bool    `json:"ready"`
	Voice     string  `json:"voice,omitempty"`
	Cycles    int     `json:"cycles"`
	Failures  int     `json:"failures"`
	LastError string  `json:"last_error,omitempty"`
	Last      *Result `json:"last,omitempty"`

	Retries resilience.Stats `json:"retries"`
}

func (s *Snapshot) record(r Result) {
	s.Cycles++
	s.LastError = ""
	if r.Err != nil {
		s.Failures++
		s.LastError = r.Err.Error()
	}
	s.Last = &r
}

func (p *Pipeline) publish(fn func(*Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.snapshot)
}

// Snapshot returns a copy of the current state. Safe for concurrent use.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.snapshot
	s.Retries = p.budget.Stats()
	if s.Last != nil {
		last := *s.Last
		s.Last = &last
	}
	return s
}
