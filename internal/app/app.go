// Package app wires all voxclone subsystems into a running application.
//
// The App struct owns the full lifecycle: New validates the accelerator,
// loads the models and assembles the pipeline, Run executes the synthesis
// loop (next to the optional status server), and Shutdown tears everything
// down in order.
//
// For testing, inject test doubles via functional options (WithBackend,
// WithProber, WithPreprocessor, etc.). When an option is not provided, New
// creates real implementations from the config through the [config.Registry].
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxclone/internal/accel"
	"github.com/MrWong99/voxclone/internal/config"
	"github.com/MrWong99/voxclone/internal/health"
	"github.com/MrWong99/voxclone/internal/models"
	"github.com/MrWong99/voxclone/internal/observe"
	"github.com/MrWong99/voxclone/internal/pipeline"
	"github.com/MrWong99/voxclone/internal/preprocess"
	"github.com/MrWong99/voxclone/internal/prompt"
	"github.com/MrWong99/voxclone/pkg/audio"
	"github.com/MrWong99/voxclone/pkg/provider/vad"
	"github.com/MrWong99/voxclone/pkg/provider/worker"
)

// shutdownTimeout bounds how long the status server may take to drain.
const shutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	registry *config.Registry

	// Collaborators; injected or built from the registry in New.
	backend  models.Backend
	prober   accel.Prober
	pre      preprocess.Preprocessor
	textSrc  prompt.Source
	voiceSrc prompt.Source
	out      io.Writer
	metrics  *observe.Metrics

	// Subsystems, initialised in New and torn down in Shutdown.
	info     accel.Info
	bundle   *models.Bundle
	pipeline *pipeline.Pipeline
	server   *http.Server
	listener net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRegistry replaces [DefaultRegistry].
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithBackend injects the inference runtime instead of creating one from
// config.
func WithBackend(b models.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithProber injects the accelerator prober instead of creating one from
// config.
func WithProber(p accel.Prober) Option {
	return func(a *App) { a.prober = p }
}

// WithPreprocessor injects the reference-audio preprocessor.
func WithPreprocessor(p preprocess.Preprocessor) Option {
	return func(a *App) { a.pre = p }
}

// WithTextSource sets the interactive source for sentences. The configured
// io.text_in value, when set, is still answered first.
func WithTextSource(s prompt.Source) Option {
	return func(a *App) { a.textSrc = s }
}

// WithVoiceSource sets the source asked for the reference voice path when
// io.voice_in is empty. Defaults to the text source.
func WithVoiceSource(s prompt.Source) Option {
	return func(a *App) { a.voiceSrc = s }
}

// WithOutput redirects operator-facing messages. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// WithMetrics overrides the metric instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// DefaultRegistry returns a registry with the built-in components: the
// "worker" runtime, the "worker" and "nvidia-smi" probers and the "energy"
// VAD.
func DefaultRegistry() *config.Registry {
	r := config.NewRegistry()
	r.RegisterBackend("worker", func(c config.RuntimeConfig) (models.Backend, error) {
		var opts []worker.Option
		if c.DialTimeout > 0 {
			opts = append(opts, worker.WithDialTimeout(c.DialTimeout))
		}
		return worker.New(c.BaseURL, opts...)
	})
	r.RegisterProber("worker", func(_ config.AcceleratorConfig, b models.Backend) (accel.Prober, error) {
		l, ok := b.(accel.DeviceLister)
		if !ok {
			return nil, fmt.Errorf("app: runtime %T cannot list devices; use the nvidia-smi probe", b)
		}
		return accel.WorkerProber(l), nil
	})
	r.RegisterProber("nvidia-smi", func(c config.AcceleratorConfig, _ models.Backend) (accel.Prober, error) {
		return accel.NvidiaSMI{Path: c.NvidiaSMIPath}, nil
	})
	r.RegisterVAD("energy", func(config.PreprocessConfig) (vad.Engine, error) {
		return vad.NewEnergy(), nil
	})
	return r
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any collaborator.
//
// New performs all initialisation synchronously: accelerator validation,
// model loading, preprocessor and pipeline construction, and binding of the
// status listener. Any error is fatal; resources acquired so far are
// released before returning.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.registry == nil {
		a.registry = DefaultRegistry()
	}
	if a.out == nil {
		a.out = os.Stdout
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.init(ctx); err != nil {
		a.release()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	// ── 1. Runtime ───────────────────────────────────────────────────────
	if a.backend == nil {
		b, err := a.registry.CreateBackend(a.cfg.Runtime)
		if err != nil {
			return fmt.Errorf("app: create runtime: %w", err)
		}
		a.backend = b
	}

	// ── 2. Accelerator guard ─────────────────────────────────────────────
	if err := a.initAccelerator(ctx); err != nil {
		return err
	}

	// ── 3. Models ────────────────────────────────────────────────────────
	fmt.Fprintln(a.out, "Preparing the encoder, synthesizer, and vocoder...")
	bundle, err := models.Load(ctx, a.backend, a.info, models.Paths{
		Encoder:        a.cfg.Models.Encoder,
		SynthesizerDir: a.cfg.Models.SynthesizerDir,
		Vocoder:        a.cfg.Models.Vocoder,
	})
	if err != nil {
		return fmt.Errorf("app: load models: %w", err)
	}
	a.bundle = bundle
	a.closers = append(a.closers, bundle.Close)

	// ── 4. Preprocessor ──────────────────────────────────────────────────
	if err := a.initPreprocessor(); err != nil {
		return err
	}

	// ── 5. Pipeline ──────────────────────────────────────────────────────
	a.initPipeline()

	// ── 6. Status server ─────────────────────────────────────────────────
	return a.initStatus()
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initAccelerator runs the guard once and prints the selected device.
func (a *App) initAccelerator(ctx context.Context) error {
	if a.prober == nil {
		p, err := a.registry.CreateProber(a.cfg.Accelerator, a.backend)
		if err != nil {
			return fmt.Errorf("app: create prober: %w", err)
		}
		a.prober = p
	}
	info, err := accel.NewGuard(a.prober, accel.WithDevice(a.cfg.Accelerator.Device)).Validate(ctx)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	a.info = info
	fmt.Fprintln(a.out, info.String())
	return nil
}

// initPreprocessor builds the reference-audio preprocessor at the encoder's
// sample rate unless one was injected.
func (a *App) initPreprocessor() error {
	if a.pre != nil {
		return nil
	}
	pc := a.cfg.Preprocess
	rate := a.bundle.Encoder().SampleRate()

	dec := &audio.Decoder{}
	if pc.FFmpeg != config.FFmpegDisabled {
		dec.FFmpeg = &audio.FFmpeg{Path: pc.FFmpeg, SampleRate: rate}
	}

	opts := []preprocess.Option{
		preprocess.WithSampleRate(rate),
		preprocess.WithTargetDBFS(pc.TargetDBFS),
		preprocess.WithTrimSilence(pc.TrimSilence),
		preprocess.WithDecoder(dec),
	}
	if pc.TrimSilence {
		engine, err := a.registry.CreateVAD(pc)
		if err != nil {
			return fmt.Errorf("app: create vad: %w", err)
		}
		opts = append(opts, preprocess.WithVAD(engine))
	}
	a.pre = preprocess.New(opts...)
	return nil
}

// initPipeline assembles the orchestrator. The configured text is answered
// for the first cycle; later cycles prompt.
func (a *App) initPipeline() {
	if a.textSrc == nil {
		a.textSrc = prompt.NewScanner(os.Stdin, a.out)
	}
	if a.voiceSrc == nil {
		a.voiceSrc = a.textSrc
	}
	a.pipeline = pipeline.New(a.bundle, a.pre,
		pipeline.Config{
			VoicePath:  a.cfg.IO.VoiceIn,
			OutputPath: a.cfg.IO.Out,
			Once:       a.cfg.Cycle.Once,
			MaxRetries: a.cfg.Cycle.MaxRetries,
		},
		pipeline.WithTextSource(prompt.Once(a.cfg.IO.TextIn, a.textSrc)),
		pipeline.WithVoiceSource(a.voiceSrc),
		pipeline.WithOutput(a.out),
		pipeline.WithMetrics(a.metrics),
	)
}

// initStatus binds the status listener when an address is configured.
func (a *App) initStatus() error {
	addr := a.cfg.Status.ListenAddr
	if addr == "" {
		return nil
	}

	checkers := []health.Checker{
		{Name: "models", Check: func(context.Context) error {
			if a.bundle == nil {
				return errors.New("models not loaded")
			}
			return nil
		}},
		{Name: "voice", Check: func(context.Context) error {
			if !a.pipeline.Snapshot().Ready {
				return errors.New("reference voice not embedded yet")
			}
			return nil
		}},
	}
	if h, ok := a.backend.(interface{ Health(context.Context) error }); ok {
		checkers = append([]health.Checker{{Name: "runtime", Check: h.Health}}, checkers...)
	}

	mux := http.NewServeMux()
	health.New(checkers...).WithStatus(a.status).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("app: status listener: %w", err)
	}
	a.listener = ln
	a.server = &http.Server{
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("status server listening", "addr", ln.Addr().String())
	return nil
}

// Status is the /status document.
type Status struct {
	Accelerator accel.Info        `json:"accelerator"`
	Models      map[string]string `json:"models"`
	Artifacts   models.Paths      `json:"artifacts"`
	Pipeline    pipeline.Snapshot `json:"pipeline"`
}

func (a *App) status() any {
	return Status{
		Accelerator: a.info,
		Models: map[string]string{
			"encoder":     a.bundle.Encoder().ModelID(),
			"synthesizer": a.bundle.Synthesizer().ModelID(),
			"vocoder":     a.bundle.Vocoder().ModelID(),
		},
		Artifacts: a.bundle.Paths(),
		Pipeline:  a.pipeline.Snapshot(),
	}
}

// StatusAddr returns the bound status address, or "" when the status server
// is disabled.
func (a *App) StatusAddr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Accelerator returns the device selected by the guard.
func (a *App) Accelerator() accel.Info { return a.info }

// Pipeline returns the orchestrator.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run executes the synthesis loop until it terminates, alongside the status
// server if one is configured. The server is stopped when the loop ends.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	if a.server != nil {
		g.Go(func() error {
			if err := a.server.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer scancel()
			return a.server.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		defer cancel()
		return a.pipeline.Run(gctx)
	})

	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in reverse-init order. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.server != nil {
			if err := a.server.Close(); err != nil {
				slog.Warn("status server close error", "err", err)
			}
			// Never served if Run was not called.
			a.listener.Close()
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// release frees whatever New acquired before failing.
func (a *App) release() {
	if a.listener != nil {
		a.listener.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("release after init failure", "err", err)
		}
	}
}

// Ensure the built-in runtime satisfies the interfaces the registry needs.
var (
	_ models.Backend     = (*worker.Client)(nil)
	_ accel.DeviceLister = (*worker.Client)(nil)
)
