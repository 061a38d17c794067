package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/voxclone/internal/accel"
	"github.com/MrWong99/voxclone/internal/app"
	"github.com/MrWong99/voxclone/internal/config"
	"github.com/MrWong99/voxclone/internal/models"
	modelsmock "github.com/MrWong99/voxclone/internal/models/mock"
	"github.com/MrWong99/voxclone/internal/observe"
	premock "github.com/MrWong99/voxclone/internal/preprocess/mock"
	promptmock "github.com/MrWong99/voxclone/internal/prompt/mock"
	"github.com/MrWong99/voxclone/pkg/provider/worker"
	"github.com/MrWong99/voxclone/pkg/types"
)

// testConfig returns the default config pointed at freshly written model
// artifacts and a temp output path.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Models = config.ModelsConfig{
		Encoder:        filepath.Join(root, "encoder.pt"),
		SynthesizerDir: filepath.Join(root, "logs-pretrained"),
		Vocoder:        filepath.Join(root, "vocoder.pt"),
	}
	ckpt := filepath.Join(cfg.Models.SynthesizerDir, "taco_pretrained")
	if err := os.MkdirAll(ckpt, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{cfg.Models.Encoder, cfg.Models.Vocoder, filepath.Join(ckpt, "checkpoint")} {
		if err := os.WriteFile(f, []byte("weights"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg.IO.VoiceIn = "speaker.wav"
	cfg.IO.Out = filepath.Join(root, "output.wav")
	return cfg
}

func oneGPU() accel.Prober {
	return accel.ProberFunc(func(context.Context) (accel.Report, error) {
		return accel.Report{
			Current: 0,
			Devices: []accel.Device{{Index: 0, Name: "RTX 3090", TotalMemory: 24_000_000_000}},
		}, nil
	})
}

type harness struct {
	backend *modelsmock.Backend
	pre     *premock.Preprocessor
	text    *promptmock.Source
	out     *bytes.Buffer
}

func newHarness(lines ...string) *harness {
	return &harness{
		backend: modelsmock.NewBackend(),
		pre:     &premock.Preprocessor{Waveform: types.Waveform{Samples: make([]float32, 16000), SampleRate: 16000}},
		text:    &promptmock.Source{Lines: lines},
		out:     &bytes.Buffer{},
	}
}

func (h *harness) options(t *testing.T, prober accel.Prober) []app.Option {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	return []app.Option{
		app.WithBackend(h.backend),
		app.WithProber(prober),
		app.WithPreprocessor(h.pre),
		app.WithTextSource(h.text),
		app.WithOutput(h.out),
		app.WithMetrics(m),
	}
}

func shutdown(t *testing.T, a *app.App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error: %v", err)
	}
}

// ── New ──────────────────────────────────────────────────────────────────────

func TestNew_WithMocks(t *testing.T) {
	t.Parallel()

	h := newHarness()
	application, err := app.New(context.Background(), testConfig(t), h.options(t, oneGPU())...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	defer shutdown(t, application)

	out := h.out.String()
	if !strings.Contains(out, "Found 1 GPUs available. Using GPU 0 (RTX 3090) with 24 GB total memory.") {
		t.Errorf("accelerator line missing from output:\n%s", out)
	}
	if !strings.Contains(out, "Preparing the encoder, synthesizer, and vocoder...") {
		t.Errorf("model loading line missing from output:\n%s", out)
	}
	if h.backend.CallCount() != 3 {
		t.Errorf("backend load calls = %d, want 3", h.backend.CallCount())
	}
	if application.Accelerator().Name != "RTX 3090" {
		t.Errorf("Accelerator() = %+v", application.Accelerator())
	}
	if application.StatusAddr() != "" {
		t.Errorf("StatusAddr() = %q, want empty when disabled", application.StatusAddr())
	}
}

func TestNew_NoAcceleratorLoadsNothing(t *testing.T) {
	t.Parallel()

	h := newHarness()
	none := accel.ProberFunc(func(context.Context) (accel.Report, error) {
		return accel.Report{Current: -1}, nil
	})
	_, err := app.New(context.Background(), testConfig(t), h.options(t, none)...)
	if !errors.Is(err, accel.ErrNoAccelerator) {
		t.Fatalf("New() error = %v, want ErrNoAccelerator", err)
	}
	if h.backend.CallCount() != 0 {
		t.Errorf("backend received %d load calls without an accelerator", h.backend.CallCount())
	}
}

func TestNew_InvalidDevice(t *testing.T) {
	t.Parallel()

	h := newHarness()
	cfg := testConfig(t)
	cfg.Accelerator.Device = 3
	_, err := app.New(context.Background(), cfg, h.options(t, oneGPU())...)
	if !errors.Is(err, accel.ErrInvalidDevice) {
		t.Fatalf("New() error = %v, want ErrInvalidDevice", err)
	}
}

func TestNew_MissingArtifacts(t *testing.T) {
	t.Parallel()

	h := newHarness()
	cfg := testConfig(t)
	cfg.Models.Vocoder = filepath.Join(t.TempDir(), "missing.pt")
	_, err := app.New(context.Background(), cfg, h.options(t, oneGPU())...)
	if !errors.Is(err, models.ErrArtifact) {
		t.Fatalf("New() error = %v, want ErrArtifact", err)
	}
}

func TestNew_UnknownRuntime(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Runtime.Name = "onnx"
	_, err := app.New(context.Background(), cfg, app.WithOutput(&bytes.Buffer{}))
	if !errors.Is(err, config.ErrBackendNotRegistered) {
		t.Fatalf("New() error = %v, want ErrBackendNotRegistered", err)
	}
}

// ── Run ──────────────────────────────────────────────────────────────────────

func TestApp_RunOnceWithLiteralText(t *testing.T) {
	t.Parallel()

	h := newHarness()
	cfg := testConfig(t)
	cfg.IO.TextIn = "Hello from the command line."
	cfg.Cycle.Once = true

	application, err := app.New(context.Background(), cfg, h.options(t, oneGPU())...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer shutdown(t, application)

	if err := application.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if h.text.ReadCount() != 0 {
		t.Errorf("interactive source read %d times, want 0", h.text.ReadCount())
	}
	if _, err := os.Stat(cfg.IO.Out); err != nil {
		t.Errorf("output not written: %v", err)
	}
	if !strings.Contains(h.out.String(), "Saving output as "+cfg.IO.Out) {
		t.Errorf("missing report line in output:\n%s", h.out.String())
	}
	calls := h.backend.Synthesizer.SynthesizeCalls
	if len(calls) != 1 || calls[0].Texts[0] != cfg.IO.TextIn {
		t.Errorf("synthesizer calls = %+v", calls)
	}
	if len(h.pre.Paths) != 1 || h.pre.Paths[0] != "speaker.wav" {
		t.Errorf("preprocessed paths = %v, want [speaker.wav]", h.pre.Paths)
	}
}

func TestApp_RunEndsWhenInputCloses(t *testing.T) {
	t.Parallel()

	h := newHarness("first sentence", "second sentence")
	cfg := testConfig(t)
	cfg.Status.ListenAddr = "127.0.0.1:0"

	application, err := app.New(context.Background(), cfg, h.options(t, oneGPU())...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer shutdown(t, application)

	errCh := make(chan error, 1)
	go func() { errCh <- application.Run(context.Background()) }()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after input closed")
	}

	if got := len(h.backend.Synthesizer.SynthesizeCalls); got != 2 {
		t.Errorf("synthesizer calls = %d, want 2", got)
	}
	if snap := application.Pipeline().Snapshot(); snap.Cycles != 2 || snap.Failures != 0 {
		t.Errorf("snapshot = %+v, want 2 cycles without failures", snap)
	}
	if _, err := http.Get("http://" + application.StatusAddr() + "/healthz"); err == nil {
		t.Error("status server still serving after Run returned")
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.text.Lines = []string{"one"}
	application, err := app.New(context.Background(), testConfig(t), h.options(t, oneGPU())...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer shutdown(t, application)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := application.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v, want nil on cancellation", err)
	}
}

// ── Status server ────────────────────────────────────────────────────────────

func TestApp_StatusEndpoints(t *testing.T) {
	t.Parallel()

	h := newHarness()
	cfg := testConfig(t)
	cfg.Status.ListenAddr = "127.0.0.1:0"
	cfg.IO.VoiceIn = ""
	voice := &blockingSource{reading: make(chan struct{})}

	opts := append(h.options(t, oneGPU()), app.WithVoiceSource(voice))
	application, err := app.New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer shutdown(t, application)

	base := "http://" + application.StatusAddr()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- application.Run(ctx) }()

	// The pipeline now waits for the reference voice path.
	select {
	case <-voice.reading:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline never asked for the reference voice")
	}

	client := &http.Client{Timeout: 5 * time.Second}
	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusServiceUnavailable},
		{"/status", http.StatusOK},
		{"/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		resp, err := client.Get(base + tt.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tt.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.wantStatus {
			t.Errorf("GET %s status = %d, want %d", tt.path, resp.StatusCode, tt.wantStatus)
		}
	}

	resp, err := client.Get(base + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	var st struct {
		Accelerator struct {
			Name string
		} `json:"accelerator"`
		Models    map[string]string `json:"models"`
		Artifacts struct {
			Encoder string `json:"encoder"`
		} `json:"artifacts"`
		Pipeline struct {
			Ready   bool `json:"ready"`
			Retries struct {
				Remaining int `json:"remaining"`
			} `json:"retries"`
		} `json:"pipeline"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode /status: %v", err)
	}
	if st.Accelerator.Name != "RTX 3090" {
		t.Errorf("status accelerator = %q", st.Accelerator.Name)
	}
	if st.Models["encoder"] != "mock-encoder" || st.Models["vocoder"] != "mock-vocoder" {
		t.Errorf("status models = %v", st.Models)
	}
	if st.Artifacts.Encoder != cfg.Models.Encoder {
		t.Errorf("status encoder artifact = %q, want %q", st.Artifacts.Encoder, cfg.Models.Encoder)
	}
	if st.Pipeline.Ready {
		t.Error("status reports ready before the voice was embedded")
	}
	if st.Pipeline.Retries.Remaining != -1 {
		t.Errorf("status retries remaining = %d, want -1 (unlimited)", st.Pipeline.Retries.Remaining)
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run() error = %v, want nil on cancellation", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancellation")
	}
}

// blockingSource blocks every Read until ctx is done. reading is closed on
// the first call.
type blockingSource struct {
	once    sync.Once
	reading chan struct{}
}

func (b *blockingSource) Read(ctx context.Context, _ string) (string, error) {
	b.once.Do(func() { close(b.reading) })
	<-ctx.Done()
	return "", ctx.Err()
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestDefaultRegistry(t *testing.T) {
	t.Parallel()

	reg := app.DefaultRegistry()

	b, err := reg.CreateBackend(config.RuntimeConfig{Name: "worker", BaseURL: "http://127.0.0.1:7860", DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("CreateBackend(worker): %v", err)
	}
	if _, ok := b.(*worker.Client); !ok {
		t.Errorf("CreateBackend(worker) = %T, want *worker.Client", b)
	}

	if _, err := reg.CreateProber(config.AcceleratorConfig{Probe: "worker"}, b); err != nil {
		t.Errorf("CreateProber(worker): %v", err)
	}
	if _, err := reg.CreateProber(config.AcceleratorConfig{Probe: "worker"}, modelsmock.NewBackend()); err == nil {
		t.Error("CreateProber(worker) accepted a runtime that cannot list devices")
	}
	p, err := reg.CreateProber(config.AcceleratorConfig{Probe: "nvidia-smi", NvidiaSMIPath: "/opt/bin/nvidia-smi"}, nil)
	if err != nil {
		t.Fatalf("CreateProber(nvidia-smi): %v", err)
	}
	if smi, ok := p.(accel.NvidiaSMI); !ok || smi.Path != "/opt/bin/nvidia-smi" {
		t.Errorf("CreateProber(nvidia-smi) = %#v", p)
	}

	if _, err := reg.CreateVAD(config.PreprocessConfig{VAD: "energy"}); err != nil {
		t.Errorf("CreateVAD(energy): %v", err)
	}
	if _, err := reg.CreateBackend(config.RuntimeConfig{Name: "worker"}); err == nil {
		t.Error("CreateBackend(worker) accepted an empty base URL")
	}
}
