package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/voxclone/internal/accel"
	"github.com/MrWong99/voxclone/internal/config"
	"github.com/MrWong99/voxclone/internal/models"
	modelsmock "github.com/MrWong99/voxclone/internal/models/mock"
	"github.com/MrWong99/voxclone/pkg/provider/vad"
	vadmock "github.com/MrWong99/voxclone/pkg/provider/vad/mock"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
log_level: debug

runtime:
  name: worker
  base_url: http://gpu-box:7860
  dial_timeout: 2s

accelerator:
  probe: nvidia-smi
  device: 1

models:
  encoder: /models/encoder.pt
  synthesizer_dir: /models/logs-pretrained
  vocoder: /models/vocoder.pt

io:
  voice_in: speaker.flac
  text_in: Hello there.
  out: /tmp/clone.wav

cycle:
  max_retries: 5
  once: true

preprocess:
  target_dbfs: -24
  trim_silence: false
  ffmpeg: "off"

status:
  listen_addr: ":9090"
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q, want %q", cfg.LogLevel, config.LogDebug)
	}
	if cfg.Runtime.BaseURL != "http://gpu-box:7860" {
		t.Errorf("runtime.base_url: got %q", cfg.Runtime.BaseURL)
	}
	if cfg.Runtime.DialTimeout != 2*time.Second {
		t.Errorf("runtime.dial_timeout: got %s, want 2s", cfg.Runtime.DialTimeout)
	}
	if cfg.Accelerator.Probe != "nvidia-smi" || cfg.Accelerator.Device != 1 {
		t.Errorf("accelerator: got %+v", cfg.Accelerator)
	}
	if cfg.Models.SynthesizerDir != "/models/logs-pretrained" {
		t.Errorf("models.synthesizer_dir: got %q", cfg.Models.SynthesizerDir)
	}
	if cfg.IO.TextIn != "Hello there." || cfg.IO.Out != "/tmp/clone.wav" {
		t.Errorf("io: got %+v", cfg.IO)
	}
	if cfg.Cycle.MaxRetries != 5 || !cfg.Cycle.Once {
		t.Errorf("cycle: got %+v", cfg.Cycle)
	}
	if cfg.Preprocess.TargetDBFS != -24 || cfg.Preprocess.TrimSilence {
		t.Errorf("preprocess: got %+v", cfg.Preprocess)
	}
	if cfg.Preprocess.FFmpeg != config.FFmpegDisabled {
		t.Errorf("preprocess.ffmpeg: got %q", cfg.Preprocess.FFmpeg)
	}
	if cfg.Status.ListenAddr != ":9090" {
		t.Errorf("status.listen_addr: got %q", cfg.Status.ListenAddr)
	}
}

func TestLoadFromReader_EmptyYieldsDefaults(t *testing.T) {
	t.Parallel()

	for _, doc := range []string{"", "{}"} {
		cfg, err := config.LoadFromReader(strings.NewReader(doc))
		if err != nil {
			t.Fatalf("LoadFromReader(%q): %v", doc, err)
		}
		if *cfg != *config.Default() {
			t.Errorf("LoadFromReader(%q) = %+v, want defaults", doc, cfg)
		}
	}
}

func TestLoadFromReader_PartialKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader("io:\n  out: other.wav\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	def := config.Default()
	if cfg.IO.Out != "other.wav" {
		t.Errorf("io.out: got %q", cfg.IO.Out)
	}
	if cfg.IO.VoiceIn != def.IO.VoiceIn {
		t.Errorf("io.voice_in: got %q, want default %q", cfg.IO.VoiceIn, def.IO.VoiceIn)
	}
	if cfg.Models != def.Models {
		t.Errorf("models: got %+v, want defaults", cfg.Models)
	}
}

func TestLoadFromReader_UnknownKey(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("io:\n  outt: x.wav\n"))
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voxclone.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cycle.MaxRetries != 5 {
		t.Errorf("cycle.max_retries: got %d, want 5", cfg.Cycle.MaxRetries)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) error = %v, want os.ErrNotExist", err)
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"invalid log level", "log_level: verbose\n", "log_level"},
		{"empty runtime name", "runtime:\n  name: \"\"\n", "runtime.name"},
		{"empty base url", "runtime:\n  base_url: \"\"\n", "runtime.base_url"},
		{"negative dial timeout", "runtime:\n  dial_timeout: -1s\n", "dial_timeout"},
		{"negative device", "accelerator:\n  device: -1\n", "accelerator.device"},
		{"empty probe", "accelerator:\n  probe: \"\"\n", "accelerator.probe"},
		{"missing encoder", "models:\n  encoder: \"\"\n", "models.encoder"},
		{"missing synthesizer", "models:\n  synthesizer_dir: \"\"\n", "models.synthesizer_dir"},
		{"missing vocoder", "models:\n  vocoder: \"\"\n", "models.vocoder"},
		{"missing out", "io:\n  out: \"\"\n", "io.out"},
		{"negative retries", "cycle:\n  max_retries: -2\n", "max_retries"},
		{"positive target", "preprocess:\n  target_dbfs: 3\n", "target_dbfs"},
		{"trim without vad", "preprocess:\n  vad: \"\"\n", "preprocess.vad"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_JoinsAllProblems(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.LogLevel = "loud"
	cfg.IO.Out = ""
	cfg.Cycle.MaxRetries = -1

	err := config.Validate(cfg)
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		t.Fatalf("Validate error %T does not wrap multiple errors", err)
	}
	if n := len(joined.Unwrap()); n != 3 {
		t.Errorf("got %d problems, want 3: %v", n, err)
	}
}

func TestValidate_UnknownNameOnlyWarns(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Runtime.Name = "onnx"
	if err := config.Validate(cfg); err != nil {
		t.Errorf("unexpected error for third-party runtime name: %v", err)
	}
}

// ── Environment ───────────────────────────────────────────────────────────────

func TestApplyEnvFrom(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	err := config.ApplyEnvFrom(cfg, map[string]string{
		"VOXCLONE_RUNTIME_URL":  "http://10.0.0.2:7860",
		"VOXCLONE_DEVICE":       "2",
		"VOXCLONE_MAX_RETRIES":  "3",
		"VOXCLONE_ONCE":         "true",
		"VOXCLONE_TARGET_DBFS":  "-20.5",
		"VOXCLONE_TRIM_SILENCE": "false",
		"VOXCLONE_LOG_LEVEL":    "warn",
	})
	if err != nil {
		t.Fatalf("ApplyEnvFrom: %v", err)
	}

	if cfg.Runtime.BaseURL != "http://10.0.0.2:7860" {
		t.Errorf("runtime.base_url: got %q", cfg.Runtime.BaseURL)
	}
	if cfg.Accelerator.Device != 2 {
		t.Errorf("accelerator.device: got %d, want 2", cfg.Accelerator.Device)
	}
	if cfg.Cycle.MaxRetries != 3 || !cfg.Cycle.Once {
		t.Errorf("cycle: got %+v", cfg.Cycle)
	}
	if cfg.Preprocess.TargetDBFS != -20.5 || cfg.Preprocess.TrimSilence {
		t.Errorf("preprocess: got %+v", cfg.Preprocess)
	}
	if cfg.LogLevel != config.LogWarn {
		t.Errorf("log_level: got %q", cfg.LogLevel)
	}

	// Unset variables leave values alone.
	def := config.Default()
	if cfg.Models != def.Models || cfg.IO != def.IO {
		t.Errorf("unset variables changed config: models=%+v io=%+v", cfg.Models, cfg.IO)
	}
}

func TestApplyEnvFrom_OverridesYAML(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	if err := config.ApplyEnvFrom(cfg, map[string]string{"VOXCLONE_OUT": "env.wav"}); err != nil {
		t.Fatal(err)
	}
	if cfg.IO.Out != "env.wav" {
		t.Errorf("io.out: got %q, want env.wav", cfg.IO.Out)
	}
	if cfg.IO.VoiceIn != "speaker.flac" {
		t.Errorf("io.voice_in: got %q, want value from YAML", cfg.IO.VoiceIn)
	}
}

func TestApplyEnvFrom_BadValue(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	if err := config.ApplyEnvFrom(cfg, map[string]string{"VOXCLONE_DEVICE": "first"}); err == nil {
		t.Fatal("expected error for non-numeric VOXCLONE_DEVICE, got nil")
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	if _, err := reg.CreateBackend(config.RuntimeConfig{Name: "onnx"}); !errors.Is(err, config.ErrBackendNotRegistered) {
		t.Errorf("CreateBackend error = %v, want ErrBackendNotRegistered", err)
	}
	if _, err := reg.CreateProber(config.AcceleratorConfig{Probe: "rocm"}, nil); !errors.Is(err, config.ErrBackendNotRegistered) {
		t.Errorf("CreateProber error = %v, want ErrBackendNotRegistered", err)
	}
	if _, err := reg.CreateVAD(config.PreprocessConfig{VAD: "silero"}); !errors.Is(err, config.ErrBackendNotRegistered) {
		t.Errorf("CreateVAD error = %v, want ErrBackendNotRegistered", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	backend := modelsmock.NewBackend()
	var gotRuntime config.RuntimeConfig
	reg.RegisterBackend("fake", func(c config.RuntimeConfig) (models.Backend, error) {
		gotRuntime = c
		return backend, nil
	})
	var gotBackend models.Backend
	reg.RegisterProber("fake", func(_ config.AcceleratorConfig, b models.Backend) (accel.Prober, error) {
		gotBackend = b
		return accel.ProberFunc(func(context.Context) (accel.Report, error) { return accel.Report{}, nil }), nil
	})
	engine := &vadmock.Engine{}
	reg.RegisterVAD("fake", func(config.PreprocessConfig) (vad.Engine, error) { return engine, nil })

	b, err := reg.CreateBackend(config.RuntimeConfig{Name: "fake", BaseURL: "http://x"})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if b != backend || gotRuntime.BaseURL != "http://x" {
		t.Errorf("CreateBackend did not pass config through: %+v", gotRuntime)
	}
	if _, err := reg.CreateProber(config.AcceleratorConfig{Probe: "fake"}, b); err != nil {
		t.Fatalf("CreateProber: %v", err)
	}
	if gotBackend != backend {
		t.Error("CreateProber did not receive the backend")
	}
	e, err := reg.CreateVAD(config.PreprocessConfig{VAD: "fake"})
	if err != nil || e != engine {
		t.Errorf("CreateVAD = %v, %v", e, err)
	}

	if got := reg.Names("runtime"); !slices.Equal(got, []string{"fake"}) {
		t.Errorf("Names(runtime) = %v", got)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	wantErr := errors.New("connection refused")
	reg.RegisterBackend("broken", func(config.RuntimeConfig) (models.Backend, error) {
		return nil, wantErr
	})
	if _, err := reg.CreateBackend(config.RuntimeConfig{Name: "broken"}); !errors.Is(err, wantErr) {
		t.Errorf("CreateBackend error = %v, want %v", err, wantErr)
	}
}
