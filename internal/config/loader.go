package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ValidNames lists known component names per kind. Used by [Validate] to
// warn about unrecognised names; registries may carry third-party entries.
var ValidNames = map[string][]string{
	"runtime": {"worker"},
	"probe":   {"worker", "nvidia-smi"},
	"vad":     {"energy"},
}

// Load reads the YAML configuration file at path on top of [Default] and
// returns the validated result. Environment overrides are not applied; see
// [ApplyEnv].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Keys absent from the document keep their defaults;
// unknown keys are rejected. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays VOXCLONE_* environment variables onto cfg. Variables
// that are not set leave the corresponding field untouched.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, env.Options{})
}

// ApplyEnvFrom is like [ApplyEnv] but reads from environ instead of the
// process environment.
func ApplyEnvFrom(cfg *Config, environ map[string]string) error {
	return applyEnv(cfg, env.Options{Environment: environ})
}

func applyEnv(cfg *Config, opts env.Options) error {
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	// Runtime
	if cfg.Runtime.Name == "" {
		errs = append(errs, errors.New("runtime.name is required"))
	}
	if cfg.Runtime.BaseURL == "" {
		errs = append(errs, errors.New("runtime.base_url is required"))
	}
	if cfg.Runtime.DialTimeout < 0 {
		errs = append(errs, fmt.Errorf("runtime.dial_timeout %s must not be negative", cfg.Runtime.DialTimeout))
	}
	validateName("runtime", cfg.Runtime.Name)

	// Accelerator
	if cfg.Accelerator.Probe == "" {
		errs = append(errs, errors.New("accelerator.probe is required"))
	}
	if cfg.Accelerator.Device < 0 {
		errs = append(errs, fmt.Errorf("accelerator.device %d must not be negative", cfg.Accelerator.Device))
	}
	validateName("probe", cfg.Accelerator.Probe)

	// Models
	if cfg.Models.Encoder == "" {
		errs = append(errs, errors.New("models.encoder is required"))
	}
	if cfg.Models.SynthesizerDir == "" {
		errs = append(errs, errors.New("models.synthesizer_dir is required"))
	}
	if cfg.Models.Vocoder == "" {
		errs = append(errs, errors.New("models.vocoder is required"))
	}

	// IO
	if cfg.IO.Out == "" {
		errs = append(errs, errors.New("io.out is required"))
	}

	// Cycle
	if cfg.Cycle.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("cycle.max_retries %d must not be negative; use 0 for unlimited", cfg.Cycle.MaxRetries))
	}

	// Preprocess
	if cfg.Preprocess.TargetDBFS > 0 {
		errs = append(errs, fmt.Errorf("preprocess.target_dbfs %.1f is out of range (<= 0)", cfg.Preprocess.TargetDBFS))
	}
	if cfg.Preprocess.TrimSilence && cfg.Preprocess.VAD == "" {
		errs = append(errs, errors.New("preprocess.vad is required when trim_silence is enabled"))
	}
	validateName("vad", cfg.Preprocess.VAD)

	return errors.Join(errs...)
}

// validateName logs a warning if name is non-empty and not found in the
// [ValidNames] list for the given kind.
func validateName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown component name; may be a typo or a third-party registration",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
