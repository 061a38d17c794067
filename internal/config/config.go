// Package config provides the configuration schema, loader, and backend
// registry for voxclone.
//
// Values are layered: [Default] first, then an optional YAML file, then
// VOXCLONE_* environment variables. Command-line flags are applied on top by
// the caller.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for voxclone.
type Config struct {
	LogLevel LogLevel `yaml:"log_level" env:"VOXCLONE_LOG_LEVEL"`

	Runtime     RuntimeConfig     `yaml:"runtime"`
	Accelerator AcceleratorConfig `yaml:"accelerator"`
	Models      ModelsConfig      `yaml:"models"`
	IO          IOConfig          `yaml:"io"`
	Cycle       CycleConfig       `yaml:"cycle"`
	Preprocess  PreprocessConfig  `yaml:"preprocess"`
	Status      StatusConfig      `yaml:"status"`
}

// RuntimeConfig selects the inference runtime that hosts the models.
type RuntimeConfig struct {
	// Name is the registered backend name (e.g., "worker").
	Name string `yaml:"name" env:"VOXCLONE_RUNTIME"`

	// BaseURL is the runtime's HTTP address.
	BaseURL string `yaml:"base_url" env:"VOXCLONE_RUNTIME_URL"`

	// DialTimeout bounds connection setup. Zero uses the backend default.
	DialTimeout time.Duration `yaml:"dial_timeout" env:"VOXCLONE_RUNTIME_DIAL_TIMEOUT"`
}

// AcceleratorConfig selects how the accelerator is discovered and which
// device is used.
type AcceleratorConfig struct {
	// Probe is the registered prober name: "worker" or "nvidia-smi".
	Probe string `yaml:"probe" env:"VOXCLONE_ACCEL_PROBE"`

	// Device is the index of the device to run on.
	Device int `yaml:"device" env:"VOXCLONE_DEVICE"`

	// NvidiaSMIPath overrides the nvidia-smi executable for the "nvidia-smi"
	// prober.
	NvidiaSMIPath string `yaml:"nvidia_smi_path" env:"VOXCLONE_NVIDIA_SMI"`
}

// ModelsConfig holds the artifact locations of the three networks.
type ModelsConfig struct {
	Encoder        string `yaml:"encoder" env:"VOXCLONE_ENC_MODEL_FPATH"`
	SynthesizerDir string `yaml:"synthesizer_dir" env:"VOXCLONE_SYN_MODEL_DIR"`
	Vocoder        string `yaml:"vocoder" env:"VOXCLONE_VOC_MODEL_FPATH"`
}

// IOConfig holds the operator-facing inputs and the output location.
type IOConfig struct {
	// VoiceIn is the reference recording. Empty means prompt for it.
	VoiceIn string `yaml:"voice_in" env:"VOXCLONE_VOICEIN"`

	// TextIn is used as the text of the first cycle. Empty means prompt.
	TextIn string `yaml:"text_in" env:"VOXCLONE_TEXTIN"`

	// Out is the WAV file each successful cycle overwrites.
	Out string `yaml:"out" env:"VOXCLONE_OUT"`

	// HistoryFile persists interactive prompt history. Empty disables it.
	HistoryFile string `yaml:"history_file" env:"VOXCLONE_HISTORY_FILE"`
}

// CycleConfig bounds the synthesis loop.
type CycleConfig struct {
	// MaxRetries is the number of retries allowed after a failed cycle.
	// Zero means unlimited.
	MaxRetries int `yaml:"max_retries" env:"VOXCLONE_MAX_RETRIES"`

	// Once stops after the first successful cycle.
	Once bool `yaml:"once" env:"VOXCLONE_ONCE"`
}

// PreprocessConfig tunes reference audio preparation.
type PreprocessConfig struct {
	// TargetDBFS is the loudness quiet recordings are raised to.
	TargetDBFS float64 `yaml:"target_dbfs" env:"VOXCLONE_TARGET_DBFS"`

	// TrimSilence enables removal of long pauses.
	TrimSilence bool `yaml:"trim_silence" env:"VOXCLONE_TRIM_SILENCE"`

	// VAD is the registered voice-activity detector name.
	VAD string `yaml:"vad" env:"VOXCLONE_VAD"`

	// FFmpeg is the ffmpeg executable used for containers without a native
	// decoder. "off" disables the fallback; empty uses ffmpeg from $PATH.
	FFmpeg string `yaml:"ffmpeg" env:"VOXCLONE_FFMPEG"`
}

// FFmpegDisabled is the [PreprocessConfig.FFmpeg] value that turns the
// ffmpeg fallback off.
const FFmpegDisabled = "off"

// StatusConfig configures the optional status server.
type StatusConfig struct {
	// ListenAddr is the TCP address for /healthz, /readyz, /status and
	// /metrics. Empty disables the server.
	ListenAddr string `yaml:"listen_addr" env:"VOXCLONE_STATUS_ADDR"`
}

// Default returns the configuration used when nothing else is specified. The
// paths match the layout of the published pretrained models.
func Default() *Config {
	return &Config{
		LogLevel: LogInfo,
		Runtime: RuntimeConfig{
			Name:    "worker",
			BaseURL: "http://127.0.0.1:7860",
		},
		Accelerator: AcceleratorConfig{
			Probe: "worker",
		},
		Models: ModelsConfig{
			Encoder:        "encoder/saved_models/pretrained.pt",
			SynthesizerDir: "synthesizer/saved_models/logs-pretrained/",
			Vocoder:        "vocoder/saved_models/pretrained/pretrained.pt",
		},
		IO: IOConfig{
			VoiceIn: "input.wav",
			Out:     "output.wav",
		},
		Preprocess: PreprocessConfig{
			TargetDBFS:  -30,
			TrimSilence: true,
			VAD:         "energy",
		},
	}
}
