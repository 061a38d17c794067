// Command voxclone clones a voice from a short reference recording and speaks
// arbitrary sentences with it, one interactive cycle at a time.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/MrWong99/voxclone/internal/app"
	"github.com/MrWong99/voxclone/internal/config"
	"github.com/MrWong99/voxclone/internal/observe"
	"github.com/MrWong99/voxclone/internal/prompt"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := newRootCommand(&cli{env: config.ApplyEnv, serve: serve})
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "voxclone: %v\n", err)
		return 1
	}
	return 0
}

// ── CLI ───────────────────────────────────────────────────────────────────────

// flags mirrors the command-line surface. Only flags the operator set
// explicitly override the file and environment layers.
type flags struct {
	configPath  string
	encoder     string
	synthesizer string
	vocoder     string
	out         string
	textIn      string
	voiceIn     string
	runtimeURL  string
	device      int
	once        bool
	maxRetries  int
	statusAddr  string
	logLevel    string
}

// cli holds the injectable parts of the root command.
type cli struct {
	flags flags

	// env overlays environment variables onto the config.
	env func(*config.Config) error

	// serve runs the application with the resolved config.
	serve func(ctx context.Context, cfg *config.Config) error
}

func newRootCommand(c *cli) *cobra.Command {
	def := config.Default()
	cmd := &cobra.Command{
		Use:   "voxclone",
		Short: "Clone a voice from a reference recording and synthesize speech with it",
		Long: "voxclone embeds a reference voice once, then repeatedly turns sentences into\n" +
			"speech in that voice. Failed attempts are reported and the loop restarts\n" +
			"without reloading the models.",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.resolve(cmd)
			if err != nil {
				return err
			}
			return c.serve(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&c.flags.configPath, "config", "", "optional YAML configuration file")
	f.StringVarP(&c.flags.encoder, "enc_model_fpath", "e", def.Models.Encoder, "path to a saved encoder")
	f.StringVarP(&c.flags.synthesizer, "syn_model_dir", "s", def.Models.SynthesizerDir, "directory containing the synthesizer model")
	f.StringVarP(&c.flags.vocoder, "voc_model_fpath", "v", def.Models.Vocoder, "path to a saved vocoder")
	f.StringVar(&c.flags.out, "out", def.IO.Out, "output WAV file")
	f.StringVar(&c.flags.textIn, "textin", "", "text to synthesize in the first cycle; prompts when empty")
	f.StringVar(&c.flags.voiceIn, "voicein", def.IO.VoiceIn, "reference voice recording; prompts when empty")
	f.StringVar(&c.flags.runtimeURL, "runtime_url", def.Runtime.BaseURL, "inference runtime base URL")
	f.IntVar(&c.flags.device, "device", def.Accelerator.Device, "accelerator index")
	f.BoolVar(&c.flags.once, "once", false, "exit after the first successful cycle")
	f.IntVar(&c.flags.maxRetries, "max_retries", 0, "retries allowed after a failed cycle before giving up (0 = unlimited)")
	f.StringVar(&c.flags.statusAddr, "status_addr", "", "serve /healthz, /readyz, /status and /metrics on this address")
	f.StringVar(&c.flags.logLevel, "log_level", string(def.LogLevel), "log level: debug, info, warn, error")

	return cmd
}

// resolve layers defaults, the YAML file, the environment and the explicitly
// set flags, in that order, and validates the result.
func (c *cli) resolve(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if c.flags.configPath != "" {
		loaded, err := config.Load(c.flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if c.env != nil {
		if err := c.env(cfg); err != nil {
			return nil, err
		}
	}

	set := cmd.Flags().Changed
	if set("enc_model_fpath") {
		cfg.Models.Encoder = c.flags.encoder
	}
	if set("syn_model_dir") {
		cfg.Models.SynthesizerDir = c.flags.synthesizer
	}
	if set("voc_model_fpath") {
		cfg.Models.Vocoder = c.flags.vocoder
	}
	if set("out") {
		cfg.IO.Out = c.flags.out
	}
	if set("textin") {
		cfg.IO.TextIn = c.flags.textIn
	}
	if set("voicein") {
		cfg.IO.VoiceIn = c.flags.voiceIn
	}
	if set("runtime_url") {
		cfg.Runtime.BaseURL = c.flags.runtimeURL
	}
	if set("device") {
		cfg.Accelerator.Device = c.flags.device
	}
	if set("once") {
		cfg.Cycle.Once = c.flags.once
	}
	if set("max_retries") {
		cfg.Cycle.MaxRetries = c.flags.maxRetries
	}
	if set("status_addr") {
		cfg.Status.ListenAddr = c.flags.statusAddr
	}
	if set("log_level") {
		cfg.LogLevel = config.LogLevel(c.flags.logLevel)
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ── Serve ─────────────────────────────────────────────────────────────────────

// serve runs the application until the synthesis loop ends or a signal
// arrives.
func serve(ctx context.Context, cfg *config.Config) error {
	slog.SetDefault(newLogger(cfg.LogLevel))
	printArguments(os.Stdout, cfg)

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, closeSrc := newSource(cfg.IO.HistoryFile)
	defer closeSrc()

	application, err := app.New(ctx, cfg,
		app.WithTextSource(src),
		app.WithVoiceSource(src),
	)
	if err != nil {
		return err
	}

	runErr := application.Run(ctx)
	if runErr != nil && errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	return runErr
}

// newSource returns a line-editing prompt on a terminal and a plain line
// scanner otherwise.
func newSource(historyFile string) (prompt.Source, func()) {
	if readline.IsTerminal(int(os.Stdin.Fd())) {
		rl, err := prompt.NewReadline(historyFile)
		if err == nil {
			return rl, func() { rl.Close() }
		}
		slog.Warn("line editing unavailable, reading plain lines", "err", err)
	}
	return prompt.NewScanner(os.Stdin, os.Stdout), func() {}
}

// printArguments echoes the effective settings before anything is loaded.
func printArguments(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Arguments:")
	for _, kv := range [][2]string{
		{"enc_model_fpath", cfg.Models.Encoder},
		{"syn_model_dir", cfg.Models.SynthesizerDir},
		{"voc_model_fpath", cfg.Models.Vocoder},
		{"out", cfg.IO.Out},
		{"textin", cfg.IO.TextIn},
		{"voicein", cfg.IO.VoiceIn},
		{"runtime_url", cfg.Runtime.BaseURL},
		{"device", fmt.Sprint(cfg.Accelerator.Device)},
	} {
		fmt.Fprintf(w, "    %s: %s\n", kv[0], kv[1])
	}
	fmt.Fprintln(w)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
