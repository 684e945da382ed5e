// Command fretsense is a real-time guitar tuner: it listens to an audio
// source, detects the played note and streams it to observers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/fretsense/internal/app"
	"github.com/MrWong99/fretsense/internal/config"
	"github.com/MrWong99/fretsense/internal/observe"
	"github.com/MrWong99/fretsense/pkg/audio"
	"github.com/MrWong99/fretsense/pkg/audio/portaudio"
	"github.com/MrWong99/fretsense/pkg/audio/tone"
	"github.com/MrWong99/fretsense/pkg/audio/wav"
	"github.com/MrWong99/fretsense/pkg/provider/pitch"
	"github.com/MrWong99/fretsense/pkg/provider/pitch/mpm"
)

// version is overridden at build time with -ldflags "-X main.version=…".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "fretsense.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "fretsense: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "fretsense: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("fretsense starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics, err := observe.NewMetrics(telemetry.MeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(cfg, providers,
		app.WithMetrics(metrics),
		app.WithMetricsHandler(telemetry.Handler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("tuner ready, press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from its options.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Audio ─────────────────────────────────────────────────────────────────
	reg.RegisterAudio("portaudio", func(config.ProviderEntry) (audio.Source, error) {
		return portaudio.New(), nil
	})

	reg.RegisterAudio("wav", func(entry config.ProviderEntry) (audio.Source, error) {
		var opts []wav.Option
		if rt, ok := entry.OptBool("realtime"); ok {
			opts = append(opts, wav.WithRealtime(rt))
		}
		return wav.New(entry.OptString("path"), opts...)
	})

	// tone paces itself like a live device unless told otherwise.
	reg.RegisterAudio("tone", func(entry config.ProviderEntry) (audio.Source, error) {
		freq, ok := entry.OptFloat("frequency")
		if !ok {
			freq = 440
		}
		realtime := true
		if rt, ok := entry.OptBool("realtime"); ok {
			realtime = rt
		}
		opts := []tone.Option{tone.WithRealtime(realtime)}
		if amp, ok := entry.OptFloat("amplitude"); ok {
			opts = append(opts, tone.WithAmplitude(amp))
		}
		d, ok, err := entry.OptDuration("duration")
		if err != nil {
			return nil, err
		}
		if ok {
			opts = append(opts, tone.WithDuration(d))
		}
		return tone.New(freq, opts...)
	})

	// ── Pitch ─────────────────────────────────────────────────────────────────
	reg.RegisterPitch("mpm", func(entry config.ProviderEntry, cfg pitch.Config) (pitch.Estimator, error) {
		var opts []mpm.Option
		if c, ok := entry.OptFloat("cutoff"); ok {
			opts = append(opts, mpm.WithCutoff(c))
		}
		if hz, ok := entry.OptFloat("min_frequency"); ok {
			opts = append(opts, mpm.WithMinFrequency(hz))
		}
		return mpm.New(cfg, opts...)
	})
}

// buildProviders instantiates the configured audio source and pitch
// estimator from the registry.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	src, err := reg.CreateAudio(cfg.Audio)
	if err != nil {
		return nil, fmt.Errorf("create audio provider %q: %w", cfg.Audio.Name, err)
	}
	ps.Audio = src
	slog.Info("provider created", "kind", "audio", "name", cfg.Audio.Name)

	est, err := reg.CreatePitch(cfg.Pitch, pitch.Config{
		SampleRate: cfg.Tuner.SampleRate,
		BufferSize: cfg.Tuner.BufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create pitch provider %q: %w", cfg.Pitch.Name, err)
	}
	ps.Pitch = est
	slog.Info("provider created", "kind", "pitch", "name", cfg.Pitch.Name)

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          fretsense startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Audio", cfg.Audio.Name)
	printRow("Pitch", cfg.Pitch.Name)
	printRow("Sample rate", fmt.Sprintf("%d Hz", cfg.Tuner.SampleRate))
	printRow("Frame", fmt.Sprintf("%d / %d", cfg.Tuner.BufferSize, cfg.Tuner.Overlap()))
	printRow("Notation", string(cfg.Display.Notation))
	printRow("Silence hold", cfg.Display.SilenceHold.String())
	if s := cfg.Display.Scale; s != nil {
		printRow("Scale", s.Root+" "+strings.ToLower(s.Name))
	}
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	} else {
		printRow("Listen addr", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	fmt.Printf("║  %-12s    : %-19s ║\n", label, truncate(value, 19))
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
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
