package main

import (
	"errors"
	"log/slog"
	"testing"
	"unicode/utf8"

	"github.com/MrWong99/fretsense/internal/config"
	"github.com/MrWong99/fretsense/pkg/audio/tone"
	"github.com/MrWong99/fretsense/pkg/audio/wav"
	"github.com/MrWong99/fretsense/pkg/provider/pitch/mpm"
)

func defaultConfig(audioEntry config.ProviderEntry) *config.Config {
	cfg := &config.Config{Audio: audioEntry}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	tests := []struct {
		name    string
		entry   config.ProviderEntry
		check   func(t *testing.T, got any)
		wantErr bool
	}{
		{
			name:  "tone with options",
			entry: config.ProviderEntry{Name: "tone", Options: map[string]any{"frequency": 110, "amplitude": 0.3, "duration": "2s", "realtime": false}},
			check: func(t *testing.T, got any) {
				if _, ok := got.(*tone.Source); !ok {
					t.Errorf("audio = %T, want *tone.Source", got)
				}
			},
		},
		{
			name:  "wav",
			entry: config.ProviderEntry{Name: "wav", Options: map[string]any{"path": "take.wav"}},
			check: func(t *testing.T, got any) {
				if _, ok := got.(*wav.Source); !ok {
					t.Errorf("audio = %T, want *wav.Source", got)
				}
			},
		},
		{name: "wav without path", entry: config.ProviderEntry{Name: "wav"}, wantErr: true},
		{name: "tone bad duration", entry: config.ProviderEntry{Name: "tone", Options: map[string]any{"duration": "forever"}}, wantErr: true},
		{name: "tone bad amplitude", entry: config.ProviderEntry{Name: "tone", Options: map[string]any{"amplitude": 2}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ps, err := buildProviders(defaultConfig(tt.entry), reg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("buildProviders succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildProviders: %v", err)
			}
			tt.check(t, ps.Audio)
			if _, ok := ps.Pitch.(*mpm.Estimator); !ok {
				t.Errorf("pitch = %T, want *mpm.Estimator", ps.Pitch)
			}
		})
	}
}

func TestBuildProviders_UnknownName(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	_, err := buildProviders(defaultConfig(config.ProviderEntry{Name: "jack"}), reg)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestBuildProviders_MPMOptions(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	cfg := defaultConfig(config.ProviderEntry{Name: "tone"})
	cfg.Pitch.Options = map[string]any{"cutoff": 1.5}
	if _, err := buildProviders(cfg, reg); err == nil {
		t.Error("buildProviders accepted an MPM cutoff above 1")
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "short", in: "mpm", want: "mpm"},
		{name: "exact", in: "abcdefghijklmnopqrs", want: "abcdefghijklmnopqrs"},
		{name: "ascii cut", in: "/very/long/path/to/a.wav", want: "/very/long/path/to…"},
		{name: "multibyte cut", in: "Überlänge-Gitarre-Stimmung", want: "Überlänge-Gitarre-…"},
		{name: "multibyte fits", in: "Do♯ Ré♭ Mi", want: "Do♯ Ré♭ Mi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := truncate(tt.in, 19)
			if got != tt.want {
				t.Errorf("truncate(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q) produced invalid UTF-8 %q", tt.in, got)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level config.LogLevel
		want  slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		h := newLogger(tt.level).Handler()
		if !h.Enabled(t.Context(), tt.want) {
			t.Errorf("%q: level %v disabled", tt.level, tt.want)
		}
		if tt.want > slog.LevelDebug && h.Enabled(t.Context(), tt.want-1) {
			t.Errorf("%q: level below %v enabled", tt.level, tt.want)
		}
	}
}
