// Package config defines the fretsense configuration schema and its YAML
// loader. A Config is loaded once at startup and never mutated afterwards.
package config

import (
	"time"

	"github.com/MrWong99/fretsense/pkg/music"
)

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

// Config is the root configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`

	// Audio selects the capture source (portaudio, wav, tone).
	Audio ProviderEntry `yaml:"audio"`

	// Pitch selects the pitch estimator (mpm).
	Pitch ProviderEntry `yaml:"pitch"`

	Tuner   TunerConfig   `yaml:"tuner"`
	Display DisplayConfig `yaml:"display"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// ListenAddr is the HTTP address for health, metrics and the note
	// stream. Empty disables the HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`
}

// ProviderEntry names a registered implementation and carries its
// implementation-specific options.
type ProviderEntry struct {
	// Name selects the factory in the [Registry].
	Name string `yaml:"name"`

	// Options holds values not covered by the shared schema. Values may be
	// strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// TunerConfig holds the detection thresholds. Zero values are replaced by
// defaults in [ApplyDefaults].
type TunerConfig struct {
	// SampleRate in Hz. Default: 44100.
	SampleRate int `yaml:"sample_rate"`

	// BufferSize is the number of samples per frame. Default: 4096.
	BufferSize int `yaml:"buffer_size"`

	// BufferOverlap is the number of samples shared by consecutive frames.
	// Default: half of BufferSize. An explicit 0 disables overlap, which is
	// why the field is a pointer. Read it through [TunerConfig.Overlap].
	BufferOverlap *int `yaml:"buffer_overlap"`

	// RMSLowCutoff and RMSHighCutoff bound the accepted frame loudness
	// (exclusive). Defaults: 0.01, 0.8.
	RMSLowCutoff  float64 `yaml:"rms_low_cutoff"`
	RMSHighCutoff float64 `yaml:"rms_high_cutoff"`

	// ConfidenceThreshold is the estimator probability a frame must
	// exceed. Default: 0.9.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// CandidateWindowCapacity is the number of recent accepted frequencies
	// the stabilizer keeps. Default: 5.
	CandidateWindowCapacity int `yaml:"candidate_window_capacity"`

	// MinValidCandidates is the number of agreeing candidates needed to
	// emit. Default: 2.
	MinValidCandidates int `yaml:"min_valid_candidates"`

	// OctaveMatchTolerance is the relative deviation under which two
	// candidates agree. Default: 0.03.
	OctaveMatchTolerance float64 `yaml:"octave_match_tolerance"`

	// CalibrationFactor scales stable frequencies before note mapping.
	// Default: 1.
	CalibrationFactor float64 `yaml:"calibration_factor"`
}

// Overlap returns the configured frame overlap, or half the buffer size
// when none is set.
func (t TunerConfig) Overlap() int {
	if t.BufferOverlap == nil {
		return t.BufferSize / 2
	}
	return *t.BufferOverlap
}

// DisplayConfig controls how published notes are presented.
type DisplayConfig struct {
	// CentsTolerance is the deviation still reported as in tune.
	// Default: 10.
	CentsTolerance float64 `yaml:"cents_tolerance"`

	// SilenceHold is how long the last note stays published after the
	// signal drops out. Default: 2s.
	SilenceHold time.Duration `yaml:"silence_hold"`

	// Notation selects note names. Default: english.
	Notation music.Notation `yaml:"notation"`

	// Scale, when set, marks which detected notes belong to it.
	Scale *ScaleConfig `yaml:"scale"`
}

// ScaleConfig names a root note and scale, e.g. {A, pentatonic minor}.
type ScaleConfig struct {
	Root string `yaml:"root"`
	Name string `yaml:"name"`
}
