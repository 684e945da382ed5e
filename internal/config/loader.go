package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/fretsense/pkg/music"
)

// ValidProviderNames lists the built-in implementations per kind. [Validate]
// warns about names outside this list, since a third-party factory may
// still be registered under them.
var ValidProviderNames = map[string][]string{
	"audio": {"portaudio", "wav", "tone"},
	"pitch": {"mpm"},
}

// Defaults.
const (
	DefaultSampleRate              = 44100
	DefaultBufferSize              = 4096
	DefaultRMSLowCutoff            = 0.01
	DefaultRMSHighCutoff           = 0.8
	DefaultConfidenceThreshold     = 0.9
	DefaultCandidateWindowCapacity = 5
	DefaultMinValidCandidates      = 2
	DefaultOctaveMatchTolerance    = 0.03
	DefaultCalibrationFactor       = 1.0
	DefaultCentsTolerance          = 10.0
	DefaultSilenceHold             = 2 * time.Second
	DefaultAudio                   = "portaudio"
	DefaultPitch                   = "mpm"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
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

// LoadFromReader decodes YAML from r, applies defaults and validates the
// result. Unknown fields are rejected. An empty document yields the
// default configuration.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every zero-valued field that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.Name == "" {
		cfg.Audio.Name = DefaultAudio
	}
	if cfg.Pitch.Name == "" {
		cfg.Pitch.Name = DefaultPitch
	}

	t := &cfg.Tuner
	setDefault(&t.SampleRate, DefaultSampleRate)
	setDefault(&t.BufferSize, DefaultBufferSize)
	if t.BufferOverlap == nil {
		overlap := t.BufferSize / 2
		t.BufferOverlap = &overlap
	}
	setDefault(&t.RMSLowCutoff, DefaultRMSLowCutoff)
	setDefault(&t.RMSHighCutoff, DefaultRMSHighCutoff)
	setDefault(&t.ConfidenceThreshold, DefaultConfidenceThreshold)
	setDefault(&t.CandidateWindowCapacity, DefaultCandidateWindowCapacity)
	setDefault(&t.MinValidCandidates, DefaultMinValidCandidates)
	setDefault(&t.OctaveMatchTolerance, DefaultOctaveMatchTolerance)
	setDefault(&t.CalibrationFactor, DefaultCalibrationFactor)

	d := &cfg.Display
	setDefault(&d.CentsTolerance, DefaultCentsTolerance)
	setDefault(&d.SilenceHold, DefaultSilenceHold)
	if d.Notation == "" {
		d.Notation = music.English
	}
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("audio", cfg.Audio.Name)
	validateProviderName("pitch", cfg.Pitch.Name)

	t := cfg.Tuner
	if t.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("tuner.sample_rate must be positive, got %d", t.SampleRate))
	}
	if t.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("tuner.buffer_size must be positive, got %d", t.BufferSize))
	}
	if o := t.Overlap(); o < 0 || o >= t.BufferSize {
		errs = append(errs, fmt.Errorf("tuner.buffer_overlap %d must be in [0, buffer_size)", o))
	}
	if t.RMSLowCutoff < 0 {
		errs = append(errs, fmt.Errorf("tuner.rms_low_cutoff must not be negative, got %v", t.RMSLowCutoff))
	}
	if !(t.RMSLowCutoff < t.RMSHighCutoff) {
		errs = append(errs, fmt.Errorf("tuner.rms_low_cutoff %v must be below rms_high_cutoff %v", t.RMSLowCutoff, t.RMSHighCutoff))
	}
	if t.ConfidenceThreshold < 0 || t.ConfidenceThreshold >= 1 {
		errs = append(errs, fmt.Errorf("tuner.confidence_threshold %v must be in [0, 1)", t.ConfidenceThreshold))
	}
	if t.CandidateWindowCapacity < 1 {
		errs = append(errs, fmt.Errorf("tuner.candidate_window_capacity must be at least 1, got %d", t.CandidateWindowCapacity))
	}
	if t.MinValidCandidates < 1 || t.MinValidCandidates > t.CandidateWindowCapacity {
		errs = append(errs, fmt.Errorf("tuner.min_valid_candidates %d must be in [1, candidate_window_capacity]", t.MinValidCandidates))
	}
	if !(t.OctaveMatchTolerance > 0 && t.OctaveMatchTolerance < 1) {
		errs = append(errs, fmt.Errorf("tuner.octave_match_tolerance %v must be in (0, 1)", t.OctaveMatchTolerance))
	}
	if !(t.CalibrationFactor > 0) {
		errs = append(errs, fmt.Errorf("tuner.calibration_factor must be positive, got %v", t.CalibrationFactor))
	}

	d := cfg.Display
	if d.CentsTolerance < 0 || d.CentsTolerance > 50 {
		errs = append(errs, fmt.Errorf("display.cents_tolerance %v must be in [0, 50]", d.CentsTolerance))
	}
	if d.SilenceHold < 0 {
		errs = append(errs, fmt.Errorf("display.silence_hold must not be negative, got %v", d.SilenceHold))
	}
	if d.Notation != "" && !d.Notation.IsValid() {
		errs = append(errs, fmt.Errorf("display.notation %q is invalid; valid values: english, solfege", d.Notation))
	}
	if d.Scale != nil {
		if _, err := music.NewScale(d.Scale.Root, d.Scale.Name); err != nil {
			errs = append(errs, fmt.Errorf("display.scale: %w", err))
		}
	}

	return errors.Join(errs...)
}

func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	if slices.Contains(ValidProviderNames[kind], name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", ValidProviderNames[kind],
	)
}
