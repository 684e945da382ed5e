package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/fretsense/pkg/audio"
	"github.com/MrWong99/fretsense/pkg/provider/pitch"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory
// has been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// AudioFactory builds a capture source from its config entry.
type AudioFactory func(ProviderEntry) (audio.Source, error)

// PitchFactory builds a pitch estimator for frames described by cfg.
type PitchFactory func(entry ProviderEntry, cfg pitch.Config) (pitch.Estimator, error)

// Registry maps provider names to constructors. It is safe for concurrent
// use.
type Registry struct {
	mu    sync.RWMutex
	audio map[string]AudioFactory
	pitch map[string]PitchFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		audio: make(map[string]AudioFactory),
		pitch: make(map[string]PitchFactory),
	}
}

// RegisterAudio registers a capture source factory under name. A later
// registration with the same name replaces the earlier one.
func (r *Registry) RegisterAudio(name string, factory AudioFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audio[name] = factory
}

// RegisterPitch registers a pitch estimator factory under name.
func (r *Registry) RegisterPitch(name string, factory PitchFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pitch[name] = factory
}

// CreateAudio instantiates the capture source registered under entry.Name.
func (r *Registry) CreateAudio(entry ProviderEntry) (audio.Source, error) {
	r.mu.RLock()
	factory, ok := r.audio[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: audio/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreatePitch instantiates the pitch estimator registered under entry.Name.
func (r *Registry) CreatePitch(entry ProviderEntry, cfg pitch.Config) (pitch.Estimator, error) {
	r.mu.RLock()
	factory, ok := r.pitch[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: pitch/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry, cfg)
}

// Names returns the sorted registered names for kind ("audio" or "pitch").
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "audio":
		for n := range r.audio {
			names = append(names, n)
		}
	case "pitch":
		for n := range r.pitch {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}

// OptString returns the option under key, or "" if absent or not a string.
func (e ProviderEntry) OptString(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// OptFloat returns the numeric option under key. YAML integers are accepted.
func (e ProviderEntry) OptFloat(key string) (float64, bool) {
	switch v := e.Options[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// OptBool returns the boolean option under key.
func (e ProviderEntry) OptBool(key string) (value, ok bool) {
	value, ok = e.Options[key].(bool)
	return value, ok
}

// OptDuration parses the option under key with [time.ParseDuration].
func (e ProviderEntry) OptDuration(key string) (time.Duration, bool, error) {
	s := e.OptString(key)
	if s == "" {
		return 0, false, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false, fmt.Errorf("config: option %q: %w", key, err)
	}
	return d, true, nil
}
