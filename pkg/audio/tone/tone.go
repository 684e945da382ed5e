// Package tone provides a synthetic [audio.Source] that generates a pure
// sine wave. It needs no hardware and is handy for demos and calibration
// checks.
package tone

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/MrWong99/fretsense/pkg/audio"
)

// Option configures a [Source].
type Option func(*Source)

// WithAmplitude sets the peak amplitude in (0, 1]. Default: 0.5.
func WithAmplitude(a float64) Option {
	return func(s *Source) { s.amplitude = a }
}

// WithDuration stops the stream after d of generated audio. Zero (the
// default) generates until closed.
func WithDuration(d time.Duration) Option {
	return func(s *Source) { s.duration = d }
}

// WithRealtime paces frame delivery to wall-clock time.
func WithRealtime(realtime bool) Option {
	return func(s *Source) { s.realtime = realtime }
}

// Source generates a sine wave at a fixed frequency.
type Source struct {
	frequency float64
	amplitude float64
	duration  time.Duration
	realtime  bool
}

// New returns a Source emitting a sine at frequency Hz.
func New(frequency float64, opts ...Option) (*Source, error) {
	if !(frequency > 0) || math.IsInf(frequency, 0) {
		return nil, fmt.Errorf("tone: frequency must be positive and finite, got %v", frequency)
	}
	s := &Source{frequency: frequency, amplitude: 0.5}
	for _, o := range opts {
		o(s)
	}
	if !(s.amplitude > 0) || s.amplitude > 1 {
		return nil, fmt.Errorf("tone: amplitude must be in (0, 1], got %v", s.amplitude)
	}
	if s.duration < 0 {
		return nil, fmt.Errorf("tone: duration must not be negative, got %v", s.duration)
	}
	return s, nil
}

// Open implements [audio.Source].
func (s *Source) Open(_ context.Context, cfg audio.CaptureConfig) (audio.Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	hop := cfg.Hop()
	var limit int64 = -1
	if s.duration > 0 {
		limit = int64(s.duration) * int64(cfg.SampleRate) / int64(time.Second)
	}
	step := 2 * math.Pi * s.frequency / float64(cfg.SampleRate)

	return audio.NewPipe(4, nil, func(p *audio.Pipe) {
		framer := audio.NewFramer(cfg)
		var tick <-chan time.Time
		if s.realtime {
			t := time.NewTicker(time.Duration(hop) * time.Second / time.Duration(cfg.SampleRate))
			defer t.Stop()
			tick = t.C
		}

		var n int64
		chunk := make([]float32, hop)
		for limit < 0 || n < limit {
			size := hop
			if limit >= 0 && limit-n < int64(size) {
				size = int(limit - n)
			}
			for i := range size {
				chunk[i] = float32(s.amplitude * math.Sin(step*float64(n+int64(i))))
			}
			n += int64(size)

			ok := true
			framer.Push(chunk[:size], func(fr audio.Frame) {
				if ok {
					ok = p.Send(fr)
				}
			})
			if !ok {
				return
			}
			if tick != nil {
				select {
				case <-tick:
				case <-p.Done():
					return
				}
			}
		}
	}), nil
}

var _ audio.Source = (*Source)(nil)
