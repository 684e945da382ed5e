// Package portaudio provides an [audio.Source] backed by the system's
// default input device through PortAudio.
//
// Only one stream may hold the device at a time. A second Open while a
// stream is active fails with [audio.ErrDeviceUnavailable].
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/fretsense/pkg/audio"
)

// device guards exclusive ownership of the input device across all Sources
// in the process.
var device struct {
	mu   sync.Mutex
	held bool
}

// Source captures mono float32 audio from the default input device.
type Source struct{}

// New returns a Source for the default input device.
func New() *Source {
	return &Source{}
}

// Open implements [audio.Source]. It initialises PortAudio, opens a
// blocking input stream and starts reading hop-sized buffers on a new
// goroutine.
func (s *Source) Open(_ context.Context, cfg audio.CaptureConfig) (audio.Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	device.mu.Lock()
	defer device.mu.Unlock()
	if device.held {
		return nil, fmt.Errorf("portaudio: %w: already in use", audio.ErrDeviceUnavailable)
	}

	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w: %w", audio.ErrDeviceUnavailable, err)
	}
	hop := cfg.Hop()
	buf := make([]float32, hop)
	st, err := pa.OpenDefaultStream(1, 0, float64(cfg.SampleRate), hop, buf)
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: open input: %w: %w", audio.ErrDeviceUnavailable, err)
	}
	if err := st.Start(); err != nil {
		_ = st.Close()
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: start input: %w: %w", audio.ErrDeviceUnavailable, err)
	}
	device.held = true
	slog.Info("microphone opened", "sample_rate", cfg.SampleRate, "hop", hop)

	release := func() error {
		err := errors.Join(st.Stop(), st.Close(), pa.Terminate())
		device.mu.Lock()
		device.held = false
		device.mu.Unlock()
		slog.Info("microphone released")
		return err
	}

	return audio.NewPipe(4, release, func(p *audio.Pipe) {
		framer := audio.NewFramer(cfg)
		for {
			select {
			case <-p.Done():
				return
			default:
			}
			if err := st.Read(); err != nil {
				if errors.Is(err, pa.InputOverflowed) {
					slog.Debug("microphone input overflowed")
					continue
				}
				slog.Warn("microphone read failed", "err", err)
				return
			}
			ok := true
			framer.Push(buf, func(fr audio.Frame) {
				if ok {
					ok = p.Send(fr)
				}
			})
			if !ok {
				return
			}
		}
	}), nil
}

var _ audio.Source = (*Source)(nil)
