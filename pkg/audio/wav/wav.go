// Package wav provides an [audio.Source] that replays a WAV file as if it
// were a live capture. It is used for offline analysis and for exercising
// the pipeline without a microphone.
package wav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"github.com/MrWong99/fretsense/pkg/audio"
)

// wavFormatPCM is the fmt chunk audio format for integer PCM.
const wavFormatPCM = 1

// Option configures a [Source].
type Option func(*Source)

// WithRealtime paces frame delivery to the file's sample rate instead of
// decoding as fast as the consumer reads.
func WithRealtime(realtime bool) Option {
	return func(s *Source) { s.realtime = realtime }
}

// Source replays a WAV file. Each Open decodes the file from the start.
type Source struct {
	path     string
	realtime bool
}

// New returns a Source for the WAV file at path.
func New(path string, opts ...Option) (*Source, error) {
	if path == "" {
		return nil, fmt.Errorf("wav: path is required")
	}
	s := &Source{path: path}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Open implements [audio.Source].
func (s *Source) Open(_ context.Context, cfg audio.CaptureConfig) (audio.Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("wav: open %q: %w: %w", s.path, audio.ErrDeviceUnavailable, err)
	}

	dec := gowav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("wav: %q is not a valid WAV file", s.path)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		f.Close()
		return nil, fmt.Errorf("wav: %q uses audio format %d, only integer PCM is supported", s.path, dec.WavAudioFormat)
	}
	if int(dec.SampleRate) != cfg.SampleRate {
		f.Close()
		return nil, fmt.Errorf("wav: %q has sample rate %d, pipeline expects %d", s.path, dec.SampleRate, cfg.SampleRate)
	}

	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	slog.Debug("wav source opened", "path", s.path, "sample_rate", dec.SampleRate, "channels", channels, "bit_depth", bitDepth)

	hop := cfg.Hop()
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{NumChannels: channels, SampleRate: cfg.SampleRate},
		Data:   make([]int, hop*channels),
	}
	frameDur := time.Duration(hop) * time.Second / time.Duration(cfg.SampleRate)

	return audio.NewPipe(4, f.Close, func(p *audio.Pipe) {
		framer := audio.NewFramer(cfg)
		var tick <-chan time.Time
		if s.realtime {
			t := time.NewTicker(frameDur)
			defer t.Stop()
			tick = t.C
		}
		for {
			n, err := dec.PCMBuffer(buf)
			if err != nil && !errors.Is(err, io.EOF) {
				slog.Warn("wav source: decode failed", "path", s.path, "err", err)
				return
			}
			if n == 0 {
				return
			}
			data := buf.Data[:n]
			if bitDepth == 8 {
				// 8-bit WAV is unsigned.
				for i := range data {
					data[i] -= 128
				}
			}
			mono := audio.Downmix(audio.IntToFloat(data, bitDepth), channels)

			delivered := true
			framer.Push(mono, func(fr audio.Frame) {
				if !delivered {
					return
				}
				if tick != nil {
					select {
					case <-tick:
					case <-p.Done():
						delivered = false
						return
					}
				}
				delivered = p.Send(fr)
			})
			if !delivered {
				return
			}
		}
	}), nil
}

var _ audio.Source = (*Source)(nil)
