package tone_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/fretsense/pkg/audio"
	"github.com/MrWong99/fretsense/pkg/audio/tone"
)

var testCfg = audio.CaptureConfig{SampleRate: 8000, BufferSize: 1024, BufferOverlap: 512}

func TestSource_BoundedDuration(t *testing.T) {
	t.Parallel()

	src, err := tone.New(440, tone.WithDuration(time.Second))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stream, err := src.Open(context.Background(), testCfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	var frames []audio.Frame
	for fr := range stream.Frames() {
		frames = append(frames, fr)
	}
	// 8000 samples, frames start every 512: k*512+1024 <= 8000 → k in [0, 13].
	if len(frames) != 14 {
		t.Fatalf("frames = %d, want 14", len(frames))
	}
	for i, fr := range frames {
		if fr.Seq != uint64(i+1) {
			t.Errorf("frame %d: Seq = %d", i, fr.Seq)
		}
	}

	// Second frame starts at sample 512 and must continue the waveform.
	want := 0.5 * math.Sin(2*math.Pi*440*512/8000)
	if got := float64(frames[1].Samples[0]); math.Abs(got-want) > 1e-6 {
		t.Errorf("frame 2 sample 0 = %v, want %v", got, want)
	}
}

func TestSource_CloseStopsEndlessStream(t *testing.T) {
	t.Parallel()

	src, err := tone.New(220)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stream, err := src.Open(context.Background(), testCfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	<-stream.Frames()
	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for range stream.Frames() {
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		freq float64
		opts []tone.Option
	}{
		{name: "zero frequency", freq: 0},
		{name: "negative frequency", freq: -1},
		{name: "nan frequency", freq: math.NaN()},
		{name: "amplitude too large", freq: 440, opts: []tone.Option{tone.WithAmplitude(1.5)}},
		{name: "negative duration", freq: 440, opts: []tone.Option{tone.WithDuration(-time.Second)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := tone.New(tt.freq, tt.opts...); err == nil {
				t.Error("expected error")
			}
		})
	}
}
