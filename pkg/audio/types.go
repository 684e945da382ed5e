package audio

import (
	"fmt"
	"time"
)

// Frame is a single fixed-size window of mono audio flowing through the
// pipeline. Consecutive frames overlap by [CaptureConfig.BufferOverlap]
// samples. A Frame is immutable once emitted: sources allocate a fresh
// Samples slice for every frame.
type Frame struct {
	// Samples holds mono samples normalised to [-1, 1].
	Samples []float32

	// SampleRate in Hz (e.g., 44100).
	SampleRate int

	// Seq is the 1-based position of the frame within its stream.
	Seq uint64

	// Timestamp marks the start of the frame relative to stream start.
	Timestamp time.Duration
}

// CaptureConfig describes the framing every [Source] must honour.
type CaptureConfig struct {
	// SampleRate in Hz.
	SampleRate int

	// BufferSize is the number of samples per frame.
	BufferSize int

	// BufferOverlap is the number of samples shared with the previous frame.
	// Must be less than BufferSize.
	BufferOverlap int
}

// Hop returns the number of new samples each frame advances by.
func (c CaptureConfig) Hop() int {
	return c.BufferSize - c.BufferOverlap
}

// Validate reports whether c describes a usable framing.
func (c CaptureConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %d", c.SampleRate)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("audio: buffer size must be positive, got %d", c.BufferSize)
	}
	if c.BufferOverlap < 0 || c.BufferOverlap >= c.BufferSize {
		return fmt.Errorf("audio: buffer overlap %d must be in [0, %d)", c.BufferOverlap, c.BufferSize)
	}
	return nil
}
