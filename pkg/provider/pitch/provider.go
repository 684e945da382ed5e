// Package pitch defines the Estimator interface for monophonic pitch
// detection backends.
//
// An Estimator inspects one frame of mono audio and reports the dominant
// fundamental frequency, whether the frame is pitched at all, and how
// confident the backend is. Estimators are stateless from the caller's
// point of view: every frame is judged on its own, and smoothing across
// frames is the job of the detection pipeline downstream.
//
// Implementations must be safe for use by a single goroutine per instance.
// The pipeline creates one Estimator and calls it from its processing loop.
package pitch

import "errors"

// ErrFrameTooShort is returned when a frame is too small to analyse.
var ErrFrameTooShort = errors.New("pitch: frame too short")

// Result is the raw outcome of analysing one frame.
type Result struct {
	// FrequencyHz is the estimated fundamental. Meaningless unless Pitched.
	FrequencyHz float64

	// Pitched reports whether the frame contains a periodic signal.
	Pitched bool

	// Probability is the backend's confidence in [0, 1].
	Probability float64
}

// Unpitched is the Result for frames without a detectable period.
var Unpitched = Result{}

// Config holds the parameters shared by every backend.
type Config struct {
	// SampleRate of the frames passed to Estimate, in Hz.
	SampleRate int

	// BufferSize is the expected number of samples per frame. Backends may
	// use it to preallocate work buffers.
	BufferSize int
}

// Estimator analyses single frames.
type Estimator interface {
	// Estimate returns the pitch of samples. A frame without a period is not
	// an error: it yields a Result with Pitched == false. Errors are reserved
	// for frames the backend cannot process at all.
	Estimate(samples []float32) (Result, error)
}
