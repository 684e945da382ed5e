// Package audio defines the capture-side contracts of the pitch pipeline.
//
// The two primary abstractions are:
//
//   - [Source]: acquires an input device (or file, or generator) and returns
//     a [Stream].
//   - [Stream]: an active capture delivering overlapping [Frame] values until
//     it is closed or runs out of input.
//
// Implementations live in adapter packages (audio/portaudio, audio/wav,
// audio/tone). This package lives under pkg/ because third-party capture
// adapters are expected to implement [Source].
package audio

import (
	"context"
	"errors"
)

// ErrDeviceUnavailable is returned (wrapped) by [Source.Open] when the
// capture device cannot be acquired: missing hardware, permission denied, or
// already held by another owner.
var ErrDeviceUnavailable = errors.New("audio: capture device unavailable")

// Stream is an active capture.
//
// Implementations must be safe for concurrent use of Close with the
// consumer reading from Frames.
type Stream interface {
	// Frames returns the channel delivering captured frames in order. The
	// channel is closed when the stream ends, either because Close was called
	// or because the input is exhausted.
	Frames() <-chan Frame

	// Close releases the device. It is safe to call Close more than once;
	// subsequent calls are no-ops and return nil.
	Close() error
}

// Source is the entry point for a capture backend.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Open acquires the input and starts delivering frames framed according
	// to cfg. The supplied ctx governs the acquisition attempt only; once
	// open, the Stream stays alive until [Stream.Close] is called.
	//
	// Returns an error wrapping [ErrDeviceUnavailable] when the device cannot
	// be acquired.
	Open(ctx context.Context, cfg CaptureConfig) (Stream, error)
}
