// Package mock provides in-memory mock implementations of the [audio.Source]
// and [audio.Stream] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	stream := mock.NewStream(8)
//	src := &mock.Source{OpenResult: stream}
//	s, err := src.Open(ctx, cfg)
//	stream.Send(audio.Frame{Samples: samples})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/fretsense/pkg/audio"
)

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a mock implementation of [audio.Stream]. Frames pushed with
// [Stream.Send] are delivered on [Stream.Frames]; [Stream.Close] and
// [Stream.End] close the channel.
type Stream struct {
	mu     sync.Mutex
	ch     chan audio.Frame
	closed bool

	// CloseError is returned by [Stream.Close].
	CloseError error

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewStream returns a Stream whose frame channel has the given buffer size.
func NewStream(buffer int) *Stream {
	return &Stream{ch: make(chan audio.Frame, buffer)}
}

// Frames implements [audio.Stream].
func (s *Stream) Frames() <-chan audio.Frame {
	return s.ch
}

// Send delivers f to the consumer. It blocks while the buffer is full and
// returns false if the stream was already closed.
func (s *Stream) Send(f audio.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.ch <- f
	return true
}

// End simulates input exhaustion by closing the frame channel without
// counting a Close call.
func (s *Stream) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

// Close implements [audio.Stream]. Returns CloseError.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	s.closeLocked()
	return s.CloseError
}

// Closes returns the number of Close calls. Thread-safe.
func (s *Stream) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountClose
}

func (s *Stream) closeLocked() {
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

var _ audio.Stream = (*Stream)(nil)

// ─── Source ───────────────────────────────────────────────────────────────────

// OpenCall records the arguments of a single [Source.Open] invocation.
type OpenCall struct {
	// Cfg is the capture config passed to Open.
	Cfg audio.CaptureConfig
}

// Source is a mock implementation of [audio.Source].
type Source struct {
	mu sync.Mutex

	// OpenResult is the [audio.Stream] returned by Open. When nil, Open
	// returns a fresh buffered [Stream] and stores it in LastStream.
	OpenResult audio.Stream

	// OpenError is the error returned by Open.
	OpenError error

	// OpenCalls records all Open invocations.
	OpenCalls []OpenCall

	// LastStream is the most recent stream created by Open when OpenResult
	// is nil.
	LastStream *Stream
}

// Open implements [audio.Source].
func (s *Source) Open(_ context.Context, cfg audio.CaptureConfig) (audio.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenCalls = append(s.OpenCalls, OpenCall{Cfg: cfg})
	if s.OpenError != nil {
		return nil, s.OpenError
	}
	if s.OpenResult != nil {
		return s.OpenResult, nil
	}
	s.LastStream = NewStream(64)
	return s.LastStream, nil
}

// Opens returns the number of Open calls. Thread-safe.
func (s *Source) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.OpenCalls)
}

// Stream returns LastStream. Thread-safe.
func (s *Source) Stream() *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.LastStream
}

var _ audio.Source = (*Source)(nil)
