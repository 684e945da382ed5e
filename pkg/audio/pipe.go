package audio

import "sync"

// Pipe is a [Stream] driven by a producer goroutine. Capture adapters use
// it so that they only have to implement the read loop.
type Pipe struct {
	frames   chan Frame
	done     chan struct{}
	finished chan struct{}
	release  func() error

	closeOnce sync.Once
	closeErr  error
}

// NewPipe starts produce on a new goroutine and returns the Pipe it feeds.
// produce must return once [Pipe.Done] is closed or the input is exhausted;
// the frame channel is closed when it returns. release, if non-nil, runs
// exactly once during [Pipe.Close] after produce has returned.
func NewPipe(buffer int, release func() error, produce func(p *Pipe)) *Pipe {
	p := &Pipe{
		frames:   make(chan Frame, buffer),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		release:  release,
	}
	go func() {
		defer close(p.finished)
		defer close(p.frames)
		produce(p)
	}()
	return p
}

// Frames implements [Stream].
func (p *Pipe) Frames() <-chan Frame {
	return p.frames
}

// Done is closed when [Pipe.Close] has been called.
func (p *Pipe) Done() <-chan struct{} {
	return p.done
}

// Send delivers f, blocking until the consumer accepts it or the pipe is
// closed. It reports whether the frame was delivered.
func (p *Pipe) Send(f Frame) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.frames <- f:
		return true
	case <-p.done:
		return false
	}
}

// Close implements [Stream]. It stops the producer, waits for it to return
// and then releases the underlying resource.
func (p *Pipe) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		<-p.finished
		if p.release != nil {
			p.closeErr = p.release()
		}
	})
	return p.closeErr
}

var _ Stream = (*Pipe)(nil)
