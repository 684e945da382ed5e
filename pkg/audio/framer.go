package audio

import "time"

// Framer slices a continuous mono sample stream into overlapping frames.
// It is not safe for concurrent use; create one per stream.
type Framer struct {
	cfg     CaptureConfig
	pending []float32
	seq     uint64
	offset  int64 // absolute sample index of pending[0]
}

// NewFramer returns a Framer for cfg. cfg must be valid.
func NewFramer(cfg CaptureConfig) *Framer {
	return &Framer{
		cfg:     cfg,
		pending: make([]float32, 0, cfg.BufferSize*2),
	}
}

// Push appends samples and calls emit once per completed frame, in order.
func (f *Framer) Push(samples []float32, emit func(Frame)) {
	f.pending = append(f.pending, samples...)
	hop := f.cfg.Hop()
	for len(f.pending) >= f.cfg.BufferSize {
		out := make([]float32, f.cfg.BufferSize)
		copy(out, f.pending[:f.cfg.BufferSize])
		f.seq++
		emit(Frame{
			Samples:    out,
			SampleRate: f.cfg.SampleRate,
			Seq:        f.seq,
			Timestamp:  sampleTime(f.offset, f.cfg.SampleRate),
		})
		f.pending = append(f.pending[:0], f.pending[hop:]...)
		f.offset += int64(hop)
	}
}

// sampleTime converts a sample index to stream time. Whole seconds and the
// remainder are scaled separately so long streams do not overflow.
func sampleTime(offset int64, rate int) time.Duration {
	r := int64(rate)
	return time.Duration(offset/r)*time.Second +
		time.Duration(offset%r)*time.Second/time.Duration(r)
}

// Reset discards buffered samples and restarts sequence numbering.
func (f *Framer) Reset() {
	f.pending = f.pending[:0]
	f.seq = 0
	f.offset = 0
}
