package detect

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// StabilizerConfig sizes the candidate window.
type StabilizerConfig struct {
	// Capacity is the number of most recent accepted frequencies kept.
	Capacity int

	// MinValid is the number of agreeing candidates required to emit.
	MinValid int

	// Tolerance is the relative deviation under which two frequencies
	// agree, e.g. 0.03 for 3 %.
	Tolerance float64
}

// Validate reports whether cfg is usable.
func (c StabilizerConfig) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("detect: window capacity must be at least 1, got %d", c.Capacity)
	}
	if c.MinValid < 1 || c.MinValid > c.Capacity {
		return fmt.Errorf("detect: min valid candidates must be in [1, %d], got %d", c.Capacity, c.MinValid)
	}
	if !(c.Tolerance > 0) || c.Tolerance >= 1 {
		return fmt.Errorf("detect: octave match tolerance must be in (0, 1), got %v", c.Tolerance)
	}
	return nil
}

// Stabilizer accumulates accepted frequencies and emits one only when
// enough of them agree with the window maximum, either at the same pitch
// or an octave below it. Octave-low candidates are the common failure
// mode of autocorrelation estimators, so they vote for the higher pitch.
type Stabilizer struct {
	cfg    StabilizerConfig
	window []float64
}

// NewStabilizer returns a Stabilizer with an empty window.
func NewStabilizer(cfg StabilizerConfig) (*Stabilizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Stabilizer{cfg: cfg, window: make([]float64, 0, cfg.Capacity)}, nil
}

// OnAccepted adds f to the window. When at least MinValid candidates
// match the window maximum, it returns that maximum with ok set and keeps
// the window. When they do not, it clears the window and sets hint to
// signal that nothing stable is present. With fewer than MinValid
// candidates it returns neither.
func (s *Stabilizer) OnAccepted(f float64) (stable float64, ok, hint bool) {
	if len(s.window) == s.cfg.Capacity {
		copy(s.window, s.window[1:])
		s.window = s.window[:len(s.window)-1]
	}
	s.window = append(s.window, f)
	if len(s.window) < s.cfg.MinValid {
		return 0, false, false
	}

	top := floats.Max(s.window)
	half := top / 2
	matches := 0
	for _, c := range s.window {
		if math.Abs(c-top)/top < s.cfg.Tolerance || math.Abs(c-half)/half < s.cfg.Tolerance {
			matches++
		}
	}
	if matches >= s.cfg.MinValid {
		return top, true, false
	}
	s.window = s.window[:0]
	return 0, false, true
}

// OnRejected clears the window. It reports a hint only when there was
// something to clear, so a run of rejected frames hints once.
func (s *Stabilizer) OnRejected() (hint bool) {
	if len(s.window) == 0 {
		return false
	}
	s.window = s.window[:0]
	return true
}

// Reset clears the window without producing a hint.
func (s *Stabilizer) Reset() {
	s.window = s.window[:0]
}

// Len returns the number of candidates currently held.
func (s *Stabilizer) Len() int {
	return len(s.window)
}
