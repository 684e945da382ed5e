// Package music maps frequencies to musical note identities and holds the
// pure lookup tables (note names, scales, guitar tuning) that presentation
// layers use to render them.
//
// Everything in this package is deterministic and free of state; it is safe
// for concurrent use.
package music

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidFrequency is returned by [Map] for frequencies that are not
// strictly positive finite numbers.
var ErrInvalidFrequency = errors.New("music: frequency must be a positive finite number")

const (
	// ReferenceA4 is the concert pitch of A4 in Hz.
	ReferenceA4 = 440.0

	// MIDIA4 is the MIDI number of A4.
	MIDIA4 = 69
)

// Note is the discrete musical identity of a stable frequency.
type Note struct {
	// MIDI is the nearest equal-tempered MIDI number (69 = A4). It may be
	// negative for sub-audio input.
	MIDI int

	// Class is the pitch class in [0, 11] where 0 = C and 9 = A.
	Class int

	// Octave is the scientific pitch notation octave (A4 → 4).
	Octave int

	// FrequencyHz is the input frequency the note was derived from.
	FrequencyHz float64

	// Cents is the deviation of FrequencyHz from the equal-tempered
	// reference of MIDI, in hundredths of a semitone.
	Cents float64
}

// Map converts a frequency in Hz into its [Note]. Identical input always
// yields identical output.
func Map(frequencyHz float64) (Note, error) {
	if !(frequencyHz > 0) || math.IsInf(frequencyHz, 0) {
		return Note{}, fmt.Errorf("%w: %v", ErrInvalidFrequency, frequencyHz)
	}
	midi := int(math.Round(12*math.Log2(frequencyHz/ReferenceA4) + MIDIA4))
	return Note{
		MIDI:        midi,
		Class:       ((midi % 12) + 12) % 12,
		Octave:      floorDiv(midi, 12) - 1,
		FrequencyHz: frequencyHz,
		Cents:       1200 * math.Log2(frequencyHz/Frequency(midi)),
	}, nil
}

// MustMap is like [Map] but panics on invalid input. Intended for tables and
// tests where the frequency is a known constant.
func MustMap(frequencyHz float64) Note {
	n, err := Map(frequencyHz)
	if err != nil {
		panic(err)
	}
	return n
}

// Frequency returns the equal-tempered frequency of a MIDI number.
func Frequency(midi int) float64 {
	return ReferenceA4 * math.Pow(2, float64(midi-MIDIA4)/12)
}

// Name returns the note name including octave, e.g. "A4" or "La4".
func (n Note) Name(notation Notation) string {
	return fmt.Sprintf("%s%d", notation.ClassName(n.Class), n.Octave)
}

// String implements [fmt.Stringer] using English notation.
func (n Note) String() string {
	return n.Name(English)
}

// Tuning classifies the note's cents deviation against tolerance.
func (n Note) Tuning(tolerance float64) Tuning {
	switch {
	case n.Cents > tolerance:
		return Sharp
	case n.Cents < -tolerance:
		return Flat
	default:
		return InTune
	}
}

// Tuning is the coarse direction a player must adjust to reach the reference.
type Tuning int

const (
	InTune Tuning = iota
	Flat
	Sharp
)

// String returns the snake_case wire name of the tuning state.
func (t Tuning) String() string {
	switch t {
	case InTune:
		return "in_tune"
	case Flat:
		return "flat"
	case Sharp:
		return "sharp"
	default:
		return "unknown"
	}
}

// floorDiv is integer division rounding towards negative infinity.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
