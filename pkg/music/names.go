package music

import (
	"fmt"
	"strconv"
	"strings"
)

// Notation selects the naming convention for pitch classes.
type Notation string

const (
	// English uses letter names: C, C#, D, …
	English Notation = "english"

	// Solfege uses fixed-do syllables: Do, Do#, Re, …
	Solfege Notation = "solfege"
)

var (
	englishNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	solfegeNames = [12]string{"Do", "Do#", "Re", "Re#", "Mi", "Fa", "Fa#", "Sol", "Sol#", "La", "La#", "Si"}
)

// IsValid reports whether n is a recognised notation.
func (n Notation) IsValid() bool {
	return n == English || n == Solfege
}

// ClassName returns the name of pitch class c (taken modulo 12). Unknown
// notations fall back to English.
func (n Notation) ClassName(c int) string {
	c = ((c % 12) + 12) % 12
	if n == Solfege {
		return solfegeNames[c]
	}
	return englishNames[c]
}

// ClassNames returns the names of classes in order.
func (n Notation) ClassNames(classes []int) []string {
	out := make([]string, len(classes))
	for i, c := range classes {
		out[i] = n.ClassName(c)
	}
	return out
}

// ParseClass resolves a pitch-class name in either notation ("A", "la",
// "F#", "Sol#") to its index. Flats are accepted as their enharmonic sharp
// ("Bb" → 10).
func ParseClass(name string) (int, error) {
	s := strings.TrimSpace(name)
	if s == "" {
		return 0, fmt.Errorf("music: empty note name")
	}
	for i := range 12 {
		if strings.EqualFold(s, englishNames[i]) || strings.EqualFold(s, solfegeNames[i]) {
			return i, nil
		}
	}
	if len(s) >= 2 && (s[len(s)-1] == 'b') {
		base, err := ParseClass(s[:len(s)-1])
		if err == nil {
			return (base + 11) % 12, nil
		}
	}
	return 0, fmt.Errorf("music: unknown note name %q", name)
}

// ParseNote parses a note with octave such as "E2", "C#4" or "Sol3" into
// the [Note] of its exact equal-tempered frequency.
func ParseNote(name string) (Note, error) {
	s := strings.TrimSpace(name)
	i := strings.IndexFunc(s, func(r rune) bool { return r == '-' || (r >= '0' && r <= '9') })
	if i <= 0 {
		return Note{}, fmt.Errorf("music: note %q has no octave", name)
	}
	class, err := ParseClass(s[:i])
	if err != nil {
		return Note{}, err
	}
	octave, err := strconv.Atoi(s[i:])
	if err != nil {
		return Note{}, fmt.Errorf("music: note %q: invalid octave: %w", name, err)
	}
	return Map(Frequency((octave+1)*12 + class))
}
