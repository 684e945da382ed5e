package music

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"
)

// ErrUnknownScale is returned when a scale name cannot be resolved.
var ErrUnknownScale = errors.New("music: unknown scale")

// fuzzyThreshold is the minimum Jaro-Winkler similarity for a misspelt
// scale name to resolve to a known scale.
const fuzzyThreshold = 0.88

// scaleIntervals maps scale names to semitone offsets from the root.
var scaleIntervals = map[string][]int{
	"Pentatonic Major":  {0, 2, 4, 7, 9},
	"Pentatonic Minor":  {0, 3, 5, 7, 10},
	"Blues":             {0, 3, 5, 6, 7, 10},
	"Major":             {0, 2, 4, 5, 7, 9, 11},
	"Natural Minor":     {0, 2, 3, 5, 7, 8, 10},
	"Harmonic Minor":    {0, 2, 3, 5, 7, 8, 11},
	"Melodic Minor":     {0, 2, 3, 5, 7, 9, 11},
	"Dorian":            {0, 2, 3, 5, 7, 9, 10},
	"Phrygian":          {0, 1, 3, 5, 7, 8, 10},
	"Lydian":            {0, 2, 4, 6, 7, 9, 11},
	"Mixolydian":        {0, 2, 4, 5, 7, 9, 10},
	"Locrian":           {0, 1, 3, 5, 6, 8, 10},
	"Whole Tone":        {0, 2, 4, 6, 8, 10},
	"Diminished":        {0, 2, 3, 5, 6, 8, 9, 11},
	"Augmented":         {0, 3, 4, 7, 8, 11},
	"Hungarian Minor":   {0, 2, 3, 6, 7, 8, 11},
	"Phrygian Dominant": {0, 1, 4, 5, 7, 8, 10},
	"Neapolitan Minor":  {0, 1, 3, 5, 7, 8, 11},
	"Neapolitan Major":  {0, 1, 3, 5, 7, 9, 11},
	"Enigmatic":         {0, 1, 4, 6, 8, 10, 11},
	"Double Harmonic":   {0, 1, 4, 5, 7, 8, 11},
	"Persian":           {0, 1, 4, 5, 6, 8, 11},
	"Arabian":           {0, 2, 4, 5, 6, 8, 10},
	"Japanese":          {0, 1, 5, 7, 8},
}

// ScaleNames returns the known scale names in alphabetical order.
func ScaleNames() []string {
	names := make([]string, 0, len(scaleIntervals))
	for name := range scaleIntervals {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ResolveScale returns the canonical scale name for name. Matching is
// case-insensitive; a misspelling resolves to the closest known scale when
// the similarity is high enough.
func ResolveScale(name string) (string, error) {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return "", fmt.Errorf("%w: empty name", ErrUnknownScale)
	}

	best, bestScore := "", 0.0
	for _, known := range ScaleNames() {
		lk := strings.ToLower(known)
		if lk == want {
			return known, nil
		}
		if s := matchr.JaroWinkler(want, lk, false); s > bestScore {
			best, bestScore = known, s
		}
	}
	if bestScore < fuzzyThreshold {
		return "", fmt.Errorf("%w: %q", ErrUnknownScale, name)
	}
	return best, nil
}

// Scale is a resolved set of pitch classes over a root.
type Scale struct {
	Root    int
	Name    string
	Classes []int
}

// NewScale resolves root and scaleName into a [Scale]. Classes are ordered
// from the root upwards.
func NewScale(root, scaleName string) (Scale, error) {
	r, err := ParseClass(root)
	if err != nil {
		return Scale{}, err
	}
	name, err := ResolveScale(scaleName)
	if err != nil {
		return Scale{}, err
	}
	intervals := scaleIntervals[name]
	classes := make([]int, len(intervals))
	for i, iv := range intervals {
		classes[i] = (r + iv) % 12
	}
	return Scale{Root: r, Name: name, Classes: classes}, nil
}

// Contains reports whether pitch class c belongs to the scale.
func (s Scale) Contains(c int) bool {
	return slices.Contains(s.Classes, ((c%12)+12)%12)
}
