package music

// StandardTuning lists the open strings of a six-string guitar from the
// first (thinnest) to the sixth (thickest).
var StandardTuning = []string{"E4", "B3", "G3", "D3", "A2", "E2"}

// standardMIDI is StandardTuning as MIDI numbers.
var standardMIDI = []int{64, 59, 55, 50, 45, 40}

// NearestString returns the 1-based string number and open-string name of
// the standard-tuning string closest in pitch to n.
func NearestString(n Note) (int, string) {
	best := 0
	for i, m := range standardMIDI {
		if abs(m-n.MIDI) < abs(standardMIDI[best]-n.MIDI) {
			best = i
		}
	}
	return best + 1, StandardTuning[best]
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
