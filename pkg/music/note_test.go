package music_test

import (
	"errors"
	"math"
	"testing"

	"github.com/MrWong99/fretsense/pkg/music"
)

func TestMap_A4Exact(t *testing.T) {
	t.Parallel()

	n, err := music.Map(440.0)
	if err != nil {
		t.Fatalf("Map(440): %v", err)
	}
	want := music.Note{MIDI: 69, Class: 9, Octave: 4, FrequencyHz: 440, Cents: 0}
	if n != want {
		t.Errorf("Map(440) = %+v, want %+v", n, want)
	}
	if got := n.String(); got != "A4" {
		t.Errorf("String() = %q, want %q", got, "A4")
	}
}

func TestMap_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		freq   float64
		midi   int
		class  int
		octave int
		label  string
	}{
		{"A#4", 466.16, 70, 10, 4, "A#4"},
		{"low E", 82.41, 40, 4, 2, "E2"},
		{"middle C", 261.63, 60, 0, 4, "C4"},
		{"high E", 329.63, 64, 4, 4, "E4"},
		{"A2 slightly sharp", 111.0, 45, 9, 2, "A2"},
		{"C0 boundary", 16.35, 12, 0, 0, "C0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			n, err := music.Map(tt.freq)
			if err != nil {
				t.Fatalf("Map(%v): %v", tt.freq, err)
			}
			if n.MIDI != tt.midi || n.Class != tt.class || n.Octave != tt.octave {
				t.Errorf("Map(%v) = midi %d class %d octave %d, want %d %d %d",
					tt.freq, n.MIDI, n.Class, n.Octave, tt.midi, tt.class, tt.octave)
			}
			if got := n.String(); got != tt.label {
				t.Errorf("String() = %q, want %q", got, tt.label)
			}
			if math.Abs(n.Cents) > 50 {
				t.Errorf("Cents = %v, want within ±50", n.Cents)
			}
		})
	}
}

func TestMap_ASharp4CentsNearZero(t *testing.T) {
	t.Parallel()

	n := music.MustMap(466.16)
	if math.Abs(n.Cents) > 0.1 {
		t.Errorf("Cents = %v, want ≈ 0", n.Cents)
	}
}

func TestMap_NegativeMIDI(t *testing.T) {
	t.Parallel()

	for _, f := range []float64{20, 1, 0.5, 0.01} {
		n, err := music.Map(f)
		if err != nil {
			t.Fatalf("Map(%v): %v", f, err)
		}
		if n.Class < 0 || n.Class > 11 {
			t.Errorf("Map(%v).Class = %d, want in [0,11]", f, n.Class)
		}
	}

	// 1 Hz sits 36 semitones below MIDI 0: class C, octave -4.
	n := music.MustMap(music.Frequency(-36))
	if n.MIDI != -36 || n.Class != 0 || n.Octave != -4 {
		t.Errorf("Map(MIDI -36) = %+v, want midi -36 class 0 octave -4", n)
	}
	n = music.MustMap(music.Frequency(-1))
	if n.Class != 11 || n.Octave != -2 {
		t.Errorf("Map(MIDI -1) = %+v, want class 11 octave -2", n)
	}
}

func TestMap_InvalidFrequency(t *testing.T) {
	t.Parallel()

	for _, f := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := music.Map(f); !errors.Is(err, music.ErrInvalidFrequency) {
			t.Errorf("Map(%v) error = %v, want ErrInvalidFrequency", f, err)
		}
	}
}

func TestMap_Deterministic(t *testing.T) {
	t.Parallel()

	a := music.MustMap(196.5)
	b := music.MustMap(196.5)
	if a != b {
		t.Errorf("Map not deterministic: %+v vs %+v", a, b)
	}
}

func TestNote_Tuning(t *testing.T) {
	t.Parallel()

	tests := []struct {
		cents float64
		want  music.Tuning
	}{
		{0, music.InTune},
		{10, music.InTune},
		{-10, music.InTune},
		{10.5, music.Sharp},
		{-23, music.Flat},
	}
	for _, tt := range tests {
		n := music.Note{Cents: tt.cents}
		if got := n.Tuning(10); got != tt.want {
			t.Errorf("Tuning(cents=%v) = %v, want %v", tt.cents, got, tt.want)
		}
	}
}

func TestNote_NameSolfege(t *testing.T) {
	t.Parallel()

	n := music.MustMap(440)
	if got := n.Name(music.Solfege); got != "La4" {
		t.Errorf("Name(Solfege) = %q, want %q", got, "La4")
	}
}
