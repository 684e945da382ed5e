// Package publish distributes the current note to any number of observers.
//
// A [Publisher] holds exactly one current [State]. Publishing a detected
// note replaces it immediately; a no-signal hint only replaces it after the
// silence hold elapses without another detection, so the last note stays
// visible through brief dropouts. Every [Subscription] has a single-slot
// mailbox: a slow observer sees the latest value, never a backlog, and the
// publisher never blocks on it.
package publish

import (
	"time"

	"github.com/MrWong99/fretsense/pkg/music"
)

// State is one published value. It is passed by value and never shared.
type State struct {
	// Detected reports whether Note is meaningful. A State with Detected
	// false means no signal.
	Detected bool

	Note music.Note

	// Seq increases by one with every value the publisher fans out. It is
	// zero for values that have not been published yet.
	Seq uint64

	// At is the time the value was fanned out.
	At time.Time
}

// NoSignal returns the no-signal state.
func NoSignal() State {
	return State{}
}

// Detected returns a state carrying n.
func Detected(n music.Note) State {
	return State{Detected: true, Note: n}
}

// Kind returns "detected" or "no_signal".
func (s State) Kind() string {
	if s.Detected {
		return "detected"
	}
	return "no_signal"
}

// mailbox is a single-slot channel that keeps only the newest value.
// Only one goroutine may call put on a given mailbox.
type mailbox chan State

func newMailbox() mailbox {
	return make(mailbox, 1)
}

// put replaces any unread value with s. It reports whether a value was
// overwritten.
func (m mailbox) put(s State) (dropped bool) {
	select {
	case m <- s:
		return false
	default:
	}
	select {
	case <-m:
		dropped = true
	default:
	}
	// The slot is empty now unless the reader raced us, in which case it
	// took the old value and this send still fits.
	m <- s
	return dropped
}
