package publish

import (
	"context"
	"time"
)

// Hold applies a silence hold to in on the caller's behalf, for observers
// that want a different debounce than the publisher's. Detected values pass
// straight through and cancel a pending clear; a no-signal value following
// a detection is forwarded only after hold elapses undisturbed. The output
// has the same single-slot semantics as a [Subscription] and is closed when
// in is closed or ctx is done.
func Hold(ctx context.Context, in <-chan State, hold time.Duration) <-chan State {
	out := newMailbox()
	go func() {
		defer close(out)

		timer := time.NewTimer(time.Hour)
		timer.Stop()
		defer timer.Stop()

		var (
			fire    <-chan time.Time
			pending State
			showing bool
		)
		for {
			select {
			case <-ctx.Done():
				return
			case s, ok := <-in:
				if !ok {
					return
				}
				switch {
				case s.Detected:
					timer.Stop()
					fire = nil
					showing = true
					out.put(s)
				case !showing || hold <= 0:
					timer.Stop()
					fire = nil
					showing = false
					out.put(s)
				default:
					pending = s
					timer.Reset(hold)
					fire = timer.C
				}
			case <-fire:
				fire = nil
				showing = false
				out.put(pending)
			}
		}
	}()
	return out
}
