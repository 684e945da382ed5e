package app

import (
	"context"

	"github.com/MrWong99/fretsense/internal/publish"
)

// logNotes is the console observer. It logs a line whenever the displayed
// note or its tuning direction changes and returns when ctx is done or sub
// is closed.
func (a *App) logNotes(ctx context.Context, sub *publish.Subscription) {
	defer sub.Close()

	last := "-"
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-sub.C():
			if !ok {
				return
			}
			m := a.view.Render(s)
			key := "-"
			if m.Detected {
				key = m.Note + "/" + m.Tuning
			}
			if key == last {
				continue
			}
			last = key

			if !m.Detected {
				a.noteLog.Info("no signal", "seq", m.Seq)
				continue
			}
			attrs := []any{
				"note", m.Note,
				"frequency_hz", m.FrequencyHz,
				"cents", m.Cents,
				"tuning", m.Tuning,
				"string", m.OpenString,
				"seq", m.Seq,
			}
			if m.InScale != nil {
				attrs = append(attrs, "in_scale", *m.InScale)
			}
			a.noteLog.Info("note", attrs...)
		}
	}
}
