package app

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrWong99/fretsense/internal/health"
	"github.com/MrWong99/fretsense/internal/observe"
	"github.com/MrWong99/fretsense/internal/pipeline"
	"github.com/MrWong99/fretsense/internal/stream"
)

// Status is the body of GET /status.
type Status struct {
	State       string         `json:"state"`
	RunID       string         `json:"run_id,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	Subscribers int            `json:"subscribers"`
	HoldPending bool           `json:"hold_pending"`
	Current     stream.Message `json:"current"`
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	health.New(health.Ready("pipeline", func() bool {
		return a.coord.State() == pipeline.Running
	}, "pipeline stopped")).Register(mux)

	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	mux.Handle("GET /stream", stream.New(a.pub, a.view))
	mux.HandleFunc("GET /status", a.status)

	return observe.Middleware(a.metrics)(mux)
}

func (a *App) status(w http.ResponseWriter, _ *http.Request) {
	st := Status{
		State:       a.coord.State().String(),
		Subscribers: a.pub.Subscribers(),
		HoldPending: a.pub.Pending(),
		Current:     a.view.Render(a.pub.Current()),
	}
	if info := a.coord.Info(); info.ID != "" {
		st.RunID = info.ID
		st.StartedAt = &info.StartedAt
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(st)
}
