// Package stream serves published tuner states to WebSocket clients.
//
// Each connection to the handler is an independent observer with its own
// [publish.Subscription]. Clients receive one JSON [Message] per published
// value, starting with the current one. A "hold" query parameter such as
// ?hold=500ms applies an extra silence hold for that connection only.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/fretsense/internal/publish"
	"github.com/MrWong99/fretsense/pkg/music"
)

// writeTimeout bounds a single message write to a client.
const writeTimeout = 5 * time.Second

// View controls how notes are rendered into messages.
type View struct {
	Notation       music.Notation
	CentsTolerance float64

	// Scale, when non-nil, adds the in_scale flag to detected notes.
	Scale *music.Scale
}

// NoteView is the detected-note part of a [Message].
type NoteView struct {
	Note         string  `json:"note"`
	MIDI         int     `json:"midi"`
	Class        int     `json:"class"`
	Octave       int     `json:"octave"`
	FrequencyHz  float64 `json:"frequency_hz"`
	Cents        float64 `json:"cents"`
	Tuning       string  `json:"tuning"`
	InScale      *bool   `json:"in_scale,omitempty"`
	GuitarString int     `json:"string"`
	OpenString   string  `json:"open_string"`
}

// Message is the JSON document sent for every published state. The note
// fields are present only when Detected is true.
type Message struct {
	Detected bool `json:"detected"`
	*NoteView
	Seq uint64 `json:"seq"`
}

// Render converts s into its wire form.
func (v View) Render(s publish.State) Message {
	m := Message{Detected: s.Detected, Seq: s.Seq}
	if !s.Detected {
		return m
	}
	n := s.Note
	str, open := music.NearestString(n)
	nv := &NoteView{
		Note:         n.Name(v.Notation),
		MIDI:         n.MIDI,
		Class:        n.Class,
		Octave:       n.Octave,
		FrequencyHz:  round(n.FrequencyHz, 100),
		Cents:        round(n.Cents, 10),
		Tuning:       n.Tuning(v.CentsTolerance).String(),
		GuitarString: str,
		OpenString:   open,
	}
	if v.Scale != nil {
		in := v.Scale.Contains(n.Class)
		nv.InScale = &in
	}
	m.NoteView = nv
	return m
}

// round keeps the wire values short. It never returns negative zero.
func round(x, scale float64) float64 {
	r := math.Round(x*scale) / scale
	if r == 0 {
		return 0
	}
	return r
}

// Handler upgrades requests to WebSocket connections and streams states
// from a publisher.
type Handler struct {
	pub  *publish.Publisher
	view View
}

// New returns a Handler streaming from pub.
func New(pub *publish.Publisher, view View) *Handler {
	return &Handler{pub: pub, view: view}
}

// ServeHTTP implements [http.Handler].
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var hold time.Duration
	if q := r.URL.Query().Get("hold"); q != "" {
		d, err := time.ParseDuration(q)
		if err != nil || d < 0 {
			http.Error(w, "stream: invalid hold duration", http.StatusBadRequest)
			return
		}
		hold = d
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("stream: accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	// Clients never send anything; CloseRead handles control frames and
	// cancels ctx once the peer goes away.
	ctx := conn.CloseRead(r.Context())

	sub := h.pub.Subscribe()
	defer sub.Close()

	slog.Debug("stream: client connected", "subscription", sub.ID(), "remote", r.RemoteAddr, "hold", hold)

	err = h.serve(ctx, conn, sub, hold)
	switch {
	case err == nil:
		conn.Close(websocket.StatusGoingAway, "publisher closed")
	case errors.Is(err, context.Canceled), websocket.CloseStatus(err) != -1:
		// client left
	default:
		slog.Debug("stream: write failed", "subscription", sub.ID(), "err", err)
	}
	slog.Debug("stream: client disconnected", "subscription", sub.ID(), "dropped", sub.Dropped())
}

// serve forwards states until the subscription closes (nil) or the
// connection fails.
func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, sub *publish.Subscription, hold time.Duration) error {
	in := sub.C()
	if hold > 0 {
		in = publish.Hold(ctx, in, hold)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-in:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, h.view.Render(s))
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
