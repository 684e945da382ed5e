// Package app wires all fretsense subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the publisher, the
// pipeline coordinator and the HTTP surface, Run starts capturing and
// serving, and Shutdown tears everything down in order.
//
// For testing, inject mock audio sources and pitch estimators through
// [Providers], and metric sinks via functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/fretsense/internal/config"
	"github.com/MrWong99/fretsense/internal/detect"
	"github.com/MrWong99/fretsense/internal/observe"
	"github.com/MrWong99/fretsense/internal/pipeline"
	"github.com/MrWong99/fretsense/internal/publish"
	"github.com/MrWong99/fretsense/internal/stream"
	"github.com/MrWong99/fretsense/pkg/audio"
	"github.com/MrWong99/fretsense/pkg/music"
	"github.com/MrWong99/fretsense/pkg/provider/pitch"
)

// serverShutdownTimeout bounds the graceful HTTP shutdown inside Run.
const serverShutdownTimeout = 5 * time.Second

// errCaptureEnded stops the run group when the source runs dry.
var errCaptureEnded = errors.New("app: capture ended")

// Providers holds the external collaborators of the pipeline. Populated by
// main.go via the config registry.
type Providers struct {
	Audio audio.Source
	Pitch pitch.Estimator
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler
	noteLog        *slog.Logger

	view    stream.View
	pub     *publish.Publisher
	coord   *pipeline.Coordinator
	handler http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics records pipeline and HTTP metrics into m instead of the
// global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithNoteLogger sends the console note log to l instead of the default
// logger.
func WithNoteLogger(l *slog.Logger) Option {
	return func(a *App) { a.noteLog = l }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// New creates an App from cfg, which must already have defaults applied
// and be valid. The providers come from main.go.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Audio == nil || providers.Pitch == nil {
		return nil, errors.New("app: audio source and pitch estimator are required")
	}

	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.noteLog == nil {
		a.noteLog = slog.Default()
	}

	view, err := NewView(cfg.Display)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.view = view

	a.pub = publish.New(cfg.Display.SilenceHold, publish.WithMetrics(a.metrics))
	a.closers = append(a.closers, func() error {
		a.pub.Close()
		return nil
	})

	a.coord, err = pipeline.New(PipelineConfig(cfg.Tuner), providers.Audio, providers.Pitch, a.pub,
		pipeline.WithMetrics(a.metrics))
	if err != nil {
		return nil, fmt.Errorf("app: build pipeline: %w", err)
	}

	a.handler = a.routes()
	return a, nil
}

// PipelineConfig converts the tuner section of the configuration into the
// coordinator's run configuration.
func PipelineConfig(t config.TunerConfig) pipeline.Config {
	return pipeline.Config{
		Capture: audio.CaptureConfig{
			SampleRate:    t.SampleRate,
			BufferSize:    t.BufferSize,
			BufferOverlap: t.Overlap(),
		},
		Gate: detect.GateConfig{
			RMSLow:              t.RMSLowCutoff,
			RMSHigh:             t.RMSHighCutoff,
			ConfidenceThreshold: t.ConfidenceThreshold,
		},
		Stabilizer: detect.StabilizerConfig{
			Capacity:  t.CandidateWindowCapacity,
			MinValid:  t.MinValidCandidates,
			Tolerance: t.OctaveMatchTolerance,
		},
		CalibrationFactor: t.CalibrationFactor,
	}
}

// NewView resolves the display section into a note renderer.
func NewView(d config.DisplayConfig) (stream.View, error) {
	v := stream.View{Notation: d.Notation, CentsTolerance: d.CentsTolerance}
	if d.Scale != nil {
		s, err := music.NewScale(d.Scale.Root, d.Scale.Name)
		if err != nil {
			return stream.View{}, fmt.Errorf("display scale: %w", err)
		}
		v.Scale = &s
	}
	return v, nil
}

// Handler returns the HTTP surface: health probes, /status, /stream and,
// when configured, /metrics.
func (a *App) Handler() http.Handler { return a.handler }

// Publisher returns the note publisher.
func (a *App) Publisher() *publish.Publisher { return a.pub }

// Coordinator returns the pipeline coordinator.
func (a *App) Coordinator() *pipeline.Coordinator { return a.coord }

// Run starts the pipeline and blocks until ctx is cancelled or the capture
// source runs out. An exhausted source makes Run return nil; cancellation
// returns ctx.Err(). Acquisition and listen failures are returned as-is.
func (a *App) Run(ctx context.Context) error {
	if err := a.coord.Start(ctx); err != nil {
		return fmt.Errorf("app: start pipeline: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)

	sub := a.pub.Subscribe()
	g.Go(func() error {
		a.logNotes(gctx, sub)
		return nil
	})

	g.Go(func() error {
		if err := a.coord.Wait(gctx); err != nil {
			return nil
		}
		return errCaptureEnded
	})

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.handler,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("http server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	slog.Info("app running", "audio", a.cfg.Audio.Name, "pitch", a.cfg.Pitch.Name)
	err := g.Wait()
	switch {
	case errors.Is(err, errCaptureEnded):
		return nil
	case err != nil:
		return err
	default:
		return ctx.Err()
	}
}

// Shutdown stops the pipeline and closes the publisher. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Stop capturing first so nothing is published into a closed
		// publisher.
		if err := a.coord.Stop(); err != nil {
			slog.Warn("pipeline stop error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
