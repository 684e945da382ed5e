// Package pipeline owns the capture-to-publish lifecycle.
//
// A [Coordinator] acquires an [audio.Source], runs every frame through the
// pitch estimator, the [detect.Gate], the [detect.Stabilizer] and the note
// mapper on a single goroutine, and hands the result to a
// [publish.Publisher]. The application builds exactly one Coordinator and
// shares it; its mutex guarantees the capture device is never acquired
// twice.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/fretsense/internal/detect"
	"github.com/MrWong99/fretsense/internal/observe"
	"github.com/MrWong99/fretsense/internal/publish"
	"github.com/MrWong99/fretsense/pkg/audio"
	"github.com/MrWong99/fretsense/pkg/music"
	"github.com/MrWong99/fretsense/pkg/provider/pitch"
)

// ErrAcquire wraps every failure to open the capture source.
var ErrAcquire = errors.New("pipeline: acquire capture source")

// State is the coordinator's lifecycle state.
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config holds everything a run needs. It is copied into the Coordinator
// at construction and never changes afterwards.
type Config struct {
	Capture    audio.CaptureConfig
	Gate       detect.GateConfig
	Stabilizer detect.StabilizerConfig

	// CalibrationFactor scales every stable frequency before it is mapped
	// to a note. Must be positive; 1 leaves frequencies unchanged.
	CalibrationFactor float64
}

// Validate reports whether cfg is usable.
func (c Config) Validate() error {
	var errs []error
	if err := c.Capture.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Stabilizer.Validate(); err != nil {
		errs = append(errs, err)
	}
	if !(c.Gate.RMSLow < c.Gate.RMSHigh) {
		errs = append(errs, fmt.Errorf("pipeline: rms low cutoff %v must be below high cutoff %v", c.Gate.RMSLow, c.Gate.RMSHigh))
	}
	if !(c.CalibrationFactor > 0) {
		errs = append(errs, fmt.Errorf("pipeline: calibration factor must be positive, got %v", c.CalibrationFactor))
	}
	return errors.Join(errs...)
}

// RunInfo describes the current or most recent run.
type RunInfo struct {
	// ID is unique per successful Start.
	ID string

	StartedAt time.Time
}

// Option configures a [Coordinator].
type Option func(*Coordinator)

// WithMetrics records per-frame metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// Coordinator drives one capture run at a time. All exported methods are
// safe for concurrent use.
type Coordinator struct {
	cfg     Config
	src     audio.Source
	est     pitch.Estimator
	pub     *publish.Publisher
	metrics *observe.Metrics

	gate *detect.Gate
	stab *detect.Stabilizer

	mu      sync.Mutex
	state   State
	info    RunInfo
	stream  audio.Stream
	cancel  context.CancelFunc
	done    chan struct{} // closed when the frame loop returns
	stopped chan struct{} // closed when the run is torn down
}

// New returns a stopped Coordinator.
func New(cfg Config, src audio.Source, est pitch.Estimator, pub *publish.Publisher, opts ...Option) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	stab, err := detect.NewStabilizer(cfg.Stabilizer)
	if err != nil {
		return nil, err
	}
	c := &Coordinator{
		cfg:  cfg,
		src:  src,
		est:  est,
		pub:  pub,
		gate: detect.NewGate(cfg.Gate),
		stab: stab,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Start acquires the capture source and begins processing frames. It is a
// no-op when already running. If the source cannot be opened the error
// wraps [ErrAcquire] and the source's own error, the coordinator stays
// stopped and nothing is retried.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Running {
		return nil
	}

	ctx, span := observe.StartSpan(ctx, "pipeline.start")
	defer span.End()

	stream, err := c.src.Open(ctx, c.cfg.Capture)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "acquire failed")
		observe.Logger(ctx).Warn("pipeline: capture source unavailable", "err", err)
		return fmt.Errorf("%w: %w", ErrAcquire, err)
	}

	c.stab.Reset()
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.state = Running
	c.stream = stream
	c.cancel = cancel
	c.done = done
	c.stopped = make(chan struct{})
	c.info = RunInfo{ID: uuid.NewString(), StartedAt: time.Now().UTC()}
	span.SetAttributes(attribute.String("run_id", c.info.ID))
	if c.metrics != nil {
		c.metrics.PipelineRunning.Add(ctx, 1)
	}

	go func() {
		ended := c.loop(runCtx, stream)
		close(done)
		if !ended {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.done == done {
			slog.Info("pipeline: capture stream ended", "run_id", c.info.ID)
			if err := c.teardownLocked(context.Background()); err != nil {
				slog.Warn("pipeline: release after stream end", "err", err)
			}
		}
	}()

	observe.Logger(ctx).Info("pipeline started",
		"run_id", c.info.ID,
		"sample_rate", c.cfg.Capture.SampleRate,
		"buffer_size", c.cfg.Capture.BufferSize,
		"buffer_overlap", c.cfg.Capture.BufferOverlap,
	)
	return nil
}

// Stop halts frame processing, releases the capture source and discards
// the candidate window without emitting it. It is a no-op when already
// stopped. Once Stop returns, this run publishes nothing further.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running {
		return nil
	}
	ctx, span := observe.StartSpan(context.Background(), "pipeline.stop",
		trace.WithAttributes(attribute.String("run_id", c.info.ID)))
	defer span.End()
	return c.teardownLocked(ctx)
}

func (c *Coordinator) teardownLocked(ctx context.Context) error {
	c.cancel()
	<-c.done
	err := c.stream.Close()
	c.stab.Reset()
	c.pub.CancelHold()

	runID := c.info.ID
	c.state = Stopped
	c.stream = nil
	c.cancel = nil
	c.done = nil
	close(c.stopped)
	if c.metrics != nil {
		c.metrics.PipelineRunning.Add(ctx, -1)
	}

	observe.Logger(ctx).Info("pipeline stopped", "run_id", runID)
	if err != nil {
		return fmt.Errorf("pipeline: release capture source: %w", err)
	}
	return nil
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Info returns details of the current or most recent run.
func (c *Coordinator) Info() RunInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// Wait blocks until the coordinator is stopped, either by [Coordinator.Stop]
// or because the capture stream ran out, or until ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Running {
		c.mu.Unlock()
		return nil
	}
	stopped := c.stopped
	c.mu.Unlock()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loop processes frames until ctx is cancelled or the stream closes. It
// reports whether the stream closed on its own.
func (c *Coordinator) loop(ctx context.Context, stream audio.Stream) (ended bool) {
	frames := stream.Frames()
	for {
		select {
		case <-ctx.Done():
			return false
		case fr, ok := <-frames:
			if !ok {
				return true
			}
			c.process(ctx, fr)
		}
	}
}

// process runs one frame through estimate → gate → stabilizer → mapper
// and publishes the outcome.
func (c *Coordinator) process(ctx context.Context, fr audio.Frame) {
	start := time.Now()
	if c.metrics != nil {
		c.metrics.FramesProcessed.Add(ctx, 1)
		defer func() {
			c.metrics.FrameDuration.Record(ctx, time.Since(start).Seconds())
		}()
	}

	res, err := c.est.Estimate(fr.Samples)
	if err != nil {
		slog.Debug("pipeline: estimate failed", "seq", fr.Seq, "err", err)
		if c.metrics != nil {
			c.metrics.EstimatorErrors.Add(ctx, 1)
		}
		res = pitch.Unpitched
	}

	det, ok := c.gate.Evaluate(fr.Samples, res)
	if !ok {
		if c.metrics != nil {
			c.metrics.RecordRejected(ctx, string(det.Reason))
		}
		if c.stab.OnRejected() {
			c.publish(ctx, publish.NoSignal())
		}
		return
	}
	if c.metrics != nil {
		c.metrics.FramesAccepted.Add(ctx, 1)
	}

	stable, emit, hint := c.stab.OnAccepted(det.FrequencyHz)
	switch {
	case hint:
		c.publish(ctx, publish.NoSignal())
	case emit:
		note, err := music.Map(stable * c.cfg.CalibrationFactor)
		if err != nil {
			slog.Debug("pipeline: unmappable frequency", "hz", stable, "err", err)
			return
		}
		if c.metrics != nil {
			c.metrics.StableEmissions.Add(ctx, 1)
		}
		c.publish(ctx, publish.Detected(note))
	}
}

// publish forwards s unless the run is being stopped.
func (c *Coordinator) publish(ctx context.Context, s publish.State) {
	if ctx.Err() != nil {
		return
	}
	c.pub.Publish(s)
}
