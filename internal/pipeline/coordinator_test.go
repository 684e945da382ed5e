package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/fretsense/internal/detect"
	"github.com/MrWong99/fretsense/internal/pipeline"
	"github.com/MrWong99/fretsense/internal/publish"
	"github.com/MrWong99/fretsense/pkg/audio"
	audiomock "github.com/MrWong99/fretsense/pkg/audio/mock"
	"github.com/MrWong99/fretsense/pkg/provider/pitch"
	pitchmock "github.com/MrWong99/fretsense/pkg/provider/pitch/mock"
)

func testConfig() pipeline.Config {
	return pipeline.Config{
		Capture:           audio.CaptureConfig{SampleRate: 44100, BufferSize: 256, BufferOverlap: 128},
		Gate:              detect.GateConfig{RMSLow: 0.01, RMSHigh: 0.8, ConfidenceThreshold: 0.9},
		Stabilizer:        detect.StabilizerConfig{Capacity: 5, MinValid: 2, Tolerance: 0.03},
		CalibrationFactor: 1,
	}
}

// loud is a frame the gate accepts on loudness.
func loud() audio.Frame {
	s := make([]float32, 256)
	for i := range s {
		s[i] = 0.2
	}
	return audio.Frame{Samples: s, SampleRate: 44100}
}

func pitched(hz float64) pitch.Result {
	return pitch.Result{FrequencyHz: hz, Pitched: true, Probability: 0.95}
}

// scripted returns an estimator that answers from results in order and
// reports each call's index on the returned channel.
func scripted(results ...pitch.Result) (*pitchmock.Estimator, <-chan int) {
	calls := make(chan int, 64)
	var mu sync.Mutex
	n := 0
	est := &pitchmock.Estimator{Func: func([]float32) (pitch.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		i := n
		n++
		calls <- i
		if i < len(results) {
			return results[i], nil
		}
		return pitch.Unpitched, nil
	}}
	return est, calls
}

func waitCall(t *testing.T, calls <-chan int) int {
	t.Helper()
	select {
	case i := <-calls:
		return i
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for estimator call")
	}
	return -1
}

func newCoordinator(t *testing.T, src audio.Source, est pitch.Estimator, pub *publish.Publisher, mutate ...func(*pipeline.Config)) *pipeline.Coordinator {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := pipeline.New(cfg, src, est, pub)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Stop() })
	return c
}

func TestCoordinator_StartTwiceAcquiresOnce(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{}
	pub := publish.New(0)
	defer pub.Close()
	c := newCoordinator(t, src, &pitchmock.Estimator{}, pub)

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if got := src.Opens(); got != 1 {
		t.Errorf("Open calls = %d, want 1", got)
	}
	if c.State() != pipeline.Running {
		t.Errorf("state = %v, want running", c.State())
	}
	if src.OpenCalls[0].Cfg != testConfig().Capture {
		t.Errorf("Open cfg = %+v", src.OpenCalls[0].Cfg)
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if got := src.Stream().Closes(); got != 1 {
		t.Errorf("Close calls = %d, want 1", got)
	}
	if c.State() != pipeline.Stopped {
		t.Errorf("state = %v, want stopped", c.State())
	}
}

func TestCoordinator_StopWhenStoppedReleasesNothing(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{}
	pub := publish.New(0)
	defer pub.Close()
	c := newCoordinator(t, src, &pitchmock.Estimator{}, pub)

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if src.Opens() != 0 || src.Stream() != nil {
		t.Error("Stop on a stopped coordinator touched the source")
	}
}

func TestCoordinator_ConcurrentStartStop(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{}
	pub := publish.New(0)
	defer pub.Close()
	c := newCoordinator(t, src, &pitchmock.Estimator{}, pub)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Start(context.Background())
		}()
	}
	wg.Wait()
	if got := src.Opens(); got != 1 {
		t.Errorf("Open calls = %d, want 1", got)
	}
}

func TestCoordinator_AcquireFailureStaysStopped(t *testing.T) {
	t.Parallel()

	denied := errors.New("permission denied")
	src := &audiomock.Source{OpenError: errors.Join(audio.ErrDeviceUnavailable, denied)}
	pub := publish.New(0)
	defer pub.Close()
	c := newCoordinator(t, src, &pitchmock.Estimator{}, pub)

	err := c.Start(context.Background())
	if !errors.Is(err, pipeline.ErrAcquire) {
		t.Errorf("err = %v, want ErrAcquire", err)
	}
	if !errors.Is(err, audio.ErrDeviceUnavailable) || !errors.Is(err, denied) {
		t.Errorf("err = %v lost the source error", err)
	}
	if c.State() != pipeline.Stopped {
		t.Errorf("state = %v, want stopped", c.State())
	}
	time.Sleep(20 * time.Millisecond)
	if got := src.Opens(); got != 1 {
		t.Errorf("Open calls = %d, want 1 (no retry)", got)
	}
}

func TestCoordinator_PublishesStableNote(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{}
	pub := publish.New(0)
	defer pub.Close()
	est, _ := scripted(pitched(220), pitched(218), pitched(221), pitched(110))
	c := newCoordinator(t, src, est, pub)

	sub := pub.Subscribe()
	<-sub.C()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for range 4 {
		src.Stream().Send(loud())
	}

	var got []publish.State
	for len(got) < 3 {
		select {
		case s := <-sub.C():
			got = append(got, s)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d states, want 3", len(got))
		}
	}
	last := got[len(got)-1]
	// 221 Hz is A3 (MIDI 57) a few cents sharp.
	if !last.Detected || last.Note.MIDI != 57 || last.Note.FrequencyHz != 221 {
		t.Errorf("last = %+v, want A3 at 221 Hz", last)
	}
}

func TestCoordinator_CalibrationFactor(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{}
	pub := publish.New(0)
	defer pub.Close()
	est, _ := scripted(pitched(220), pitched(220))
	c := newCoordinator(t, src, est, pub, func(cfg *pipeline.Config) { cfg.CalibrationFactor = 2 })

	sub := pub.Subscribe()
	<-sub.C()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	src.Stream().Send(loud())
	src.Stream().Send(loud())

	select {
	case s := <-sub.C():
		if s.Note.MIDI != 69 || s.Note.Cents != 0 {
			t.Errorf("got %+v, want A4", s.Note)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no note published")
	}
}

func TestCoordinator_RejectionHintsNoSignal(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{}
	pub := publish.New(0)
	defer pub.Close()
	est, calls := scripted(pitched(440), pitched(440), pitch.Unpitched, pitched(440))
	c := newCoordinator(t, src, est, pub)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for range 4 {
		src.Stream().Send(loud())
	}
	for i := 0; i < 4; i++ {
		waitCall(t, calls)
	}
	// Frame 4 only reaches the estimator after frame 3 was published.
	s := pub.Current()
	if s.Detected || s.Seq != 2 {
		t.Errorf("current = %+v, want no signal seq 2", s)
	}
}

func TestCoordinator_StopCancelsPendingClear(t *testing.T) {
	t.Parallel()

	const hold = 200 * time.Millisecond
	src := &audiomock.Source{}
	pub := publish.New(hold)
	defer pub.Close()
	sub := pub.Subscribe()
	<-sub.C()
	est, calls := scripted(pitched(440), pitched(440), pitch.Unpitched, pitch.Unpitched)
	c := newCoordinator(t, src, est, pub)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for range 4 {
		src.Stream().Send(loud())
	}
	for i := 0; i < 4; i++ {
		waitCall(t, calls)
	}
	select {
	case s := <-sub.C():
		if !s.Detected {
			t.Fatalf("got %+v, want detected note", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no note published")
	}
	if !pub.Pending() {
		t.Fatal("silence hold not pending before Stop")
	}

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if pub.Pending() {
		t.Error("silence hold still pending after Stop")
	}
	select {
	case s := <-sub.C():
		t.Errorf("delivery after Stop: %+v", s)
	case <-time.After(3 * hold):
	}
	if !pub.Current().Detected {
		t.Errorf("current = %+v, want the last note kept", pub.Current())
	}
}

func TestCoordinator_StopDiscardsWindow(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{}
	pub := publish.New(0)
	defer pub.Close()
	// Run 1 sees one 440 candidate. Run 2 sees another, then a silent
	// frame that proves the first one was processed.
	est, calls := scripted(pitched(440), pitched(440), pitch.Unpitched)
	c := newCoordinator(t, src, est, pub)

	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	src.Stream().Send(loud())
	waitCall(t, calls)
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if err := c.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	src.Stream().Send(loud())
	src.Stream().Send(loud())
	waitCall(t, calls)
	waitCall(t, calls)
	if err := c.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if s := pub.Current(); s.Seq != 0 {
		t.Errorf("current = %+v, want nothing published", s)
	}
	if src.Opens() != 2 {
		t.Errorf("Open calls = %d, want 2", src.Opens())
	}
}

func TestCoordinator_StreamEndStops(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{}
	pub := publish.New(0)
	defer pub.Close()
	c := newCoordinator(t, src, &pitchmock.Estimator{}, pub)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	src.Stream().End()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if c.State() != pipeline.Stopped {
		t.Errorf("state = %v, want stopped", c.State())
	}
	if got := src.Stream().Closes(); got != 1 {
		t.Errorf("Close calls = %d, want 1", got)
	}

	// A fresh Start acquires again.
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if src.Opens() != 2 {
		t.Errorf("Open calls = %d, want 2", src.Opens())
	}
}

func TestCoordinator_EstimatorErrorIsRejection(t *testing.T) {
	t.Parallel()

	src := &audiomock.Source{}
	pub := publish.New(0)
	defer pub.Close()
	est := &pitchmock.Estimator{Err: pitch.ErrFrameTooShort}
	c := newCoordinator(t, src, est, pub)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	src.Stream().Send(loud())
	src.Stream().Send(loud())
	src.Stream().End()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if est.Calls() != 2 {
		t.Errorf("estimator calls = %d, want 2", est.Calls())
	}
	if pub.Current().Seq != 0 {
		t.Error("estimator errors produced a published state")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.CalibrationFactor = 0
	cfg.Gate.RMSLow = 0.9
	if _, err := pipeline.New(cfg, &audiomock.Source{}, &pitchmock.Estimator{}, publish.New(0)); err == nil {
		t.Error("expected error")
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	if pipeline.Stopped.String() != "stopped" || pipeline.Running.String() != "running" {
		t.Error("unexpected state names")
	}
}
