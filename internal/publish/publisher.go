package publish

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/fretsense/internal/observe"
)

// Option configures a [Publisher].
type Option func(*Publisher)

// WithMetrics records published states and subscriber counts.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// WithClock overrides the time source used to stamp [State.At].
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

// Publisher is a last-value-wins broadcast point with a silence hold.
// All methods are safe for concurrent use.
type Publisher struct {
	hold    time.Duration
	metrics *observe.Metrics
	now     func() time.Time

	mu      sync.Mutex
	current State
	seq     uint64
	subs    map[string]*Subscription
	timer   *time.Timer
	gen     uint64 // bumps whenever a pending hold is superseded
	closed  bool
}

// New returns a Publisher whose current value is no signal. A hold of zero
// clears to no signal as soon as a hint arrives.
func New(hold time.Duration, opts ...Option) *Publisher {
	p := &Publisher{
		hold: hold,
		now:  time.Now,
		subs: make(map[string]*Subscription),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Publish offers s to the publisher. A detected state is fanned out at
// once and cancels any pending hold. A no-signal state (re)starts the hold
// and is fanned out only if the hold elapses first. A hint that arrives
// while nothing is shown is dropped. Publish never blocks on subscribers
// and is a no-op after Close.
func (p *Publisher) Publish(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	if s.Detected {
		p.cancelHoldLocked()
		p.fanOutLocked(s)
		return
	}
	if !p.current.Detected {
		return
	}
	if p.hold <= 0 {
		p.cancelHoldLocked()
		p.fanOutLocked(s)
		return
	}

	p.cancelHoldLocked()
	gen := p.gen
	p.timer = time.AfterFunc(p.hold, func() { p.expire(gen) })
}

// expire fires when a hold started under gen elapses.
func (p *Publisher) expire(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || gen != p.gen {
		return
	}
	p.timer = nil
	p.fanOutLocked(NoSignal())
}

// CancelHold drops a pending silence hold without publishing. The current
// value stays as it is.
func (p *Publisher) CancelHold() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelHoldLocked()
}

func (p *Publisher) cancelHoldLocked() {
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Publisher) fanOutLocked(s State) {
	p.seq++
	s.Seq = p.seq
	s.At = p.now()
	p.current = s
	for _, sub := range p.subs {
		if sub.box.put(s) {
			sub.dropped.Add(1)
		}
	}
	if p.metrics != nil {
		p.metrics.RecordPublished(context.Background(), s.Kind())
	}
}

// Current returns the value most recently fanned out.
func (p *Publisher) Current() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Pending reports whether a hold is running.
func (p *Publisher) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

// Subscribe registers a new observer. Its channel holds the current value
// straight away. After Close the returned subscription's channel is
// already closed.
func (p *Publisher) Subscribe() *Subscription {
	sub := &Subscription{
		id:  uuid.NewString(),
		box: newMailbox(),
		pub: p,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		sub.closed = true
		close(sub.box)
		return sub
	}
	sub.box.put(p.current)
	p.subs[sub.id] = sub
	if p.metrics != nil {
		p.metrics.ActiveSubscribers.Add(context.Background(), 1)
	}
	return sub
}

// Subscribers returns the number of open subscriptions.
func (p *Publisher) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *Publisher) unsubscribe(sub *Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	delete(p.subs, sub.id)
	close(sub.box)
	if p.metrics != nil {
		p.metrics.ActiveSubscribers.Add(context.Background(), -1)
	}
}

// Close cancels any pending hold and closes every subscription. Later
// calls to Publish are ignored. Close is idempotent.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.cancelHoldLocked()
	for id, sub := range p.subs {
		sub.closed = true
		close(sub.box)
		delete(p.subs, id)
		if p.metrics != nil {
			p.metrics.ActiveSubscribers.Add(context.Background(), -1)
		}
	}
}

// Subscription is one observer's view of a [Publisher].
type Subscription struct {
	id      string
	box     mailbox
	pub     *Publisher
	dropped atomic.Uint64

	// closed is guarded by pub.mu.
	closed bool
}

// ID returns the subscription's unique identifier.
func (s *Subscription) ID() string {
	return s.id
}

// C returns the channel delivering values. It is closed by
// [Subscription.Close] or [Publisher.Close].
func (s *Subscription) C() <-chan State {
	return s.box
}

// Dropped returns how many values were overwritten before this observer
// read them.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unregisters the subscription. It is idempotent.
func (s *Subscription) Close() {
	s.pub.unsubscribe(s)
}
