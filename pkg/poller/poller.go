// Package poller pkg/poller/poller.go drives the telemetry acquisition
// cycle: fetch, validate, snapshot replace, alarm evaluation.
package poller

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ondrej1024/m5-minimed-monitor/pkg/models"
	"github.com/ondrej1024/m5-minimed-monitor/pkg/status"
)

// State is the poller's cycle state.
type State int

const (
	StateIdle State = iota
	StateFetching
)

func (s State) String() string {
	if s == StateFetching {
		return "fetching"
	}

	return "idle"
}

// Config holds the poller's timing and retry policy.
type Config struct {
	// Interval is the fixed poll period.
	Interval time.Duration

	// StalenessThreshold marks the snapshot stale when the last
	// applied fetch is older than this.
	StalenessThreshold time.Duration

	// BackoffCeiling caps the exponential retry backoff.
	BackoffCeiling time.Duration

	// FailureThreshold is the number of consecutive failed fetches
	// after which ConnectivityLost is raised.
	FailureThreshold int
}

// Poller owns the mutable snapshot slot (via the status model) and is
// its only writer. One poll-evaluate-notify cycle runs at a time.
type Poller struct {
	mu        sync.Mutex
	cfg       Config
	fetcher   Fetcher
	model     *status.Model
	evaluator Evaluator
	clock     Clock

	state       State
	backoff     time.Duration
	failures    int
	connLost    bool
	lastApplied time.Time
	startedAt   time.Time

	reconfig chan reconfigRequest
	done     chan struct{}
	cancel   context.CancelFunc
}

type reconfigRequest struct {
	cfg     Config
	fetcher Fetcher
}

// Option configures a Poller.
type Option func(*Poller)

// WithClock injects a virtual clock for tests.
func WithClock(c Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// New creates a poller. The evaluator is invoked after every poll
// cycle and on every staleness check.
func New(cfg Config, fetcher Fetcher, model *status.Model, evaluator Evaluator, opts ...Option) *Poller {
	p := &Poller{
		cfg:       cfg,
		fetcher:   fetcher,
		model:     model,
		evaluator: evaluator,
		clock:     systemClock{},
		reconfig:  make(chan reconfigRequest, 1),
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.startedAt = p.clock.Now()

	return p
}

// State returns the current cycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// ConnectivityLost reports whether the consecutive-failure threshold
// has been crossed without a subsequent success.
func (p *Poller) ConnectivityLost() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.connLost
}

// Reconfigure swaps the poll policy and fetcher; the running cycle
// restarts with the new values. Safe to call from other goroutines.
func (p *Poller) Reconfigure(cfg Config, fetcher Fetcher) {
	req := reconfigRequest{cfg: cfg, fetcher: fetcher}

	// Only the latest pending reconfiguration matters.
	for {
		select {
		case p.reconfig <- req:
			return
		case <-p.reconfig:
		}
	}
}

// Start implements lifecycle.Service; it blocks until the context is
// canceled or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	defer close(p.done)

	return p.run(ctx)
}

// Stop implements lifecycle.Service.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) run(ctx context.Context) error {
	// First poll fires immediately, as the original monitor ran its
	// update handler once at init.
	timer := time.NewTimer(0)
	defer timer.Stop()

	staleTicker := time.NewTicker(p.staleTick())
	defer staleTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			delay := p.PollOnce(ctx)
			timer.Reset(delay)
		case <-staleTicker.C:
			p.CheckStale()
		case req := <-p.reconfig:
			p.applyReconfig(req)
			staleTicker.Reset(p.staleTick())

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}

			timer.Reset(0)

			log.Printf("Poller reconfigured, restarting polling cycle")
		}
	}
}

// staleTick is the lighter periodic tick for staleness checks; those
// checks only ever read pump state.
func (p *Poller) staleTick() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	tick := p.cfg.Interval / 4
	if tick < time.Second {
		tick = time.Second
	}

	return tick
}

func (p *Poller) applyReconfig(req reconfigRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cfg = req.cfg
	if req.fetcher != nil {
		p.fetcher = req.fetcher
	}

	p.backoff = 0
	p.failures = 0
}

// PollOnce runs a single fetch cycle and returns the delay before the
// next one: the poll interval after a success, the backed-off delay
// after a failure.
func (p *Poller) PollOnce(ctx context.Context) time.Duration {
	p.setState(StateFetching)
	defer p.setState(StateIdle)

	st, err := p.fetcher.Fetch(ctx)
	if err != nil {
		delay := p.recordFailure(err)
		p.evaluate()

		return delay
	}

	p.recordTransportSuccess()

	snap, err := p.model.Replace(st, p.clock.Now())
	if err != nil {
		// Out-of-range or out-of-order payloads are discarded; the
		// previous snapshot stays current. Not a connectivity event.
		log.Printf("Discarding fetched status: %v", err)
		p.evaluate()

		return p.cfg.Interval
	}

	p.mu.Lock()
	p.lastApplied = snap.FetchedAt
	p.mu.Unlock()

	p.evaluate()

	return p.cfg.Interval
}

// CheckStale re-derives the staleness flag from the last applied fetch
// time, independently of poll success.
func (p *Poller) CheckStale() {
	p.mu.Lock()
	anchor := p.lastApplied
	if anchor.IsZero() {
		anchor = p.startedAt
	}
	threshold := p.cfg.StalenessThreshold
	p.mu.Unlock()

	stale := p.clock.Now().Sub(anchor) > threshold
	if stale != p.model.IsStale() {
		p.model.MarkStale(stale)
		log.Printf("Snapshot staleness changed: stale=%v", stale)
	}

	p.evaluate()
}

func (p *Poller) recordFailure(err error) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failures++

	if p.backoff == 0 {
		p.backoff = p.cfg.Interval
	} else {
		p.backoff *= 2
	}

	if p.backoff > p.cfg.BackoffCeiling {
		p.backoff = p.cfg.BackoffCeiling
	}

	if p.failures >= p.cfg.FailureThreshold && !p.connLost {
		p.connLost = true
		log.Printf("Proxy connectivity lost after %d consecutive failures", p.failures)
	}

	log.Printf("Fetch failed (%d consecutive): %v, retrying in %v", p.failures, err, p.backoff)

	return p.backoff
}

func (p *Poller) recordTransportSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.connLost {
		log.Printf("Proxy connectivity restored")
	}

	p.failures = 0
	p.connLost = false
	p.backoff = 0
}

// evaluate pushes the current snapshot and derived signals into the
// alarm engine. Fetch errors never propagate to snapshot readers.
func (p *Poller) evaluate() {
	if p.evaluator == nil {
		return
	}

	snap, ok := p.model.Current()

	var sp *models.Snapshot
	if ok {
		sp = &snap
	}

	p.mu.Lock()
	sig := models.Signals{
		ConnectivityLost: p.connLost,
		DataStale:        p.model.IsStale(),
		HaveData:         ok,
	}
	p.mu.Unlock()

	p.evaluator.Evaluate(sp, sig)
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}
