// Package alarm pkg/alarm/engine.go derives one prioritized alarm state
// from the current snapshot plus connectivity and staleness signals.
package alarm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ondrej1024/m5-minimed-monitor/pkg/models"
	"github.com/ondrej1024/m5-minimed-monitor/pkg/notify"
)

const (
	// DefaultRaiseDwell and DefaultClearDwell are the number of
	// consecutive evaluations a condition must persist, or be absent,
	// before the alarm state follows it. Two evaluations suppress
	// single noisy readings.
	DefaultRaiseDwell = 2
	DefaultClearDwell = 2

	// DefaultAlarmRecency is how recent a device alarm record must be
	// to raise a condition, matching the original monitor's 15 minute
	// window.
	DefaultAlarmRecency = 15 * time.Minute

	notifyTimeout = 10 * time.Second
)

// Clock abstracts wall-clock reads for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config tunes the engine's debounce and severity mapping.
type Config struct {
	RaiseDwell   int
	ClearDwell   int
	AlarmRecency time.Duration

	// BannerTable overrides individual entries of the default banner
	// severity table.
	BannerTable map[models.BannerCode]models.Severity
}

func (c *Config) withDefaults() Config {
	cfg := *c

	if cfg.RaiseDwell <= 0 {
		cfg.RaiseDwell = DefaultRaiseDwell
	}

	if cfg.ClearDwell <= 0 {
		cfg.ClearDwell = DefaultClearDwell
	}

	if cfg.AlarmRecency <= 0 {
		cfg.AlarmRecency = DefaultAlarmRecency
	}

	return cfg
}

// candidate is the condition an evaluation pass wants the alarm state
// to move to.
type candidate struct {
	severity  models.Severity
	condition models.Condition
	detail    string

	// instant conditions bypass the raise dwell: connectivity loss is
	// already counted across N failed fetches, and device alarms were
	// debounced by the pump itself.
	instant bool
}

// Engine owns its AlarmState exclusively. Evaluate is driven by the
// poller, one call at a time; sinks observe transitions and never
// mutate state.
type Engine struct {
	mu    sync.Mutex
	cfg   Config
	clock Clock
	sinks []notify.Sink

	state      models.AlarmState
	pending    candidate
	pendingHit int
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects a virtual clock for tests.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// NewEngine creates an alarm engine that emits transitions to the
// given sinks.
func NewEngine(cfg Config, sinks []notify.Sink, opts ...Option) *Engine {
	e := &Engine{
		cfg:   cfg.withDefaults(),
		clock: systemClock{},
		sinks: sinks,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// AddSink registers an additional sink. Must be called before
// evaluation starts.
func (e *Engine) AddSink(sink notify.Sink) {
	e.sinks = append(e.sinks, sink)
}

// Reconfigure swaps the engine's tuning (recency window, dwell
// counts, banner table) at runtime. The alarm state and pending
// debounce counts carry over so an active alarm is not disturbed.
func (e *Engine) Reconfigure(cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cfg = cfg.withDefaults()
}

// Current returns a copy of the alarm state.
func (e *Engine) Current() models.AlarmState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// Acknowledge sets the acknowledged flag on the active alarm without
// changing its severity.
func (e *Engine) Acknowledge() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Severity != models.SeverityNone {
		e.state.Acknowledged = true
	}
}

// Evaluate implements poller.Evaluator. It deterministically derives
// the highest-priority active condition, applies debounce, and emits
// at most one transition event.
func (e *Engine) Evaluate(snap *models.Snapshot, sig models.Signals) {
	e.mu.Lock()

	now := e.clock.Now()
	cand := e.deriveCondition(snap, sig, now)
	transition := e.apply(cand, now)

	e.mu.Unlock()

	if transition != nil {
		e.emit(transition)
	}
}

// deriveCondition walks the priority order and returns the
// highest-severity active condition; ties go to the earlier entry.
func (e *Engine) deriveCondition(snap *models.Snapshot, sig models.Signals, now time.Time) candidate {
	best := candidate{severity: models.SeverityNone, condition: models.CondNone}

	consider := func(c candidate) {
		if c.severity > best.severity {
			best = c
		}
	}

	if sig.ConnectivityLost {
		consider(candidate{
			severity:  models.SeverityCritical,
			condition: models.CondConnectivityLost,
			detail:    "proxy unreachable",
			instant:   true,
		})
	}

	if snap != nil {
		if c, ok := deviceAlarmCondition(&snap.Status, now, e.cfg.AlarmRecency); ok {
			consider(c)
		}

		if snap.Status.Banner != models.BannerNone {
			consider(candidate{
				severity:  BannerSeverity(e.cfg.BannerTable, snap.Status.Banner),
				condition: models.CondBanner,
				detail:    snap.Status.Banner.String(),
			})
		}

		switch snap.Status.Sensor {
		case models.SensorLost:
			consider(candidate{
				severity:  models.SeverityWarning,
				condition: models.CondSensorLost,
				detail:    "sensor connection lost",
			})
		case models.SensorExpired:
			consider(candidate{
				severity:  models.SeverityWarning,
				condition: models.CondSensorExpired,
				detail:    "sensor expired",
			})
		}

		if snap.Status.SystemStatus != "" {
			consider(candidate{
				severity:  models.SeverityNotice,
				condition: models.CondSystemStatus,
				detail:    snap.Status.SystemStatus,
			})
		}
	}

	if sig.DataStale {
		consider(candidate{
			severity:  models.SeverityNotice,
			condition: models.CondDataStale,
			detail:    "no fresh data from proxy",
		})
	}

	return best
}

func deviceAlarmCondition(st *models.PumpStatus, now time.Time, recency time.Duration) (candidate, bool) {
	if st.DeviceAlarm == nil {
		return candidate{}, false
	}

	if now.Sub(st.DeviceAlarm.ReportedAt) > recency {
		return candidate{}, false
	}

	severity := models.SeverityWarning
	if st.DeviceAlarm.Kind == "ALARM" {
		severity = models.SeverityCritical
	}

	return candidate{
		severity:  severity,
		condition: models.CondDeviceAlarm,
		detail:    st.DeviceAlarm.MessageID,
		instant:   true,
	}, true
}

// apply runs the debounce state machine and updates the alarm state.
// It returns the transition to emit, or nil. Caller holds the lock.
func (e *Engine) apply(cand candidate, now time.Time) *models.AlarmTransition {
	if cand.condition == e.pending.condition && cand.severity == e.pending.severity {
		e.pendingHit++
	} else {
		e.pending = cand
		e.pendingHit = 1
	}

	dwell := e.cfg.RaiseDwell
	if cand.severity == models.SeverityNone {
		dwell = e.cfg.ClearDwell
	}

	accepted := e.pendingHit >= dwell || (cand.instant && cand.severity != models.SeverityNone)
	if !accepted {
		return nil
	}

	if cand.condition == e.state.Condition && cand.severity == e.state.Severity {
		// Condition unchanged; keep the detail fresh (banner text or
		// system status may evolve without a severity change).
		e.state.Detail = cand.detail
		return nil
	}

	prev := e.state

	e.state.Condition = cand.condition
	e.state.Detail = cand.detail

	switch {
	case cand.severity == models.SeverityNone:
		e.state.Severity = models.SeverityNone
		e.state.RaisedAt = time.Time{}
		e.state.Acknowledged = false
	default:
		e.state.Severity = cand.severity
		e.state.RaisedAt = now

		// A new condition of equal-or-higher severity voids a prior
		// acknowledgement; a downgraded one keeps it.
		if cand.severity >= prev.Severity {
			e.state.Acknowledged = false
		}
	}

	if cand.severity == prev.Severity {
		// Condition swap at the same severity updates the state but is
		// not a severity transition.
		return nil
	}

	return &models.AlarmTransition{
		From:      prev.Severity,
		To:        cand.severity,
		Condition: cand.condition,
		Detail:    cand.detail,
		Timestamp: now,
	}
}

// emit delivers one transition to every enabled sink, exactly once per
// transition. Sink failures are diagnostics, never fatal.
func (e *Engine) emit(t *models.AlarmTransition) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	for _, sink := range e.sinks {
		if !sink.IsEnabled() {
			continue
		}

		if err := sink.Notify(ctx, t); err != nil {
			if errors.Is(err, notify.ErrWebhookCooldown) {
				continue
			}

			log.Printf("Error notifying sink of alarm transition %s: %v",
				fmt.Sprintf("%s->%s", t.From, t.To), err)
		}
	}
}
