// Package status pkg/status/model.go holds the canonical, versioned
// snapshot of pump state. The poller is the only writer; everything
// else reads immutable copies.
package status

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ondrej1024/m5-minimed-monitor/pkg/models"
)

var (
	// ErrOutOfRange rejects a status whose numeric fields fall outside
	// their declared bounds.
	ErrOutOfRange = errors.New("status field out of range")

	// ErrOutOfOrder rejects a status older than the current snapshot;
	// the proxy occasionally returns cached or delayed data.
	ErrOutOfOrder = errors.New("status not newer than current snapshot")
)

// Glucose bounds in mg/dL. The Guardian sensor itself clips to 40-400;
// the wider band leaves room for other sources without admitting junk.
const (
	minGlucose = 10
	maxGlucose = 1200
)

const maxSensorAgeHours = 255

// Model owns the current snapshot slot. Replacement is atomic from the
// perspective of any reader.
type Model struct {
	mu      sync.RWMutex
	current *models.Snapshot
	seq     uint64
	stale   bool
}

// NewModel creates an empty model; Current reports no data until the
// first successful Replace.
func NewModel() *Model {
	return &Model{}
}

// Replace validates the incoming status and atomically installs it as
// the current snapshot. The sequence number advances only on success.
func (m *Model) Replace(st *models.PumpStatus, fetchedAt time.Time) (*models.Snapshot, error) {
	if err := validate(st); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && !st.ReportedAt.After(m.current.Status.ReportedAt) {
		return nil, fmt.Errorf("%w: reported %s, current %s",
			ErrOutOfOrder, st.ReportedAt.Format(time.RFC3339), m.current.Status.ReportedAt.Format(time.RFC3339))
	}

	m.seq++
	snap := &models.Snapshot{
		Status:    *st,
		Seq:       m.seq,
		FetchedAt: fetchedAt,
	}
	m.current = snap
	m.stale = false

	return snap, nil
}

// Current returns a copy of the current snapshot. The second return is
// false before the first successful fetch.
func (m *Model) Current() (models.Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return models.Snapshot{}, false
	}

	return *m.current, true
}

// Seq returns the current sequence number.
func (m *Model) Seq() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.seq
}

// IsStale reports whether the last successful fetch is older than the
// staleness threshold. Stale data remains readable via Current.
func (m *Model) IsStale() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.stale
}

// MarkStale is delegated from the poller's staleness tracking.
func (m *Model) MarkStale(stale bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stale = stale
}

func validate(st *models.PumpStatus) error {
	if st.Glucose != models.GlucoseUnknown && (st.Glucose < minGlucose || st.Glucose > maxGlucose) {
		return fmt.Errorf("%w: glucose %d", ErrOutOfRange, st.Glucose)
	}

	if st.BatteryPercent != models.BatteryUnknown && (st.BatteryPercent < 0 || st.BatteryPercent > 100) {
		return fmt.Errorf("%w: battery %d%%", ErrOutOfRange, st.BatteryPercent)
	}

	if st.ReservoirUnits != models.ReservoirUnknown && st.ReservoirUnits < 0 {
		return fmt.Errorf("%w: reservoir %.1f units", ErrOutOfRange, st.ReservoirUnits)
	}

	if st.ActiveInsulin != models.InsulinUnknown && st.ActiveInsulin < 0 {
		return fmt.Errorf("%w: active insulin %.1f units", ErrOutOfRange, st.ActiveInsulin)
	}

	if st.SensorAgeHours < 0 || st.SensorAgeHours > maxSensorAgeHours {
		return fmt.Errorf("%w: sensor age %d hours", ErrOutOfRange, st.SensorAgeHours)
	}

	if st.CalibMinutes < models.CalibNotRequired {
		return fmt.Errorf("%w: calibration minutes %d", ErrOutOfRange, st.CalibMinutes)
	}

	if st.ReportedAt.IsZero() {
		return fmt.Errorf("%w: missing reading timestamp", ErrOutOfRange)
	}

	return nil
}
