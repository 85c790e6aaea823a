package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ondrej1024/m5-minimed-monitor/pkg/models"
)

func validStatus(reportedAt time.Time) *models.PumpStatus {
	return &models.PumpStatus{
		Glucose:        112,
		Trend:          models.TrendSteady,
		BatteryPercent: 75,
		ReservoirUnits: 120.5,
		Sensor:         models.SensorConnected,
		CalibMinutes:   6 * 60,
		SensorAgeHours: 48,
		ActiveInsulin:  1.4,
		Banner:         models.BannerNone,
		ReportedAt:     reportedAt,
	}
}

func TestModel_Replace(t *testing.T) {
	now := time.Now()

	model := NewModel()

	_, ok := model.Current()
	assert.False(t, ok, "expected no data before first replace")

	snap, err := model.Replace(validStatus(now), now)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Seq)

	current, ok := model.Current()
	require.True(t, ok)
	assert.Equal(t, 112, current.Status.Glucose)
}

func TestModel_Replace_OutOfOrder(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		reportedAt time.Time
	}{
		{name: "older_reading", reportedAt: now.Add(-5 * time.Minute)},
		{name: "same_reading", reportedAt: now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := NewModel()

			first, err := model.Replace(validStatus(now), now)
			require.NoError(t, err)

			_, err = model.Replace(validStatus(tt.reportedAt), now.Add(time.Minute))
			require.ErrorIs(t, err, ErrOutOfOrder)

			// The rejected delivery never changes the snapshot.
			current, ok := model.Current()
			require.True(t, ok)
			assert.Equal(t, first.Seq, current.Seq)
			assert.Equal(t, model.Seq(), first.Seq)
			assert.True(t, current.Status.ReportedAt.Equal(now))
		})
	}
}

func TestModel_Replace_Validation(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		mutate func(*models.PumpStatus)
	}{
		{
			name:   "glucose_too_high",
			mutate: func(st *models.PumpStatus) { st.Glucose = 5000 },
		},
		{
			name:   "glucose_below_range",
			mutate: func(st *models.PumpStatus) { st.Glucose = 3 },
		},
		{
			name:   "battery_over_100",
			mutate: func(st *models.PumpStatus) { st.BatteryPercent = 150 },
		},
		{
			name:   "negative_reservoir",
			mutate: func(st *models.PumpStatus) { st.ReservoirUnits = -3 },
		},
		{
			name:   "negative_insulin",
			mutate: func(st *models.PumpStatus) { st.ActiveInsulin = -0.5 },
		},
		{
			name:   "sensor_age_over_sentinel",
			mutate: func(st *models.PumpStatus) { st.SensorAgeHours = 300 },
		},
		{
			name:   "missing_timestamp",
			mutate: func(st *models.PumpStatus) { st.ReportedAt = time.Time{} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := NewModel()

			st := validStatus(now)
			tt.mutate(st)

			_, err := model.Replace(st, now)
			require.ErrorIs(t, err, ErrOutOfRange)

			_, ok := model.Current()
			assert.False(t, ok, "rejected status must not become current")
			assert.Zero(t, model.Seq())
		})
	}
}

func TestModel_Replace_UnknownSentinelsAccepted(t *testing.T) {
	now := time.Now()

	st := validStatus(now)
	st.Glucose = models.GlucoseUnknown
	st.BatteryPercent = models.BatteryUnknown
	st.ReservoirUnits = models.ReservoirUnknown
	st.ActiveInsulin = models.InsulinUnknown
	st.SensorAgeHours = models.HoursUnknown
	st.CalibMinutes = models.CalibNotRequired

	model := NewModel()

	_, err := model.Replace(st, now)
	require.NoError(t, err)
}

func TestModel_Staleness(t *testing.T) {
	now := time.Now()
	model := NewModel()

	_, err := model.Replace(validStatus(now), now)
	require.NoError(t, err)

	assert.False(t, model.IsStale())

	model.MarkStale(true)
	assert.True(t, model.IsStale())

	// Stale data stays readable.
	current, ok := model.Current()
	require.True(t, ok)
	assert.Equal(t, 112, current.Status.Glucose)

	// A fresh replace clears staleness.
	_, err = model.Replace(validStatus(now.Add(5*time.Minute)), now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.False(t, model.IsStale())
}
