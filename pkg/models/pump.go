// Package models pkg/models/pump.go
package models

import "time"

// Sentinel values for fields the proxy could not report. Every numeric
// field has an explicit unknown representation so missing data is never
// confused with a real zero reading.
const (
	GlucoseUnknown   = -1
	BatteryUnknown   = -1
	ReservoirUnknown = float64(-1)
	InsulinUnknown   = float64(-1)

	// HoursUnknown is the device-side sentinel for hour counters
	// (sensor age, time to calibration).
	HoursUnknown = 255

	CalibUnknown     = -1
	CalibNotRequired = -2
)

// mgdlPerMmoll converts between the two glucose unit systems.
const mgdlPerMmoll = 18.0182

// GlucoseUnit is the unit the presentation layer renders glucose in.
type GlucoseUnit string

const (
	UnitMgdL  GlucoseUnit = "mg/dL"
	UnitMmolL GlucoseUnit = "mmol/L"
)

// MmolL converts a mg/dL reading to mmol/L.
func MmolL(mgdl int) float64 {
	if mgdl < 0 {
		return float64(GlucoseUnknown)
	}

	return float64(mgdl) / mgdlPerMmoll
}

// Trend is the glucose trend direction reported with the last reading.
type Trend int

const (
	TrendUnknown Trend = iota
	TrendRisingFast
	TrendRising
	TrendSteady
	TrendFalling
	TrendFallingFast
)

func (t Trend) String() string {
	switch t {
	case TrendRisingFast:
		return "rising-fast"
	case TrendRising:
		return "rising"
	case TrendSteady:
		return "steady"
	case TrendFalling:
		return "falling"
	case TrendFallingFast:
		return "falling-fast"
	default:
		return "unknown"
	}
}

// ParseTrend maps the proxy's trend vocabulary to a Trend.
func ParseTrend(s string) Trend {
	switch s {
	case "UP_TRIPLE", "UP_DOUBLE":
		return TrendRisingFast
	case "UP":
		return TrendRising
	case "NONE":
		return TrendSteady
	case "DOWN":
		return TrendFalling
	case "DOWN_DOUBLE", "DOWN_TRIPLE":
		return TrendFallingFast
	default:
		return TrendUnknown
	}
}

// SensorState is the CGM sensor connection state.
type SensorState int

const (
	SensorUnknown SensorState = iota
	SensorConnected
	SensorWarmup
	SensorLost
	SensorExpired
)

func (s SensorState) String() string {
	switch s {
	case SensorConnected:
		return "connected"
	case SensorWarmup:
		return "warmup"
	case SensorLost:
		return "lost"
	case SensorExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// BannerCode identifies a pump-reported banner condition.
type BannerCode int

const (
	BannerNone BannerCode = iota
	BannerDeliverySuspend
	BannerOcclusion
	BannerLowReservoir
	BannerReservoirEmpty
	BannerLowBattery
	BannerBatteryEmpty
	BannerTempTarget
	BannerBolusRunning
	BannerOther
)

func (b BannerCode) String() string {
	switch b {
	case BannerNone:
		return "none"
	case BannerDeliverySuspend:
		return "delivery-suspend"
	case BannerOcclusion:
		return "occlusion"
	case BannerLowReservoir:
		return "low-reservoir"
	case BannerReservoirEmpty:
		return "reservoir-empty"
	case BannerLowBattery:
		return "low-battery"
	case BannerBatteryEmpty:
		return "battery-empty"
	case BannerTempTarget:
		return "temp-target"
	case BannerBolusRunning:
		return "bolus-running"
	default:
		return "other"
	}
}

// ParseBanner maps the proxy's pumpBannerState type strings to a BannerCode.
func ParseBanner(s string) BannerCode {
	switch s {
	case "":
		return BannerNone
	case "DELIVERY_SUSPEND", "SUSPENDED_BEFORE_LOW", "SUSPENDED_ON_LOW":
		return BannerDeliverySuspend
	case "OCCLUSION", "PUMP_OCCLUSION":
		return BannerOcclusion
	case "LOW_RESERVOIR":
		return BannerLowReservoir
	case "RESERVOIR_EMPTY":
		return BannerReservoirEmpty
	case "LOW_BATTERY":
		return BannerLowBattery
	case "BATTERY_EMPTY":
		return BannerBatteryEmpty
	case "TEMP_TARGET":
		return BannerTempTarget
	case "BOLUS_RUNNING":
		return BannerBolusRunning
	default:
		return BannerOther
	}
}

// DeviceAlarm is the most recent alarm record the pump itself raised.
type DeviceAlarm struct {
	InstanceID int64     `json:"instance_id"`
	Kind       string    `json:"kind"` // "ALARM" or "ALERT"
	MessageID  string    `json:"message_id"`
	ReportedAt time.Time `json:"reported_at"`
}

// RangeStats carries the 24h time-in-range aggregates from the proxy.
type RangeStats struct {
	InRangePercent   int `json:"in_range_percent"`
	AboveHighPercent int `json:"above_high_percent"`
	BelowLowPercent  int `json:"below_low_percent"`
	AverageGlucose   int `json:"average_glucose"`
}

// PumpStatus is one decoded telemetry reading from the proxy.
// Glucose is always stored in mg/dL; unit conversion is a presentation
// concern.
type PumpStatus struct {
	Glucose        int         `json:"glucose"`
	Trend          Trend       `json:"trend"`
	BatteryPercent int         `json:"battery_percent"`
	ReservoirUnits float64     `json:"reservoir_units"`
	Sensor         SensorState `json:"sensor"`
	CalibMinutes   int         `json:"calib_minutes"`
	SensorAgeHours int         `json:"sensor_age_hours"`
	ActiveInsulin  float64     `json:"active_insulin"`
	Banner         BannerCode  `json:"banner"`
	SystemStatus   string      `json:"system_status,omitempty"`

	// ShieldActive reports whether the SmartGuard auto mode shield is
	// active; the display hides the shield icon when the feature is
	// off on the pump.
	ShieldActive bool `json:"shield_active"`

	// GlucoseAt is the timestamp of the last sensor reading itself,
	// which can trail ReportedAt by up to one conduit upload cycle.
	// Zero when the proxy reported no reading.
	GlucoseAt time.Time `json:"glucose_at,omitempty"`

	DeviceAlarm *DeviceAlarm `json:"device_alarm,omitempty"`
	RangeStats  *RangeStats  `json:"range_stats,omitempty"`

	// ReportedAt is the reading timestamp as reported by the source,
	// used to drop out-of-order deliveries.
	ReportedAt time.Time `json:"reported_at"`
}
