// Package models pkg/models/alarm.go
package models

import "time"

// Severity orders alarm levels from none to critical. Higher wins when
// multiple conditions are active.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityNotice
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityNotice:
		return "notice"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "none"
	}
}

// Condition identifies what raised an alarm.
type Condition int

const (
	CondNone Condition = iota
	CondConnectivityLost
	CondDeviceAlarm
	CondBanner
	CondSensorLost
	CondSensorExpired
	CondSystemStatus
	CondDataStale
)

func (c Condition) String() string {
	switch c {
	case CondConnectivityLost:
		return "connectivity-lost"
	case CondDeviceAlarm:
		return "device-alarm"
	case CondBanner:
		return "banner"
	case CondSensorLost:
		return "sensor-lost"
	case CondSensorExpired:
		return "sensor-expired"
	case CondSystemStatus:
		return "system-status"
	case CondDataStale:
		return "data-stale"
	default:
		return "none"
	}
}

// AlarmState is the single prioritized alarm derived from the current
// snapshot plus connectivity and staleness signals.
type AlarmState struct {
	Severity     Severity  `json:"severity"`
	Condition    Condition `json:"condition"`
	Detail       string    `json:"detail,omitempty"`
	RaisedAt     time.Time `json:"raised_at,omitempty"`
	Acknowledged bool      `json:"acknowledged"`
}

// AlarmTransition is emitted exactly once per severity transition.
type AlarmTransition struct {
	From      Severity  `json:"from"`
	To        Severity  `json:"to"`
	Condition Condition `json:"condition"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
