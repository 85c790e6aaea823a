// Package proxy pkg/proxy/payload.go decodes the CareLink nohistory
// payload into a PumpStatus.
package proxy

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ondrej1024/m5-minimed-monitor/pkg/models"
)

// carelinkPayload mirrors the fields of the proxy's JSON document that
// the monitor consumes.
type carelinkPayload struct {
	LastSG struct {
		SG       int    `json:"sg"`
		DateTime string `json:"datetime"`
	} `json:"lastSG"`
	LastSGTrend             string  `json:"lastSGTrend"`
	PumpBatteryLevelPercent int     `json:"pumpBatteryLevelPercent"`
	ReservoirRemainingUnits float64 `json:"reservoirRemainingUnits"`
	SensorState             string  `json:"sensorState"`
	SensorDurationHours     int     `json:"sensorDurationHours"`
	TimeToNextCalibHours    int     `json:"timeToNextCalibHours"`
	CalFreeSensor           bool    `json:"calFreeSensor"`
	CalibStatus             string  `json:"calibStatus"`
	ActiveInsulin           struct {
		Amount float64 `json:"amount"`
	} `json:"activeInsulin"`

	TherapyAlgorithmState struct {
		AutoModeShieldState string `json:"autoModeShieldState"`
	} `json:"therapyAlgorithmState"`

	ConduitInRange              bool `json:"conduitInRange"`
	ConduitMedicalDeviceInRange bool `json:"conduitMedicalDeviceInRange"`
	ConduitSensorInRange        bool `json:"conduitSensorInRange"`

	SystemStatusMessage string `json:"systemStatusMessage"`

	PumpBannerState []struct {
		Type string `json:"type"`
	} `json:"pumpBannerState"`

	LastAlarm struct {
		InstanceID int64  `json:"instanceId"`
		DateTime   string `json:"datetime"`
		MessageID  string `json:"messageId"`
		Kind       string `json:"kind"`
	} `json:"lastAlarm"`

	LastConduitUpdateServerDateTime int64 `json:"lastConduitUpdateServerDateTime"`

	TimeInRange     int `json:"timeInRange"`
	AboveHyperLimit int `json:"aboveHyperLimit"`
	BelowHypoLimit  int `json:"belowHypoLimit"`
	AverageSG       int `json:"averageSG"`
}

// decodePayload validates the payload schema and maps it to a
// PumpStatus. Fields the conduit could not read are mapped to their
// unknown sentinels, never to zero values.
func decodePayload(body []byte) (*models.PumpStatus, error) {
	var p carelinkPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if p.LastConduitUpdateServerDateTime <= 0 {
		return nil, fmt.Errorf("%w: missing lastConduitUpdateServerDateTime", ErrMalformedResponse)
	}

	// The pump and its numeric fields are only trustworthy while the
	// conduit and the pump are in radio range of each other.
	haveData := p.ConduitInRange && p.ConduitMedicalDeviceInRange

	status := &models.PumpStatus{
		Glucose:        models.GlucoseUnknown,
		Trend:          models.ParseTrend(p.LastSGTrend),
		BatteryPercent: models.BatteryUnknown,
		ReservoirUnits: models.ReservoirUnknown,
		Sensor:         sensorState(&p),
		CalibMinutes:   calibMinutes(&p),
		SensorAgeHours: models.HoursUnknown,
		ActiveInsulin:  models.InsulinUnknown,
		Banner:         bannerCode(&p),
		SystemStatus:   systemStatus(p.SystemStatusMessage),
		ShieldActive:   shieldActive(&p),
		ReportedAt:     time.UnixMilli(p.LastConduitUpdateServerDateTime),
	}

	if p.LastSG.SG > 0 {
		status.Glucose = p.LastSG.SG

		if at, err := time.Parse(time.RFC3339, p.LastSG.DateTime); err == nil {
			status.GlucoseAt = at
		}
	}

	if haveData {
		status.BatteryPercent = p.PumpBatteryLevelPercent
		status.ReservoirUnits = p.ReservoirRemainingUnits
		status.ActiveInsulin = p.ActiveInsulin.Amount
		status.SensorAgeHours = p.SensorDurationHours
	}

	if alarm := deviceAlarm(&p); alarm != nil {
		status.DeviceAlarm = alarm
	}

	if p.AverageSG > 0 {
		status.RangeStats = &models.RangeStats{
			InRangePercent:   p.TimeInRange,
			AboveHighPercent: p.AboveHyperLimit,
			BelowLowPercent:  p.BelowHypoLimit,
			AverageGlucose:   p.AverageSG,
		}
	}

	return status, nil
}

func sensorState(p *carelinkPayload) models.SensorState {
	if !p.ConduitSensorInRange {
		return models.SensorLost
	}

	switch p.SensorState {
	case "CHANGE_SENSOR", "SENSOR_EXPIRED":
		return models.SensorExpired
	case "WARM_UP", "CALIBRATING":
		return models.SensorWarmup
	case "":
		return models.SensorUnknown
	default:
		return models.SensorConnected
	}
}

// shieldActive reports the SmartGuard auto mode shield state; the
// pump reports FEATURE_OFF when the shield is disabled entirely.
func shieldActive(p *carelinkPayload) bool {
	state := p.TherapyAlgorithmState.AutoModeShieldState

	return state != "" && state != "FEATURE_OFF"
}

func calibMinutes(p *carelinkPayload) int {
	if p.CalFreeSensor {
		return models.CalibNotRequired
	}

	if p.CalibStatus == "UNKNOWN" {
		return models.CalibUnknown
	}

	if p.TimeToNextCalibHours == models.HoursUnknown {
		return models.CalibUnknown
	}

	if p.TimeToNextCalibHours < 0 {
		return models.CalibUnknown
	}

	return p.TimeToNextCalibHours * 60
}

func bannerCode(p *carelinkPayload) models.BannerCode {
	if len(p.PumpBannerState) == 0 {
		return models.BannerNone
	}

	return models.ParseBanner(p.PumpBannerState[0].Type)
}

func systemStatus(msg string) string {
	if msg == "NO_ERROR_MESSAGE" {
		return ""
	}

	return msg
}

func deviceAlarm(p *carelinkPayload) *models.DeviceAlarm {
	if p.LastAlarm.InstanceID == 0 {
		return nil
	}

	reportedAt, err := time.Parse(time.RFC3339, p.LastAlarm.DateTime)
	if err != nil {
		// An unparsable alarm timestamp is not worth rejecting the
		// whole payload for; the alarm record is skipped instead.
		return nil
	}

	return &models.DeviceAlarm{
		InstanceID: p.LastAlarm.InstanceID,
		Kind:       p.LastAlarm.Kind,
		MessageID:  p.LastAlarm.MessageID,
		ReportedAt: reportedAt,
	}
}
