// Package alarm pkg/alarm/table.go
package alarm

import "github.com/ondrej1024/m5-minimed-monitor/pkg/models"

// defaultBannerSeverity is the fixed mapping of pump banner codes to
// alarm severities. A banner the table does not know is reported as a
// notice rather than ignored.
var defaultBannerSeverity = map[models.BannerCode]models.Severity{
	models.BannerNone:            models.SeverityNone,
	models.BannerDeliverySuspend: models.SeverityWarning,
	models.BannerOcclusion:       models.SeverityCritical,
	models.BannerLowReservoir:    models.SeverityWarning,
	models.BannerReservoirEmpty:  models.SeverityCritical,
	models.BannerLowBattery:      models.SeverityWarning,
	models.BannerBatteryEmpty:    models.SeverityCritical,
	models.BannerTempTarget:      models.SeverityNotice,
	models.BannerBolusRunning:    models.SeverityNotice,
	models.BannerOther:           models.SeverityNotice,
}

// BannerSeverity resolves a banner code against a severity table,
// falling back to the default table.
func BannerSeverity(table map[models.BannerCode]models.Severity, code models.BannerCode) models.Severity {
	if table != nil {
		if sev, ok := table[code]; ok {
			return sev
		}
	}

	if sev, ok := defaultBannerSeverity[code]; ok {
		return sev
	}

	return models.SeverityNotice
}
