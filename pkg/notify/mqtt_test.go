package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ondrej1024/m5-minimed-monitor/pkg/models"
)

func TestFormatMQTTPayload(t *testing.T) {
	tr := &models.AlarmTransition{
		From:      models.SeverityWarning,
		To:        models.SeverityCritical,
		Condition: models.CondDeviceAlarm,
		Detail:    "BC_SID_INSERT_BATTERY",
		Timestamp: time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
	}

	payload, err := formatMQTTPayload(tr)
	require.NoError(t, err)

	var decoded mqttPayload
	require.NoError(t, json.Unmarshal(payload, &decoded))

	assert.Equal(t, "2025-03-01T09:30:00Z", decoded.Alarm.Timestamp)
	assert.Equal(t, "warning", decoded.Alarm.From)
	assert.Equal(t, "critical", decoded.Alarm.To)
	assert.Equal(t, "device-alarm", decoded.Alarm.Condition)
	assert.Equal(t, "BC_SID_INSERT_BATTERY", decoded.Alarm.Detail)
}

func TestMQTTSink_DisabledConfig(t *testing.T) {
	sink, err := NewMQTTSink(MQTTConfig{Enabled: false})
	require.NoError(t, err)

	assert.False(t, sink.IsEnabled())

	// An inert sink accepts notifications without a broker.
	assert.NoError(t, sink.Notify(context.Background(), &models.AlarmTransition{}))
	assert.NoError(t, sink.Close())
}
