package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ondrej1024/m5-minimed-monitor/pkg/models"
)

func sampleTransition() *models.AlarmTransition {
	return &models.AlarmTransition{
		From:      models.SeverityNone,
		To:        models.SeverityWarning,
		Condition: models.CondSensorLost,
		Detail:    "sensor connection lost",
		Timestamp: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestWebhookSink_Notify(t *testing.T) {
	var (
		mu       sync.Mutex
		received *models.AlarmTransition
		headers  http.Header
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		headers = r.Header.Clone()

		var tr models.AlarmTransition
		require.NoError(t, json.NewDecoder(r.Body).Decode(&tr))
		received = &tr

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(WebhookConfig{
		Enabled: true,
		URL:     server.URL,
		Headers: []Header{{Key: "Authorization", Value: "Bearer token"}},
	})

	require.True(t, sink.IsEnabled())
	require.NoError(t, sink.Notify(context.Background(), sampleTransition()))

	mu.Lock()
	defer mu.Unlock()

	require.NotNil(t, received)
	assert.Equal(t, models.SeverityWarning, received.To)
	assert.Equal(t, models.CondSensorLost, received.Condition)
	assert.Equal(t, "Bearer token", headers.Get("Authorization"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
}

func TestWebhookSink_Disabled(t *testing.T) {
	sink := NewWebhookSink(WebhookConfig{Enabled: false, URL: "http://example.invalid"})

	assert.False(t, sink.IsEnabled())
	assert.ErrorIs(t, sink.Notify(context.Background(), sampleTransition()), errWebhookDisabled)
}

func TestWebhookSink_Cooldown(t *testing.T) {
	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink := NewWebhookSink(WebhookConfig{
		Enabled:  true,
		URL:      server.URL,
		Cooldown: time.Minute,
	})

	tr := sampleTransition()

	require.NoError(t, sink.Notify(context.Background(), tr))

	// A second delivery for the same condition inside the window is
	// suppressed.
	assert.ErrorIs(t, sink.Notify(context.Background(), tr), ErrWebhookCooldown)

	// A different condition is not throttled.
	other := sampleTransition()
	other.Condition = models.CondDataStale

	require.NoError(t, sink.Notify(context.Background(), other))
	assert.Equal(t, 2, calls)
}

func TestWebhookSink_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := NewWebhookSink(WebhookConfig{Enabled: true, URL: server.URL})

	assert.ErrorIs(t, sink.Notify(context.Background(), sampleTransition()), errWebhookStatus)
}

func TestWebhookConfig_UnmarshalCooldown(t *testing.T) {
	var cfg WebhookConfig

	require.NoError(t, json.Unmarshal([]byte(`{
		"enabled": true,
		"url": "http://localhost:9000/hook",
		"cooldown": "5m"
	}`), &cfg))

	assert.True(t, cfg.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Cooldown)

	assert.Error(t, json.Unmarshal([]byte(`{"cooldown": "whenever"}`), &cfg))
}
