package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ondrej1024/m5-minimed-monitor/pkg/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `{"proxy": {"host": "192.168.1.100", "port": 8081}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultProxyPath, cfg.Proxy.Path)
	assert.Equal(t, Duration(DefaultRequestTimeout), cfg.Proxy.Timeout)
	assert.Equal(t, Duration(DefaultPollInterval), cfg.PollInterval)
	assert.Equal(t, Duration(DefaultStalenessThreshold), cfg.StalenessThreshold)
	assert.Equal(t, Duration(DefaultBackoffCeiling), cfg.BackoffCeiling)
	assert.Equal(t, DefaultFailureThreshold, cfg.FailureThreshold)
	assert.Equal(t, models.UnitMgdL, cfg.Units)
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
}

func TestLoad_DurationFormats(t *testing.T) {
	path := writeConfig(t, `{
		"proxy": {"host": "proxy.local", "port": 8081, "timeout": "5s"},
		"poll_interval": "30s",
		"staleness_threshold": 600000000000
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, time.Duration(cfg.Proxy.Timeout))
	assert.Equal(t, 30*time.Second, time.Duration(cfg.PollInterval))
	assert.Equal(t, 10*time.Minute, time.Duration(cfg.StalenessThreshold))
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "missing_host", content: `{"proxy": {"port": 8081}}`},
		{name: "bad_port", content: `{"proxy": {"host": "proxy.local", "port": 70000}}`},
		{name: "bad_units", content: `{"proxy": {"host": "proxy.local", "port": 8081}, "units": "furlongs"}`},
		{name: "not_json", content: `poll_interval = 60`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestConfig_ApplyOverrides(t *testing.T) {
	path := writeConfig(t, `{"proxy": {"host": "proxy.local", "port": 8081}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	err = cfg.ApplyOverrides(map[string]string{
		KeyProxyHost:    "10.0.0.5",
		KeyProxyPort:    "9090",
		KeyPollInterval: "2m",
		KeyAlarmRecency: "30m",
		KeyUnits:        "mmol/L",
	})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.Proxy.Host)
	assert.Equal(t, 9090, cfg.Proxy.Port)
	assert.Equal(t, 2*time.Minute, time.Duration(cfg.PollInterval))
	assert.Equal(t, 30*time.Minute, time.Duration(cfg.AlarmRecency))
	assert.Equal(t, models.UnitMmolL, cfg.Units)
}

func TestValidateConfig(t *testing.T) {
	cfg := &Config{Proxy: ProxyEndpoint{Host: "proxy.local", Port: 8081}}
	cfg.setDefaults()

	assert.NoError(t, ValidateConfig(cfg))
	assert.Error(t, ValidateConfig(&Config{}))

	// Values without a Validate method pass through.
	assert.NoError(t, ValidateConfig(struct{}{}))
}

func TestConfig_ApplyOverrides_Invalid(t *testing.T) {
	path := writeConfig(t, `{"proxy": {"host": "proxy.local", "port": 8081}}`)

	tests := []struct {
		name      string
		overrides map[string]string
	}{
		{name: "unknown_key", overrides: map[string]string{"brightness": "40"}},
		{name: "bad_port", overrides: map[string]string{KeyProxyPort: "not-a-port"}},
		{name: "bad_interval", overrides: map[string]string{KeyPollInterval: "soon"}},
		{name: "validation_fails", overrides: map[string]string{KeyProxyHost: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(path)
			require.NoError(t, err)

			assert.Error(t, cfg.ApplyOverrides(tt.overrides))
		})
	}
}
