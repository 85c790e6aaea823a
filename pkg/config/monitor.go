// Package config pkg/config/monitor.go
package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ondrej1024/m5-minimed-monitor/pkg/models"
	"github.com/ondrej1024/m5-minimed-monitor/pkg/notify"
)

// Defaults. Poll interval and staleness cutoff follow the timers the
// original M5Stack monitor used against the CareLink proxy.
const (
	DefaultPollInterval       = 60 * time.Second
	DefaultRequestTimeout     = 10 * time.Second
	DefaultStalenessThreshold = 15 * time.Minute
	DefaultBackoffCeiling     = 8 * time.Minute
	DefaultFailureThreshold   = 5
	DefaultAlarmRecency       = 15 * time.Minute
	DefaultProxyPath          = "/carelink/nohistory"
	DefaultListenAddr         = ":8090"
)

var (
	errNoProxyHost      = errors.New("proxy host must not be empty")
	errInvalidProxyPort = errors.New("proxy port must be in range 1-65535")
	errInvalidInterval  = errors.New("poll interval must be positive")
	errInvalidThreshold = errors.New("failure threshold must be positive")
	errInvalidUnits     = errors.New("units must be mg/dL or mmol/L")
	errUnknownSetting   = errors.New("unknown settings key")
)

// ProxyEndpoint locates the CareLink client proxy. Owned by the
// configuration layer, read-only to the core.
type ProxyEndpoint struct {
	Host    string   `json:"host"`
	Port    int      `json:"port"`
	Path    string   `json:"path,omitempty"`
	Timeout Duration `json:"timeout,omitempty"`
}

// Config is the monitor's boot configuration.
type Config struct {
	Proxy              ProxyEndpoint         `json:"proxy"`
	PollInterval       Duration              `json:"poll_interval,omitempty"`
	StalenessThreshold Duration              `json:"staleness_threshold,omitempty"`
	BackoffCeiling     Duration              `json:"backoff_ceiling,omitempty"`
	FailureThreshold   int                   `json:"failure_threshold,omitempty"`
	AlarmRecency       Duration              `json:"alarm_recency,omitempty"`
	Units              models.GlucoseUnit    `json:"units,omitempty"`
	ListenAddr         string                `json:"listen_addr,omitempty"`
	SettingsDB         string                `json:"settings_db,omitempty"`
	Webhooks           []notify.WebhookConfig `json:"webhooks,omitempty"`
	MQTT               *notify.MQTTConfig    `json:"mqtt,omitempty"`
}

// Load reads the config file, fills defaults and validates.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := LoadFile(path, cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Proxy.Path == "" {
		c.Proxy.Path = DefaultProxyPath
	}

	if c.Proxy.Timeout <= 0 {
		c.Proxy.Timeout = Duration(DefaultRequestTimeout)
	}

	if c.PollInterval <= 0 {
		c.PollInterval = Duration(DefaultPollInterval)
	}

	if c.StalenessThreshold <= 0 {
		c.StalenessThreshold = Duration(DefaultStalenessThreshold)
	}

	if c.BackoffCeiling <= 0 {
		c.BackoffCeiling = Duration(DefaultBackoffCeiling)
	}

	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}

	if c.AlarmRecency <= 0 {
		c.AlarmRecency = Duration(DefaultAlarmRecency)
	}

	if c.Units == "" {
		c.Units = models.UnitMgdL
	}

	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
}

// Validate implements Validator.
func (c *Config) Validate() error {
	if c.Proxy.Host == "" {
		return errNoProxyHost
	}

	if c.Proxy.Port < 1 || c.Proxy.Port > 65535 {
		return errInvalidProxyPort
	}

	if c.PollInterval <= 0 {
		return errInvalidInterval
	}

	if c.FailureThreshold <= 0 {
		return errInvalidThreshold
	}

	if c.Units != models.UnitMgdL && c.Units != models.UnitMmolL {
		return errInvalidUnits
	}

	return nil
}

// Settings keys recognized by ApplyOverrides. These are the values the
// key-value settings store may persist across reboots.
const (
	KeyProxyHost    = "proxy.host"
	KeyProxyPort    = "proxy.port"
	KeyProxyPath    = "proxy.path"
	KeyPollInterval = "poll_interval"
	KeyStaleness    = "staleness_threshold"
	KeyAlarmRecency = "alarm_recency"
	KeyUnits        = "units"
)

// ApplyOverrides overlays persisted settings onto a loaded config.
// Unknown keys are rejected so typos surface at boot instead of being
// silently ignored.
func (c *Config) ApplyOverrides(values map[string]string) error {
	for key, value := range values {
		if err := c.applyOverride(key, value); err != nil {
			return fmt.Errorf("setting %q: %w", key, err)
		}
	}

	return c.Validate()
}

func (c *Config) applyOverride(key, value string) error {
	switch key {
	case KeyProxyHost:
		c.Proxy.Host = value
	case KeyProxyPort:
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}

		c.Proxy.Port = port
	case KeyProxyPath:
		c.Proxy.Path = value
	case KeyPollInterval:
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}

		c.PollInterval = Duration(d)
	case KeyStaleness:
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}

		c.StalenessThreshold = Duration(d)
	case KeyAlarmRecency:
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}

		c.AlarmRecency = Duration(d)
	case KeyUnits:
		c.Units = models.GlucoseUnit(value)
	default:
		return errUnknownSetting
	}

	return nil
}
