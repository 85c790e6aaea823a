// cmd/minimed-mon/main.go
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/ondrej1024/m5-minimed-monitor/pkg/alarm"
	"github.com/ondrej1024/m5-minimed-monitor/pkg/api"
	"github.com/ondrej1024/m5-minimed-monitor/pkg/config"
	"github.com/ondrej1024/m5-minimed-monitor/pkg/lifecycle"
	"github.com/ondrej1024/m5-minimed-monitor/pkg/notify"
	"github.com/ondrej1024/m5-minimed-monitor/pkg/poller"
	"github.com/ondrej1024/m5-minimed-monitor/pkg/proxy"
	"github.com/ondrej1024/m5-minimed-monitor/pkg/settings"
	"github.com/ondrej1024/m5-minimed-monitor/pkg/status"
)

func main() {
	configPath := flag.String("config", "/etc/minimed-mon/config.json", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var store *settings.Store

	if cfg.SettingsDB != "" {
		store, err = settings.New(cfg.SettingsDB)
		if err != nil {
			log.Fatalf("Failed to open settings store: %v", err)
		}

		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("Error closing settings store: %v", err)
			}
		}()

		overrides, err := store.All()
		if err != nil {
			log.Fatalf("Failed to read persisted settings: %v", err)
		}

		if err := cfg.ApplyOverrides(overrides); err != nil {
			log.Fatalf("Invalid persisted settings: %v", err)
		}
	}

	client, err := proxy.NewClient(cfg.Proxy)
	if err != nil {
		log.Fatalf("Failed to create proxy client: %v", err)
	}

	log.Printf("Polling pump telemetry from %s every %v", client.URL(), cfg.PollInterval)

	model := status.NewModel()

	sinks := []notify.Sink{notify.NewLogSink()}

	for _, wc := range cfg.Webhooks {
		sinks = append(sinks, notify.NewWebhookSink(wc))
	}

	if cfg.MQTT != nil {
		mqttSink, err := notify.NewMQTTSink(*cfg.MQTT)
		if err != nil {
			log.Fatalf("Failed to create MQTT sink: %v", err)
		}

		defer func() {
			if err := mqttSink.Close(); err != nil {
				log.Printf("Error closing MQTT sink: %v", err)
			}
		}()

		sinks = append(sinks, mqttSink)
	}

	engine := alarm.NewEngine(alarm.Config{
		AlarmRecency: time.Duration(cfg.AlarmRecency),
	}, sinks)

	p := poller.New(pollerConfig(cfg), client, model, engine)

	apiServer := api.NewServer(model, engine, api.WithUnits(cfg.Units))

	if store != nil {
		apiServer.EnableSettings(store, reconfigure(*configPath, store, p, engine, apiServer))
	}

	// Alarm transitions are also pushed to websocket subscribers.
	engine.AddSink(apiServer)

	if err := lifecycle.RunServer(context.Background(), &lifecycle.ServerOptions{
		ListenAddr:  cfg.ListenAddr,
		ServiceName: "minimed-mon",
		Service:     p,
		API:         apiServer,
	}); err != nil {
		log.Fatalf("Monitor failed: %v", err)
	}
}

func pollerConfig(cfg *config.Config) poller.Config {
	return poller.Config{
		Interval:           time.Duration(cfg.PollInterval),
		StalenessThreshold: time.Duration(cfg.StalenessThreshold),
		BackoffCeiling:     time.Duration(cfg.BackoffCeiling),
		FailureThreshold:   cfg.FailureThreshold,
	}
}

// reconfigure reloads the file config, overlays the persisted settings
// and re-applies the merged result to every runtime-tunable component:
// the polling cycle, the alarm engine and the API's reported units.
func reconfigure(configPath string, store *settings.Store, p *poller.Poller, engine *alarm.Engine, srv *api.Server) func() error {
	return func() error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		overrides, err := store.All()
		if err != nil {
			return err
		}

		if err := cfg.ApplyOverrides(overrides); err != nil {
			return err
		}

		client, err := proxy.NewClient(cfg.Proxy)
		if err != nil {
			return err
		}

		p.Reconfigure(pollerConfig(cfg), client)
		engine.Reconfigure(alarm.Config{AlarmRecency: time.Duration(cfg.AlarmRecency)})
		srv.SetUnits(cfg.Units)

		return nil
	}
}
