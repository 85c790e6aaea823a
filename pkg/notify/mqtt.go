// Package notify pkg/notify/mqtt.go
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/ondrej1024/m5-minimed-monitor/pkg/models"
)

// DefaultMQTTTopic is where alarm transitions are published.
const DefaultMQTTTopic = "minimed/monitor/alarms"

const (
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
)

var (
	errMQTTConnectTimeout = fmt.Errorf("mqtt connection timeout")
	errMQTTPublishTimeout = fmt.Errorf("mqtt publish timeout")
)

// MQTTConfig configures the MQTT notification sink.
type MQTTConfig struct {
	Enabled  bool   `json:"enabled"`
	Broker   string `json:"broker"` // e.g. "tcp://localhost:1883"
	Topic    string `json:"topic,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

// MQTTSink publishes alarm transitions to an MQTT broker so external
// notifiers (speaker box, home automation) can react to them.
type MQTTSink struct {
	client  paho.Client
	topic   string
	enabled bool
}

// mqttPayload is the published message structure.
type mqttPayload struct {
	Alarm mqttAlarm `json:"alarm"`
}

type mqttAlarm struct {
	Timestamp string `json:"timestamp"`
	From      string `json:"from"`
	To        string `json:"to"`
	Condition string `json:"condition"`
	Detail    string `json:"detail,omitempty"`
}

// NewMQTTSink connects to the broker and returns a sink. A disabled
// config yields an inert sink without a connection attempt.
func NewMQTTSink(config MQTTConfig) (*MQTTSink, error) {
	if !config.Enabled {
		return &MQTTSink{}, nil
	}

	topic := config.Topic
	if topic == "" {
		topic = DefaultMQTTTopic
	}

	clientID := config.ClientID
	if clientID == "" {
		clientID = "minimed-mon"
	}

	opts := paho.NewClientOptions().
		AddBroker(config.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, errMQTTConnectTimeout
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &MQTTSink{
		client:  client,
		topic:   topic,
		enabled: true,
	}, nil
}

// IsEnabled implements Sink.
func (s *MQTTSink) IsEnabled() bool {
	return s.enabled
}

// Notify implements Sink.
func (s *MQTTSink) Notify(_ context.Context, t *models.AlarmTransition) error {
	if !s.enabled {
		return nil
	}

	payload, err := formatMQTTPayload(t)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 1, alarm transitions must not be lost
	token := s.client.Publish(s.topic, 1, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return errMQTTPublishTimeout
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	return nil
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() error {
	if s.client != nil {
		s.client.Disconnect(1000)
	}

	return nil
}

func formatMQTTPayload(t *models.AlarmTransition) ([]byte, error) {
	payload := mqttPayload{
		Alarm: mqttAlarm{
			Timestamp: t.Timestamp.UTC().Format(time.RFC3339),
			From:      t.From.String(),
			To:        t.To.String(),
			Condition: t.Condition.String(),
			Detail:    t.Detail,
		},
	}

	return json.Marshal(payload)
}
