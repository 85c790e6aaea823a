// Package notify pkg/notify/log.go
package notify

import (
	"context"
	"log"

	"github.com/ondrej1024/m5-minimed-monitor/pkg/models"
)

// LogSink writes alarm transitions to the process log. Always enabled;
// it is the fallback notifier when nothing else is configured.
type LogSink struct{}

// NewLogSink creates a log sink.
func NewLogSink() *LogSink {
	return &LogSink{}
}

// IsEnabled implements Sink.
func (*LogSink) IsEnabled() bool {
	return true
}

// Notify implements Sink.
func (*LogSink) Notify(_ context.Context, t *models.AlarmTransition) error {
	log.Printf("Alarm transition: %s -> %s (condition: %s, detail: %s)",
		t.From, t.To, t.Condition, t.Detail)

	return nil
}
