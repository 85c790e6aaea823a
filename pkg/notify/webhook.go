// Package notify pkg/notify/webhook.go
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ondrej1024/m5-minimed-monitor/pkg/models"
)

var (
	errWebhookDisabled = fmt.Errorf("webhook sink is disabled")
	ErrWebhookCooldown = fmt.Errorf("alarm transition is within cooldown period")
	errWebhookStatus   = fmt.Errorf("webhook returned non-2xx status")
)

const defaultWebhookTimeout = 10 * time.Second

// Header is a custom HTTP header attached to webhook requests.
type Header struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// WebhookConfig configures one webhook notification target.
type WebhookConfig struct {
	Enabled  bool          `json:"enabled"`
	URL      string        `json:"url"`
	Headers  []Header      `json:"headers,omitempty"`
	Cooldown time.Duration `json:"cooldown,omitempty"`
}

func (w *WebhookConfig) UnmarshalJSON(data []byte) error {
	type Alias WebhookConfig

	aux := &struct {
		Cooldown string `json:"cooldown"`
		*Alias
	}{
		Alias: (*Alias)(w),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.Cooldown != "" {
		duration, err := time.ParseDuration(aux.Cooldown)
		if err != nil {
			return fmt.Errorf("invalid cooldown format: %w", err)
		}

		w.Cooldown = duration
	}

	return nil
}

// WebhookSink posts alarm transitions as JSON to a configured URL.
// Repeated transitions for the same condition are suppressed within
// the cooldown window so a flapping condition cannot flood the target.
type WebhookSink struct {
	config       WebhookConfig
	client       *http.Client
	mu           sync.Mutex
	lastNotified map[models.Condition]time.Time
}

// NewWebhookSink creates a webhook sink from config.
func NewWebhookSink(config WebhookConfig) *WebhookSink {
	return &WebhookSink{
		config: config,
		client: &http.Client{
			Timeout: defaultWebhookTimeout,
		},
		lastNotified: make(map[models.Condition]time.Time),
	}
}

// IsEnabled implements Sink.
func (w *WebhookSink) IsEnabled() bool {
	return w.config.Enabled
}

// Notify implements Sink.
func (w *WebhookSink) Notify(ctx context.Context, t *models.AlarmTransition) error {
	if !w.IsEnabled() {
		return errWebhookDisabled
	}

	if err := w.checkCooldown(t.Condition); err != nil {
		return err
	}

	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}

	return w.sendRequest(ctx, payload)
}

func (w *WebhookSink) checkCooldown(cond models.Condition) error {
	if w.config.Cooldown <= 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	last, exists := w.lastNotified[cond]
	if exists && time.Since(last) < w.config.Cooldown {
		log.Printf("Webhook for condition %s is within cooldown period, skipping", cond)
		return ErrWebhookCooldown
	}

	w.lastNotified[cond] = time.Now()

	return nil
}

func (w *WebhookSink) sendRequest(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	w.setHeaders(req)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)

		return fmt.Errorf("%w: status=%d body=%s", errWebhookStatus, resp.StatusCode, string(body))
	}

	return nil
}

func (w *WebhookSink) setHeaders(req *http.Request) {
	hasContentType := false

	for _, header := range w.config.Headers {
		if strings.EqualFold(header.Key, "content-type") {
			hasContentType = true
		}

		req.Header.Set(header.Key, header.Value)
	}

	if !hasContentType {
		req.Header.Set("Content-Type", "application/json")
	}
}
