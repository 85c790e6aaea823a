// Package proxy pkg/proxy/client.go implements the HTTP client for the
// CareLink client proxy.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/ondrej1024/m5-minimed-monitor/pkg/config"
	"github.com/ondrej1024/m5-minimed-monitor/pkg/models"
)

// maxPayloadBytes bounds the response body read; the nohistory payload
// is a few KB.
const maxPayloadBytes = 1 << 20

// Client fetches pump telemetry from the proxy. It performs no caching
// and has no side effects beyond the network call.
type Client struct {
	url     string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient validates the endpoint and builds a client. The rate
// limiter caps requests at one per second regardless of how callers
// drive the client, so retry floors can never hammer the proxy.
func NewClient(endpoint config.ProxyEndpoint) (*Client, error) {
	if endpoint.Host == "" {
		return nil, errEmptyHost
	}

	if endpoint.Port < 1 || endpoint.Port > 65535 {
		return nil, errInvalidPort
	}

	path := endpoint.Path
	if path == "" {
		path = config.DefaultProxyPath
	}

	timeout := time.Duration(endpoint.Timeout)
	if timeout <= 0 {
		timeout = config.DefaultRequestTimeout
	}

	addr := net.JoinHostPort(endpoint.Host, strconv.Itoa(endpoint.Port))

	return &Client{
		url:     fmt.Sprintf("http://%s%s", addr, path),
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}, nil
}

// URL returns the resolved request URL.
func (c *Client) URL() string {
	return c.url
}

// Fetch performs one GET against the proxy and decodes the payload.
// It always returns within the configured timeout plus a small margin;
// a request abandoned at the deadline is reported as ErrTimeout and no
// partial result is returned.
func (c *Client) Fetch(ctx context.Context) (*models.PumpStatus, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	status, err := decodePayload(body)
	if err != nil {
		return nil, err
	}

	return status, nil
}

// classifyTransportError maps low-level errors onto the fetch taxonomy.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
