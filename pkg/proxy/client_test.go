package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ondrej1024/m5-minimed-monitor/pkg/config"
)

// testEndpoint derives a ProxyEndpoint from an httptest server URL.
func testEndpoint(t *testing.T, serverURL string, timeout time.Duration) config.ProxyEndpoint {
	t.Helper()

	u, err := url.Parse(serverURL)
	require.NoError(t, err)

	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	return config.ProxyEndpoint{
		Host:    u.Hostname(),
		Port:    port,
		Path:    config.DefaultProxyPath,
		Timeout: config.Duration(timeout),
	}
}

func TestNewClient_Validation(t *testing.T) {
	tests := []struct {
		name     string
		endpoint config.ProxyEndpoint
	}{
		{name: "empty_host", endpoint: config.ProxyEndpoint{Port: 8081}},
		{name: "zero_port", endpoint: config.ProxyEndpoint{Host: "proxy.local"}},
		{name: "port_too_large", endpoint: config.ProxyEndpoint{Host: "proxy.local", Port: 70000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.endpoint)
			assert.Error(t, err)
		})
	}
}

func TestNewClient_URL(t *testing.T) {
	client, err := NewClient(config.ProxyEndpoint{Host: "192.168.1.50", Port: 8081})
	require.NoError(t, err)

	assert.Equal(t, "http://192.168.1.50:8081/carelink/nohistory", client.URL())
}

func TestClient_Fetch(t *testing.T) {
	var gotPath, gotAccept string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer server.Close()

	client, err := NewClient(testEndpoint(t, server.URL, 5*time.Second))
	require.NoError(t, err)

	st, err := client.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/carelink/nohistory", gotPath)
	assert.Equal(t, "application/json", gotAccept)
	assert.Equal(t, 142, st.Glucose)
}

func TestClient_Fetch_HTTPStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "proxy not logged in", http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient(testEndpoint(t, server.URL, 5*time.Second))
	require.NoError(t, err)

	_, err = client.Fetch(context.Background())
	require.ErrorIs(t, err, ErrHTTPStatus)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
}

func TestClient_Fetch_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	client, err := NewClient(testEndpoint(t, server.URL, 5*time.Second))
	require.NoError(t, err)

	_, err = client.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClient_Fetch_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = w.Write([]byte(samplePayload))
	}))
	defer server.Close()

	client, err := NewClient(testEndpoint(t, server.URL, 50*time.Millisecond))
	require.NoError(t, err)

	_, err = client.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClient_Fetch_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	endpoint := testEndpoint(t, server.URL, time.Second)
	server.Close()

	client, err := NewClient(endpoint)
	require.NoError(t, err)

	_, err = client.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
}
