// Package upstream talks to the upstream media server and its identity
// service: resolving per-user server-access tokens (spec §4.7), brokering
// transcode decisions (spec §4.8), and fetching basic user profile info
// for the join handshake.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Drew-Chase/playarr/internal/v1/metrics"
)

const productName = "Playarr"

// Config configures the upstream client. MediaServerURL and AdminToken are
// required for any call that reaches the local server; IdentityServiceURL
// defaults to https://plex.tv.
type Config struct {
	MediaServerURL     string
	IdentityServiceURL string
	AdminToken         string
	ClientIdentifier   string
	Timeout            time.Duration
}

func (c Config) identityBase() string {
	if c.IdentityServiceURL != "" {
		return strings.TrimRight(c.IdentityServiceURL, "/")
	}
	return "https://plex.tv"
}

// Client is the gobreaker-wrapped HTTP executor shared by the resolver and
// the transcode orchestrator — modeled directly on the teacher's
// gobreaker-wrapped gRPC client (pkg/mediaserver/client.go), with net/http
// standing in for the gRPC stub.
type Client struct {
	http   *http.Client
	cfg    Config
	cb     *gobreaker.CircuitBreaker
	cbName string

	mu              sync.RWMutex
	serverTokens    map[string]string // identity token -> server access token
	machineIDOnce   sync.Once
	machineID       string
	machineIDErr    error
}

// NewClient constructs an upstream Client. name distinguishes the circuit
// breaker and its Prometheus labels from other Clients in the same process
// (the resolver and the transcode orchestrator can share one Client).
func NewClient(cfg Config, name string) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		http:         &http.Client{Timeout: timeout},
		cfg:          cfg,
		cbName:       name,
		serverTokens: make(map[string]string),
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateVal)
		},
	}
	c.cb = gobreaker.NewCircuitBreaker(st)
	return c
}

// ErrCircuitOpen is returned when the breaker has tripped and is still
// cooling down.
var ErrCircuitOpen = fmt.Errorf("upstream: circuit breaker open")

// doRequest executes req through the circuit breaker, records metrics, and
// returns the raw response. Callers are responsible for closing the body.
func (c *Client) doRequest(ctx context.Context, op string, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)

	start := time.Now()
	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.http.Do(req)
	})
	metrics.UpstreamRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues(c.cbName).Inc()
			metrics.UpstreamRequestsTotal.WithLabelValues(op, "circuit_open").Inc()
			return nil, ErrCircuitOpen
		}
		metrics.UpstreamRequestsTotal.WithLabelValues(op, "error").Inc()
		return nil, err
	}
	resp := result.(*http.Response)
	metrics.UpstreamRequestsTotal.WithLabelValues(op, fmt.Sprintf("%d", resp.StatusCode)).Inc()
	return resp, nil
}

func (c *Client) setStandardHeaders(req *http.Request, clientID string) {
	req.Header.Set("X-Plex-Product", productName)
	req.Header.Set("X-Plex-Client-Identifier", clientID)
	req.Header.Set("Accept", "application/json")
}

func (c *Client) clientID() string {
	if c.cfg.ClientIdentifier != "" {
		return c.cfg.ClientIdentifier
	}
	return "playarr-backend"
}

// getJSON performs a GET against the local media server with token as the
// X-Plex-Token and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, op, path, token string, out any) (*http.Response, error) {
	if c.cfg.MediaServerURL == "" {
		return nil, fmt.Errorf("upstream: media server URL is not configured")
	}
	url := strings.TrimRight(c.cfg.MediaServerURL, "/") + path
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("X-Plex-Token", token)
	req.URL.RawQuery = q.Encode()
	c.setStandardHeaders(req, c.clientID())

	resp, err := c.doRequest(ctx, op, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return resp, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return resp, fmt.Errorf("upstream: %s returned HTTP %d: %s", path, resp.StatusCode, body)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, fmt.Errorf("upstream: failed to decode response from %s: %w", path, err)
		}
	}
	return resp, nil
}

// ErrUnauthorized is returned when the upstream server rejects the token.
var ErrUnauthorized = fmt.Errorf("upstream: token rejected")
