// Package health probes backend reachability for the admin client.
package health

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LivePath is the dependency-free liveness endpoint of the API.
const LivePath = "/health/live"

// Status is the tri-state backend status tracked by the client.
type Status string

const (
	StatusChecking     Status = "checking"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Result is the outcome of one probe. Any HTTP response counts as reachable,
// whatever its status code.
type Result struct {
	Reachable  bool          `json:"reachable"`
	Detail     string        `json:"detail"`
	StatusCode int           `json:"statusCode,omitempty"`
	Latency    time.Duration `json:"latency"`
}

// Status maps the result onto the backend status.
func (r Result) Status() Status {
	if r.Reachable {
		return StatusConnected
	}
	return StatusDisconnected
}

// Monitor performs bounded-time probes. It never retries.
type Monitor struct {
	url     string
	timeout time.Duration
	client  *http.Client
	tracer  trace.Tracer
}

// NewMonitor returns a monitor for the API at baseURL.
func NewMonitor(baseURL string, timeout time.Duration, client *http.Client) *Monitor {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Monitor{
		url:     strings.TrimRight(baseURL, "/") + LivePath,
		timeout: timeout,
		client:  client,
		tracer:  otel.Tracer("github.com/spec-kit/folio/internal/client/health"),
	}
}

// Probe issues one GET against the liveness endpoint.
func (m *Monitor) Probe(ctx context.Context) Result {
	ctx, span := m.tracer.Start(ctx, "health.Probe")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return Result{Detail: err.Error()}
	}
	resp, err := m.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		span.SetAttributes(attribute.Bool("reachable", false))
		return Result{Detail: err.Error(), Latency: latency}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	span.SetAttributes(attribute.Bool("reachable", true), attribute.Int("http.status_code", resp.StatusCode))
	return Result{
		Reachable:  true,
		Detail:     resp.Status,
		StatusCode: resp.StatusCode,
		Latency:    latency,
	}
}
