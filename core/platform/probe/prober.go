package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Status classifies a probe outcome.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

const (
	// DefaultTimeout bounds install-time and on-demand health checks.
	DefaultTimeout = 5 * time.Second
	maxBodyBytes   = 64 << 10
)

// Result describes a single liveness probe. Failures are data, not errors:
// a probe always produces a Result.
type Result struct {
	Status    Status         `json:"status"`
	Detail    map[string]any `json:"detail,omitempty"`
	Error     string         `json:"error,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
}

// Prober issues bounded-time liveness probes against package health
// endpoints.
type Prober struct {
	client  *http.Client
	timeout time.Duration
}

// New constructs a Prober with the given per-probe timeout.
func New(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Probe issues a GET against url and classifies the response. Any transport
// failure, timeout, or non-2xx status is unhealthy. The response body is
// captured opportunistically for diagnostics; malformed bodies are ignored.
func (p *Prober) Probe(ctx context.Context, url string) Result {
	result := Result{Status: StatusUnknown, CheckedAt: time.Now().UTC()}
	if url == "" {
		result.Status = StatusUnhealthy
		result.Error = "health endpoint not configured"
		return result
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(cctx, http.MethodGet, url, nil)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		return result
	}

	resp, err := p.client.Do(req)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	var detail map[string]any
	if json.Unmarshal(body, &detail) == nil {
		result.Detail = detail
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Status = StatusHealthy
		return result
	}
	result.Status = StatusUnhealthy
	result.Error = fmt.Sprintf("health endpoint returned status %d", resp.StatusCode)
	return result
}
