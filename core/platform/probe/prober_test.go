package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestProbeHealthy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","uptime":42}`))
	}))
	t.Cleanup(upstream.Close)

	result := New(time.Second).Probe(context.Background(), upstream.URL)
	if result.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s (%s)", result.Status, result.Error)
	}
	if result.Detail["status"] != "ok" {
		t.Fatalf("expected body detail captured: %#v", result.Detail)
	}
	if result.CheckedAt.IsZero() {
		t.Fatalf("expected checked_at set")
	}
}

func TestProbeNonJSONBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	}))
	t.Cleanup(upstream.Close)

	result := New(time.Second).Probe(context.Background(), upstream.URL)
	if result.Status != StatusHealthy {
		t.Fatalf("expected healthy despite non-json body, got %s", result.Status)
	}
	if result.Detail != nil {
		t.Fatalf("expected no detail for non-json body")
	}
}

func TestProbeErrorStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(upstream.Close)

	result := New(time.Second).Probe(context.Background(), upstream.URL)
	if result.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", result.Status)
	}
	if result.Error == "" {
		t.Fatalf("expected error message")
	}
}

func TestProbeUnreachable(t *testing.T) {
	result := New(200*time.Millisecond).Probe(context.Background(), "http://127.0.0.1:1/health")
	if result.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", result.Status)
	}
	if result.Error == "" {
		t.Fatalf("expected transport error captured")
	}
}

func TestProbeTimeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	t.Cleanup(upstream.Close)

	result := New(50*time.Millisecond).Probe(context.Background(), upstream.URL)
	if result.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy on timeout, got %s", result.Status)
	}
}

func TestProbeEmptyURL(t *testing.T) {
	result := New(time.Second).Probe(context.Background(), "")
	if result.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy for empty url, got %s", result.Status)
	}
}
