package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func withTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	origReg := prometheus.DefaultRegisterer
	origGather := prometheus.DefaultGatherer
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGather
	})
	return reg
}

func TestNoopMetrics(t *testing.T) {
	var m Noop
	m.IncInstalls("seo-optimizer")
	m.IncUninstalls("seo-optimizer")
	m.IncHealthProbes("healthy")
	m.IncCredentialTests("openai", "success")
}

func TestPromMetrics(t *testing.T) {
	reg := withTestRegistry(t)
	m := NewProm("apphub")
	m.IncInstalls("seo-optimizer")
	m.IncUninstalls("seo-optimizer")
	m.IncHealthProbes("unhealthy")
	m.IncCredentialTests("openai", "failure")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !hasMetric(families, "apphub_package_installs_total", map[string]string{"package": "seo-optimizer"}) {
		t.Fatalf("expected package_installs metric")
	}
	if !hasMetric(families, "apphub_package_uninstalls_total", map[string]string{"package": "seo-optimizer"}) {
		t.Fatalf("expected package_uninstalls metric")
	}
	if !hasMetric(families, "apphub_health_probes_total", map[string]string{"status": "unhealthy"}) {
		t.Fatalf("expected health_probes metric")
	}
	if !hasMetric(families, "apphub_credential_tests_total", map[string]string{"provider": "openai", "outcome": "failure"}) {
		t.Fatalf("expected credential_tests metric")
	}
}

func TestGatewayMetrics(t *testing.T) {
	reg := withTestRegistry(t)
	m := NewGatewayProm("apphub")
	m.ObserveRequest("GET", "/api/v1/packages", "200", 0.01)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !hasMetric(families, "apphub_http_requests_total", map[string]string{"method": "GET", "route": "/api/v1/packages", "status": "200"}) {
		t.Fatalf("expected http_requests metric")
	}
	if !hasMetric(families, "apphub_http_request_duration_seconds", map[string]string{"method": "GET", "route": "/api/v1/packages"}) {
		t.Fatalf("expected http_request_duration metric")
	}
}

func TestHandler(t *testing.T) {
	withTestRegistry(t)
	m := NewProm("apphub")
	m.IncHealthProbes("healthy")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected metrics output")
	}
}

func hasMetric(families []*dto.MetricFamily, name string, labels map[string]string) bool {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				return true
			}
		}
	}
	return false
}

func matchLabels(pairs []*dto.LabelPair, labels map[string]string) bool {
	if len(labels) == 0 {
		return true
	}
	found := 0
	for _, pair := range pairs {
		if val, ok := labels[pair.GetName()]; ok && pair.GetValue() == val {
			found++
		}
	}
	return found == len(labels)
}
