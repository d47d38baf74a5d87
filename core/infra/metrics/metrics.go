package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GatewayMetrics captures request metrics for the API gateway.
type GatewayMetrics interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// PlatformMetrics captures package-lifecycle and credential-broker metrics.
type PlatformMetrics interface {
	IncInstalls(packageID string)
	IncUninstalls(packageID string)
	IncHealthProbes(status string)
	IncCredentialTests(provider, outcome string)
}

// Noop implements PlatformMetrics without emitting anything.
type Noop struct{}

func (Noop) IncInstalls(string)                {}
func (Noop) IncUninstalls(string)              {}
func (Noop) IncHealthProbes(string)            {}
func (Noop) IncCredentialTests(string, string) {}

// Prom implements PlatformMetrics backed by Prometheus counters.
type Prom struct {
	installs        *prometheus.CounterVec
	uninstalls      *prometheus.CounterVec
	healthProbes    *prometheus.CounterVec
	credentialTests *prometheus.CounterVec
	once            sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		installs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "package_installs_total",
			Help:      "Package installations by package id",
		}, []string{"package"}),
		uninstalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "package_uninstalls_total",
			Help:      "Package uninstallations by package id",
		}, []string{"package"}),
		healthProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_probes_total",
			Help:      "Health probes by outcome",
		}, []string{"status"}),
		credentialTests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_tests_total",
			Help:      "Credential verification calls by provider and outcome",
		}, []string{"provider", "outcome"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.installs, p.uninstalls, p.healthProbes, p.credentialTests)
	})
}

func (p *Prom) IncInstalls(packageID string) {
	p.installs.WithLabelValues(packageID).Inc()
}

func (p *Prom) IncUninstalls(packageID string) {
	p.uninstalls.WithLabelValues(packageID).Inc()
}

func (p *Prom) IncHealthProbes(status string) {
	p.healthProbes.WithLabelValues(status).Inc()
}

func (p *Prom) IncCredentialTests(provider, outcome string) {
	p.credentialTests.WithLabelValues(provider, outcome).Inc()
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// --- Gateway metrics ---

type gatewayProm struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	once     sync.Once
}

// NewGatewayProm constructs a GatewayMetrics with counters/histograms.
func NewGatewayProm(namespace string) GatewayMetrics {
	g := &gatewayProm{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	g.once.Do(func() {
		prometheus.MustRegister(g.requests, g.latency)
	})
	return g
}

func (g *gatewayProm) ObserveRequest(method, route, status string, durationSeconds float64) {
	g.requests.WithLabelValues(method, route, status).Inc()
	g.latency.WithLabelValues(method, route).Observe(durationSeconds)
}
