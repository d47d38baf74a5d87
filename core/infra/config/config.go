package config

import (
	"os"
	"strconv"
	"time"
)

const (
	defaultRedisURL     = "redis://localhost:6379"
	defaultNATSURL      = "nats://localhost:4222"
	defaultHTTPAddr     = ":8081"
	defaultMetricsAddr  = ":9092"
	defaultTenant       = "default"
	defaultProbeTimeout = 5 * time.Second
	envRedisURL         = "REDIS_URL"
	envNATSURL          = "NATS_URL"
	envHTTPAddr         = "APPHUB_HTTP_ADDR"
	envMetricsAddr      = "APPHUB_METRICS_ADDR"
	envTenantID         = "TENANT_ID"
	envAuthVerifyURL    = "AUTH_VERIFY_URL"
	envProbeTimeoutSecs = "HEALTH_PROBE_TIMEOUT_SECONDS"
	envDisableEventBus  = "APPHUB_DISABLE_EVENT_BUS"
)

// Config holds runtime configuration for the platform services.
type Config struct {
	RedisURL        string
	NatsURL         string
	HTTPAddr        string
	MetricsAddr     string
	Tenant          string
	AuthVerifyURL   string
	ProbeTimeout    time.Duration
	DisableEventBus bool
}

// Load returns configuration using environment variables with sane defaults.
func Load() *Config {
	redisURL := os.Getenv(envRedisURL)
	if redisURL == "" {
		redisURL = defaultRedisURL
	}

	natsURL := os.Getenv(envNATSURL)
	if natsURL == "" {
		natsURL = defaultNATSURL
	}

	httpAddr := os.Getenv(envHTTPAddr)
	if httpAddr == "" {
		httpAddr = defaultHTTPAddr
	}
	metricsAddr := os.Getenv(envMetricsAddr)
	if metricsAddr == "" {
		metricsAddr = defaultMetricsAddr
	}

	tenant := os.Getenv(envTenantID)
	if tenant == "" {
		tenant = defaultTenant
	}

	probeTimeout := defaultProbeTimeout
	if raw := os.Getenv(envProbeTimeoutSecs); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			probeTimeout = time.Duration(secs) * time.Second
		}
	}

	return &Config{
		RedisURL:        redisURL,
		NatsURL:         natsURL,
		HTTPAddr:        httpAddr,
		MetricsAddr:     metricsAddr,
		Tenant:          tenant,
		AuthVerifyURL:   os.Getenv(envAuthVerifyURL),
		ProbeTimeout:    probeTimeout,
		DisableEventBus: os.Getenv(envDisableEventBus) == "true",
	}
}
