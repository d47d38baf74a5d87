package gateway

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/apphub/apphub/core/infra/bus"
	"github.com/apphub/apphub/core/infra/config"
	"github.com/apphub/apphub/core/infra/logging"
	infraMetrics "github.com/apphub/apphub/core/infra/metrics"
	"github.com/apphub/apphub/core/platform/catalog"
	"github.com/apphub/apphub/core/platform/install"
	"github.com/apphub/apphub/core/platform/integrations"
	"github.com/apphub/apphub/core/platform/probe"
	"github.com/apphub/apphub/core/platform/seed"
)

const (
	component = "api-gateway"

	defaultRateLimitRPS   = 50
	defaultRateLimitBurst = 100

	envInternalToken = "APPHUB_INTERNAL_TOKEN"
)

type server struct {
	catalog      *catalog.RedisStore
	installs     *install.Manager
	integrations *integrations.RedisStore
	verifier     *integrations.Verifier

	clients   map[*websocket.Conn]chan *bus.Event
	clientsMu sync.RWMutex
	eventsCh  chan *bus.Event

	metrics infraMetrics.GatewayMetrics
	tenant  string
	started time.Time
	auth    AuthProvider
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return isAllowedOrigin(r) },
}

type tokenBucket struct {
	tokens chan struct{}
}

func newTokenBucket(rps, burst int) *tokenBucket {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	tb := &tokenBucket{tokens: make(chan struct{}, burst)}
	for i := 0; i < burst; i++ {
		tb.tokens <- struct{}{}
	}
	interval := time.Second / time.Duration(rps)
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			select {
			case tb.tokens <- struct{}{}:
			default:
			}
		}
	}()
	return tb
}

func newTokenBucketFromEnv() *tokenBucket {
	rps := defaultRateLimitRPS
	burst := defaultRateLimitBurst
	if val := os.Getenv("API_RATE_LIMIT_RPS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			rps = parsed
		}
	}
	if val := os.Getenv("API_RATE_LIMIT_BURST"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			burst = parsed
		}
	}
	return newTokenBucket(rps, burst)
}

func (tb *tokenBucket) Allow() bool {
	if tb == nil {
		return true
	}
	select {
	case <-tb.tokens:
		return true
	default:
		return false
	}
}

var apiLimiter = newTokenBucketFromEnv()

// Run starts the gateway with auth derived from configuration: the token
// verifier when AUTH_VERIFY_URL is set, otherwise open access for
// single-node development.
func Run(cfg *config.Config) error {
	return RunWithAuth(cfg, nil)
}

// RunWithAuth starts the gateway with a custom auth provider.
func RunWithAuth(cfg *config.Config, provider AuthProvider) error {
	if cfg == nil {
		cfg = config.Load()
	}
	if provider == nil && cfg.AuthVerifyURL != "" {
		tokenAuth, err := NewTokenAuthProvider(cfg.AuthVerifyURL)
		if err != nil {
			return fmt.Errorf("init auth: %w", err)
		}
		provider = tokenAuth
	}

	catalogStore, err := catalog.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis catalog store: %w", err)
	}
	defer catalogStore.Close()

	integrationStore, err := integrations.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis integration store: %w", err)
	}
	defer integrationStore.Close()

	installStore, err := install.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis install store: %w", err)
	}
	defer installStore.Close()

	var natsBus *bus.NatsBus
	if !cfg.DisableEventBus {
		natsBus, err = bus.NewNatsBus(cfg.NatsURL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer natsBus.Close()
	}

	if err := seed.New(catalogStore, integrationStore).Run(context.Background()); err != nil {
		return fmt.Errorf("seed builtin catalog: %w", err)
	}

	platformMetrics := infraMetrics.NewProm("apphub")
	s := &server{
		catalog:      catalogStore,
		integrations: integrationStore,
		verifier:     integrations.NewVerifier(integrationStore, platformMetrics),
		clients:      make(map[*websocket.Conn]chan *bus.Event),
		eventsCh:     make(chan *bus.Event, 512),
		metrics:      infraMetrics.NewGatewayProm("apphub_api_gateway"),
		tenant:       cfg.Tenant,
		started:      time.Now().UTC(),
		auth:         provider,
	}

	var publisher bus.Publisher
	if natsBus != nil {
		publisher = natsBus
	}
	s.installs = install.NewManager(installStore, catalogStore, integrationStore,
		probe.New(cfg.ProbeTimeout), s.fanout(publisher), platformMetrics)

	s.startBusTaps(natsBus)
	return startHTTPServer(s, cfg.HTTPAddr, cfg.MetricsAddr)
}

// fanout wraps the bus publisher so every lifecycle event also reaches
// the local websocket broadcast channel, with or without NATS.
func (s *server) fanout(next bus.Publisher) bus.Publisher {
	return publisherFunc(func(subject string, event *bus.Event) error {
		select {
		case s.eventsCh <- event:
		default:
		}
		if next == nil {
			return nil
		}
		return next.Publish(subject, event)
	})
}

type publisherFunc func(subject string, event *bus.Event) error

func (f publisherFunc) Publish(subject string, event *bus.Event) error {
	return f(subject, event)
}

// startBusTaps feeds remote lifecycle events into the broadcast channel
// and runs the websocket fan-out loop.
func (s *server) startBusTaps(natsBus *bus.NatsBus) {
	if natsBus != nil {
		if err := natsBus.Subscribe("platform.package.>", func(event *bus.Event) {
			select {
			case s.eventsCh <- event:
			default:
			}
		}); err != nil {
			logging.Error(component, "bus subscribe failed", "error", err)
		}
	}

	go func() {
		for evt := range s.eventsCh {
			var slowClients []*websocket.Conn
			s.clientsMu.RLock()
			for conn, ch := range s.clients {
				select {
				case ch <- evt:
				default:
					slowClients = append(slowClients, conn)
				}
			}
			s.clientsMu.RUnlock()

			if len(slowClients) > 0 {
				s.clientsMu.Lock()
				for _, conn := range slowClients {
					delete(s.clients, conn)
				}
				s.clientsMu.Unlock()
				for _, conn := range slowClients {
					if err := conn.Close(); err != nil {
						logging.Error(component, "ws client close failed", "error", err)
					}
				}
			}
		}
	}()
}

func startHTTPServer(s *server, httpAddr, metricsAddr string) error {
	mux := http.NewServeMux()
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", infraMetrics.Handler())
	go func() {
		srv := &http.Server{
			Addr:         metricsAddr,
			Handler:      metricsMux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		logging.Info(component, "metrics listening", "addr", metricsAddr+"/metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(component, "metrics server error", "error", err)
		}
	}()

	mux.Handle("/", s.routes())

	handler := corsMiddleware(rateLimitMiddleware(authMiddleware(s.auth, mux)))

	logging.Info(component, "http listening", "addr", httpAddr)
	srv := &http.Server{
		Addr:              httpAddr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Error(component, "http server error", "error", err)
		return err
	}
	return nil
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Liveness
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Platform status snapshot
	mux.HandleFunc("GET /api/v1/status", s.instrumented("/api/v1/status", s.handleStatus))

	// Package catalog
	mux.HandleFunc("GET /api/v1/packages", s.instrumented("/api/v1/packages", s.handleListPackages))
	mux.HandleFunc("POST /api/v1/packages", s.instrumented("/api/v1/packages", s.handleRegisterPackage))
	mux.HandleFunc("GET /api/v1/packages/{id}", s.instrumented("/api/v1/packages/{id}", s.handleGetPackage))
	mux.HandleFunc("DELETE /api/v1/packages/{id}", s.instrumented("/api/v1/packages/{id}", s.handleDeletePackage))

	// Installation lifecycle
	mux.HandleFunc("POST /api/v1/packages/{id}/install", s.instrumented("/api/v1/packages/{id}/install", s.handleInstallPackage))
	mux.HandleFunc("POST /api/v1/packages/{id}/uninstall", s.instrumented("/api/v1/packages/{id}/uninstall", s.handleUninstallPackage))
	mux.HandleFunc("PUT /api/v1/packages/{id}/status", s.instrumented("/api/v1/packages/{id}/status", s.handleSetPackageStatus))
	mux.HandleFunc("POST /api/v1/packages/{id}/health-check", s.instrumented("/api/v1/packages/{id}/health-check", s.handleHealthCheck))
	mux.HandleFunc("GET /api/v1/installations", s.instrumented("/api/v1/installations", s.handleListInstallations))

	// Integration credential broker
	mux.HandleFunc("GET /api/v1/integrations", s.instrumented("/api/v1/integrations", s.handleListIntegrations))
	mux.HandleFunc("GET /api/v1/integrations/{id}", s.instrumented("/api/v1/integrations/{id}", s.handleGetIntegration))
	mux.HandleFunc("PUT /api/v1/integrations/{id}", s.instrumented("/api/v1/integrations/{id}", s.handleUpdateIntegration))
	mux.HandleFunc("POST /api/v1/integrations/{id}/test", s.instrumented("/api/v1/integrations/{id}/test", s.handleTestIntegration))

	// Service-to-service credential consumption, never exposed on /api.
	mux.HandleFunc("GET /internal/v1/integrations/{id}/key", s.instrumented("/internal/v1/integrations/{id}/key", s.handleIntegrationKey))

	// Lifecycle event stream (WebSocket)
	mux.HandleFunc("/api/v1/stream", s.instrumented("/api/v1/stream", s.handleStream))

	return mux
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	uptimeSeconds := int64(0)
	if !s.started.IsZero() {
		uptimeSeconds = int64(now.Sub(s.started).Seconds())
	}

	packages, err := s.catalog.List(r.Context(), catalog.Filter{})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	installs, err := s.installs.Store().List(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondData(w, http.StatusOK, map[string]any{
		"time":           now.Format(time.RFC3339),
		"uptime_seconds": uptimeSeconds,
		"tenant":         s.tenant,
		"packages":       len(packages),
		"installations":  len(installs),
	})
}

// requireRole is a nil-safe role check; a gateway without an auth
// provider runs open, which is only acceptable for local development.
func (s *server) requireRole(r *http.Request, roles ...string) error {
	if s == nil || s.auth == nil {
		return nil
	}
	return s.auth.RequireRole(r, roles...)
}

// requireAdmin gates mutating operations.
func (s *server) requireAdmin(r *http.Request) error {
	return s.requireRole(r, RoleAdmin, RolePlatformAdmin)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			if !isAllowedOrigin(r) {
				http.Error(w, "origin not allowed", http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isAllowedOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		// Non-browser clients often omit Origin; treat as allowed.
		return true
	}
	raw := strings.TrimSpace(os.Getenv("APPHUB_ALLOWED_ORIGINS"))
	if raw == "" || raw == "*" {
		return true
	}
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == origin {
			return true
		}
	}
	return false
}

func rateLimitMiddleware(next http.Handler) http.Handler {
	if apiLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if !apiLimiter.Allow() {
			respondError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware authenticates /api requests and injects the identity.
// /internal routes use the shared service token instead.
func authMiddleware(auth AuthProvider, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/internal/") {
			if !internalTokenOK(r) {
				respondError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		if auth == nil || r.URL.Path == "/health" || !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		authCtx, err := auth.AuthenticateHTTP(r)
		if err != nil {
			respondAuthError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, authCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func internalTokenOK(r *http.Request) bool {
	expected := strings.TrimSpace(os.Getenv(envInternalToken))
	if expected == "" {
		return false
	}
	return strings.TrimSpace(r.Header.Get("X-Internal-Token")) == expected
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade work through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijacker not supported")
	}
	return hj.Hijack()
}

// Flush preserves streaming support if the wrapped writer implements it.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrumented wraps handlers to record metrics.
func (s *server) instrumented(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		if s.metrics != nil {
			s.metrics.ObserveRequest(r.Method, route, fmt.Sprintf("%d", rec.status), time.Since(start).Seconds())
		}
	}
}
