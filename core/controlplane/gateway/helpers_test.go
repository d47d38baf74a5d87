package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"

	"github.com/apphub/apphub/core/infra/bus"
	"github.com/apphub/apphub/core/infra/metrics"
	"github.com/apphub/apphub/core/platform/catalog"
	"github.com/apphub/apphub/core/platform/install"
	"github.com/apphub/apphub/core/platform/integrations"
	"github.com/apphub/apphub/core/platform/probe"
)

const (
	adminToken    = "admin-token"
	platformToken = "platform-token"
	viewerToken   = "viewer-token"
)

func testAuthProvider() AuthProvider {
	return NewStaticAuthProvider(map[string]*AuthContext{
		adminToken:    {UserID: "u-admin", Email: "admin@example.com", Role: RoleAdmin},
		platformToken: {UserID: "u-platform", Email: "platform@example.com", Role: RolePlatformAdmin},
		viewerToken:   {UserID: "u-viewer", Email: "viewer@example.com", Role: RoleViewer},
	})
}

type testHarness struct {
	srv     *server
	http    *httptest.Server
	catalog *catalog.RedisStore
	ints    *integrations.RedisStore
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	redisSrv, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(redisSrv.Close)

	url := "redis://" + redisSrv.Addr()
	catalogStore, err := catalog.NewRedisStore(url)
	if err != nil {
		t.Fatalf("catalog store: %v", err)
	}
	t.Cleanup(func() { _ = catalogStore.Close() })
	integrationStore, err := integrations.NewRedisStore(url)
	if err != nil {
		t.Fatalf("integration store: %v", err)
	}
	t.Cleanup(func() { _ = integrationStore.Close() })
	installStore, err := install.NewRedisStore(url)
	if err != nil {
		t.Fatalf("install store: %v", err)
	}
	t.Cleanup(func() { _ = installStore.Close() })

	s := &server{
		catalog:      catalogStore,
		integrations: integrationStore,
		verifier:     integrations.NewVerifier(integrationStore, metrics.Noop{}),
		clients:      make(map[*websocket.Conn]chan *bus.Event),
		eventsCh:     make(chan *bus.Event, 64),
		tenant:       "default",
		started:      time.Now().UTC(),
		auth:         testAuthProvider(),
	}
	s.installs = install.NewManager(installStore, catalogStore, integrationStore,
		probe.New(time.Second), s.fanout(nil), metrics.Noop{})
	s.startBusTaps(nil)

	ts := httptest.NewServer(authMiddleware(s.auth, s.routes()))
	t.Cleanup(ts.Close)
	return &testHarness{srv: s, http: ts, catalog: catalogStore, ints: integrationStore}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (h *testHarness) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, h.http.URL+path, payload)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		t.Fatalf("decode envelope for %s %s: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return out
}

func registerPayload(id, serviceURL string) map[string]any {
	return map[string]any{
		"package_id":  id,
		"name":        "Package " + id,
		"version":     "1.0.0",
		"service_url": serviceURL,
		"port":        8080,
		"base_path":   "/api",
	}
}

func healthyService(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}
