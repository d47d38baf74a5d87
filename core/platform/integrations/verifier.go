package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/apphub/apphub/core/infra/metrics"
	"github.com/apphub/apphub/core/infra/secrets"
)

// TestResult is the verdict of a live credential check. A failed check is
// a result, not an error: only missing prerequisites (unknown integration,
// no key) surface as errors.
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Skipped bool   `json:"skipped,omitempty"`
}

type providerProbe struct {
	timeout time.Duration
	run     func(ctx context.Context, client *http.Client, apiKey string, config map[string]any) TestResult
}

// Verifier runs provider-specific live checks against stored credentials.
type Verifier struct {
	store   *RedisStore
	client  *http.Client
	metrics metrics.PlatformMetrics
	probes  map[string]providerProbe
}

// NewVerifier constructs a Verifier over the given store.
func NewVerifier(store *RedisStore, m metrics.PlatformMetrics) *Verifier {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Verifier{
		store:   store,
		client:  &http.Client{},
		metrics: m,
		probes: map[string]providerProbe{
			"openai":      {timeout: 10 * time.Second, run: probeOpenAI},
			"anthropic":   {timeout: 15 * time.Second, run: probeAnthropic},
			"segment":     {timeout: 10 * time.Second, run: probeSegment},
			"meilisearch": {timeout: 10 * time.Second, run: probeMeilisearch},
		},
	}
}

// Test runs the provider probe for integrationID. A missing or empty api
// key is ErrNoAPIKey so callers can reject the request up front, even when
// no probe is registered. Integrations with a key but no registered probe
// get a neutral skipped verdict.
func (v *Verifier) Test(ctx context.Context, integrationID string) (TestResult, error) {
	raw, err := v.store.raw(ctx, integrationID)
	if err != nil {
		return TestResult{}, err
	}
	apiKey := secrets.APIKey(raw.Config)
	if apiKey == "" {
		return TestResult{}, ErrNoAPIKey
	}
	probe, ok := v.probes[raw.IntegrationID]
	if !ok {
		return TestResult{
			Success: true,
			Skipped: true,
			Message: "no connection test available for this integration",
		}, nil
	}

	cctx, cancel := context.WithTimeout(ctx, probe.timeout)
	defer cancel()
	result := probe.run(cctx, v.client, apiKey, raw.Config)

	outcome := "failure"
	if result.Success {
		outcome = "success"
	}
	v.metrics.IncCredentialTests(raw.IntegrationID, outcome)
	return result, nil
}

func endpointOrDefault(config map[string]any, fallback string) string {
	if config != nil {
		if raw, ok := config["endpoint"].(string); ok && strings.TrimSpace(raw) != "" {
			return strings.TrimRight(strings.TrimSpace(raw), "/")
		}
	}
	return fallback
}

func probeOpenAI(ctx context.Context, client *http.Client, apiKey string, config map[string]any) TestResult {
	url := endpointOrDefault(config, "https://api.openai.com") + "/v1/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return TestResult{Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	resp, err := client.Do(req)
	if err != nil {
		return TestResult{Message: "could not reach OpenAI: " + err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return TestResult{Success: true, Message: "OpenAI API key verified"}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return TestResult{Message: "OpenAI rejected the API key"}
	}
	return TestResult{Message: fmt.Sprintf("OpenAI returned status %d", resp.StatusCode)}
}

func probeAnthropic(ctx context.Context, client *http.Client, apiKey string, config map[string]any) TestResult {
	url := endpointOrDefault(config, "https://api.anthropic.com") + "/v1/messages"
	// Deliberately malformed minimal request: a 400 still proves the key
	// authenticated, only a 401 means the key is bad.
	body, _ := json.Marshal(map[string]any{
		"model":      "claude-3-haiku-20240307",
		"max_tokens": 1,
		"messages":   []any{},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return TestResult{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	resp, err := client.Do(req)
	if err != nil {
		return TestResult{Message: "could not reach Anthropic: " + err.Error()}
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusBadRequest:
		return TestResult{Success: true, Message: "Anthropic API key verified"}
	case http.StatusUnauthorized, http.StatusForbidden:
		return TestResult{Message: "Anthropic rejected the API key"}
	default:
		return TestResult{Message: fmt.Sprintf("Anthropic returned status %d", resp.StatusCode)}
	}
}

func probeSegment(ctx context.Context, client *http.Client, apiKey string, config map[string]any) TestResult {
	url := endpointOrDefault(config, "https://api.segment.io") + "/v1/batch"
	body := []byte(`{"batch":[]}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return TestResult{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(apiKey, "")
	resp, err := client.Do(req)
	if err != nil {
		return TestResult{Message: "could not reach Segment: " + err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return TestResult{Success: true, Message: "Segment write key verified"}
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return TestResult{Message: "Segment rejected the write key"}
	}
	return TestResult{Message: fmt.Sprintf("Segment returned status %d", resp.StatusCode)}
}

func probeMeilisearch(ctx context.Context, client *http.Client, apiKey string, config map[string]any) TestResult {
	endpoint := endpointOrDefault(config, "")
	if endpoint == "" {
		return TestResult{Message: "meilisearch endpoint not configured"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/indexes?limit=1", nil)
	if err != nil {
		return TestResult{Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	resp, err := client.Do(req)
	if err != nil {
		return TestResult{Message: "could not reach Meilisearch: " + err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return TestResult{Success: true, Message: "Meilisearch API key verified"}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return TestResult{Message: "Meilisearch rejected the API key"}
	}
	return TestResult{Message: fmt.Sprintf("Meilisearch returned status %d", resp.StatusCode)}
}
