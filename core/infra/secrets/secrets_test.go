package secrets

import (
	"strings"
	"testing"
)

func TestIsSecretField(t *testing.T) {
	cases := map[string]bool{
		"apiKey":        true,
		"API_KEY":       true,
		"clientSecret":  true,
		"webhookSecret": true,
		"projectId":     false,
		"region":        false,
		"endpoint":      false,
	}
	for name, expect := range cases {
		if got := IsSecretField(name); got != expect {
			t.Fatalf("field %s expected %v got %v", name, expect, got)
		}
	}
}

func TestMask(t *testing.T) {
	if got := Mask(""); got != "" {
		t.Fatalf("expected empty mask, got %q", got)
	}
	got := Mask("sk-abcdef123456")
	if !strings.HasPrefix(got, "••••••••") {
		t.Fatalf("expected redaction marker prefix, got %q", got)
	}
	if !strings.HasSuffix(got, "3456") {
		t.Fatalf("expected last four characters, got %q", got)
	}
	if strings.Contains(got, "sk-abcdef") {
		t.Fatalf("mask leaked key body: %q", got)
	}
	// short values keep their full tail after the marker
	if got := Mask("ab"); !strings.HasSuffix(got, "ab") {
		t.Fatalf("unexpected short mask: %q", got)
	}
}

func TestMaskConfig(t *testing.T) {
	config := map[string]any{
		"apiKey":    "sk-abcdef123456",
		"projectId": "proj-1",
		"nested": map[string]any{
			"signingSecret": "whsec_999888",
			"region":        "us-east-1",
		},
		"retries": 3,
	}
	masked := MaskConfig(config)
	if masked["projectId"] != "proj-1" {
		t.Fatalf("non-secret field changed: %v", masked["projectId"])
	}
	if masked["retries"] != 3 {
		t.Fatalf("non-string field changed: %v", masked["retries"])
	}
	key, _ := masked["apiKey"].(string)
	if strings.Contains(key, "abcdef") {
		t.Fatalf("apiKey not masked: %q", key)
	}
	nested, _ := masked["nested"].(map[string]any)
	secret, _ := nested["signingSecret"].(string)
	if !strings.HasSuffix(secret, "9888") || strings.Contains(secret, "whsec_") {
		t.Fatalf("nested secret not masked: %q", secret)
	}
	if nested["region"] != "us-east-1" {
		t.Fatalf("nested non-secret changed: %v", nested["region"])
	}
	// original untouched
	if config["apiKey"] != "sk-abcdef123456" {
		t.Fatalf("original config mutated")
	}
}

func TestConfiguredAndAPIKey(t *testing.T) {
	if Configured(nil) {
		t.Fatalf("nil config should not be configured")
	}
	if Configured(map[string]any{"apiKey": ""}) {
		t.Fatalf("empty apiKey should not be configured")
	}
	if Configured(map[string]any{"apiKey": "  "}) {
		t.Fatalf("blank apiKey should not be configured")
	}
	if !Configured(map[string]any{"apiKey": "sk-1"}) {
		t.Fatalf("expected configured")
	}
	if got := APIKey(map[string]any{"apiKey": " sk-2 "}); got != "sk-2" {
		t.Fatalf("unexpected api key: %q", got)
	}
}
