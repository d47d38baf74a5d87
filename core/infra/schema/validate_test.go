package schema

import (
	"encoding/json"
	"testing"
)

const packageSpecSchema = `{
	"type": "object",
	"required": ["packageId", "name", "serviceUrl", "port", "basePath"],
	"properties": {
		"packageId": {"type": "string", "pattern": "^[a-z0-9-]+$"},
		"name": {"type": "string", "minLength": 1},
		"serviceUrl": {"type": "string", "minLength": 1},
		"port": {"type": "integer", "minimum": 1, "maximum": 65535},
		"basePath": {"type": "string", "minLength": 1}
	}
}`

func TestValidateAcceptsValidPayload(t *testing.T) {
	payload := map[string]any{
		"packageId":  "crm-sync",
		"name":       "CRM Sync",
		"serviceUrl": "http://crm-sync",
		"port":       json.Number("8080"),
		"basePath":   "/api",
	}
	data, _ := json.Marshal(payload)
	if err := Validate("package-spec", []byte(packageSpecSchema), json.RawMessage(data)); err != nil {
		t.Fatalf("expected valid payload: %v", err)
	}
}

func TestValidateRejectsMissingField(t *testing.T) {
	payload := json.RawMessage(`{"packageId":"crm-sync","name":"CRM Sync"}`)
	if err := Validate("package-spec", []byte(packageSpecSchema), payload); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidateRejectsBadID(t *testing.T) {
	payload := json.RawMessage(`{"packageId":"Bad ID!","name":"x","serviceUrl":"http://x","port":80,"basePath":"/"}`)
	if err := Validate("package-spec", []byte(packageSpecSchema), payload); err == nil {
		t.Fatalf("expected validation error for id pattern")
	}
}

func TestValidateEmptySchema(t *testing.T) {
	if err := Validate("x", nil, map[string]any{}); err == nil {
		t.Fatalf("expected error for empty schema")
	}
}
