package logging

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	origOut := log.Writer()
	origFlags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(origOut)
		log.SetFlags(origFlags)
	})
	return &buf
}

func TestInfoFormat(t *testing.T) {
	buf := captureLog(t)
	Info("catalog", "seeded", "packages", 4)
	got := strings.TrimSpace(buf.String())
	if !strings.Contains(got, "[CATALOG] seeded") || !strings.Contains(got, "packages=4") {
		t.Fatalf("unexpected log output: %s", got)
	}
}

func TestWarnFormat(t *testing.T) {
	buf := captureLog(t)
	Warn("install", "integration not configured", "integration", "openai")
	got := strings.TrimSpace(buf.String())
	if !strings.Contains(got, "[INSTALL] WARN integration not configured") || !strings.Contains(got, "integration=openai") {
		t.Fatalf("unexpected log output: %s", got)
	}
}

func TestFormatFields(t *testing.T) {
	out := formatFields("a", 1, "b")
	if !strings.Contains(out, "a=1") || !strings.Contains(out, "b=(missing)") {
		t.Fatalf("unexpected fields: %s", out)
	}
	if out := formatFields(); out != "" {
		t.Fatalf("expected empty output")
	}
}

func TestToString(t *testing.T) {
	if got := toString(" value\n"); got != " value\n" {
		t.Fatalf("unexpected string: %s", got)
	}
	if got := toString(123); got != "123" {
		t.Fatalf("unexpected non-string conversion: %s", got)
	}
}
