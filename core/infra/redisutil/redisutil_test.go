package redisutil

import "testing"

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions("redis://:pass@example:6390/2")
	if err != nil {
		t.Fatalf("parse options: %v", err)
	}
	if opts.Addr != "example:6390" {
		t.Fatalf("unexpected addr: %s", opts.Addr)
	}
	if opts.Password != "pass" {
		t.Fatalf("unexpected password")
	}
	if opts.DB != 2 {
		t.Fatalf("unexpected db: %d", opts.DB)
	}
}

func TestParseOptionsInvalid(t *testing.T) {
	if _, err := ParseOptions("not-a-url"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTLSFromEnv(t *testing.T) {
	t.Setenv("REDIS_TLS_SERVER_NAME", "redis.internal")
	t.Setenv("REDIS_TLS_INSECURE", "yes")
	opts, err := ParseOptions("rediss://example:6390")
	if err != nil {
		t.Fatalf("parse options: %v", err)
	}
	if opts.TLSConfig == nil {
		t.Fatalf("expected tls config")
	}
	if opts.TLSConfig.ServerName != "redis.internal" {
		t.Fatalf("unexpected server name: %s", opts.TLSConfig.ServerName)
	}
	if !opts.TLSConfig.InsecureSkipVerify {
		t.Fatalf("expected insecure skip verify")
	}
}

func TestTLSCertWithoutKey(t *testing.T) {
	t.Setenv("REDIS_TLS_CERT", "/tmp/cert.pem")
	if _, err := ParseOptions("redis://example:6379"); err == nil {
		t.Fatalf("expected cert/key pairing error")
	}
}

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("REDIS_TLS_INSECURE", "on")
	if !parseBoolEnv("REDIS_TLS_INSECURE") {
		t.Fatalf("expected true for 'on'")
	}
	t.Setenv("REDIS_TLS_INSECURE", "nope")
	if parseBoolEnv("REDIS_TLS_INSECURE") {
		t.Fatalf("expected false for unknown value")
	}
}
