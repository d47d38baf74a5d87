package secrets

import "strings"

const (
	maskMarker   = "••••••••"
	maskTailSize = 4
	apiKeyField  = "apiKey"
)

// IsSecretField reports whether a config field name carries secret material.
// Any field whose name contains "key" or "secret" is treated as a secret.
func IsSecretField(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "key") || strings.Contains(lower, "secret")
}

// Mask redacts a secret value, keeping the last four characters for
// operator recognition. Empty values stay empty.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	tail := value
	if len(value) > maskTailSize {
		tail = value[len(value)-maskTailSize:]
	}
	return maskMarker + tail
}

// MaskConfig returns a copy of config with every secret-bearing field
// redacted. Nested maps are masked recursively; non-secret fields pass
// through untouched.
func MaskConfig(config map[string]any) map[string]any {
	if config == nil {
		return nil
	}
	out := make(map[string]any, len(config))
	for key, value := range config {
		switch v := value.(type) {
		case map[string]any:
			out[key] = MaskConfig(v)
		case string:
			if IsSecretField(key) {
				out[key] = Mask(v)
			} else {
				out[key] = v
			}
		default:
			out[key] = v
		}
	}
	return out
}

// Configured reports whether config holds a non-empty apiKey.
func Configured(config map[string]any) bool {
	return APIKey(config) != ""
}

// APIKey extracts the raw apiKey string from config, empty when absent.
func APIKey(config map[string]any) string {
	if config == nil {
		return ""
	}
	raw, ok := config[apiKeyField]
	if !ok {
		return ""
	}
	key, _ := raw.(string)
	return strings.TrimSpace(key)
}
