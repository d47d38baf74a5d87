package integrations

import "errors"

// Category groups integrations by what they provide.
type Category string

const (
	CategoryAI        Category = "ai"
	CategoryAnalytics Category = "analytics"
	CategorySearch    Category = "search"
	CategoryCloud     Category = "cloud"
	CategoryOther     Category = "other"
)

// Integration is a centrally stored third-party credential record. Config
// is an open map: the platform inspects apiKey and endpoint, everything
// else passes through to the consuming package unexamined.
type Integration struct {
	IntegrationID  string         `json:"integration_id" yaml:"integrationId"`
	Name           string         `json:"name" yaml:"name"`
	Description    string         `json:"description" yaml:"description"`
	Provider       string         `json:"provider" yaml:"provider"`
	Icon           string         `json:"icon,omitempty" yaml:"icon"`
	Category       Category       `json:"category" yaml:"category"`
	Config         map[string]any `json:"config" yaml:"-"`
	Enabled        bool           `json:"enabled" yaml:"-"`
	UsedByPackages []string       `json:"used_by_packages,omitempty" yaml:"-"`
	UpdatedBy      string         `json:"updated_by,omitempty" yaml:"-"`
	UpdatedAt      int64          `json:"updated_at,omitempty" yaml:"-"`
}

// View is the masked, API-safe projection of an Integration. Raw config
// never leaves the store through a View.
type View struct {
	Integration
	Configured bool `json:"configured"`
}

var (
	ErrNotFound = errors.New("integration not found")
	ErrNoAPIKey = errors.New("no api key configured")
)
