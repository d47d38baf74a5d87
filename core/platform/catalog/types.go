package catalog

import (
	"errors"
	"strings"
)

// PackageType distinguishes how a package entered the catalog.
type PackageType string

const (
	TypeBuiltin     PackageType = "builtin"
	TypeMarketplace PackageType = "marketplace"
	TypeCustom      PackageType = "custom"
)

// PackageStatus gates whether a package can be installed.
type PackageStatus string

const (
	StatusAvailable  PackageStatus = "available"
	StatusDeprecated PackageStatus = "deprecated"
)

// Permission describes a capability a package requests from operators.
type Permission struct {
	Key         string `json:"key" yaml:"key"`
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description" yaml:"description"`
	Category    string `json:"category" yaml:"category"`
}

// Package is a catalog entry describing an installable backend service.
type Package struct {
	PackageID            string        `json:"package_id" yaml:"packageId"`
	Name                 string        `json:"name" yaml:"name"`
	Description          string        `json:"description" yaml:"description"`
	Version              string        `json:"version" yaml:"version"`
	Type                 PackageType   `json:"type" yaml:"type"`
	Category             string        `json:"category" yaml:"category"`
	Icon                 string        `json:"icon,omitempty" yaml:"icon"`
	ServiceURL           string        `json:"service_url" yaml:"serviceUrl"`
	Port                 int           `json:"port" yaml:"port"`
	BasePath             string        `json:"base_path" yaml:"basePath"`
	HealthEndpoint       string        `json:"health_endpoint" yaml:"healthEndpoint"`
	ManifestEndpoint     string        `json:"manifest_endpoint,omitempty" yaml:"manifestEndpoint"`
	RequiredIntegrations []string      `json:"required_integrations,omitempty" yaml:"requiredIntegrations"`
	Permissions          []Permission  `json:"permissions,omitempty" yaml:"permissions"`
	Features             []string      `json:"features,omitempty" yaml:"features"`
	Status               PackageStatus `json:"status" yaml:"status"`
	CreatedAt            int64         `json:"created_at,omitempty" yaml:"-"`
	UpdatedAt            int64         `json:"updated_at,omitempty" yaml:"-"`
}

var (
	ErrNotFound = errors.New("package not found")
	ErrConflict = errors.New("package id already exists")
	ErrBuiltin  = errors.New("builtin packages cannot be deleted")
)

// Validate checks the fields required to register a package.
func (p *Package) Validate() error {
	if p == nil {
		return errors.New("package required")
	}
	if strings.TrimSpace(p.PackageID) == "" {
		return errors.New("packageId required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("name required")
	}
	if strings.TrimSpace(p.ServiceURL) == "" {
		return errors.New("serviceUrl required")
	}
	if p.Port <= 0 || p.Port > 65535 {
		return errors.New("port required")
	}
	if strings.TrimSpace(p.BasePath) == "" {
		return errors.New("basePath required")
	}
	return nil
}

// HealthURL joins the service address with the declared health endpoint.
func (p *Package) HealthURL() string {
	base := strings.TrimRight(p.ServiceURL, "/")
	endpoint := p.HealthEndpoint
	if endpoint == "" {
		endpoint = "/health"
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return base + endpoint
}

// Filter narrows a catalog listing.
type Filter struct {
	Category string
	Type     PackageType
	Search   string
}

func (f Filter) matches(p *Package) bool {
	if p.Status != StatusAvailable {
		return false
	}
	if f.Category != "" && !strings.EqualFold(f.Category, p.Category) {
		return false
	}
	if f.Type != "" && f.Type != p.Type {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Search)) {
		return false
	}
	return true
}
