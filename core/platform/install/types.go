package install

import "errors"

// Status is the lifecycle state of an installation.
type Status string

const (
	StatusInstalling   Status = "installing"
	StatusActive       Status = "active"
	StatusDisabled     Status = "disabled"
	StatusError        Status = "error"
	StatusUninstalling Status = "uninstalling"
)

// Installation records that a package is installed for a tenant. An empty
// TenantID means the org-wide installation.
type Installation struct {
	PackageID        string         `json:"package_id"`
	TenantID         string         `json:"tenant_id,omitempty"`
	Status           Status         `json:"status"`
	Config           map[string]any `json:"config,omitempty"`
	EnabledFeatures  []string       `json:"enabled_features,omitempty"`
	InstalledBy      string         `json:"installed_by,omitempty"`
	InstalledAt      int64          `json:"installed_at"`
	LastHealthCheck  int64          `json:"last_health_check,omitempty"`
	LastHealthStatus string         `json:"last_health_status,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
}

var (
	ErrNotFound      = errors.New("installation not found")
	ErrConflict      = errors.New("package already installed")
	ErrInvalidStatus = errors.New("invalid installation status")
)
