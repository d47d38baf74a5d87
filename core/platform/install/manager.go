package install

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/apphub/apphub/core/infra/bus"
	"github.com/apphub/apphub/core/infra/logging"
	"github.com/apphub/apphub/core/infra/metrics"
	"github.com/apphub/apphub/core/platform/catalog"
	"github.com/apphub/apphub/core/platform/integrations"
	"github.com/apphub/apphub/core/platform/probe"
)

const component = "install"

// Catalog is the slice of the package catalog the manager needs.
type Catalog interface {
	Get(ctx context.Context, packageID string) (*catalog.Package, error)
}

// IntegrationDirectory resolves required integrations during install.
type IntegrationDirectory interface {
	Get(ctx context.Context, integrationID string) (integrations.View, error)
}

// Manager drives the installation state machine: catalog resolution, the
// soft dependency check, the install-time health probe, and lifecycle
// events.
type Manager struct {
	store        *RedisStore
	catalog      Catalog
	integrations IntegrationDirectory
	prober       *probe.Prober
	publisher    bus.Publisher
	metrics      metrics.PlatformMetrics
}

// NewManager wires the installation state machine. publisher may be nil
// when the event bus is disabled.
func NewManager(store *RedisStore, cat Catalog, dir IntegrationDirectory, prober *probe.Prober, publisher bus.Publisher, m metrics.PlatformMetrics) *Manager {
	if m == nil {
		m = metrics.Noop{}
	}
	if prober == nil {
		prober = probe.New(probe.DefaultTimeout)
	}
	return &Manager{
		store:        store,
		catalog:      cat,
		integrations: dir,
		prober:       prober,
		publisher:    publisher,
		metrics:      m,
	}
}

// Store exposes the underlying installation store for read paths and the
// catalog delete cascade.
func (m *Manager) Store() *RedisStore {
	return m.store
}

// Install installs a package for a tenant (empty tenantID = org-wide).
// Missing or unconfigured required integrations are warnings, never
// blockers. The install-time probe verdict is recorded but a failing
// probe does not roll the installation back: the result is an active
// installation marked unhealthy.
func (m *Manager) Install(ctx context.Context, packageID, tenantID string, config map[string]any, installedBy string) (*Installation, error) {
	pkg, err := m.catalog.Get(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if pkg.Status != catalog.StatusAvailable {
		return nil, catalog.ErrNotFound
	}
	if _, err := m.store.Get(ctx, packageID, tenantID); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	m.warnMissingIntegrations(ctx, pkg)

	inst := &Installation{
		PackageID:       pkg.PackageID,
		TenantID:        tenantID,
		Status:          StatusInstalling,
		Config:          config,
		EnabledFeatures: append([]string{}, pkg.Features...),
		InstalledBy:     installedBy,
		InstalledAt:     time.Now().Unix(),
	}
	if err := m.store.Create(ctx, inst); err != nil {
		return nil, err
	}

	result := m.prober.Probe(ctx, pkg.HealthURL())
	inst.Status = StatusActive
	inst.LastHealthCheck = result.CheckedAt.Unix()
	inst.LastHealthStatus = string(result.Status)
	inst.ErrorMessage = result.Error
	if err := m.store.Save(ctx, inst); err != nil {
		return nil, err
	}

	m.metrics.IncInstalls(pkg.PackageID)
	m.metrics.IncHealthProbes(string(result.Status))
	m.publish(bus.SubjectInstalled, &bus.Event{
		Type:      "package.installed",
		PackageID: pkg.PackageID,
		TenantID:  tenantID,
		Status:    string(inst.Status),
		Detail:    inst.LastHealthStatus,
	})
	logging.Info(component, "package installed",
		"package", pkg.PackageID, "tenant", tenantLabel(tenantID), "health", inst.LastHealthStatus)
	return inst, nil
}

// Uninstall removes an installation outright. The record is deleted, not
// tombstoned, so the same (package, tenant) pair can be installed again.
func (m *Manager) Uninstall(ctx context.Context, packageID, tenantID string) error {
	if _, err := m.store.Get(ctx, packageID, tenantID); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, packageID, tenantID); err != nil {
		return err
	}
	m.metrics.IncUninstalls(packageID)
	m.publish(bus.SubjectUninstalled, &bus.Event{
		Type:      "package.uninstalled",
		PackageID: packageID,
		TenantID:  tenantID,
	})
	logging.Info(component, "package uninstalled", "package", packageID, "tenant", tenantLabel(tenantID))
	return nil
}

// SetStatus toggles the org-wide installation between active and disabled.
// Transitional states cannot be requested from outside.
func (m *Manager) SetStatus(ctx context.Context, packageID string, status Status) (*Installation, error) {
	if status != StatusActive && status != StatusDisabled {
		return nil, ErrInvalidStatus
	}
	inst, err := m.store.Get(ctx, packageID, "")
	if err != nil {
		return nil, err
	}
	inst.Status = status
	if err := m.store.Save(ctx, inst); err != nil {
		return nil, err
	}
	m.publish(bus.SubjectStatusChanged, &bus.Event{
		Type:      "package.status_changed",
		PackageID: packageID,
		Status:    string(status),
	})
	return inst, nil
}

// CheckHealth re-probes the org-wide installation of a package and
// persists the verdict. An unhealthy verdict is data, not an error.
func (m *Manager) CheckHealth(ctx context.Context, packageID string) (probe.Result, error) {
	pkg, err := m.catalog.Get(ctx, packageID)
	if err != nil {
		return probe.Result{}, err
	}
	inst, err := m.store.Get(ctx, packageID, "")
	if err != nil {
		return probe.Result{}, err
	}

	result := m.prober.Probe(ctx, pkg.HealthURL())
	inst.LastHealthCheck = result.CheckedAt.Unix()
	inst.LastHealthStatus = string(result.Status)
	inst.ErrorMessage = result.Error
	if err := m.store.Save(ctx, inst); err != nil {
		return probe.Result{}, err
	}

	m.metrics.IncHealthProbes(string(result.Status))
	m.publish(bus.SubjectHealth, &bus.Event{
		Type:      "package.health",
		PackageID: packageID,
		Status:    string(result.Status),
		Detail:    result.Error,
	})
	return result, nil
}

func (m *Manager) warnMissingIntegrations(ctx context.Context, pkg *catalog.Package) {
	for _, id := range pkg.RequiredIntegrations {
		view, err := m.integrations.Get(ctx, id)
		switch {
		case errors.Is(err, integrations.ErrNotFound):
			logging.Warn(component, "required integration missing",
				"package", pkg.PackageID, "integration", id)
		case err != nil:
			logging.Warn(component, "required integration lookup failed",
				"package", pkg.PackageID, "integration", id, "error", err)
		case !view.Enabled:
			logging.Warn(component, "required integration disabled",
				"package", pkg.PackageID, "integration", id)
		case !view.Configured:
			logging.Warn(component, "required integration has no credential",
				"package", pkg.PackageID, "integration", id)
		}
	}
}

func (m *Manager) publish(subject string, event *bus.Event) {
	if m.publisher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.At = time.Now().Unix()
	if err := m.publisher.Publish(subject, event); err != nil {
		logging.Warn(component, "event publish failed", "subject", subject, "error", err)
	}
}

func tenantLabel(tenantID string) string {
	if tenantID == "" {
		return "org"
	}
	return tenantID
}
