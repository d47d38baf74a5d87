package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/apphub/apphub/core/infra/logging"
	"github.com/apphub/apphub/core/platform/catalog"
	"github.com/apphub/apphub/core/platform/integrations"
)

const component = "seed"

//go:embed catalog.yaml
var builtinCatalog []byte

type manifest struct {
	Packages     []*catalog.Package          `yaml:"packages"`
	Integrations []*integrations.Integration `yaml:"integrations"`
}

// Seeder applies the builtin catalog to the stores at startup. Seeding is
// idempotent: new entries are created, existing entries get display
// metadata refreshed, and operator-owned state (credentials, enabled
// flags, edited service URLs) is never overwritten.
type Seeder struct {
	catalog      *catalog.RedisStore
	integrations *integrations.RedisStore
}

// New constructs a Seeder over the given stores.
func New(cat *catalog.RedisStore, ints *integrations.RedisStore) *Seeder {
	return &Seeder{catalog: cat, integrations: ints}
}

// Run seeds packages first, then integrations, so usedByPackages can be
// derived from the packages' declared requirements.
func (s *Seeder) Run(ctx context.Context) error {
	var m manifest
	if err := yaml.Unmarshal(builtinCatalog, &m); err != nil {
		return fmt.Errorf("parse builtin catalog: %w", err)
	}

	for _, pkg := range m.Packages {
		if err := s.seedPackage(ctx, pkg); err != nil {
			return fmt.Errorf("seed package %s: %w", pkg.PackageID, err)
		}
	}

	usedBy := usedByIndex(m.Packages)
	for _, integration := range m.Integrations {
		integration.UsedByPackages = usedBy[integration.IntegrationID]
		if err := s.seedIntegration(ctx, integration); err != nil {
			return fmt.Errorf("seed integration %s: %w", integration.IntegrationID, err)
		}
	}

	logging.Info(component, "builtin catalog seeded",
		"packages", len(m.Packages), "integrations", len(m.Integrations))
	return nil
}

func (s *Seeder) seedPackage(ctx context.Context, pkg *catalog.Package) error {
	err := s.catalog.Create(ctx, pkg)
	if err == nil {
		return nil
	}
	if !errors.Is(err, catalog.ErrConflict) {
		return err
	}

	existing, err := s.catalog.Get(ctx, pkg.PackageID)
	if err != nil {
		return err
	}
	// Refresh release metadata only. Name, icon, service address, status,
	// and timestamps survive so operator edits outlive redeploys.
	existing.Description = pkg.Description
	existing.Version = pkg.Version
	existing.Features = pkg.Features
	existing.Permissions = pkg.Permissions
	existing.RequiredIntegrations = pkg.RequiredIntegrations
	return s.catalog.Save(ctx, existing)
}

func (s *Seeder) seedIntegration(ctx context.Context, integration *integrations.Integration) error {
	created, err := s.integrations.CreateIfAbsent(ctx, integration)
	if err != nil {
		return err
	}
	if created {
		return nil
	}
	return s.integrations.RefreshMetadata(ctx, integration)
}

func usedByIndex(packages []*catalog.Package) map[string][]string {
	index := map[string][]string{}
	for _, pkg := range packages {
		for _, id := range pkg.RequiredIntegrations {
			index[id] = append(index[id], pkg.PackageID)
		}
	}
	for id := range index {
		sort.Strings(index[id])
	}
	return index
}
