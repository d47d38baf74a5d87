package gateway

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/apphub/apphub/core/infra/logging"
	"github.com/apphub/apphub/core/infra/schema"
	"github.com/apphub/apphub/core/platform/catalog"
	"github.com/apphub/apphub/core/platform/install"
)

const maxPackagePayloadBytes = 256 << 10

// registerPackageSchema validates custom package registrations before
// decoding. Shape errors surface as 400s with the schema path attached.
const registerPackageSchema = `{
  "type": "object",
  "required": ["package_id", "name", "service_url", "port", "base_path"],
  "properties": {
    "package_id": {"type": "string", "minLength": 1, "pattern": "^[a-z0-9][a-z0-9-]*$"},
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "version": {"type": "string"},
    "category": {"type": "string"},
    "icon": {"type": "string"},
    "service_url": {"type": "string", "minLength": 1},
    "port": {"type": "integer", "minimum": 1, "maximum": 65535},
    "base_path": {"type": "string", "minLength": 1},
    "health_endpoint": {"type": "string"},
    "manifest_endpoint": {"type": "string"},
    "required_integrations": {"type": "array", "items": {"type": "string"}},
    "features": {"type": "array", "items": {"type": "string"}},
    "permissions": {"type": "array"}
  },
  "additionalProperties": false
}`

// packageListing is a Package enriched with org-wide installation
// presence. The flag is a read-side join, never stored.
type packageListing struct {
	*catalog.Package
	Installed bool `json:"installed"`
}

func (s *server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	filter := catalog.Filter{
		Category: r.URL.Query().Get("category"),
		Type:     catalog.PackageType(r.URL.Query().Get("type")),
		Search:   r.URL.Query().Get("search"),
	}
	packages, err := s.catalog.List(r.Context(), filter)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	installs, err := s.installs.Store().List(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	orgInstalled := make(map[string]bool, len(installs))
	for _, inst := range installs {
		if inst.TenantID == "" {
			orgInstalled[inst.PackageID] = true
		}
	}
	out := make([]packageListing, 0, len(packages))
	for _, pkg := range packages {
		out = append(out, packageListing{Package: pkg, Installed: orgInstalled[pkg.PackageID]})
	}
	respondData(w, http.StatusOK, out)
}

func (s *server) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	pkg, err := s.catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondData(w, http.StatusOK, pkg)
}

func (s *server) handleRegisterPackage(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondAuthError(w, err)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPackagePayloadBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if err := schema.Validate("register-package", []byte(registerPackageSchema), json.RawMessage(body)); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var pkg catalog.Package
	if err := json.Unmarshal(body, &pkg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}

	// Registered packages are always custom and installable; type and
	// status cannot be chosen by the caller.
	pkg.Type = catalog.TypeCustom
	pkg.Status = catalog.StatusAvailable

	if err := s.catalog.Create(r.Context(), &pkg); err != nil {
		respondDomainError(w, err)
		return
	}
	logging.Info(component, "package registered", "package", pkg.PackageID, "by", actor(r))
	respondData(w, http.StatusCreated, &pkg)
}

func (s *server) handleDeletePackage(w http.ResponseWriter, r *http.Request) {
	if err := s.requireRole(r, RolePlatformAdmin); err != nil {
		respondAuthError(w, err)
		return
	}
	packageID := r.PathValue("id")
	pkg, err := s.catalog.Get(r.Context(), packageID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if pkg.Type == catalog.TypeBuiltin {
		respondDomainError(w, catalog.ErrBuiltin)
		return
	}

	// Installations go first so a crash cannot leave orphans pointing at
	// a missing package.
	removed, err := s.installs.Store().DeleteByPackage(r.Context(), packageID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if err := s.catalog.Delete(r.Context(), packageID); err != nil {
		respondDomainError(w, err)
		return
	}
	logging.Info(component, "package deleted",
		"package", packageID, "installations_removed", removed, "by", actor(r))
	respondData(w, http.StatusOK, map[string]any{
		"package_id":            packageID,
		"installations_removed": removed,
	})
}

type installRequest struct {
	TenantID string         `json:"tenant_id"`
	Config   map[string]any `json:"config"`
}

func (s *server) handleInstallPackage(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondAuthError(w, err)
		return
	}
	var req installRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}
	inst, err := s.installs.Install(r.Context(), r.PathValue("id"), req.TenantID, req.Config, actor(r))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondData(w, http.StatusCreated, inst)
}

type uninstallRequest struct {
	TenantID string `json:"tenant_id"`
}

func (s *server) handleUninstallPackage(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondAuthError(w, err)
		return
	}
	var req uninstallRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}
	if err := s.installs.Uninstall(r.Context(), r.PathValue("id"), req.TenantID); err != nil {
		respondDomainError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"package_id": r.PathValue("id")})
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (s *server) handleSetPackageStatus(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondAuthError(w, err)
		return
	}
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	inst, err := s.installs.SetStatus(r.Context(), r.PathValue("id"), install.Status(req.Status))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondData(w, http.StatusOK, inst)
}

// handleHealthCheck re-probes an installed package. The verdict is always
// a 200: unhealthy is data about the package, not a failure of this
// endpoint.
func (s *server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	result, err := s.installs.CheckHealth(r.Context(), r.PathValue("id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondData(w, http.StatusOK, result)
}

func (s *server) handleListInstallations(w http.ResponseWriter, r *http.Request) {
	installs, err := s.installs.Store().List(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if tenant := r.URL.Query().Get("tenant_id"); tenant != "" {
		filtered := installs[:0]
		for _, inst := range installs {
			if inst.TenantID == tenant {
				filtered = append(filtered, inst)
			}
		}
		installs = filtered
	}
	respondData(w, http.StatusOK, installs)
}
