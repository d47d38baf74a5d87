package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/apphub/apphub/core/infra/logging"
)

func (s *server) handleListIntegrations(w http.ResponseWriter, r *http.Request) {
	views, err := s.integrations.List(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondData(w, http.StatusOK, views)
}

func (s *server) handleGetIntegration(w http.ResponseWriter, r *http.Request) {
	view, err := s.integrations.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondData(w, http.StatusOK, view)
}

type updateIntegrationRequest struct {
	Config  map[string]any `json:"config"`
	Enabled *bool          `json:"enabled"`
}

func (s *server) handleUpdateIntegration(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondAuthError(w, err)
		return
	}
	var req updateIntegrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	view, err := s.integrations.Update(r.Context(), r.PathValue("id"), req.Config, req.Enabled, actor(r))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	logging.Info(component, "integration updated", "integration", view.IntegrationID, "by", actor(r))
	respondData(w, http.StatusOK, view)
}

// handleTestIntegration runs the provider-specific live check. A failed
// check is a 200 with a failure verdict; only missing prerequisites are
// request errors.
func (s *server) handleTestIntegration(w http.ResponseWriter, r *http.Request) {
	if err := s.requireAdmin(r); err != nil {
		respondAuthError(w, err)
		return
	}
	result, err := s.verifier.Test(r.Context(), r.PathValue("id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondData(w, http.StatusOK, result)
}

// handleIntegrationKey is the sole unmasked credential path, reachable
// only from the internal surface with the shared service token.
func (s *server) handleIntegrationKey(w http.ResponseWriter, r *http.Request) {
	apiKey, cfg, err := s.integrations.KeyForConsumption(r.Context(), r.PathValue("id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{
		"api_key": apiKey,
		"config":  cfg,
	})
}
