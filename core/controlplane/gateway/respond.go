package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/apphub/apphub/core/platform/catalog"
	"github.com/apphub/apphub/core/platform/install"
	"github.com/apphub/apphub/core/platform/integrations"
)

// Every response uses the same envelope: {"success":true,"data":...} on
// success and {"success":false,"error":"..."} on failure.

func respondData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    data,
	})
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
	})
}

// respondDomainError maps store and lifecycle errors onto HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, install.ErrNotFound),
		errors.Is(err, integrations.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, catalog.ErrConflict),
		errors.Is(err, install.ErrConflict):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, catalog.ErrBuiltin),
		errors.Is(err, install.ErrInvalidStatus),
		errors.Is(err, integrations.ErrNoAPIKey):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errForbidden):
		respondError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, errAuthUnavailable):
		respondError(w, http.StatusBadGateway, "auth service unavailable")
	default:
		respondError(w, http.StatusUnauthorized, "unauthorized")
	}
}
