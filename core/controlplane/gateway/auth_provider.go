package gateway

import (
	"context"
	"errors"
	"net/http"
)

// AuthContext captures the verified identity behind a request.
type AuthContext struct {
	Token  string
	UserID string
	Email  string
	Role   string
}

type authContextKey struct{}

// Roles understood by the admin surface. platform_admin is a superset of
// admin.
const (
	RoleAdmin         = "admin"
	RolePlatformAdmin = "platform_admin"
	RoleViewer        = "viewer"
)

var (
	errUnauthorized    = errors.New("unauthorized")
	errForbidden       = errors.New("forbidden")
	errAuthUnavailable = errors.New("auth service unavailable")
)

// AuthProvider verifies request credentials and enforces roles.
type AuthProvider interface {
	AuthenticateHTTP(r *http.Request) (*AuthContext, error)
	RequireRole(r *http.Request, roles ...string) error
}

func authFromContext(ctx context.Context) *AuthContext {
	if ctx == nil {
		return nil
	}
	if raw := ctx.Value(authContextKey{}); raw != nil {
		if auth, ok := raw.(*AuthContext); ok {
			return auth
		}
	}
	return nil
}

func authFromRequest(r *http.Request) *AuthContext {
	if r == nil {
		return nil
	}
	return authFromContext(r.Context())
}

// actor returns the best identity label for audit fields.
func actor(r *http.Request) string {
	auth := authFromRequest(r)
	if auth == nil {
		return ""
	}
	if auth.Email != "" {
		return auth.Email
	}
	return auth.UserID
}

func roleAllows(role string, roles ...string) bool {
	for _, allowed := range roles {
		if role == allowed {
			return true
		}
	}
	return false
}
