package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TokenAuthProvider verifies bearer tokens against an external auth
// service. The verify endpoint receives the token and answers with the
// caller's identity and role.
type TokenAuthProvider struct {
	verifyURL string
	client    *http.Client
}

// NewTokenAuthProvider constructs a provider targeting verifyURL.
func NewTokenAuthProvider(verifyURL string) (*TokenAuthProvider, error) {
	verifyURL = strings.TrimSpace(verifyURL)
	if verifyURL == "" {
		return nil, fmt.Errorf("auth verify url required")
	}
	return &TokenAuthProvider{
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: 5 * time.Second},
	}, nil
}

type verifyResponse struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

func (p *TokenAuthProvider) AuthenticateHTTP(r *http.Request) (*AuthContext, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, errUnauthorized
	}

	body, _ := json.Marshal(map[string]string{"token": token})
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, p.verifyURL, bytes.NewReader(body))
	if err != nil {
		return nil, errAuthUnavailable
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errAuthUnavailable
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errUnauthorized
	default:
		return nil, errAuthUnavailable
	}

	var verified verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&verified); err != nil {
		return nil, errAuthUnavailable
	}
	if verified.UserID == "" {
		return nil, errUnauthorized
	}
	return &AuthContext{
		Token:  token,
		UserID: verified.UserID,
		Email:  verified.Email,
		Role:   verified.Role,
	}, nil
}

func (p *TokenAuthProvider) RequireRole(r *http.Request, roles ...string) error {
	auth := authFromRequest(r)
	if auth == nil {
		return errUnauthorized
	}
	if !roleAllows(auth.Role, roles...) {
		return errForbidden
	}
	return nil
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(raw) > len(prefix) && strings.EqualFold(raw[:len(prefix)], prefix) {
		return strings.TrimSpace(raw[len(prefix):])
	}
	return ""
}

// StaticAuthProvider resolves tokens from a fixed table. Single-node
// deployments and tests use it in place of an external auth service.
type StaticAuthProvider struct {
	tokens map[string]*AuthContext
}

// NewStaticAuthProvider builds a provider from a token table.
func NewStaticAuthProvider(tokens map[string]*AuthContext) *StaticAuthProvider {
	return &StaticAuthProvider{tokens: tokens}
}

func (p *StaticAuthProvider) AuthenticateHTTP(r *http.Request) (*AuthContext, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, errUnauthorized
	}
	auth, ok := p.tokens[token]
	if !ok {
		return nil, errUnauthorized
	}
	copied := *auth
	copied.Token = token
	return &copied, nil
}

func (p *StaticAuthProvider) RequireRole(r *http.Request, roles ...string) error {
	auth := authFromRequest(r)
	if auth == nil {
		return errUnauthorized
	}
	if !roleAllows(auth.Role, roles...) {
		return errForbidden
	}
	return nil
}
