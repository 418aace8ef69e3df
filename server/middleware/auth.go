package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/godamri/helix-audit/http/response"
)

// AuthPayload decouples the strategy from the HTTP request shape.
type AuthPayload struct {
	Headers    map[string]string
	RemoteAddr string
	Method     string
	Path       string
}

// AuthStrategy authenticates a request and hydrates the context with
// the actor identity on success.
type AuthStrategy interface {
	Authenticate(ctx context.Context, payload AuthPayload) (context.Context, error)
}

type AuthMiddleware struct {
	strategy AuthStrategy
}

func NewAuthMiddleware(strategy AuthStrategy) *AuthMiddleware {
	return &AuthMiddleware{
		strategy: strategy,
	}
}

// HTTPMiddleware adapts the HTTP request to an AuthPayload and runs
// the configured strategy. Failures never leak strategy internals.
func (m *AuthMiddleware) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := make(map[string]string)
		for k, v := range r.Header {
			if len(v) > 0 {
				headers[http.CanonicalHeaderKey(k)] = v[0]
			}
		}

		payload := AuthPayload{
			Headers:    headers,
			RemoteAddr: r.RemoteAddr,
			Method:     r.Method,
			Path:       r.URL.Path,
		}

		ctx, err := m.strategy.Authenticate(r.Context(), payload)
		if err != nil {
			response.ErrorJSON(w, r, http.StatusUnauthorized, response.ErrInvalidToken, "authentication failed")
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Helper to get Header value case-insensitively from the map
func (p *AuthPayload) GetHeader(key string) string {
	// Fast path
	if v, ok := p.Headers[key]; ok {
		return v
	}
	if v, ok := p.Headers[http.CanonicalHeaderKey(key)]; ok {
		return v
	}
	// Slow path (iterate) - rare if canonicalized correctly
	key = strings.ToLower(key)
	for k, v := range p.Headers {
		if strings.ToLower(k) == key {
			return v
		}
	}
	return ""
}
