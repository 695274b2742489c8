// Package principal holds the already-authenticated caller identity on the
// request context. Authentication itself — JWT/OIDC/API-key verification —
// is an external collaborator per spec §1/§8; this package only defines the
// extraction point a real auth middleware would populate, plus a
// development-only header-based stand-in so the module is runnable without
// a real IdP wired up (mirrors the teacher's HeaderResolver, which the
// teacher itself documents as "intended for development and testing").
package principal

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	TenantID uuid.UUID
	Subject  string
	IsAdmin  bool // elevated-role bit (§4.8); resolution mechanism out of scope
}

type contextKey string

const principalKey contextKey = "principal"

// NewContext stores a Principal in the context.
func NewContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext extracts the Principal from the context, or nil if absent.
func FromContext(ctx context.Context) *Principal {
	v, _ := ctx.Value(principalKey).(*Principal)
	return v
}

// DevHeaderMiddleware resolves a Principal from X-Tenant-ID / X-Admin
// headers. It exists purely so the API surface is exercisable end-to-end
// without a real identity provider; production deployments must replace it
// with JWT/API-key/session middleware that populates the same context key.
func DevHeaderMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantHeader := r.Header.Get("X-Tenant-ID")
		if tenantHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		tenantID, err := uuid.Parse(tenantHeader)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid X-Tenant-ID: %v", err), http.StatusBadRequest)
			return
		}

		p := &Principal{
			TenantID: tenantID,
			Subject:  r.Header.Get("X-Subject"),
			IsAdmin:  r.Header.Get("X-Admin") == "true",
		}

		ctx := NewContext(r.Context(), p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePrincipal rejects requests with no resolved Principal (403, §4.8).
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			http.Error(w, "forbidden: no authenticated principal", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests whose principal lacks the elevated-role bit (403, §4.8).
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := FromContext(r.Context())
		if p == nil || !p.IsAdmin {
			http.Error(w, "forbidden: admin role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
