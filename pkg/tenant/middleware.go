package tenant

import (
	"net/http"

	"github.com/blip0/control-plane/internal/httpserver"
	"github.com/blip0/control-plane/internal/principal"
)

// Middleware resolves the full Tenant row for the principal attached to the
// request context, rejecting requests against suspended or deleted tenants
// (§3: "status = suspended blocks all write operations but retains data").
// It must run after principal.DevHeaderMiddleware/RequirePrincipal so a
// Principal is already present.
func Middleware(store *Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := principal.FromContext(r.Context())
			if p == nil {
				http.Error(w, "forbidden: no authenticated principal", http.StatusForbidden)
				return
			}

			t, err := store.Get(r.Context(), p.TenantID)
			if err != nil {
				httpserver.RespondAPIError(w, err)
				return
			}

			if t.Status == StatusDeleted {
				http.Error(w, "forbidden: tenant has been deleted", http.StatusForbidden)
				return
			}

			if t.Status == StatusSuspended && isWriteMethod(r.Method) {
				http.Error(w, "forbidden: tenant is suspended", http.StatusForbidden)
				return
			}

			ctx := NewContext(r.Context(), &t)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isWriteMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
