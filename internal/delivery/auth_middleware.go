package delivery

import (
	"context"
	"net/http"

	"github.com/vonote/vonote/internal/ports"
)

type ctxKey int

const (
	ctxKeyOwnerID ctxKey = iota
	ctxKeyOrgID
)

// AuthMiddleware resolves the X-Auth token into a typed authorization
// context (owner id, optional org id) for downstream handlers.
func AuthMiddleware(auth ports.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Auth")
			if token == "" {
				http.Error(w, "missing token", http.StatusUnauthorized)
				return
			}

			ownerID, orgID, err := auth.ResolveToken(r.Context(), token)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyOwnerID, ownerID)
			ctx = context.WithValue(ctx, ctxKeyOrgID, orgID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OwnerFromContext returns the authenticated owner id, or 0 when absent.
func OwnerFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(ctxKeyOwnerID).(int64)
	return id
}

// OrgFromContext returns the authenticated org id when the owner has one.
func OrgFromContext(ctx context.Context) *int64 {
	id, _ := ctx.Value(ctxKeyOrgID).(*int64)
	return id
}
