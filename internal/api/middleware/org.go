package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloo-solutions/supportkb/internal/api"
)

type contextKey string

const (
	OrgIDKey     contextKey = "org_id"
	OrgIDHeader             = "X-Org-ID"
)

// OrgScope copies the X-Org-ID header, set by the upstream gateway after
// authentication, into the request context.
func OrgScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := strings.TrimSpace(r.Header.Get(OrgIDHeader))
		if orgID == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), OrgIDKey, orgID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireOrg rejects requests without an organization scope.
func RequireOrg(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetOrgID(r.Context()) == "" {
			api.Error(w, http.StatusBadRequest, "missing "+OrgIDHeader+" header")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func GetOrgID(ctx context.Context) string {
	orgID, _ := ctx.Value(OrgIDKey).(string)
	return orgID
}

// WithOrgID returns a context scoped to orgID.
func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, OrgIDKey, orgID)
}
