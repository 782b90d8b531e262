package http

import (
	"context"
	"net/http"
	"strings"

	"daybook/internal/core"
	"daybook/internal/log"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	Username string
	Page     string
	Role     core.Role
}

// IdentityFromContext returns the caller identity set by requireAuth.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(identityKey).(Identity)
	return ident, ok
}

// requireAuth verifies the page credential carried on the request. The
// password travels as a bearer token, the page and username as headers.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		password, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing credentials")
			return
		}

		page := r.Header.Get("X-Page")
		if page == "" {
			page = core.PageReport
		}

		role, err := s.auth.Verify(r.Context(), page, password)
		if err != nil {
			s.logger.WarnContext(r.Context(), "Authentication failed",
				log.FieldPage, page,
				log.FieldClientIP, r.RemoteAddr)
			writeServiceError(w, err)
			return
		}

		ident := Identity{
			Username: strings.TrimSpace(r.Header.Get("X-Username")),
			Page:     page,
			Role:     role,
		}
		ctx := context.WithValue(r.Context(), identityKey, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin gates a route on the admin role. Role is the only axis
// checked; no username is special.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := IdentityFromContext(r.Context())
		if !ok || ident.Role != core.RoleAdmin {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
