package server

import (
	"context"
	"net/http"

	"github.com/dhowlett/go-login-server/identity"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyIdentity stores the authenticated identity record
const ContextKeyIdentity ContextKey = "identity"

// IdentityFromContext returns the identity attached by RequireSessionAuth.
func IdentityFromContext(ctx context.Context) (identity.Identity, bool) {
	ident, ok := ctx.Value(ContextKeyIdentity).(identity.Identity)
	return ident, ok
}

// RequireSessionAuth guards routes that need an authenticated session. The
// decision completes before the wrapped handler runs: a live session with an
// identity gets it attached to the request context, anything else redirects
// to the entry point. Reads never refresh the expiry.
func (s *Server) RequireSessionAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			id, ok := s.cookies.sessionID(r)
			if !ok {
				http.Redirect(w, r, RouteEntry, http.StatusFound)
				return
			}

			session, err := s.repo.Get(id)
			if err != nil || !session.Authenticated() {
				http.Redirect(w, r, RouteEntry, http.StatusFound)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyIdentity, *session.Identity)
			next(w, r.WithContext(ctx))
		}
	}
}
