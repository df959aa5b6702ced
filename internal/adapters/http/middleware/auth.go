package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"gymdesk/internal/application/guard"
	"gymdesk/internal/domain/role"
	"gymdesk/internal/domain/session"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const sessionContextKey contextKey = "session"

// SessionSource is the read side of the Session Store.
type SessionSource interface {
	Current() session.Session
	Hydrated() bool
}

// Auth puts the current session into the request context.
// It does NOT block requests; use RequireRole for that.
func Auth(store SessionSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), sessionContextKey, store.Current())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates next on guard.Decide for the given roles.
// A denied role is redirected (303) to its home and a signed-out session to
// the login page. While the store is hydrating an unresolved session passes
// through under the permissive policy, or gets a loading response under
// BlockUntilHydrated.
func RequireRole(store SessionSource, policy guard.Policy, roles ...role.Role) func(http.Handler) http.Handler {
	allowed := role.NewSet(roles...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := store.Current()
			d := guard.Decide(s, store.Hydrated(), allowed, policy)
			switch {
			case d.Render:
				ctx := context.WithValue(r.Context(), sessionContextKey, s)
				next.ServeHTTP(w, r.WithContext(ctx))
			case d.State == guard.StateDeniedRedirecting:
				http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
			default:
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"state": string(guard.StateUnresolved)})
			}
		})
	}
}

// SessionFromContext returns the session captured for this request.
func SessionFromContext(ctx context.Context) (session.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(session.Session)
	return s, ok
}

// UserFromContext returns the signed-in user for this request, if any.
func UserFromContext(ctx context.Context) (session.User, bool) {
	s, ok := SessionFromContext(ctx)
	if !ok || s.User == nil {
		return session.User{}, false
	}
	return *s.User, true
}

// ContextWithSession returns a context with the given session set.
// Intended for use in tests.
func ContextWithSession(ctx context.Context, s session.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}
