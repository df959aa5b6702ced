// Package guard decides whether a session may see a role-scoped route.
//
// While the session store is still hydrating, a session with no resolvable
// role is let through by default so pages do not flicker to the login screen.
// Policy.BlockUntilHydrated turns that leniency into a loading gate. Once
// hydration has finished, a session without a user is sent to the login page.
package guard

import (
	"strings"

	"gymdesk/internal/domain/role"
	"gymdesk/internal/domain/session"
)

// State is the guard outcome.
type State string

// Guard states.
const (
	StateUnresolved        State = "unresolved"
	StateAllowed           State = "allowed"
	StateDeniedRedirecting State = "denied_redirecting"
)

// Policy tunes how unresolved sessions are treated.
type Policy struct {
	// BlockUntilHydrated shows a loading gate instead of rendering while
	// the role is unresolved.
	BlockUntilHydrated bool
}

// Decision is what the caller should do.
type Decision struct {
	State State
	// Render is true when protected content may be shown.
	Render bool
	// Redirect is the target for StateDeniedRedirecting.
	Redirect string
}

// Decide is a pure function of the session's role, the hydration state and
// the allowed set.
// PRE: allowed is nil for public routes
// POST: Render is true iff the route is public, the role is in allowed, or the
// store is still hydrating under the permissive policy
// INVARIANT: a hydrated session without a role never renders a guarded route
func Decide(s session.Session, hydrated bool, allowed role.Set, p Policy) Decision {
	if allowed == nil {
		return Decision{State: StateAllowed, Render: true}
	}
	r := s.Role()
	if r == role.Unknown {
		if hydrated {
			return Decision{State: StateDeniedRedirecting, Redirect: PathLogin}
		}
		return Decision{State: StateUnresolved, Render: !p.BlockUntilHydrated}
	}
	if allowed.Contains(r) {
		return Decision{State: StateAllowed, Render: true}
	}
	return Decision{State: StateDeniedRedirecting, Redirect: r.Home()}
}

// Route is one entry of the routing surface.
type Route struct {
	Prefix  string
	Allowed role.Set // nil for public routes
}

// Public routes.
const (
	PathHome           = "/"
	PathLogin          = "/login"
	PathRegister       = "/register"
	PathForgotPassword = "/forgot-password"
	PathResetPassword  = "/reset-password"
)

// Routes is the routing surface, most specific prefix first.
var Routes = []Route{
	{Prefix: "/owner", Allowed: role.NewSet(role.Owner)},
	{Prefix: "/trainer", Allowed: role.NewSet(role.Trainer)},
	{Prefix: "/member", Allowed: role.NewSet(role.Member)},
	{Prefix: PathLogin},
	{Prefix: PathRegister},
	{Prefix: PathForgotPassword},
	{Prefix: PathResetPassword},
	{Prefix: PathHome},
}

// AllowedFor returns the allowed-role set for path, or nil for public paths.
func AllowedFor(path string) role.Set {
	for _, rt := range Routes {
		if matches(path, rt.Prefix) {
			return rt.Allowed
		}
	}
	return nil
}

// matches reports whether path is prefix itself or nested under it.
func matches(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
