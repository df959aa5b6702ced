// Package web is the local HTTP surface: JSON endpoints over the session,
// the registration wizard and the resource collections, gated by role.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"gymdesk/internal/adapters/http/middleware"
	"gymdesk/internal/adapters/http/perf"
	"gymdesk/internal/application/auth"
	"gymdesk/internal/application/guard"
	"gymdesk/internal/application/optimistic"
	"gymdesk/internal/application/resource"
	"gymdesk/internal/application/wizard"
	"gymdesk/internal/domain/booking"
	"gymdesk/internal/domain/class"
	"gymdesk/internal/domain/member"
	"gymdesk/internal/domain/payment"
	"gymdesk/internal/domain/program"
	"gymdesk/internal/domain/role"
	"gymdesk/internal/domain/session"
	"gymdesk/internal/domain/trainer"
	"gymdesk/internal/metrics"
)

// timeNow is a variable for testability.
var timeNow = time.Now

// SessionStore is the Session Store surface the handlers use.
type SessionStore interface {
	Current() session.Session
	Hydrated() bool
	StartAuth()
	AuthSuccess(user session.User, token string)
	AuthFailure(message string)
	Logout()
}

// Resolver is the Auth Resolver surface the handlers use.
type Resolver interface {
	SignIn(ctx context.Context, email, password string) session.Session
	SignUp(ctx context.Context, email, password string, userMetadata map[string]any) session.Session
	SignOut(ctx context.Context) session.Session
	CurrentUser(ctx context.Context) (session.User, error)
	RequestPasswordReset(ctx context.Context, email string) error
	VerifyRecovery(ctx context.Context, token string) session.Session
	UpdatePassword(ctx context.Context, newPassword string) error
}

var _ Resolver = (*auth.Resolver)(nil)

// RoleAssigner grants application roles. Only the local identity provider
// offers it; hosted projects manage roles in their own console.
type RoleAssigner interface {
	SetAppRole(ctx context.Context, accountID string, r role.Role) error
}

// Deps holds everything the HTTP surface needs.
type Deps struct {
	Sessions SessionStore
	Resolver Resolver
	Clients  *resource.Clients
	KV       wizard.KV
	Roles    RoleAssigner // nil when the provider cannot assign roles
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
	Perf     *perf.Collector
	Policy   guard.Policy
}

// Options tunes the middleware stack.
type Options struct {
	CSRFKey        []byte // 32 bytes
	SecureCookies  bool
	TrustedOrigins []string
	RateLimit      float64       // requests per second per IP; <= 0 disables
	SlowRequest    time.Duration // WARN threshold; zero uses the middleware default
}

// Server is the local HTTP surface.
type Server struct {
	deps       Deps
	workspaces map[string]optimistic.Workspace // owner working copies, by collection
	secrets    *wizard.Secrets                 // registration password, memory only
	limiter    *middleware.RateLimiter
	handler    http.Handler
}

// NewServer wires routes and middleware.
// PRE: every Deps field except Roles is set; opts.CSRFKey is 32 bytes
func NewServer(d Deps, opts Options) *Server {
	s := &Server{
		deps:       d,
		workspaces: ownerWorkspaces(d.Clients, d.Metrics),
		secrets:    &wizard.Secrets{},
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	stack := []func(http.Handler) http.Handler{
		middleware.SecurityHeaders,
		middleware.CSRF(opts.CSRFKey, opts.SecureCookies, opts.TrustedOrigins),
		middleware.Auth(d.Sessions),
	}
	if opts.RateLimit > 0 {
		s.limiter = middleware.NewRateLimiter(opts.RateLimit, int(opts.RateLimit*2)+1)
		stack = append(stack, middleware.RateLimit(s.limiter))
	}
	stack = append(stack, middleware.Timing(middleware.TimingConfig{
		Collector:     d.Perf,
		Statuses:      d.Metrics,
		SlowThreshold: opts.SlowRequest,
	}))

	// Timing -> RateLimit -> Auth -> CSRF -> SecurityHeaders -> Mux
	s.handler = middleware.Chain(mux, stack...)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops background work owned by the server. Owner mutations still
// in flight settle against the backend but no longer touch the working copies.
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	for _, ws := range s.workspaces {
		ws.Close()
	}
}

// ownerWorkspaces gives every collection one optimistic working copy, shared
// by the owner pages and seeded by each list request.
func ownerWorkspaces(c *resource.Clients, m *metrics.Collector) map[string]optimistic.Workspace {
	var opts []optimistic.Option
	if m != nil {
		opts = append(opts, optimistic.WithRecorder(m))
	}
	return map[string]optimistic.Workspace{
		resource.Members.Name:  optimistic.NewWorkspace[member.Member](c.Members, opts...),
		resource.Trainers.Name: optimistic.NewWorkspace[trainer.Trainer](c.Trainers, opts...),
		resource.Classes.Name:  optimistic.NewWorkspace[class.Class](c.Classes, opts...),
		resource.Bookings.Name: optimistic.NewWorkspace[booking.Booking](c.Bookings, opts...),
		resource.Programs.Name: optimistic.NewWorkspace[program.Program](c.Programs, opts...),
		resource.Payments.Name: optimistic.NewWorkspace[payment.Payment](c.Payments, opts...),
	}
}

// guarded wraps h so only the given roles reach it.
func (s *Server) guarded(h http.HandlerFunc, roles ...role.Role) http.Handler {
	return middleware.RequireRole(s.deps.Sessions, s.deps.Policy, roles...)(h)
}
