package web

import (
	"net/http"

	"gymdesk/internal/domain/role"
	"gymdesk/internal/metrics"
)

// registerRoutes maps every path to its handler. Role-scoped prefixes are
// wrapped in the guard; the rest are public.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Public
	mux.HandleFunc("GET /{$}", s.handleLanding)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /register", s.handleRegisterView)
	mux.HandleFunc("POST /register", s.handleRegisterAction)
	mux.HandleFunc("POST /forgot-password", s.handleForgotPassword)
	mux.HandleFunc("POST /reset-password", s.handleResetPassword)
	mux.HandleFunc("GET /session", s.handleSession)
	mux.Handle("GET /metrics", metrics.Handler(s.deps.Gatherer))

	// Any signed-in role
	mux.Handle("POST /account/password", s.guarded(s.handleChangePassword, role.Owner, role.Trainer, role.Member))

	// Owner
	mux.Handle("GET /owner", s.guarded(s.handleOwnerDashboard, role.Owner))
	mux.Handle("GET /owner/perf", s.guarded(s.handleOwnerPerf, role.Owner))
	mux.Handle("POST /owner/accounts/{id}/role", s.guarded(s.handleOwnerSetRole, role.Owner))
	mux.Handle("GET /owner/{collection}", s.guarded(s.handleCollectionList, role.Owner))
	mux.Handle("POST /owner/{collection}", s.guarded(s.handleCollectionCreate, role.Owner))
	mux.Handle("GET /owner/{collection}/{id}", s.guarded(s.handleCollectionGet, role.Owner))
	mux.Handle("PATCH /owner/{collection}/{id}", s.guarded(s.handleCollectionUpdate, role.Owner))
	mux.Handle("DELETE /owner/{collection}/{id}", s.guarded(s.handleCollectionDelete, role.Owner))

	// Trainer
	mux.Handle("GET /trainer", s.guarded(s.handleTrainerHome, role.Trainer))
	mux.Handle("GET /trainer/classes", s.guarded(s.handleTrainerClasses, role.Trainer))
	mux.Handle("POST /trainer/classes", s.guarded(s.handleTrainerCreateClass, role.Trainer))

	// Member
	mux.Handle("GET /member", s.guarded(s.handleMemberHome, role.Member))
	mux.Handle("GET /member/classes", s.guarded(s.handleMemberClasses, role.Member))
	mux.Handle("POST /member/enroll", s.guarded(s.handleMemberEnroll, role.Member))
	mux.Handle("POST /member/bookings/{id}/cancel", s.guarded(s.handleMemberCancel, role.Member))
}
