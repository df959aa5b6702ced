package web

import (
	"log/slog"
	"net/http"

	"gymdesk/internal/application/guard"
	"gymdesk/internal/application/orchestrators"
	"gymdesk/internal/domain/apperr"
)

// handleSession handles GET /session
// With ?refresh the signed-in user is re-read from the identity provider, so
// a role granted or revoked since sign-in applies without signing in again.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	cur := s.deps.Sessions.Current()
	if r.URL.Query().Has("refresh") && cur.User != nil {
		u, err := s.deps.Resolver.CurrentUser(r.Context())
		switch {
		case apperr.IsUnauthorized(err):
			slog.Info("auth_event", "event", "session_expired", "user_id", cur.User.ID)
			s.deps.Sessions.Logout()
		case err != nil:
			writeError(w, err)
			return
		default:
			s.deps.Sessions.AuthSuccess(u, cur.Token)
		}
	}
	writeJSON(w, http.StatusOK, viewSession(s.deps.Sessions.Current(), s.deps.Sessions.Hydrated()))
}

// handleLogin handles POST /login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readBody(r, &in, map[string]func(string){
		"email":    func(v string) { in.Email = v },
		"password": func(v string) { in.Password = v },
	}); err != nil {
		writeError(w, err)
		return
	}

	sess, err := orchestrators.ExecuteSignIn(r.Context(), orchestrators.SignInInput{
		Email:    in.Email,
		Password: in.Password,
	}, orchestrators.SignInDeps{
		Resolver: s.deps.Resolver,
		Sessions: s.deps.Sessions,
		Recorder: s.deps.Metrics,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if isFormRequest(r) {
		http.Redirect(w, r, sess.Role().Home(), http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(sess, true))
}

// handleLogout handles POST /logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	orchestrators.ExecuteSignOut(r.Context(), orchestrators.SignOutDeps{
		Resolver: s.deps.Resolver,
		Sessions: s.deps.Sessions,
		Recorder: s.deps.Metrics,
	})
	if isFormRequest(r) {
		http.Redirect(w, r, guard.PathLogin, http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) passwordResetDeps() orchestrators.PasswordResetDeps {
	return orchestrators.PasswordResetDeps{
		Resolver: s.deps.Resolver,
		Sessions: s.deps.Sessions,
		Recorder: s.deps.Metrics,
	}
}

// handleForgotPassword handles POST /forgot-password
// The reply is the same whether or not the address has an account.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := readBody(r, &in, map[string]func(string){
		"email": func(v string) { in.Email = v },
	}); err != nil {
		writeError(w, err)
		return
	}

	err := orchestrators.ExecuteRequestPasswordReset(r.Context(), orchestrators.RequestPasswordResetInput{Email: in.Email}, s.passwordResetDeps())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "If an account exists for that email, a reset link is on its way.",
	})
}

// handleResetPassword handles POST /reset-password
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token    string `json:"token"`
		Password string `json:"password"`
		Confirm  string `json:"confirm"`
	}
	if err := readBody(r, &in, map[string]func(string){
		"token":    func(v string) { in.Token = v },
		"password": func(v string) { in.Password = v },
		"confirm":  func(v string) { in.Confirm = v },
	}); err != nil {
		writeError(w, err)
		return
	}

	sess, err := orchestrators.ExecuteResetPassword(r.Context(), orchestrators.ResetPasswordInput{
		Token:       in.Token,
		NewPassword: in.Password,
		Confirm:     in.Confirm,
	}, s.passwordResetDeps())
	if err != nil {
		writeError(w, err)
		return
	}
	if isFormRequest(r) {
		http.Redirect(w, r, sess.Role().Home(), http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, viewSession(sess, true))
}

// handleChangePassword handles POST /account/password
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if _, err := currentUser(r); err != nil {
		writeError(w, err)
		return
	}
	var in struct {
		Password string `json:"password"`
		Confirm  string `json:"confirm"`
	}
	if err := readBody(r, &in, map[string]func(string){
		"password": func(v string) { in.Password = v },
		"confirm":  func(v string) { in.Confirm = v },
	}); err != nil {
		writeError(w, err)
		return
	}

	err := orchestrators.ExecuteUpdatePassword(r.Context(), orchestrators.UpdatePasswordInput{
		NewPassword: in.Password,
		Confirm:     in.Confirm,
	}, s.passwordResetDeps())
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
