package orchestrators

import (
	"context"
	"log/slog"
	"strings"

	"gymdesk/internal/domain/apperr"
	"gymdesk/internal/domain/session"
)

// SessionWriter is the Session Store entry points the auth orchestrators drive.
type SessionWriter interface {
	StartAuth()
	AuthSuccess(user session.User, token string)
	AuthFailure(message string)
	Logout()
}

// AuthEventRecorder counts auth events. Optional.
type AuthEventRecorder interface {
	RecordAuthEvent(event string)
}

func recordAuth(r AuthEventRecorder, event string) {
	if r != nil {
		r.RecordAuthEvent(event)
	}
}

// ResolverForSignIn defines the resolver call needed by SignIn.
type ResolverForSignIn interface {
	SignIn(ctx context.Context, email, password string) session.Session
}

// SignInInput carries input for the sign-in orchestrator.
type SignInInput struct {
	Email    string
	Password string
}

// SignInDeps holds dependencies for SignIn.
type SignInDeps struct {
	Resolver ResolverForSignIn
	Sessions SessionWriter
	Recorder AuthEventRecorder
}

// ExecuteSignIn authenticates and records the outcome in the Session Store.
// PRE: Email and Password are non-empty
// POST: the store holds Succeeded with the user, or Failed with the message
func ExecuteSignIn(ctx context.Context, input SignInInput, deps SignInDeps) (session.Session, error) {
	email := strings.TrimSpace(input.Email)
	if email == "" {
		return session.Session{}, apperr.Validation("email", "Email is required")
	}
	if input.Password == "" {
		return session.Session{}, apperr.Validation("password", "Password is required")
	}

	deps.Sessions.StartAuth()
	s := deps.Resolver.SignIn(ctx, email, input.Password)
	if s.Status != session.StatusSucceeded || s.User == nil {
		deps.Sessions.AuthFailure(s.Error)
		recordAuth(deps.Recorder, "sign_in_failed")
		slog.Info("auth_event", "event", "login_failed", "email", email)
		return s, apperr.Unauthorized(failureMessage(s))
	}

	deps.Sessions.AuthSuccess(*s.User, s.Token)
	recordAuth(deps.Recorder, "sign_in")
	slog.Info("auth_event", "event", "login_success", "user_id", s.User.ID, "role", string(s.User.Role))
	return s, nil
}

// ResolverForSignOut defines the resolver call needed by SignOut.
type ResolverForSignOut interface {
	SignOut(ctx context.Context) session.Session
}

// SignOutDeps holds dependencies for SignOut.
type SignOutDeps struct {
	Resolver ResolverForSignOut
	Sessions SessionWriter
	Recorder AuthEventRecorder
}

// ExecuteSignOut ends the provider session and clears the local one.
// POST: the store is Idle even when the provider call fails
func ExecuteSignOut(ctx context.Context, deps SignOutDeps) {
	s := deps.Resolver.SignOut(ctx)
	if s.Status == session.StatusFailed {
		slog.Warn("auth_event", "event", "logout_provider_failed", "error", s.Error)
	}
	deps.Sessions.Logout()
	recordAuth(deps.Recorder, "sign_out")
	slog.Info("auth_event", "event", "logout")
}

func failureMessage(s session.Session) string {
	if strings.TrimSpace(s.Error) == "" {
		return "invalid email or password"
	}
	return s.Error
}
