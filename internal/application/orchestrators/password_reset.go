package orchestrators

import (
	"context"
	"log/slog"
	"strings"

	"gymdesk/internal/domain/apperr"
	"gymdesk/internal/domain/registration"
	"gymdesk/internal/domain/session"
)

// ResolverForPasswordReset defines the resolver calls needed by the reset flow.
type ResolverForPasswordReset interface {
	RequestPasswordReset(ctx context.Context, email string) error
	VerifyRecovery(ctx context.Context, token string) session.Session
	UpdatePassword(ctx context.Context, newPassword string) error
}

// RequestPasswordResetInput carries input for RequestPasswordReset.
type RequestPasswordResetInput struct {
	Email string
}

// PasswordResetDeps holds dependencies for the reset orchestrators.
// Sessions is only used by ExecuteResetPassword.
type PasswordResetDeps struct {
	Resolver ResolverForPasswordReset
	Sessions SessionWriter
	Recorder AuthEventRecorder
}

// ExecuteRequestPasswordReset asks the provider to email a reset link.
// PRE: Email has a basic email shape
// POST: the provider was asked; unknown addresses are not revealed
func ExecuteRequestPasswordReset(ctx context.Context, input RequestPasswordResetInput, deps PasswordResetDeps) error {
	email := strings.TrimSpace(input.Email)
	if msg := registration.CheckEmail(email); msg != "" {
		return apperr.Validation(registration.FieldEmail, msg)
	}

	if err := deps.Resolver.RequestPasswordReset(ctx, email); err != nil {
		slog.Warn("auth_event", "event", "reset_request_failed", "error", err)
		return err
	}
	recordAuth(deps.Recorder, "reset_requested")
	slog.Info("auth_event", "event", "reset_requested")
	return nil
}

// UpdatePasswordInput carries input for UpdatePassword.
type UpdatePasswordInput struct {
	NewPassword string
	Confirm     string
}

func validateNewPassword(pw, confirm string) error {
	if len(pw) < registration.MinPasswordLength {
		return apperr.Validation(registration.FieldPassword, "Password must be at least 6 characters")
	}
	if confirm != "" && confirm != pw {
		return apperr.Validation("confirm", "Passwords do not match")
	}
	return nil
}

// ExecuteUpdatePassword sets a new password for the signed-in user.
// PRE: NewPassword has at least registration.MinPasswordLength characters
// POST: the provider holds the new password
func ExecuteUpdatePassword(ctx context.Context, input UpdatePasswordInput, deps PasswordResetDeps) error {
	if err := validateNewPassword(input.NewPassword, input.Confirm); err != nil {
		return err
	}
	if err := deps.Resolver.UpdatePassword(ctx, input.NewPassword); err != nil {
		return err
	}
	recordAuth(deps.Recorder, "password_updated")
	slog.Info("auth_event", "event", "password_updated")
	return nil
}

// ResetPasswordInput carries input for ResetPassword.
type ResetPasswordInput struct {
	Token       string
	NewPassword string
	Confirm     string
}

// ExecuteResetPassword redeems a reset token and sets the new password.
// PRE: Token is non-empty; NewPassword is long enough
// POST: the user is signed in with the new password
func ExecuteResetPassword(ctx context.Context, input ResetPasswordInput, deps PasswordResetDeps) (session.Session, error) {
	if strings.TrimSpace(input.Token) == "" {
		return session.Session{}, apperr.Validation("token", "Reset link is missing its token")
	}
	if err := validateNewPassword(input.NewPassword, input.Confirm); err != nil {
		return session.Session{}, err
	}

	s := deps.Resolver.VerifyRecovery(ctx, input.Token)
	if s.Status != session.StatusSucceeded || s.User == nil {
		slog.Info("auth_event", "event", "reset_token_rejected")
		return s, apperr.Unauthorized("This reset link is invalid or has expired")
	}
	if err := deps.Resolver.UpdatePassword(ctx, input.NewPassword); err != nil {
		return session.Session{}, err
	}
	if deps.Sessions != nil {
		deps.Sessions.AuthSuccess(*s.User, s.Token)
	}
	recordAuth(deps.Recorder, "password_reset")
	slog.Info("auth_event", "event", "password_reset", "user_id", s.User.ID)
	return s, nil
}
