// Package auth normalises identity provider sessions into the internal
// Session shape and turns provider failures into Failed sessions.
package auth

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"gymdesk/internal/domain/apperr"
	"gymdesk/internal/domain/role"
	"gymdesk/internal/domain/session"
)

// Name keys read from user metadata, in priority order.
const (
	metaFullName  = "full_name"
	metaName      = "name"
	metaFirstName = "first_name"
	metaLastName  = "last_name"
)

// ResolveSession normalises a provider session.
// PRE: none
// POST: nil yields an Idle session; otherwise a Succeeded session whose user
// always carries a valid role
func ResolveSession(ps *ProviderSession) session.Session {
	if ps == nil {
		return session.Empty()
	}
	u := ResolveUser(ps.User)
	return session.Session{
		Token:  ps.AccessToken,
		User:   &u,
		Status: session.StatusSucceeded,
	}
}

// ResolveUser normalises a provider user into {id, name, email, role}.
// The role follows app metadata, then user metadata, then member.
func ResolveUser(pu ProviderUser) session.User {
	return session.User{
		ID:    pu.ID,
		Name:  displayName(pu),
		Email: pu.Email,
		Role:  role.Resolve(pu.AppMetadata, pu.UserMetadata),
	}
}

func displayName(pu ProviderUser) string {
	md := pu.UserMetadata
	for _, key := range []string{metaFullName, metaName} {
		if v, ok := md[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	first, _ := md[metaFirstName].(string)
	last, _ := md[metaLastName].(string)
	if full := strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last)); full != "" {
		return full
	}
	local, _, _ := strings.Cut(pu.Email, "@")
	return local
}

// failed converts a provider error into a Failed session.
func failed(op string, err error) session.Session {
	classified := apperr.Wrap(err)
	slog.Warn("auth_event", "event", op+"_failed", "error", classified.Error())
	return session.Session{Status: session.StatusFailed, Error: classified.Error()}
}

// Resolver is the Auth Resolver. Every method returns a Session or a taxonomy
// error; raw provider errors never pass through.
type Resolver struct {
	provider Provider
}

// NewResolver creates a resolver over provider.
func NewResolver(provider Provider) *Resolver {
	return &Resolver{provider: provider}
}

// Current resolves the provider's current session.
// POST: Idle when signed out, Failed when the provider errs
func (r *Resolver) Current(ctx context.Context) session.Session {
	ps, err := r.provider.GetSession(ctx)
	if err != nil {
		return failed("get_session", err)
	}
	return ResolveSession(ps)
}

// SignIn signs in with credentials.
func (r *Resolver) SignIn(ctx context.Context, email, password string) session.Session {
	ps, err := r.provider.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return failed("sign_in", err)
	}
	if ps == nil {
		return failed("sign_in", apperr.Unauthorized("sign-in returned no session"))
	}
	slog.Info("auth_event", "event", "sign_in", "user_id", ps.User.ID)
	return ResolveSession(ps)
}

// SignUp creates an account. A provider that requires email confirmation
// yields an Idle session.
func (r *Resolver) SignUp(ctx context.Context, email, password string, userMetadata map[string]any) session.Session {
	ps, err := r.provider.SignUp(ctx, strings.TrimSpace(email), password, userMetadata)
	if err != nil {
		return failed("sign_up", err)
	}
	slog.Info("auth_event", "event", "sign_up", "confirmed", ps != nil)
	return ResolveSession(ps)
}

// SignOut ends the provider session.
// POST: Idle on success, Failed otherwise
func (r *Resolver) SignOut(ctx context.Context) session.Session {
	if err := r.provider.SignOut(ctx); err != nil {
		return failed("sign_out", err)
	}
	slog.Info("auth_event", "event", "sign_out")
	return session.Empty()
}

// Refresh exchanges the refresh token for a new session.
func (r *Resolver) Refresh(ctx context.Context) session.Session {
	ps, err := r.provider.RefreshSession(ctx)
	if err != nil {
		return failed("refresh", err)
	}
	return ResolveSession(ps)
}

// CurrentUser re-reads the user from the provider.
func (r *Resolver) CurrentUser(ctx context.Context) (session.User, error) {
	pu, err := r.provider.GetUser(ctx)
	if err != nil {
		return session.User{}, apperr.Wrap(err)
	}
	if pu == nil {
		return session.User{}, apperr.Unauthorized("")
	}
	return ResolveUser(*pu), nil
}

// RequestPasswordReset asks the provider to email a reset link.
func (r *Resolver) RequestPasswordReset(ctx context.Context, email string) error {
	if err := r.provider.RequestPasswordReset(ctx, strings.TrimSpace(email)); err != nil {
		return apperr.Wrap(err)
	}
	return nil
}

// VerifyRecovery exchanges a reset token for a recovery session.
func (r *Resolver) VerifyRecovery(ctx context.Context, token string) session.Session {
	ps, err := r.provider.VerifyRecovery(ctx, token)
	if err != nil {
		return failed("verify_recovery", err)
	}
	return ResolveSession(ps)
}

// UpdatePassword sets a new password for the signed-in user.
func (r *Resolver) UpdatePassword(ctx context.Context, newPassword string) error {
	if err := r.provider.UpdatePassword(ctx, newPassword); err != nil {
		return apperr.Wrap(err)
	}
	return nil
}

// Callback receives resolved sessions for provider events.
type Callback func(e Event, s session.Session)

// OnAuthStateChange registers cb for provider events. The caller owns the
// returned Subscription and must Close it on teardown.
func (r *Resolver) OnAuthStateChange(cb Callback) *Subscription {
	unsubscribe := r.provider.Subscribe(func(e Event, ps *ProviderSession) {
		if e == EventSignedOut {
			ps = nil
		}
		cb(e, ResolveSession(ps))
	})
	return &Subscription{release: unsubscribe}
}

// Subscription is a held provider listener.
type Subscription struct {
	once    sync.Once
	release func()
}

// Close releases the listener. Safe to call more than once.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}
