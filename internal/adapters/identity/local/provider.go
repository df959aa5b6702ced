// Package local is an identity provider backed by the local account store.
// It issues HS256 access tokens carrying app_metadata and user_metadata, keeps
// the current session in durable key-value storage, and emails reset links.
package local

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"

	"gymdesk/internal/adapters/email"
	"gymdesk/internal/application/auth"
	"gymdesk/internal/domain/account"
	"gymdesk/internal/domain/apperr"
	"gymdesk/internal/domain/role"
)

// SessionKey is the durable key the current provider session lives under.
const SessionKey = "gymdesk.provider-session"

// Defaults for Config.
const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 30 * 24 * time.Hour
	DefaultResetTTL   = time.Hour
)

// AccountStore defines the account operations the provider needs.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (account.Account, error)
	GetByEmail(ctx context.Context, email string) (account.Account, error)
	Save(ctx context.Context, a account.Account) error
	Count(ctx context.Context) (int, error)
	SaveResetToken(ctx context.Context, t account.ResetToken) error
	GetResetToken(ctx context.Context, token string) (account.ResetToken, error)
	InvalidateResetTokens(ctx context.Context, accountID string) error
}

// KV is durable storage for the current session.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Config holds provider settings.
type Config struct {
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	ResetURL   string // page the reset link points at; the token is appended as ?token=
	From       string // sender address for reset emails
}

// Provider implements auth.Provider over local accounts.
type Provider struct {
	accounts AccountStore
	kv       KV
	sender   email.Sender
	cfg      Config
	tokens   tokens

	GenerateID func() string
	Now        func() time.Time

	mu        sync.Mutex
	current   *auth.ProviderSession
	loaded    bool
	listeners map[int]auth.Listener
	nextID    int
}

var _ auth.Provider = (*Provider)(nil)

// New creates a Provider.
// PRE: cfg.Secret is non-empty
func New(accounts AccountStore, kv KV, sender email.Sender, cfg Config) *Provider {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = DefaultResetTTL
	}
	p := &Provider{
		accounts:   accounts,
		kv:         kv,
		sender:     sender,
		cfg:        cfg,
		GenerateID: uuid.NewString,
		Now:        time.Now,
		listeners:  map[int]auth.Listener{},
	}
	p.tokens = tokens{
		secret:     cfg.Secret,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        func() time.Time { return p.Now() },
	}
	return p
}

var errInvalidCredentials = apperr.Unauthorized("Invalid login credentials")

// SignIn checks credentials and starts a session.
// POST: failed attempts are counted; the account locks after account.MaxFailedLogins
func (p *Provider) SignIn(ctx context.Context, emailAddr, password string) (*auth.ProviderSession, error) {
	acct, err := p.accounts.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.Info("auth_event", "event", "login_failed", "reason", "not_found")
			return nil, errInvalidCredentials
		}
		return nil, err
	}

	now := p.Now()
	if acct.IsLocked(now) {
		slog.Info("auth_event", "event", "login_blocked", "account_id", acct.ID, "reason", "locked")
		return nil, apperr.Unauthorized("Too many failed attempts. Try again later.")
	}
	if err := acct.CheckPassword(password); err != nil {
		acct.RecordFailedLogin(now)
		if err := p.accounts.Save(ctx, acct); err != nil {
			slog.Warn("auth_event", "event", "failed_login_not_saved", "error", err)
		}
		slog.Info("auth_event", "event", "login_failed", "account_id", acct.ID, "reason", "wrong_password", "failed_logins", acct.FailedLogins)
		return nil, errInvalidCredentials
	}

	acct.ResetFailedLogins()
	if err := p.accounts.Save(ctx, acct); err != nil {
		return nil, err
	}
	return p.start(ctx, acct, auth.EventSignedIn)
}

// SignUp creates an account and signs it in. The first account ever created
// is made an owner through app metadata.
func (p *Provider) SignUp(ctx context.Context, emailAddr, password string, userMetadata map[string]any) (*auth.ProviderSession, error) {
	emailAddr = strings.TrimSpace(emailAddr)
	if _, err := p.accounts.GetByEmail(ctx, emailAddr); err == nil {
		return nil, apperr.Conflict("User already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	acct := account.Account{
		ID:           p.GenerateID(),
		Email:        emailAddr,
		AppMetadata:  map[string]any{},
		UserMetadata: sanitizeUserMetadata(userMetadata),
		CreatedAt:    p.Now(),
	}
	if err := acct.Validate(); err != nil {
		return nil, apperr.Validation("email", err.Error())
	}
	if err := acct.SetPassword(password); err != nil {
		return nil, apperr.Validation("password", err.Error())
	}

	n, err := p.accounts.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		acct.AppMetadata[role.MetadataKey] = string(role.Owner)
	}

	if err := p.accounts.Save(ctx, acct); err != nil {
		return nil, err
	}
	slog.Info("auth_event", "event", "account_created", "account_id", acct.ID, "bootstrap_owner", n == 0)
	return p.start(ctx, acct, auth.EventSignedIn)
}

// sanitizeUserMetadata keeps user-supplied metadata from claiming the owner role.
func sanitizeUserMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	if s, ok := out[role.MetadataKey].(string); ok {
		if r, ok := role.Parse(s); ok && r == role.Owner {
			delete(out, role.MetadataKey)
		}
	}
	return out
}


// GetSession returns the current session, refreshing an expired access token
// when the refresh token is still good.
// POST: nil, nil when signed out
func (p *Provider) GetSession(ctx context.Context) (*auth.ProviderSession, error) {
	cur, err := p.load(ctx)
	if err != nil || cur == nil {
		return nil, err
	}
	if _, err := p.tokens.parseAccess(cur.AccessToken); err == nil {
		return cur, nil
	} else if !errors.Is(err, ErrTokenExpired) {
		slog.Warn("auth_event", "event", "session_discarded", "reason", "invalid_token")
		p.clear(ctx)
		return nil, nil
	}

	refreshed, err := p.RefreshSession(ctx)
	if err != nil {
		if apperr.IsUnauthorized(err) {
			p.clear(ctx)
			return nil, nil
		}
		return nil, err
	}
	return refreshed, nil
}

// GetUser re-reads the signed-in account so metadata changes are visible.
func (p *Provider) GetUser(ctx context.Context) (*auth.ProviderUser, error) {
	cur, err := p.requireSession(ctx)
	if err != nil {
		return nil, err
	}
	acct, err := p.accounts.GetByID(ctx, cur.User.ID)
	if err != nil {
		return nil, err
	}
	u := providerUser(acct)
	return &u, nil
}

// SignOut ends the session.
func (p *Provider) SignOut(ctx context.Context) error {
	p.clear(ctx)
	p.emit(auth.EventSignedOut, nil)
	return nil
}

// RequestPasswordReset emails a single-use reset link. Unknown addresses are
// accepted silently.
func (p *Provider) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	acct, err := p.accounts.GetByEmail(ctx, strings.TrimSpace(emailAddr))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.Info("auth_event", "event", "reset_unknown_email")
			return nil
		}
		return err
	}

	if err := p.accounts.InvalidateResetTokens(ctx, acct.ID); err != nil {
		return err
	}
	now := p.Now()
	tok := account.ResetToken{
		ID:        p.GenerateID(),
		AccountID: acct.ID,
		Token:     newResetToken(),
		ExpiresAt: now.Add(p.cfg.ResetTTL),
		CreatedAt: now,
	}
	if err := p.accounts.SaveResetToken(ctx, tok); err != nil {
		return err
	}

	req, err := p.resetEmail(acct.Email, tok.Token)
	if err != nil {
		return err
	}
	if _, err := p.sender.Send(ctx, req); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	slog.Info("auth_event", "event", "reset_requested", "account_id", acct.ID)
	return nil
}

// newResetToken returns 64 hex characters from two random UUIDs.
func newResetToken() string {
	a, b := uuid.New(), uuid.New()
	return strings.ReplaceAll(a.String()+b.String(), "-", "")
}

const resetTemplate = `# Reset your password

Someone asked to reset the password for your Gymdesk account.

[Choose a new password](%s)

This link expires in %s and can be used once. If this wasn't you, ignore this email.
`

// resetEmail renders the reset email from markdown.
func (p *Provider) resetEmail(to, token string) (email.SendRequest, error) {
	link := p.cfg.ResetURL + "?token=" + url.QueryEscape(token)
	md := fmt.Sprintf(resetTemplate, link, p.cfg.ResetTTL)
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return email.SendRequest{}, err
	}
	return email.SendRequest{
		To:       []string{to},
		From:     p.cfg.From,
		Subject:  "Reset your Gymdesk password",
		HTML:     buf.String(),
		Text:     md,
		Category: "password_reset",
	}, nil
}

var errBadResetLink = apperr.Unauthorized("This reset link is invalid or has expired")

// VerifyRecovery redeems a reset token for a recovery session.
// POST: the token is used up
func (p *Provider) VerifyRecovery(ctx context.Context, token string) (*auth.ProviderSession, error) {
	rt, err := p.accounts.GetResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errBadResetLink
		}
		return nil, err
	}
	if err := rt.Check(p.Now()); err != nil {
		return nil, apperr.Unauthorized(err.Error())
	}
	acct, err := p.accounts.GetByID(ctx, rt.AccountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errBadResetLink
		}
		return nil, err
	}
	rt.Invalidate()
	if err := p.accounts.SaveResetToken(ctx, rt); err != nil {
		return nil, err
	}
	return p.start(ctx, acct, auth.EventPasswordRecovery)
}

// UpdatePassword sets a new password on the signed-in account.
func (p *Provider) UpdatePassword(ctx context.Context, newPassword string) error {
	cur, err := p.requireSession(ctx)
	if err != nil {
		return err
	}
	acct, err := p.accounts.GetByID(ctx, cur.User.ID)
	if err != nil {
		return err
	}
	if err := acct.SetPassword(newPassword); err != nil {
		return apperr.Validation("password", err.Error())
	}
	acct.ResetFailedLogins()
	if err := p.accounts.Save(ctx, acct); err != nil {
		return err
	}
	if err := p.accounts.InvalidateResetTokens(ctx, acct.ID); err != nil {
		return err
	}
	slog.Info("auth_event", "event", "password_updated", "account_id", acct.ID)
	p.emit(auth.EventUserUpdated, cur)
	return nil
}

// RefreshSession reissues tokens from the refresh token with fresh metadata.
func (p *Provider) RefreshSession(ctx context.Context) (*auth.ProviderSession, error) {
	cur, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	if cur == nil || cur.RefreshToken == "" {
		return nil, apperr.Unauthorized("")
	}
	id, err := p.tokens.parseRefresh(cur.RefreshToken)
	if err != nil {
		return nil, apperr.Unauthorized("Your session has expired. Please sign in again.")
	}
	acct, err := p.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.Unauthorized("")
		}
		return nil, err
	}
	return p.start(ctx, acct, auth.EventTokenRefreshed)
}

// SetAppRole writes the role into an account's app metadata. Owner-only at the HTTP layer.
func (p *Provider) SetAppRole(ctx context.Context, accountID string, r role.Role) error {
	if !r.IsValid() {
		return apperr.Validation("role", "role must be member, trainer or owner")
	}
	acct, err := p.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.AppMetadata == nil {
		acct.AppMetadata = map[string]any{}
	}
	acct.AppMetadata[role.MetadataKey] = string(r)
	if err := p.accounts.Save(ctx, acct); err != nil {
		return err
	}
	slog.Info("auth_event", "event", "role_assigned", "account_id", accountID, "role", string(r))
	return nil
}

// Subscribe registers fn for auth events.
func (p *Provider) Subscribe(fn auth.Listener) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// start issues a session for acct, makes it current and announces it.
func (p *Provider) start(ctx context.Context, acct account.Account, e auth.Event) (*auth.ProviderSession, error) {
	ps, err := p.tokens.issue(providerUser(acct), p.GenerateID())
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.current = ps
	p.loaded = true
	p.mu.Unlock()

	if b, err := json.Marshal(ps); err != nil {
		slog.Error("provider_session_encode_failed", "error", err)
	} else if err := p.kv.Set(ctx, SessionKey, string(b)); err != nil {
		slog.Warn("provider_session_persist_failed", "error", err)
	}

	slog.Info("auth_event", "event", strings.ToLower(string(e)), "account_id", acct.ID)
	p.emit(e, ps)
	return ps, nil
}

// load returns the current session, reading durable storage on first use.
func (p *Provider) load(ctx context.Context) (*auth.ProviderSession, error) {
	p.mu.Lock()
	if p.loaded {
		cur := p.current
		p.mu.Unlock()
		return cur, nil
	}
	p.mu.Unlock()

	raw, ok, err := p.kv.Get(ctx, SessionKey)
	if err != nil {
		return nil, err
	}
	var cur *auth.ProviderSession
	if ok {
		var ps auth.ProviderSession
		if err := json.Unmarshal([]byte(raw), &ps); err != nil || ps.AccessToken == "" {
			slog.Info("provider_session_discarded", "reason", "corrupt")
			_ = p.kv.Delete(ctx, SessionKey)
		} else {
			cur = &ps
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loaded {
		p.current = cur
		p.loaded = true
	}
	return p.current, nil
}

func (p *Provider) requireSession(ctx context.Context) (*auth.ProviderSession, error) {
	cur, err := p.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, apperr.Unauthorized("")
	}
	return cur, nil
}

func (p *Provider) clear(ctx context.Context) {
	p.mu.Lock()
	p.current = nil
	p.loaded = true
	p.mu.Unlock()
	if err := p.kv.Delete(ctx, SessionKey); err != nil {
		slog.Warn("provider_session_delete_failed", "error", err)
	}
}

func (p *Provider) emit(e auth.Event, ps *auth.ProviderSession) {
	p.mu.Lock()
	fns := make([]auth.Listener, 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(e, ps)
	}
}

func providerUser(a account.Account) auth.ProviderUser {
	return auth.ProviderUser{
		ID:           a.ID,
		Email:        a.Email,
		AppMetadata:  a.AppMetadata,
		UserMetadata: a.UserMetadata,
	}
}
