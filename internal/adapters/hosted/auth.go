package hosted

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"gymdesk/internal/application/auth"
	"gymdesk/internal/domain/apperr"
)

// SessionKey is the durable key the hosted session lives under.
const SessionKey = "gymdesk.provider-session"

// refreshMargin renews tokens this long before they expire.
const refreshMargin = time.Minute

// KV is durable storage for the current session.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// AuthProvider implements auth.Provider against the hosted identity API.
type AuthProvider struct {
	client *Client
	kv     KV

	Now func() time.Time

	mu        sync.Mutex
	current   *auth.ProviderSession
	loaded    bool
	listeners map[int]auth.Listener
	nextID    int
}

var _ auth.Provider = (*AuthProvider)(nil)

// NewAuthProvider creates an AuthProvider.
func NewAuthProvider(client *Client, kv KV) *AuthProvider {
	return &AuthProvider{
		client:    client,
		kv:        kv,
		Now:       time.Now,
		listeners: map[int]auth.Listener{},
	}
}

// tokenResponse is the session shape the identity API returns.
type tokenResponse struct {
	AccessToken  string             `json:"access_token"`
	RefreshToken string             `json:"refresh_token"`
	ExpiresIn    int64              `json:"expires_in"`
	ExpiresAt    int64              `json:"expires_at"`
	User         *auth.ProviderUser `json:"user"`
}

func (p *AuthProvider) toSession(tr tokenResponse) (*auth.ProviderSession, error) {
	if tr.AccessToken == "" || tr.User == nil {
		return nil, fmt.Errorf("identity API returned no session")
	}
	exp := tr.ExpiresAt
	if exp == 0 && tr.ExpiresIn > 0 {
		exp = p.Now().Add(time.Duration(tr.ExpiresIn) * time.Second).Unix()
	}
	return &auth.ProviderSession{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    exp,
		User:         *tr.User,
	}, nil
}

func (p *AuthProvider) grant(ctx context.Context, grantType string, body any) (*auth.ProviderSession, error) {
	resp, err := p.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {grantType}},
		body:   body,
	})
	if err != nil {
		return nil, err
	}
	var tr tokenResponse
	if err := json.Unmarshal(resp.body, &tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	return p.toSession(tr)
}

// SignIn uses the password grant.
func (p *AuthProvider) SignIn(ctx context.Context, email, password string) (*auth.ProviderSession, error) {
	ps, err := p.grant(ctx, "password", map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	p.set(ctx, ps)
	p.emit(auth.EventSignedIn, ps)
	return ps, nil
}

// SignUp registers a user. When the project requires email confirmation the
// API answers with a bare user and SignUp returns nil.
func (p *AuthProvider) SignUp(ctx context.Context, email, password string, userMetadata map[string]any) (*auth.ProviderSession, error) {
	resp, err := p.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body:   map[string]any{"email": email, "password": password, "data": userMetadata},
	})
	if err != nil {
		return nil, err
	}
	var tr tokenResponse
	if err := json.Unmarshal(resp.body, &tr); err != nil {
		return nil, fmt.Errorf("decode signup response: %w", err)
	}
	if tr.AccessToken == "" {
		slog.Info("auth_event", "event", "sign_up_pending_confirmation")
		return nil, nil
	}
	ps, err := p.toSession(tr)
	if err != nil {
		return nil, err
	}
	p.set(ctx, ps)
	p.emit(auth.EventSignedIn, ps)
	return ps, nil
}

// GetSession returns the stored session, refreshing it when close to expiry.
// POST: nil, nil when signed out or when the refresh token is rejected
func (p *AuthProvider) GetSession(ctx context.Context) (*auth.ProviderSession, error) {
	cur, err := p.load(ctx)
	if err != nil || cur == nil {
		return nil, err
	}
	if cur.ExpiresAt == 0 || p.Now().Add(refreshMargin).Unix() < cur.ExpiresAt {
		return cur, nil
	}
	ps, err := p.RefreshSession(ctx)
	if err != nil {
		if rejected(err) {
			p.clear(ctx)
			return nil, nil
		}
		return nil, err
	}
	return ps, nil
}

// rejected reports whether the identity API refused a refresh token.
func rejected(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 400 && se.Code < 500 && se.Code != http.StatusTooManyRequests
	}
	return apperr.IsUnauthorized(err)
}

// GetUser fetches the signed-in user.
func (p *AuthProvider) GetUser(ctx context.Context) (*auth.ProviderUser, error) {
	token, err := p.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, apperr.Unauthorized("")
	}
	resp, err := p.client.do(ctx, request{method: http.MethodGet, path: "/auth/v1/user", token: token})
	if err != nil {
		return nil, err
	}
	var u auth.ProviderUser
	if err := json.Unmarshal(resp.body, &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

// SignOut revokes the session remotely and forgets it locally.
// The local session is cleared even when the remote call fails.
func (p *AuthProvider) SignOut(ctx context.Context) error {
	cur, err := p.load(ctx)
	var remoteErr error
	if err == nil && cur != nil {
		_, remoteErr = p.client.do(ctx, request{method: http.MethodPost, path: "/auth/v1/logout", token: cur.AccessToken})
	}
	p.clear(ctx)
	p.emit(auth.EventSignedOut, nil)
	return remoteErr
}

// RequestPasswordReset asks the identity API to send a recovery email.
func (p *AuthProvider) RequestPasswordReset(ctx context.Context, email string) error {
	_, err := p.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/recover",
		body:   map[string]string{"email": email},
	})
	return err
}

// VerifyRecovery exchanges the emailed token hash for a session.
func (p *AuthProvider) VerifyRecovery(ctx context.Context, token string) (*auth.ProviderSession, error) {
	resp, err := p.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/verify",
		body:   map[string]string{"type": "recovery", "token_hash": token},
	})
	if err != nil {
		return nil, err
	}
	var tr tokenResponse
	if err := json.Unmarshal(resp.body, &tr); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	ps, err := p.toSession(tr)
	if err != nil {
		return nil, err
	}
	p.set(ctx, ps)
	p.emit(auth.EventPasswordRecovery, ps)
	return ps, nil
}

// UpdatePassword sets the signed-in user's password.
func (p *AuthProvider) UpdatePassword(ctx context.Context, newPassword string) error {
	token, err := p.AccessToken(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return apperr.Unauthorized("")
	}
	_, err = p.client.do(ctx, request{
		method: http.MethodPut,
		path:   "/auth/v1/user",
		token:  token,
		body:   map[string]string{"password": newPassword},
	})
	if err != nil {
		return err
	}
	cur, _ := p.load(ctx)
	p.emit(auth.EventUserUpdated, cur)
	return nil
}

// RefreshSession uses the refresh token grant.
func (p *AuthProvider) RefreshSession(ctx context.Context) (*auth.ProviderSession, error) {
	cur, err := p.load(ctx)
	if err != nil {
		return nil, err
	}
	if cur == nil || cur.RefreshToken == "" {
		return nil, apperr.Unauthorized("")
	}
	ps, err := p.grant(ctx, "refresh_token", map[string]string{"refresh_token": cur.RefreshToken})
	if err != nil {
		return nil, err
	}
	p.set(ctx, ps)
	p.emit(auth.EventTokenRefreshed, ps)
	return ps, nil
}

// AccessToken returns the current access token, or "" when signed out.
// The resource backend uses it so row-level rules see the signed-in user.
func (p *AuthProvider) AccessToken(ctx context.Context) (string, error) {
	ps, err := p.GetSession(ctx)
	if err != nil || ps == nil {
		return "", err
	}
	return ps.AccessToken, nil
}

// Subscribe registers fn for auth events.
func (p *AuthProvider) Subscribe(fn auth.Listener) (unsubscribe func()) {
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

func (p *AuthProvider) set(ctx context.Context, ps *auth.ProviderSession) {
	p.mu.Lock()
	p.current = ps
	p.loaded = true
	p.mu.Unlock()
	b, err := json.Marshal(ps)
	if err != nil {
		slog.Error("provider_session_encode_failed", "error", err)
		return
	}
	if err := p.kv.Set(ctx, SessionKey, string(b)); err != nil {
		slog.Warn("provider_session_persist_failed", "error", err)
	}
}

func (p *AuthProvider) load(ctx context.Context) (*auth.ProviderSession, error) {
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

func (p *AuthProvider) clear(ctx context.Context) {
	p.mu.Lock()
	p.current = nil
	p.loaded = true
	p.mu.Unlock()
	if err := p.kv.Delete(ctx, SessionKey); err != nil {
		slog.Warn("provider_session_delete_failed", "error", err)
	}
}

func (p *AuthProvider) emit(e auth.Event, ps *auth.ProviderSession) {
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
