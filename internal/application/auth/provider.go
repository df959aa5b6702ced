package auth

import "context"

// Event is an auth state change pushed by the identity provider.
type Event string

// Provider events.
const (
	EventSignedIn         Event = "SIGNED_IN"
	EventSignedOut        Event = "SIGNED_OUT"
	EventTokenRefreshed   Event = "TOKEN_REFRESHED"
	EventUserUpdated      Event = "USER_UPDATED"
	EventPasswordRecovery Event = "PASSWORD_RECOVERY"
)

// ProviderUser is the identity provider's view of a user.
type ProviderUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// ProviderSession is the identity provider's session shape.
type ProviderSession struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	ExpiresAt    int64        `json:"expires_at,omitempty"` // unix seconds
	User         ProviderUser `json:"user"`
}

// Listener receives provider auth events. s is nil after sign-out.
type Listener func(e Event, s *ProviderSession)

// Provider is the identity provider boundary.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*ProviderSession, error)
	// SignUp returns a nil session when the provider requires email confirmation first.
	SignUp(ctx context.Context, email, password string, userMetadata map[string]any) (*ProviderSession, error)
	// GetSession returns nil, nil when nobody is signed in.
	GetSession(ctx context.Context) (*ProviderSession, error)
	GetUser(ctx context.Context) (*ProviderUser, error)
	SignOut(ctx context.Context) error
	RequestPasswordReset(ctx context.Context, email string) error
	// VerifyRecovery exchanges a password-reset token for a recovery session.
	VerifyRecovery(ctx context.Context, token string) (*ProviderSession, error)
	UpdatePassword(ctx context.Context, newPassword string) error
	RefreshSession(ctx context.Context) (*ProviderSession, error)
	// Subscribe registers fn for auth events and returns its release function.
	Subscribe(fn Listener) (unsubscribe func())
}
