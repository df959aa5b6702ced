package local

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gymdesk/internal/application/auth"
)

// Token errors.
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("token is invalid")
)

const issuer = "gymdesk"

// Audiences keep access and refresh tokens from standing in for each other.
const (
	audienceAccess  = "authenticated"
	audienceRefresh = "refresh"
)

// accessClaims carries the provider user in the access token.
type accessClaims struct {
	Email        string         `json:"email"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

// refreshClaims identifies the account a refresh token belongs to.
type refreshClaims struct {
	TokenID string `json:"token_id"`
	jwt.RegisteredClaims
}

// tokens signs and verifies HS256 tokens.
type tokens struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// issue builds a full provider session for u.
// POST: AccessToken and RefreshToken are signed; ExpiresAt is the access expiry
func (t tokens) issue(u auth.ProviderUser, tokenID string) (*auth.ProviderSession, error) {
	now := t.now()
	exp := now.Add(t.accessTTL)

	access := accessClaims{
		Email:        u.Email,
		AppMetadata:  u.AppMetadata,
		UserMetadata: u.UserMetadata,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   u.ID,
			Audience:  jwt.ClaimStrings{audienceAccess},
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString(t.secret)
	if err != nil {
		return nil, err
	}

	refresh := refreshClaims{
		TokenID: tokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.refreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   u.ID,
			Audience:  jwt.ClaimStrings{audienceRefresh},
		},
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString(t.secret)
	if err != nil {
		return nil, err
	}

	return &auth.ProviderSession{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    exp.Unix(),
		User:         u,
	}, nil
}

func (t tokens) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrTokenInvalid
	}
	return t.secret, nil
}

func (t tokens) parserOptions(audience string) []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	}
}

// parseAccess verifies an access token and returns the user it carries.
func (t tokens) parseAccess(s string) (auth.ProviderUser, error) {
	var c accessClaims
	tok, err := jwt.ParseWithClaims(s, &c, t.keyFunc, t.parserOptions(audienceAccess)...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return auth.ProviderUser{}, ErrTokenExpired
		}
		return auth.ProviderUser{}, ErrTokenInvalid
	}
	if !tok.Valid || c.Subject == "" {
		return auth.ProviderUser{}, ErrTokenInvalid
	}
	return auth.ProviderUser{
		ID:           c.Subject,
		Email:        c.Email,
		AppMetadata:  c.AppMetadata,
		UserMetadata: c.UserMetadata,
	}, nil
}

// parseRefresh verifies a refresh token and returns the account id.
func (t tokens) parseRefresh(s string) (string, error) {
	var c refreshClaims
	tok, err := jwt.ParseWithClaims(s, &c, t.keyFunc, t.parserOptions(audienceRefresh)...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}
	if !tok.Valid || c.Subject == "" || c.TokenID == "" {
		return "", ErrTokenInvalid
	}
	return c.Subject, nil
}
