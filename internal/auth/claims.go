package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims mirrors the claims the backend puts in its access tokens.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// ParseClaims reads the claims of an access token without verifying the
// signature. The backend is the only party holding the signing key; the
// client uses the claims for identity and expiry only.
func ParseClaims(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	return claims, nil
}

// TokenPair is what the auth service hands out on login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Session is the persisted login state.
type Session struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	UserID       string    `json:"userId"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func (s Session) IsAuthenticated() bool {
	return s.AccessToken != ""
}

// newSession decodes identity and expiry from the access token. A token
// without exp is assumed to live for lifetime from now.
func newSession(tokens TokenPair, lifetime time.Duration, now time.Time) (Session, error) {
	if tokens.AccessToken == "" {
		return Session{}, ErrInvalidToken
	}
	claims, err := ParseClaims(tokens.AccessToken)
	if err != nil {
		return Session{}, err
	}

	expiresAt := now.Add(lifetime)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		UserID:       claims.UserID,
		Email:        claims.Email,
		Role:         claims.Role,
		ExpiresAt:    expiresAt,
	}, nil
}
