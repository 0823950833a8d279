// Package session is the client's auth store: the authenticated flag, the
// token pair with its expiry, and the cached user profile, all persisted in
// the device key-value store.
package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the token pair issued by the auth backend.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the expiry is known and not after now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// ExpiryFromToken reads the exp claim of a JWT without verifying its
// signature; the client only uses it to decide when to refresh. A token
// without exp yields the zero time.
func ExpiryFromToken(token string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}
