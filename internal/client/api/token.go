package api

import (
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/gophbell/internal/client/session"
)

// TokenResponse is the auth backend's answer to password and refresh grants.
type TokenResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	TokenType    string          `json:"token_type"`
	ExpiresIn    int64           `json:"expires_in"`
	ExpiresAt    int64           `json:"expires_at"`
	User         json.RawMessage `json:"user,omitempty"`
}

// Session converts the response, preferring the absolute expires_at.
func (t TokenResponse) Session(now time.Time) session.Session {
	s := session.Session{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken}
	switch {
	case t.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(t.ExpiresAt, 0).UTC()
	case t.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second).UTC()
	}
	return s
}
