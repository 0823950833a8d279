package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophbell/internal/client/repositories/kv"
	"github.com/dmitrijs2005/gophbell/internal/common"
)

// Fixed key names in the device store.
const (
	KeyAccessToken     = "auth.access_token"
	KeyRefreshToken    = "auth.refresh_token"
	KeyTokenExpiry     = "auth.token_expiry"
	KeyIsAuthenticated = "auth.is_authenticated"
	KeyUserProfile     = "auth.user_profile"
	KeyRememberMe      = "auth.remember_me"
)

var tokenKeys = []string{KeyAccessToken, KeyRefreshToken, KeyTokenExpiry}

// plainKeys are the auth keys kept in the plain store. The secure store only
// ever holds auth keys.
var plainKeys = []string{KeyAccessToken, KeyRefreshToken, KeyTokenExpiry, KeyIsAuthenticated, KeyUserProfile, KeyRememberMe}

// Backend hands out the plain and secure repositories, either directly or
// bound to one transaction. secure is nil when the device has no secure
// store. *localdb.Repositories implements it.
type Backend interface {
	Stores() (plain, secure kv.Repository)
	WithTx(ctx context.Context, fn func(ctx context.Context, plain, secure kv.Repository) error) error
}

// Store persists the session. Tokens live in the secure store when the user
// asked to be remembered and a secure store is available, otherwise in the
// plain store. Writes are transactional.
type Store struct {
	mu sync.Mutex
	db Backend
}

func NewStore(db Backend) *Store {
	return &Store{db: db}
}

// Save stores s and marks the user authenticated.
func (st *Store) Save(ctx context.Context, s Session, rememberMe bool) error {
	if s.AccessToken == "" {
		return fmt.Errorf("save session: %w: empty access token", common.ErrValidation)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.db.WithTx(ctx, func(ctx context.Context, plain, secure kv.Repository) error {
		return save(ctx, plain, secure, s, rememberMe)
	})
}

// UpdateTokens replaces the token pair after a refresh, keeping the
// remember-me choice made at sign-in.
func (st *Store) UpdateTokens(ctx context.Context, s Session) error {
	if s.AccessToken == "" {
		return fmt.Errorf("update tokens: %w: empty access token", common.ErrValidation)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.db.WithTx(ctx, func(ctx context.Context, plain, secure kv.Repository) error {
		remember, err := rememberMe(ctx, plain)
		if err != nil {
			return err
		}
		return save(ctx, plain, secure, s, remember)
	})
}

func save(ctx context.Context, plain, secure kv.Repository, s Session, rememberMe bool) error {
	if s.ExpiresAt.IsZero() {
		// Best effort: opaque tokens simply have no known expiry.
		s.ExpiresAt, _ = ExpiryFromToken(s.AccessToken)
	}

	target, other := plain, secure
	if rememberMe && secure != nil {
		target, other = secure, plain
	}

	if other != nil {
		for _, k := range tokenKeys {
			if err := other.Delete(ctx, k); err != nil {
				return err
			}
		}
	}

	values := map[string][]byte{
		KeyAccessToken:  []byte(s.AccessToken),
		KeyRefreshToken: []byte(s.RefreshToken),
		KeyTokenExpiry:  []byte(formatTime(s.ExpiresAt)),
	}
	for _, k := range tokenKeys {
		// Empty values are deleted rather than stored as zero-length blobs.
		var err error
		if len(values[k]) == 0 {
			err = target.Delete(ctx, k)
		} else {
			err = target.Set(ctx, k, values[k])
		}
		if err != nil {
			return err
		}
	}

	if err := plain.Set(ctx, KeyRememberMe, []byte(fmt.Sprint(rememberMe))); err != nil {
		return err
	}
	return plain.Set(ctx, KeyIsAuthenticated, []byte("true"))
}

// Tokens returns the stored session or common.ErrNoSession.
func (st *Store) Tokens(ctx context.Context) (Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.tokens(ctx)
}

func (st *Store) tokens(ctx context.Context) (Session, error) {
	plain, secure := st.db.Stores()

	remember, err := rememberMe(ctx, plain)
	if err != nil {
		return Session{}, err
	}

	src := plain
	if remember && secure != nil {
		src = secure
	}

	access, err := src.Get(ctx, KeyAccessToken)
	if err != nil {
		return Session{}, err
	}
	if len(access) == 0 {
		return Session{}, common.ErrNoSession
	}

	refresh, err := src.Get(ctx, KeyRefreshToken)
	if err != nil {
		return Session{}, err
	}

	rawExpiry, err := src.Get(ctx, KeyTokenExpiry)
	if err != nil {
		return Session{}, err
	}
	expiry, err := parseTime(string(rawExpiry))
	if err != nil {
		return Session{}, fmt.Errorf("parse token expiry: %w", err)
	}

	return Session{AccessToken: string(access), RefreshToken: string(refresh), ExpiresAt: expiry}, nil
}

// IsAuthenticated reports the persisted flag, and is false whenever no
// access token is stored.
func (st *Store) IsAuthenticated(ctx context.Context) (bool, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	plain, _ := st.db.Stores()
	flag, err := plain.Get(ctx, KeyIsAuthenticated)
	if err != nil {
		return false, err
	}
	if string(flag) != "true" {
		return false, nil
	}

	if _, err := st.tokens(ctx); err != nil {
		if errors.Is(err, common.ErrNoSession) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Clear removes every auth key from both stores.
func (st *Store) Clear(ctx context.Context) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	return st.db.WithTx(ctx, func(ctx context.Context, plain, secure kv.Repository) error {
		for _, k := range plainKeys {
			if err := plain.Delete(ctx, k); err != nil {
				return err
			}
		}
		if secure == nil {
			return nil
		}
		return secure.Clear(ctx)
	})
}

// SaveProfile caches v (JSON-encoded) as the current user's profile.
func (st *Store) SaveProfile(ctx context.Context, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	plain, _ := st.db.Stores()
	return plain.Set(ctx, KeyUserProfile, b)
}

// Profile decodes the cached profile into v. It reports false when nothing
// is cached.
func (st *Store) Profile(ctx context.Context, v any) (bool, error) {
	st.mu.Lock()
	plain, _ := st.db.Stores()
	b, err := plain.Get(ctx, KeyUserProfile)
	st.mu.Unlock()

	if err != nil {
		return false, err
	}
	if b == nil {
		return false, nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode profile: %w", err)
	}
	return true, nil
}

func rememberMe(ctx context.Context, plain kv.Repository) (bool, error) {
	b, err := plain.Get(ctx, KeyRememberMe)
	if err != nil {
		return false, err
	}
	return string(b) == "true", nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
