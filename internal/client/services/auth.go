// Package services contains application services for the GophBell client.
// This file defines the authentication service: sign in and up against the
// auth backend, sign out, password reset and the persisted session flag.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/gophbell/internal/client/api"
	"github.com/dmitrijs2005/gophbell/internal/client/session"
	"github.com/dmitrijs2005/gophbell/internal/common"
	"github.com/dmitrijs2005/gophbell/internal/logging"
	"github.com/dmitrijs2005/gophbell/internal/validate"
)

// AuthService defines authentication operations for the front end.
//
// Contract:
//   - SignIn: exchange email/password for a session and persist it.
//   - SignUp: create an account; a session is persisted when the backend
//     issues one right away (no email confirmation).
//   - SignOut: best-effort remote logout; local credentials are always cleared.
//   - RequestPasswordReset: ask the backend to email a reset link.
//   - IsAuthenticated: the persisted flag, false without tokens.
//
// Invalid input is reported as *common.ValidationError before any request.
type AuthService interface {
	SignIn(ctx context.Context, in SignInInput) (User, error)
	SignUp(ctx context.Context, in SignUpInput) (SignUpResult, error)
	SignOut(ctx context.Context) error
	RequestPasswordReset(ctx context.Context, email string) error
	IsAuthenticated(ctx context.Context) (bool, error)
}

// Doer sends backend requests; *api.Client implements it.
type Doer interface {
	Do(ctx context.Context, req api.Request, out any) (*api.Response, error)
}

// SessionStore is the part of *session.Store the services use.
type SessionStore interface {
	Save(ctx context.Context, s session.Session, rememberMe bool) error
	Clear(ctx context.Context) error
	IsAuthenticated(ctx context.Context) (bool, error)
	SaveProfile(ctx context.Context, v any) error
	Profile(ctx context.Context, v any) (bool, error)
}

type SignInInput struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	RememberMe bool   `json:"-"`
}

type SignUpInput struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FirstName string `json:"first_name" validate:"required,max=50"`
	LastName  string `json:"last_name" validate:"required,max=50"`
}

type SignUpResult struct {
	User User
	// NeedsConfirmation is set when the account exists but no session was
	// issued until the email address is confirmed.
	NeedsConfirmation bool
}

// User is the auth backend's view of an account.
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	Phone            string         `json:"phone"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	PhoneConfirmedAt *time.Time     `json:"phone_confirmed_at,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Codes the auth backend uses for a wrong email/password pair.
var invalidCredentialCodes = map[string]bool{
	"invalid_grant":       true,
	"invalid_credentials": true,
}

type authService struct {
	api      Doer
	sessions SessionStore
	v        *validate.Validator
	log      logging.Logger
	now      func() time.Time
}

func NewAuthService(c Doer, sessions SessionStore, log logging.Logger) AuthService {
	if log == nil {
		log = logging.Nop()
	}
	return &authService{api: c, sessions: sessions, v: validate.New(), log: log, now: time.Now}
}

// SignIn uses the password grant. A wrong email/password pair is reported
// as common.ErrUnauthorized.
func (a *authService) SignIn(ctx context.Context, in SignInInput) (User, error) {
	if err := a.v.Struct(in); err != nil {
		return User{}, err
	}

	var tr api.TokenResponse
	_, err := a.api.Do(ctx, api.Request{
		Method:    http.MethodPost,
		Path:      "/auth/v1/token",
		Query:     url.Values{"grant_type": {"password"}},
		Body:      map[string]string{"email": in.Email, "password": in.Password},
		Anonymous: true,
	}, &tr)
	if err != nil {
		if isInvalidCredentials(err) {
			return User{}, fmt.Errorf("sign in: %w", common.ErrUnauthorized)
		}
		return User{}, fmt.Errorf("sign in: %w", err)
	}

	if err := a.sessions.Save(ctx, tr.Session(a.now()), in.RememberMe); err != nil {
		return User{}, fmt.Errorf("save session: %w", err)
	}

	var u User
	if len(tr.User) > 0 {
		if err := json.Unmarshal(tr.User, &u); err != nil {
			return User{}, fmt.Errorf("decode user: %w", err)
		}
	}
	a.log.Info(ctx, "signed in", "user_id", u.ID, "remember_me", in.RememberMe)
	return u, nil
}

type signUpResponse struct {
	api.TokenResponse
	User
}

func (a *authService) SignUp(ctx context.Context, in SignUpInput) (SignUpResult, error) {
	if err := a.v.Struct(in); err != nil {
		return SignUpResult{}, err
	}

	body := map[string]any{
		"email":    in.Email,
		"password": in.Password,
		"data": map[string]string{
			"first_name": in.FirstName,
			"last_name":  in.LastName,
		},
	}

	var resp signUpResponse
	_, err := a.api.Do(ctx, api.Request{
		Method:    http.MethodPost,
		Path:      "/auth/v1/signup",
		Body:      body,
		Anonymous: true,
	}, &resp)
	if err != nil {
		return SignUpResult{}, fmt.Errorf("sign up: %w", err)
	}

	// With a session the user object is nested; without one the body is the
	// user itself.
	u := resp.User
	if len(resp.TokenResponse.User) > 0 {
		if err := json.Unmarshal(resp.TokenResponse.User, &u); err != nil {
			return SignUpResult{}, fmt.Errorf("decode user: %w", err)
		}
	}

	if resp.AccessToken == "" {
		a.log.Info(ctx, "signed up, confirmation pending", "user_id", u.ID)
		return SignUpResult{User: u, NeedsConfirmation: true}, nil
	}

	if err := a.sessions.Save(ctx, resp.TokenResponse.Session(a.now()), false); err != nil {
		return SignUpResult{}, fmt.Errorf("save session: %w", err)
	}
	a.log.Info(ctx, "signed up", "user_id", u.ID)
	return SignUpResult{User: u}, nil
}

func (a *authService) SignOut(ctx context.Context) error {
	_, err := a.api.Do(ctx, api.Request{Method: http.MethodPost, Path: "/auth/v1/logout"}, nil)
	if err != nil {
		a.log.Warn(ctx, "remote logout failed", "error", err)
	}

	if err := a.sessions.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	a.log.Info(ctx, "signed out")
	return nil
}

func (a *authService) RequestPasswordReset(ctx context.Context, email string) error {
	in := struct {
		Email string `json:"email" validate:"required,email"`
	}{email}
	if err := a.v.Struct(in); err != nil {
		return err
	}

	_, err := a.api.Do(ctx, api.Request{
		Method:    http.MethodPost,
		Path:      "/auth/v1/recover",
		Body:      in,
		Anonymous: true,
	}, nil)
	if err != nil {
		return fmt.Errorf("password reset: %w", err)
	}
	return nil
}

func (a *authService) IsAuthenticated(ctx context.Context) (bool, error) {
	return a.sessions.IsAuthenticated(ctx)
}

func isInvalidCredentials(err error) bool {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return invalidCredentialCodes[apiErr.Code]
}
