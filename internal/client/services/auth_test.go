package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophbell/internal/client/api"
	"github.com/dmitrijs2005/gophbell/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenBody = `{
	"access_token": "acc",
	"refresh_token": "ref",
	"token_type": "bearer",
	"expires_in": 3600,
	"user": {"id": "u1", "email": "ada@example.com", "created_at": "2026-01-01T00:00:00Z"}
}`

func newAuth(d *fakeDoer, s *fakeSessions) *authService {
	a := NewAuthService(d, s, nil).(*authService)
	a.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return a
}

func TestSignIn_SavesSession(t *testing.T) {
	d := newFakeDoer()
	d.on(http.MethodPost, "/auth/v1/token", tokenBody)
	s := &fakeSessions{}

	u, err := newAuth(d, s).SignIn(context.Background(), SignInInput{Email: "ada@example.com", Password: "pw", RememberMe: true})
	require.NoError(t, err)

	assert.Equal(t, "u1", u.ID)
	require.NotNil(t, s.sess)
	assert.Equal(t, "acc", s.sess.AccessToken)
	assert.Equal(t, "ref", s.sess.RefreshToken)
	assert.Equal(t, time.Date(2026, 5, 1, 13, 0, 0, 0, time.UTC), s.sess.ExpiresAt)
	assert.True(t, s.rememberMe)

	req, ok := d.last(http.MethodPost, "/auth/v1/token")
	require.True(t, ok)
	assert.True(t, req.Anonymous)
	assert.Equal(t, "password", req.Query.Get("grant_type"))
}

func TestSignIn_Validation(t *testing.T) {
	d := newFakeDoer()
	_, err := newAuth(d, &fakeSessions{}).SignIn(context.Background(), SignInInput{Email: "not-an-email"})

	var ve *common.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "email")
	assert.Contains(t, ve.Fields, "password")
	assert.Zero(t, d.count(), "no request for invalid input")
}

func TestSignIn_WrongPassword(t *testing.T) {
	d := newFakeDoer()
	d.fail(http.MethodPost, "/auth/v1/token", &api.Error{StatusCode: 400, Code: "invalid_credentials", Message: "Invalid login credentials"})
	s := &fakeSessions{}

	_, err := newAuth(d, s).SignIn(context.Background(), SignInInput{Email: "ada@example.com", Password: "bad"})
	assert.ErrorIs(t, err, common.ErrUnauthorized)
	assert.Nil(t, s.sess)
}

func TestSignIn_BackendDown(t *testing.T) {
	d := newFakeDoer()
	d.fail(http.MethodPost, "/auth/v1/token", &api.Error{StatusCode: 503, Message: "down"})

	_, err := newAuth(d, &fakeSessions{}).SignIn(context.Background(), SignInInput{Email: "ada@example.com", Password: "pw"})
	assert.ErrorIs(t, err, common.ErrUnavailable)
	assert.NotErrorIs(t, err, common.ErrUnauthorized)
}

func TestSignUp_WithSession(t *testing.T) {
	d := newFakeDoer()
	d.on(http.MethodPost, "/auth/v1/signup", tokenBody)
	s := &fakeSessions{}

	res, err := newAuth(d, s).SignUp(context.Background(), SignUpInput{
		Email: "ada@example.com", Password: "longenough", FirstName: "Ada", LastName: "Lovelace",
	})
	require.NoError(t, err)

	assert.False(t, res.NeedsConfirmation)
	assert.Equal(t, "u1", res.User.ID)
	require.NotNil(t, s.sess)
	assert.False(t, s.rememberMe)

	req, _ := d.last(http.MethodPost, "/auth/v1/signup")
	body := req.Body.(map[string]any)
	assert.Equal(t, map[string]string{"first_name": "Ada", "last_name": "Lovelace"}, body["data"])
}

func TestSignUp_NeedsConfirmation(t *testing.T) {
	d := newFakeDoer()
	d.on(http.MethodPost, "/auth/v1/signup", `{"id": "u2", "email": "bob@example.com"}`)
	s := &fakeSessions{}

	res, err := newAuth(d, s).SignUp(context.Background(), SignUpInput{
		Email: "bob@example.com", Password: "longenough", FirstName: "Bob", LastName: "B",
	})
	require.NoError(t, err)

	assert.True(t, res.NeedsConfirmation)
	assert.Equal(t, "u2", res.User.ID)
	assert.Nil(t, s.sess)
}

func TestSignUp_Validation(t *testing.T) {
	_, err := newAuth(newFakeDoer(), &fakeSessions{}).SignUp(context.Background(), SignUpInput{
		Email: "bob@example.com", Password: "short",
	})

	var ve *common.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "must be at least 8 characters", ve.Fields["password"])
	assert.Equal(t, "is required", ve.Fields["first_name"])
	assert.Equal(t, "is required", ve.Fields["last_name"])
	assert.NotContains(t, ve.Fields, "email")
}

func TestSignOut_ClearsEvenWhenRemoteFails(t *testing.T) {
	d := newFakeDoer()
	d.fail(http.MethodPost, "/auth/v1/logout", errors.New("network down"))
	s := &fakeSessions{}

	require.NoError(t, newAuth(d, s).SignOut(context.Background()))
	assert.True(t, s.cleared)
}

func TestSignOut_ClearError(t *testing.T) {
	d := newFakeDoer()
	d.on(http.MethodPost, "/auth/v1/logout", "")
	s := &fakeSessions{clearErr: errors.New("disk full")}

	assert.Error(t, newAuth(d, s).SignOut(context.Background()))
}

func TestRequestPasswordReset(t *testing.T) {
	d := newFakeDoer()
	d.on(http.MethodPost, "/auth/v1/recover", "{}")
	a := newAuth(d, &fakeSessions{})

	require.NoError(t, a.RequestPasswordReset(context.Background(), "ada@example.com"))
	req, ok := d.last(http.MethodPost, "/auth/v1/recover")
	require.True(t, ok)
	assert.True(t, req.Anonymous)

	assert.ErrorIs(t, a.RequestPasswordReset(context.Background(), "nope"), common.ErrValidation)
}

func TestIsAuthenticated(t *testing.T) {
	d := newFakeDoer()
	d.on(http.MethodPost, "/auth/v1/token", tokenBody)
	a := newAuth(d, &fakeSessions{})

	ok, err := a.IsAuthenticated(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = a.SignIn(context.Background(), SignInInput{Email: "ada@example.com", Password: "pw"})
	require.NoError(t, err)

	ok, err = a.IsAuthenticated(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}
