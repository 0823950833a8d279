package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophbell/internal/client/session"
	"github.com/dmitrijs2005/gophbell/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	mu      sync.Mutex
	sess    *session.Session
	updates int
	cleared bool
}

func (f *fakeTokens) Tokens(context.Context) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sess == nil {
		return session.Session{}, common.ErrNoSession
	}
	return *f.sess, nil
}

func (f *fakeTokens) UpdateTokens(_ context.Context, s session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	f.sess = &s
	return nil
}

func (f *fakeTokens) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
	f.sess = nil
	return nil
}

func newTestClient(t *testing.T, h http.Handler, tokens TokenStore) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{
		BaseURL:        srv.URL,
		AnonKey:        "anon",
		Timeout:        200 * time.Millisecond,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	}, tokens)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_RejectsRelativeURL(t *testing.T) {
	_, err := NewClient(Options{BaseURL: "localhost/api"}, &fakeTokens{})
	require.Error(t, err)
}

func TestDo_HeadersWithSession(t *testing.T) {
	var gotKey, gotAuth, gotPath, gotQuery string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		writeJSON(w, http.StatusOK, map[string]int{"n": 7})
	})
	c := newTestClient(t, h, &fakeTokens{sess: &session.Session{AccessToken: "user-token"}})

	var out struct{ N int }
	resp, err := c.Do(context.Background(), Request{
		Method: http.MethodGet,
		Path:   "/rest/v1/notifications",
		Query:  map[string][]string{"select": {"*"}},
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 7, out.N)
	assert.Equal(t, "anon", gotKey)
	assert.Equal(t, "Bearer user-token", gotAuth)
	assert.Equal(t, "/rest/v1/notifications", gotPath)
	assert.Equal(t, "select=%2A", gotQuery)
}

func TestDo_AnonBearerWithoutSession(t *testing.T) {
	var gotAuth string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, h, &fakeTokens{})

	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer anon", gotAuth)
}

func TestDo_Retries5xxThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, 5)
	})
	c := newTestClient(t, h, &fakeTokens{})

	var n int
	_, err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/rest/v1/rpc/get_unread_count"}, &n)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.EqualValues(t, 3, calls.Load())
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "down"})
	})
	c := newTestClient(t, h, &fakeTokens{})

	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnavailable)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "down", apiErr.Message)
	assert.EqualValues(t, 4, calls.Load(), "one attempt plus three retries")
}

func TestNewClient_MaxRetriesDefaults(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		wantCalls  int32
	}{
		{name: "zero uses default", maxRetries: 0, wantCalls: DefaultMaxRetries + 1},
		{name: "negative disables retries", maxRetries: -1, wantCalls: 1},
		{name: "explicit", maxRetries: 1, wantCalls: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				writeJSON(w, http.StatusBadGateway, map[string]string{"message": "bad gateway"})
			}))
			t.Cleanup(srv.Close)

			c, err := NewClient(Options{BaseURL: srv.URL, MaxRetries: tt.maxRetries, RetryBaseDelay: time.Millisecond}, &fakeTokens{})
			require.NoError(t, err)

			_, err = c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"}, nil)
			require.ErrorIs(t, err, common.ErrUnavailable)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestDo_DoesNotRetry4xx(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, common.ErrValidation},
		{http.StatusForbidden, common.ErrUnauthorized},
		{http.StatusNotFound, common.ErrNotFound},
		{http.StatusConflict, common.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var calls atomic.Int32
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				writeJSON(w, tt.status, map[string]string{"code": "X1", "message": "nope"})
			})
			c := newTestClient(t, h, &fakeTokens{})

			_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"}, nil)
			assert.ErrorIs(t, err, tt.want)
			assert.EqualValues(t, 1, calls.Load())
		})
	}
}

func TestDo_TimeoutIsRetriedAndReported(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{
		BaseURL:        srv.URL,
		Timeout:        20 * time.Millisecond,
		MaxRetries:     1,
		RetryBaseDelay: time.Millisecond,
	}, &fakeTokens{})
	require.NoError(t, err)

	_, err = c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/slow"}, nil)
	assert.ErrorIs(t, err, common.ErrTimeout)
	assert.EqualValues(t, 2, calls.Load())
}

func TestDo_CancelledContextStopsRetrying(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{BaseURL: srv.URL, MaxRetries: 3, RetryBaseDelay: time.Hour}, &fakeTokens{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = c.Do(ctx, Request{Method: http.MethodGet, Path: "/x"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || errors.Is(err, common.ErrUnavailable))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDo_TokenExpiredRefreshesAndReplays(t *testing.T) {
	var dataCalls, refreshCalls atomic.Int32
	var refreshBody map[string]string

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "Bearer anon", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&refreshBody)
		writeJSON(w, http.StatusOK, TokenResponse{AccessToken: "new-access", RefreshToken: "new-refresh", ExpiresIn: 3600})
	})
	mux.HandleFunc("/rest/v1/profiles", func(w http.ResponseWriter, r *http.Request) {
		dataCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer new-access" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"code": CodeTokenExpired, "message": "token expired"})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]string{{"id": "u1"}})
	})

	tokens := &fakeTokens{sess: &session.Session{AccessToken: "old-access", RefreshToken: "old-refresh"}}
	c := newTestClient(t, mux, tokens)

	var rows []map[string]string
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/rest/v1/profiles"}, &rows)
	require.NoError(t, err)

	require.Len(t, rows, 1)
	assert.EqualValues(t, 2, dataCalls.Load())
	assert.EqualValues(t, 1, refreshCalls.Load())
	assert.Equal(t, "old-refresh", refreshBody["refresh_token"])

	got, err := tokens.Tokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new-access", got.AccessToken)
	assert.Equal(t, "new-refresh", got.RefreshToken)
	assert.False(t, got.ExpiresAt.IsZero())
}

func TestDo_RefreshFailureClearsCredentials(t *testing.T) {
	var dataCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Invalid Refresh Token"})
	})
	mux.HandleFunc("/rest/v1/profiles", func(w http.ResponseWriter, r *http.Request) {
		dataCalls.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"code": CodeJWTExpired, "message": "JWT expired"})
	})

	tokens := &fakeTokens{sess: &session.Session{AccessToken: "old", RefreshToken: "bad"}}
	c := newTestClient(t, mux, tokens)

	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/rest/v1/profiles"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnauthorized)
	assert.True(t, tokens.cleared)
	assert.EqualValues(t, 1, dataCalls.Load(), "no replay after a failed refresh")
}

func TestDo_PlainUnauthorizedDoesNotRefresh(t *testing.T) {
	var refreshCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
	})
	mux.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid signature"})
	})

	tokens := &fakeTokens{sess: &session.Session{AccessToken: "a", RefreshToken: "r"}}
	c := newTestClient(t, mux, tokens)

	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"}, nil)
	assert.ErrorIs(t, err, common.ErrUnauthorized)
	assert.NotErrorIs(t, err, common.ErrTokenExpired)
	assert.Zero(t, refreshCalls.Load())
	assert.False(t, tokens.cleared)
}

func TestDo_ExpiredSessionRefreshedBeforeSending(t *testing.T) {
	var seen []string
	var mu sync.Mutex

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, TokenResponse{AccessToken: "fresh", RefreshToken: "r2", ExpiresIn: 3600})
	})
	mux.HandleFunc("/x", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	tokens := &fakeTokens{sess: &session.Session{
		AccessToken:  "stale",
		RefreshToken: "r1",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}}
	c := newTestClient(t, mux, tokens)

	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer fresh"}, seen)
}

func TestAccessToken(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler(), &fakeTokens{})
	tok, err := c.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "anon", tok)

	c = newTestClient(t, http.NotFoundHandler(), &fakeTokens{sess: &session.Session{AccessToken: "u"}})
	tok, err = c.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u", tok)
}

func TestRPC_SendsEmptyObject(t *testing.T) {
	var body string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/rpc/mark_all_notifications_read", r.URL.Path)
		var m map[string]any
		_ = json.NewDecoder(r.Body).Decode(&m)
		b, _ := json.Marshal(m)
		body = string(b)
		writeJSON(w, http.StatusOK, 3)
	})
	c := newTestClient(t, h, &fakeTokens{})

	var n int
	require.NoError(t, c.RPC(context.Background(), "mark_all_notifications_read", nil, &n))
	assert.Equal(t, 3, n)
	assert.Equal(t, "{}", body)
}

func TestParseError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{"postgrest", 404, `{"code":"PGRST116","message":"no rows"}`, "PGRST116", "no rows"},
		{"gotrue numeric code", 422, `{"code":422,"error_code":"weak_password","msg":"too short"}`, "weak_password", "too short"},
		{"oauth style", 400, `{"error":"invalid_grant","error_description":"bad creds"}`, "invalid_grant", "bad creds"},
		{"plain text", 502, "upstream down", "", "upstream down"},
		{"empty", 500, "", "", "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := parseError(tt.status, []byte(tt.body))
			assert.Equal(t, tt.wantCode, e.Code)
			assert.Equal(t, tt.wantMsg, e.Message)
		})
	}
}

func TestTokenResponse_Session(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s := TokenResponse{AccessToken: "a", ExpiresIn: 60}.Session(now)
	assert.Equal(t, now.Add(time.Minute), s.ExpiresAt)

	s = TokenResponse{AccessToken: "a", ExpiresIn: 60, ExpiresAt: now.Unix() + 120}.Session(now)
	assert.Equal(t, now.Add(2*time.Minute), s.ExpiresAt)

	s = TokenResponse{AccessToken: "a"}.Session(now)
	assert.True(t, s.ExpiresAt.IsZero())
}
