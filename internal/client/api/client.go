package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophbell/internal/client/session"
	"github.com/dmitrijs2005/gophbell/internal/common"
	"github.com/dmitrijs2005/gophbell/internal/logging"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

// expirySkew refreshes a little before the recorded expiry so the token does
// not lapse in flight.
const expirySkew = 30 * time.Second

// TokenStore is the part of the session store the client needs.
type TokenStore interface {
	Tokens(ctx context.Context) (session.Session, error)
	UpdateTokens(ctx context.Context, s session.Session) error
	Clear(ctx context.Context) error
}

// Defaults applied by NewClient to zero Options fields.
const (
	DefaultTimeout        = 10 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = time.Second
)

type Options struct {
	BaseURL string
	AnonKey string
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt; 0 means
	// DefaultMaxRetries and a negative value disables retrying.
	MaxRetries        int
	RetryBaseDelay    time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            logging.Logger
}

// Request describes one backend call. Path is relative to the base URL.
// Anonymous requests carry the anon key as bearer and never trigger a
// refresh; the auth endpoints use them.
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	Body      any
	Header    http.Header
	Anonymous bool
}

// Response carries what callers occasionally need beyond the decoded body.
type Response struct {
	StatusCode int
	Header     http.Header
}

type Client struct {
	baseURL    *url.URL
	anonKey    string
	http       *http.Client
	tokens     TokenStore
	timeout    time.Duration
	maxRetries uint64
	retryBase  time.Duration
	limiter    *rate.Limiter
	log        logging.Logger
	now        func() time.Time

	refreshMu sync.Mutex
}

func NewClient(opts Options, tokens TokenStore) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", opts.BaseURL)
	}

	c := &Client{
		baseURL:   u,
		anonKey:   opts.AnonKey,
		http:      opts.HTTPClient,
		tokens:    tokens,
		timeout:   opts.Timeout,
		retryBase: opts.RetryBaseDelay,
		log:       opts.Logger,
		now:       time.Now,
	}
	switch {
	case opts.MaxRetries == 0:
		c.maxRetries = DefaultMaxRetries
	case opts.MaxRetries > 0:
		c.maxRetries = uint64(opts.MaxRetries)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.retryBase <= 0 {
		c.retryBase = DefaultRetryBaseDelay
	}
	if c.log == nil {
		c.log = logging.Nop()
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c, nil
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// AnonKey returns the public API key.
func (c *Client) AnonKey() string {
	return c.anonKey
}

// Do sends req and decodes a JSON response body into out (if non-nil).
func (c *Client) Do(ctx context.Context, req Request, out any) (*Response, error) {
	if req.Anonymous {
		return c.doWithRetry(ctx, req, "", out)
	}

	sess, err := c.currentSession(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.doWithRetry(ctx, req, sess.AccessToken, out)
	if !errors.Is(err, common.ErrTokenExpired) || sess.AccessToken == "" {
		return resp, err
	}

	c.log.Info(ctx, "access token expired, refreshing", "method", req.Method, "path", req.Path)
	sess, err = c.refreshAndReload(ctx, sess)
	if err != nil {
		return nil, err
	}
	return c.doWithRetry(ctx, req, sess.AccessToken, out)
}

// RPC calls a Postgres function exposed at /rest/v1/rpc/<fn>.
func (c *Client) RPC(ctx context.Context, fn string, args any, out any) error {
	if args == nil {
		args = struct{}{}
	}
	_, err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/rest/v1/rpc/" + fn, Body: args}, out)
	return err
}

// AccessToken returns a usable bearer for side channels such as realtime:
// the user's token (refreshed if known to be expired) or the anon key.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	sess, err := c.currentSession(ctx)
	if err != nil {
		return "", err
	}
	if sess.AccessToken == "" {
		return c.anonKey, nil
	}
	return sess.AccessToken, nil
}

// currentSession loads the stored session, refreshing it first when its
// expiry has passed. No session is not an error: the zero Session is
// returned and requests go out with the anon key.
func (c *Client) currentSession(ctx context.Context) (session.Session, error) {
	sess, err := c.tokens.Tokens(ctx)
	if errors.Is(err, common.ErrNoSession) {
		return session.Session{}, nil
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("load session: %w", err)
	}

	if sess.Expired(c.now().Add(expirySkew)) {
		return c.refreshAndReload(ctx, sess)
	}
	return sess, nil
}

func (c *Client) refreshAndReload(ctx context.Context, stale session.Session) (session.Session, error) {
	if err := c.refresh(ctx, stale); err != nil {
		c.log.Warn(ctx, "token refresh failed, clearing credentials", "error", err)
		if cerr := c.tokens.Clear(ctx); cerr != nil {
			c.log.Error(ctx, "failed to clear credentials", "error", cerr)
		}
		return session.Session{}, fmt.Errorf("%w: token refresh: %w", common.ErrUnauthorized, err)
	}

	sess, err := c.tokens.Tokens(ctx)
	if err != nil {
		return session.Session{}, fmt.Errorf("reload session: %w", err)
	}
	return sess, nil
}

// refresh exchanges the refresh token for a new pair. Concurrent callers that
// saw the same stale token share one exchange.
func (c *Client) refresh(ctx context.Context, stale session.Session) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	cur, err := c.tokens.Tokens(ctx)
	if err != nil {
		return err
	}
	if cur.AccessToken != stale.AccessToken && !cur.Expired(c.now()) {
		return nil
	}
	if cur.RefreshToken == "" {
		return errors.New("no refresh token")
	}

	var tr TokenResponse
	_, err = c.doWithRetry(ctx, Request{
		Method:    http.MethodPost,
		Path:      "/auth/v1/token",
		Query:     url.Values{"grant_type": {"refresh_token"}},
		Body:      map[string]string{"refresh_token": cur.RefreshToken},
		Anonymous: true,
	}, "", &tr)
	if err != nil {
		return err
	}
	if tr.AccessToken == "" {
		return errors.New("refresh response without access token")
	}

	return c.tokens.UpdateTokens(ctx, tr.Session(c.now()))
}

func (c *Client) doWithRetry(ctx context.Context, req Request, token string, out any) (*Response, error) {
	var resp *Response
	attempt := 0

	b := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBase))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		r, err := c.doOnce(ctx, req, token, out)
		resp = r
		if err != nil && isRetryable(err) {
			c.log.Warn(ctx, "request failed", "method", req.Method, "path", req.Path, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	return resp, err
}

func (c *Client) doOnce(ctx context.Context, req Request, token string, out any) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := c.newHTTPRequest(attemptCtx, req, token)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, c.transportError(ctx, req, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, c.transportError(ctx, req, err)
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return resp, parseError(httpResp.StatusCode, body)
	}

	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp, fmt.Errorf("decode %s %s response: %w", req.Method, req.Path, err)
		}
	}
	return resp, nil
}

// transportError classifies a failed round trip. The caller's own
// cancellation wins over the per-attempt timeout.
func (c *Client) transportError(parent context.Context, req Request, err error) error {
	if perr := parent.Err(); perr != nil {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s %s after %s", common.ErrTimeout, req.Method, req.Path, c.timeout)
	}
	return fmt.Errorf("%w: %w", common.ErrUnavailable, err)
}

func (c *Client) newHTTPRequest(ctx context.Context, req Request, token string) (*http.Request, error) {
	u := c.baseURL.JoinPath(req.Path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, err
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if token == "" {
		token = c.anonKey
	}
	httpReq.Header.Set(common.APIKeyHeaderName, c.anonKey)
	httpReq.Header.Set(common.AuthorizationHeaderName, "Bearer "+token)
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	return httpReq, nil
}

func isRetryable(err error) bool {
	return errors.Is(err, common.ErrUnavailable) || errors.Is(err, common.ErrTimeout)
}
