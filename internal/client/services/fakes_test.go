package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/dmitrijs2005/gophbell/internal/client/api"
	"github.com/dmitrijs2005/gophbell/internal/client/session"
)

// ---- fake backend ----

type reply struct {
	body   string
	err    error
	header http.Header
}

// fakeDoer answers requests by "METHOD /path" and records them.
type fakeDoer struct {
	mu       sync.Mutex
	replies  map[string]reply
	requests []api.Request
}

func newFakeDoer() *fakeDoer {
	return &fakeDoer{replies: map[string]reply{}}
}

func (f *fakeDoer) on(method, path, body string) {
	f.replies[method+" "+path] = reply{body: body}
}

func (f *fakeDoer) fail(method, path string, err error) {
	f.replies[method+" "+path] = reply{err: err}
}

func (f *fakeDoer) Do(_ context.Context, req api.Request, out any) (*api.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	r, ok := f.replies[req.Method+" "+req.Path]
	f.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unexpected request %s %s", req.Method, req.Path)
	}
	if r.err != nil {
		return nil, r.err
	}
	if out != nil && r.body != "" {
		if err := json.Unmarshal([]byte(r.body), out); err != nil {
			return nil, err
		}
	}
	return &api.Response{StatusCode: http.StatusOK, Header: r.header}, nil
}

func (f *fakeDoer) last(method, path string) (api.Request, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].Method == method && f.requests[i].Path == path {
			return f.requests[i], true
		}
	}
	return api.Request{}, false
}

func (f *fakeDoer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// ---- fake session store ----

type fakeSessions struct {
	sess       *session.Session
	rememberMe bool
	profile    []byte
	clearErr   error
	cleared    bool
}

func (f *fakeSessions) Save(_ context.Context, s session.Session, rememberMe bool) error {
	f.sess = &s
	f.rememberMe = rememberMe
	return nil
}

func (f *fakeSessions) Clear(context.Context) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = true
	f.sess = nil
	f.profile = nil
	return nil
}

func (f *fakeSessions) IsAuthenticated(context.Context) (bool, error) {
	return f.sess != nil && f.sess.AccessToken != "", nil
}

func (f *fakeSessions) SaveProfile(_ context.Context, v any) error {
	b, err := json.Marshal(v)
	f.profile = b
	return err
}

func (f *fakeSessions) Profile(_ context.Context, v any) (bool, error) {
	if f.profile == nil {
		return false, nil
	}
	return true, json.Unmarshal(f.profile, v)
}
