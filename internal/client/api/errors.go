package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/gophbell/internal/common"
)

// Codes the backend sends with a 401 when the access token has expired.
const (
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeJWTExpired   = "PGRST301"
)

// Error is a non-2xx backend response.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// TokenExpired reports whether the response asks for a token refresh.
func (e *Error) TokenExpired() bool {
	if e.StatusCode != http.StatusUnauthorized {
		return false
	}
	return e.Code == CodeTokenExpired || e.Code == CodeJWTExpired ||
		strings.Contains(strings.ToLower(e.Message), "jwt expired")
}

func (e *Error) Unwrap() error {
	switch {
	case e.TokenExpired():
		return common.ErrTokenExpired
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return common.ErrUnauthorized
	case e.StatusCode == http.StatusNotFound:
		return common.ErrNotFound
	case e.StatusCode == http.StatusConflict:
		return common.ErrConflict
	case e.StatusCode == http.StatusBadRequest, e.StatusCode == http.StatusUnprocessableEntity:
		return common.ErrValidation
	case e.StatusCode >= 500:
		return common.ErrUnavailable
	default:
		return nil
	}
}

// parseError builds an Error from a response body. GoTrue and PostgREST use
// different field names, and GoTrue's "code" may be numeric, so only string
// values are taken.
func parseError(status int, body []byte) *Error {
	e := &Error{StatusCode: status}

	var m map[string]any
	if err := json.Unmarshal(body, &m); err == nil {
		e.Code = firstString(m, "error_code", "code", "error")
		e.Message = firstString(m, "message", "msg", "error_description", "error")
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
