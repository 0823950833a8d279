// Package api is the HTTP client every backend call goes through.
//
// # Behaviour
//
//   - The anon key is sent as "apikey" on every request; the user's access
//     token (or the anon key when signed out) is sent as the bearer token.
//   - Each attempt runs under its own timeout (Options.Timeout).
//   - Network errors, timeouts and 5xx responses are retried with exponential
//     backoff (base, 2*base, 4*base ...) up to Options.MaxRetries times.
//     Other 4xx responses are returned at once.
//   - A 401 whose code is TOKEN_EXPIRED (or "JWT expired") triggers one token
//     refresh and one replay. A session whose known expiry has passed is
//     refreshed before sending. If the refresh fails, all stored credentials
//     are cleared and common.ErrUnauthorized is returned.
//
// # Errors
//
// Non-2xx responses come back as *Error, which unwraps to the sentinels in
// internal/common (ErrUnauthorized, ErrTokenExpired, ErrNotFound, ErrConflict,
// ErrValidation, ErrUnavailable). Transport failures wrap ErrUnavailable or
// ErrTimeout.
package api
