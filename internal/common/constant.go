package common

// Header names used on every backend request.
const (
	APIKeyHeaderName        = "apikey"
	AuthorizationHeaderName = "Authorization"
)
