// Package models defines the client-side records mirrored from the backend:
// user profiles and notifications.
package models
