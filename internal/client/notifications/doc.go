// Package notifications reads and updates the user's notifications and keeps
// a live unread count.
//
// Repository is the request/response side: paginated listing with filters,
// single fetch, delete, and the unread-count and mark-read RPCs.
//
// Manager owns the realtime channel for the current user and the cached
// unread count. Every change event on the user's rows triggers a full reload
// of the count from the backend; listeners hear about it only when the value
// actually changes. A channel that errors, times out or closes is retried
// after a fixed delay for as long as a user is set.
package notifications
