package notifications

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dmitrijs2005/gophbell/internal/client/api"
	"github.com/dmitrijs2005/gophbell/internal/client/models"
	"github.com/dmitrijs2005/gophbell/internal/common"
	"github.com/google/uuid"
)

const tablePath = "/rest/v1/notifications"

// RPC function names.
const (
	rpcUnreadCount = "get_unread_count"
	rpcMarkRead    = "mark_notification_read"
	rpcMarkAllRead = "mark_all_notifications_read"
)

// Doer is the subset of *api.Client the repository uses.
type Doer interface {
	Do(ctx context.Context, req api.Request, out any) (*api.Response, error)
	RPC(ctx context.Context, fn string, args any, out any) error
}

// Repository talks to the notifications table and its RPCs. Row-level
// security limits every call to the signed-in user's rows.
type Repository struct {
	api Doer
}

func NewRepository(c Doer) *Repository {
	return &Repository{api: c}
}

func (r *Repository) List(ctx context.Context, f Filter) (Page, error) {
	f = f.normalized()

	var items []models.Notification
	resp, err := r.api.Do(ctx, api.Request{
		Method: http.MethodGet,
		Path:   tablePath,
		Query:  f.query(),
		Header: http.Header{"Prefer": {"count=exact"}},
	}, &items)
	if err != nil {
		return Page{}, fmt.Errorf("list notifications: %w", err)
	}

	page := Page{Items: items, Total: -1, Page: f.Page, PageSize: f.PageSize}
	if total, ok := parseContentRange(resp.Header.Get("Content-Range")); ok {
		page.Total = total
	}
	return page, nil
}

// Get returns one notification or common.ErrNotFound.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (models.Notification, error) {
	var items []models.Notification
	_, err := r.api.Do(ctx, api.Request{
		Method: http.MethodGet,
		Path:   tablePath,
		Query:  url.Values{"select": {"*"}, "id": {"eq." + id.String()}, "limit": {"1"}},
	}, &items)
	if err != nil {
		return models.Notification{}, fmt.Errorf("get notification %s: %w", id, err)
	}
	if len(items) == 0 {
		return models.Notification{}, fmt.Errorf("get notification %s: %w", id, common.ErrNotFound)
	}
	return items[0], nil
}

// Delete removes one notification or returns common.ErrNotFound.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	var deleted []models.Notification
	_, err := r.api.Do(ctx, api.Request{
		Method: http.MethodDelete,
		Path:   tablePath,
		Query:  url.Values{"id": {"eq." + id.String()}},
		Header: http.Header{"Prefer": {"return=representation"}},
	}, &deleted)
	if err != nil {
		return fmt.Errorf("delete notification %s: %w", id, err)
	}
	if len(deleted) == 0 {
		return fmt.Errorf("delete notification %s: %w", id, common.ErrNotFound)
	}
	return nil
}

// UnreadCount returns the signed-in user's unread count, never negative.
func (r *Repository) UnreadCount(ctx context.Context) (int, error) {
	var n int
	if err := r.api.RPC(ctx, rpcUnreadCount, nil, &n); err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return max(n, 0), nil
}

// MarkRead marks one notification read. It reports false when the
// notification was already read or does not belong to the user.
func (r *Repository) MarkRead(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	if err := r.api.RPC(ctx, rpcMarkRead, map[string]string{"notification_id": id.String()}, &ok); err != nil {
		return false, fmt.Errorf("mark notification %s read: %w", id, err)
	}
	return ok, nil
}

// MarkAllRead marks every unread notification read and returns how many
// changed.
func (r *Repository) MarkAllRead(ctx context.Context) (int, error) {
	var n int
	if err := r.api.RPC(ctx, rpcMarkAllRead, nil, &n); err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return n, nil
}
