package notifications

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophbell/internal/client/models"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Filter selects a page of notifications. Zero fields do not filter.
// Page is 1-based.
type Filter struct {
	UnreadOnly bool
	Type       models.NotificationType
	Category   models.NotificationCategory
	Priority   models.NotificationPriority
	From       time.Time
	To         time.Time
	Page       int
	PageSize   int
}

func (f Filter) normalized() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	switch {
	case f.PageSize <= 0:
		f.PageSize = DefaultPageSize
	case f.PageSize > MaxPageSize:
		f.PageSize = MaxPageSize
	}
	return f
}

// query renders f as PostgREST parameters, newest first.
func (f Filter) query() url.Values {
	f = f.normalized()

	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.desc")
	q.Set("limit", strconv.Itoa(f.PageSize))
	q.Set("offset", strconv.Itoa((f.Page-1)*f.PageSize))

	if f.UnreadOnly {
		q.Set("is_read", "eq.false")
	}
	if f.Type != "" {
		q.Set("type", "eq."+string(f.Type))
	}
	if f.Category != "" {
		q.Set("category", "eq."+string(f.Category))
	}
	if f.Priority != "" {
		q.Set("priority", "eq."+string(f.Priority))
	}
	if !f.From.IsZero() {
		q.Add("created_at", "gte."+f.From.UTC().Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		q.Add("created_at", "lte."+f.To.UTC().Format(time.RFC3339))
	}
	return q
}

// Page is one slice of a filtered listing. Total is -1 when the backend did
// not report it.
type Page struct {
	Items    []models.Notification
	Total    int
	Page     int
	PageSize int
}

// HasMore reports whether a later page exists.
func (p Page) HasMore() bool {
	if p.Total < 0 {
		return len(p.Items) == p.PageSize
	}
	return p.Page*p.PageSize < p.Total
}

// parseContentRange extracts the total from "0-19/57" or "*/0".
func parseContentRange(h string) (int, bool) {
	_, total, ok := strings.Cut(h, "/")
	if !ok || total == "*" {
		return 0, false
	}
	n, err := strconv.Atoi(total)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
