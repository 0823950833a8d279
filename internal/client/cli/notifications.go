package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophbell/internal/client/models"
	"github.com/dmitrijs2005/gophbell/internal/client/notifications"
	"github.com/google/uuid"
)

// parseListArgs reads "unread", "page N", "size N", "type T",
// "category C" and "priority P" in any order.
func parseListArgs(args []string) (notifications.Filter, error) {
	var f notifications.Filter
	for i := 0; i < len(args); i++ {
		key := args[i]
		if key == "unread" {
			f.UnreadOnly = true
			continue
		}
		if i+1 >= len(args) {
			return f, usage("%s needs a value", key)
		}
		val := args[i+1]
		i++

		var err error
		switch key {
		case "page":
			f.Page, err = positive(key, val)
		case "size":
			f.PageSize, err = positive(key, val)
		case "type":
			f.Type, err = models.ParseNotificationType(val)
		case "category":
			f.Category, err = models.ParseNotificationCategory(val)
		case "priority":
			f.Priority, err = models.ParseNotificationPriority(val)
		default:
			return f, usage("list [unread] [page N] [size N] [type T] [category C] [priority P]")
		}
		if err != nil {
			return f, usage("%v", err)
		}
	}
	return f, nil
}

func positive(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive number", name)
	}
	return n, nil
}

func parseID(args []string, cmd string) (uuid.UUID, error) {
	if len(args) != 1 {
		return uuid.Nil, usage("%s <id>", cmd)
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, usage("%s <id>: %q is not a notification id", cmd, args[0])
	}
	return id, nil
}

func (a *App) List(ctx context.Context, args []string) error {
	f, err := parseListArgs(args)
	if err != nil {
		return err
	}

	page, err := a.notifications.List(ctx, f)
	if err != nil {
		return err
	}

	if len(page.Items) == 0 {
		fmt.Fprintln(a.out, "No notifications")
		return nil
	}

	now := time.Now()
	for _, n := range page.Items {
		fmt.Fprintln(a.out, summaryLine(n, now))
	}

	footer := fmt.Sprintf("page %d", page.Page)
	if page.Total >= 0 {
		footer += fmt.Sprintf(", %d total", page.Total)
	}
	if page.HasMore() {
		footer += fmt.Sprintf(" (next: list page %d)", page.Page+1)
	}
	fmt.Fprintln(a.out, footer)
	return nil
}

func summaryLine(n models.Notification, now time.Time) string {
	mark := " "
	if !n.IsRead {
		mark = "*"
	}
	var tags []string
	if n.Priority == models.PriorityHigh || n.Priority == models.PriorityUrgent {
		tags = append(tags, string(n.Priority))
	}
	if n.Expired(now) {
		tags = append(tags, "expired")
	}
	line := fmt.Sprintf("%s %s  %s  [%s/%s] %s",
		mark, n.ID, n.CreatedAt.Local().Format("2006-01-02 15:04"), n.Type, n.Category, n.Title)
	if len(tags) > 0 {
		line += " (" + strings.Join(tags, ", ") + ")"
	}
	return line
}

func (a *App) Show(ctx context.Context, args []string) error {
	id, err := parseID(args, "show")
	if err != nil {
		return err
	}
	n, err := a.notifications.Get(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s\n\n%s\n\n", n.Title, n.Body)
	fmt.Fprintf(a.out, "Type: %s  Category: %s  Priority: %s\n", n.Type, n.Category, n.Priority)
	fmt.Fprintf(a.out, "Received: %s\n", n.CreatedAt.Local().Format(time.RFC1123))
	if n.ReadAt != nil {
		fmt.Fprintf(a.out, "Read: %s\n", n.ReadAt.Local().Format(time.RFC1123))
	}
	if n.ExpiresAt != nil {
		fmt.Fprintf(a.out, "Expires: %s\n", n.ExpiresAt.Local().Format(time.RFC1123))
	}
	if len(n.Data) > 0 && string(n.Data) != "null" && string(n.Data) != "{}" {
		fmt.Fprintf(a.out, "Data: %s\n", n.Data)
	}

	if !n.IsRead {
		if _, err := a.notifications.MarkRead(ctx, id); err != nil {
			a.log.Warn(ctx, "mark read on open", "id", id, "error", err)
		}
	}
	return nil
}

func (a *App) Read(ctx context.Context, args []string) error {
	id, err := parseID(args, "read")
	if err != nil {
		return err
	}
	changed, err := a.notifications.MarkRead(ctx, id)
	if err != nil {
		return err
	}
	if changed {
		fmt.Fprintln(a.out, "Marked as read")
	} else {
		fmt.Fprintln(a.out, "Already read")
	}
	return nil
}

func (a *App) ReadAll(ctx context.Context) error {
	n, err := a.notifications.MarkAllRead(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Marked %d notification(s) as read\n", n)
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	id, err := parseID(args, "delete")
	if err != nil {
		return err
	}
	ok, err := GetConfirmation(a.reader, "Delete this notification?", a.out)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(a.out, "Cancelled")
		return nil
	}
	if err := a.notifications.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Deleted")
	return nil
}

// Unread prints the cached count and asks the manager to reload it.
func (a *App) Unread(ctx context.Context) error {
	fmt.Fprintf(a.out, "Unread: %d (%s)\n", a.unread.Count(), a.unread.State())
	a.unread.Refresh()
	return nil
}
