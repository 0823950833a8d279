package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/gophbell/internal/client/models"
	"github.com/dmitrijs2005/gophbell/internal/client/notifications"
	"github.com/dmitrijs2005/gophbell/internal/client/services"
	"github.com/dmitrijs2005/gophbell/internal/common"
	"github.com/dmitrijs2005/gophbell/internal/logging"
	"github.com/google/uuid"
)

// NotificationStore is the request/response side of notifications;
// *notifications.Repository implements it.
type NotificationStore interface {
	List(ctx context.Context, f notifications.Filter) (notifications.Page, error)
	Get(ctx context.Context, id uuid.UUID) (models.Notification, error)
	Delete(ctx context.Context, id uuid.UUID) error
	MarkRead(ctx context.Context, id uuid.UUID) (bool, error)
	MarkAllRead(ctx context.Context) (int, error)
}

// UnreadCounter is the live unread count; *notifications.Manager
// implements it.
type UnreadCounter interface {
	SetUserID(id string) error
	Subscribe(l notifications.Listener) (unsubscribe func())
	Count() int
	Refresh()
	State() notifications.State
}

type App struct {
	auth          services.AuthService
	profiles      services.ProfileService
	notifications NotificationStore
	unread        UnreadCounter
	log           logging.Logger

	reader *bufio.Reader
	out    io.Writer

	mu     sync.Mutex
	userID string
	email  string
}

func NewApp(auth services.AuthService, profiles services.ProfileService, store NotificationStore, unread UnreadCounter, log logging.Logger) *App {
	if log == nil {
		log = logging.Nop()
	}
	return &App{
		auth:          auth,
		profiles:      profiles,
		notifications: store,
		unread:        unread,
		log:           log,
		reader:        bufio.NewReader(os.Stdin),
		out:           os.Stdout,
	}
}

// Run restores a saved session, starts printing unread-count changes and
// runs the REPL until the user exits or stdin closes.
func (a *App) Run(ctx context.Context) {
	fmt.Fprintln(a.out, "Welcome to GophBell (type 'help' for commands)")

	if err := a.restore(ctx); err != nil {
		a.log.Warn(ctx, "could not restore session", "error", err)
	}

	unsubscribe := a.unread.Subscribe(a.unreadPrinter())
	defer unsubscribe()

	runREPL(ctx, a, a.status, a.reader)
}

func (a *App) isLoggedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userID != ""
}

func (a *App) status() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.userID == "" {
		return "(signed out)"
	}
	return fmt.Sprintf("(%s, %d unread)", a.email, a.unread.Count())
}

// restore picks up a session persisted by an earlier run.
func (a *App) restore(ctx context.Context) error {
	ok, err := a.auth.IsAuthenticated(ctx)
	if err != nil || !ok {
		return err
	}

	prof, err := a.profiles.Load(ctx)
	if errors.Is(err, common.ErrUnauthorized) {
		return nil
	}
	if err != nil {
		// Offline: fall back to the cached profile.
		cached, found, cerr := a.profiles.Current(ctx)
		if cerr != nil || !found {
			return err
		}
		prof = cached
	}

	fmt.Fprintf(a.out, "Signed in as %s\n", prof.Email)
	return a.signedIn(prof.ID, prof.Email)
}

func (a *App) signedIn(userID, email string) error {
	a.mu.Lock()
	a.userID = userID
	a.email = email
	a.mu.Unlock()
	return a.unread.SetUserID(userID)
}

func (a *App) signedOut() error {
	a.mu.Lock()
	a.userID = ""
	a.email = ""
	a.mu.Unlock()
	return a.unread.SetUserID("")
}

// unreadPrinter returns a listener that announces changes of the unread
// count, skipping the initial replay.
func (a *App) unreadPrinter() notifications.Listener {
	first := true
	last := 0
	return func(n int) {
		if first {
			first, last = false, n
			return
		}
		if n == last {
			return
		}
		last = n
		fmt.Fprintf(a.out, "\n[notifications] unread: %d\n", n)
	}
}
