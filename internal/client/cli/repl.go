package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dmitrijs2005/gophbell/internal/common"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	ForgotPassword(ctx context.Context) error
	Logout(ctx context.Context) error
	Profile(ctx context.Context) error
	EditProfile(ctx context.Context) error
	Avatar(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Read(ctx context.Context, args []string) error
	ReadAll(ctx context.Context) error
	Delete(ctx context.Context, args []string) error
	Unread(ctx context.Context) error
}

var (
	guestCommands  = "register, login, forgot, exit"
	memberCommands = "list [unread] [page N] [type T] [category C] [priority P], show <id>, read <id>, readall, delete <id>, unread, profile, editprofile, avatar <path>, logout, exit"
)

// runREPL starts a read–eval–print loop over in.
//
// The first token of each line is the command, the rest are its arguments.
// Commands that need a session are refused while signed out. Errors returned
// by handlers are printed in a user-facing form and the loop continues. The
// loop exits on EOF or when the user types "exit" or "quit".
func runREPL(ctx context.Context, a execIface, statusFn func() string, in *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("gb %s> ", statusFn()))

		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		if cmd == "exit" || cmd == "quit" {
			printlnFn("Bye!")
			return
		}
		if err := dispatch(ctx, a, cmd, args); err != nil {
			printlnFn(describeError(err))
		}
	}
}

func dispatch(ctx context.Context, a execIface, cmd string, args []string) error {
	switch cmd {
	case "help":
		if a.isLoggedIn() {
			printlnFn("Available commands: " + memberCommands)
		} else {
			printlnFn("Available commands: " + guestCommands)
		}
		return nil
	case "register":
		return a.Register(ctx)
	case "login":
		return a.Login(ctx)
	case "forgot":
		return a.ForgotPassword(ctx)
	}

	member := map[string]func() error{
		"logout":      func() error { return a.Logout(ctx) },
		"profile":     func() error { return a.Profile(ctx) },
		"editprofile": func() error { return a.EditProfile(ctx) },
		"avatar":      func() error { return a.Avatar(ctx, args) },
		"l":           func() error { return a.List(ctx, args) },
		"list":        func() error { return a.List(ctx, args) },
		"show":        func() error { return a.Show(ctx, args) },
		"read":        func() error { return a.Read(ctx, args) },
		"readall":     func() error { return a.ReadAll(ctx) },
		"delete":      func() error { return a.Delete(ctx, args) },
		"unread":      func() error { return a.Unread(ctx) },
	}
	run, ok := member[cmd]
	switch {
	case !ok:
		printlnFn("Unknown command:", cmd)
		return nil
	case !a.isLoggedIn():
		printlnFn("Please log in first")
		return nil
	default:
		return run()
	}
}

// errUsage marks argument mistakes; the message is shown as is.
var errUsage = errors.New("usage")

func usage(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errUsage}, args...)...)
}

// describeError turns an error into the line shown to the user.
func describeError(err error) string {
	var ve *common.ValidationError
	switch {
	case errors.As(err, &ve):
		keys := make([]string, 0, len(ve.Fields))
		for k := range ve.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("  %s %s", k, ve.Fields[k]))
		}
		return "Please fix the following:\n" + strings.Join(lines, "\n")
	case errors.Is(err, errUsage):
		return "Usage" + strings.TrimPrefix(err.Error(), errUsage.Error())
	case errors.Is(err, common.ErrUnauthorized):
		return "Not authorized. Please log in again."
	case errors.Is(err, common.ErrNotFound):
		return "Not found."
	case errors.Is(err, common.ErrTimeout), errors.Is(err, common.ErrUnavailable):
		return "The service is unavailable right now. Please try again later."
	default:
		return "Unexpected error: " + err.Error()
	}
}
