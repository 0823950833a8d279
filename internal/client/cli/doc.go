// Package cli provides the interactive GophBell terminal client.
//
// It drives the same services a mobile front end would: sign up, sign in,
// profile editing, avatar upload, and browsing and managing notifications.
// A live unread counter, fed by the notification manager, is printed
// whenever it changes.
//
// Commands:
//   - register / login / forgot / logout
//   - profile / editprofile / avatar <path>
//   - list [unread] [page N] [type T] [category C] [priority P]
//   - show <id> / read <id> / readall / delete <id> / unread
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
