package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/gophbell/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
// Only the flags handled here are picked out of os.Args (see
// flagx.FilterArgs), so other parsers can share the command line.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-u", "-k", "-d", "-t", "-r", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.BackendURL, "u", cfg.BackendURL, "backend base URL")
	fs.StringVar(&cfg.AnonKey, "k", cfg.AnonKey, "anon API key")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database path")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")
	reconnect := fs.Int("r", int(cfg.ReconnectDelay.Seconds()), "realtime reconnect delay (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	// Durations are only touched when given, so sub-second values from JSON
	// survive the integer round trip.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			cfg.RequestTimeout = time.Duration(*timeout) * time.Second
		case "r":
			cfg.ReconnectDelay = time.Duration(*reconnect) * time.Second
		}
	})
}
