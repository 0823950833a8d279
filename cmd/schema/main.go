package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/gophbell/internal/logging"
	"github.com/dmitrijs2005/gophbell/internal/server/schema"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const dsnEnv = "GOPHBELL_DATABASE_DSN"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	dsn       string
	logLevel  string
	logFormat string
}

// migrator is the part of *schema.Migrator the commands use.
type migrator interface {
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	Status(ctx context.Context) error
	Version(ctx context.Context) (int64, error)
}

// connect is replaced in tests.
var connect = func(ctx context.Context, o *options, log logging.Logger) (migrator, func() error, error) {
	db, err := schema.Open(ctx, o.dsn)
	if err != nil {
		return nil, nil, err
	}
	return schema.NewMigrator(db, log), db.Close, nil
}

func newRootCommand(out io.Writer) *cobra.Command {
	o := &options{dsn: os.Getenv(dsnEnv)}

	cmd := &cobra.Command{
		Use:           "schema",
		Short:         "Manage the GophBell backend database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)

	cmd.PersistentFlags().StringVar(&o.dsn, "dsn", o.dsn, "Postgres connection string (default $"+dsnEnv+")")
	cmd.PersistentFlags().StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&o.logFormat, "log-format", "text", "Log format: text or json")

	cmd.AddCommand(
		newMigrateCommand(o, "up", "Apply all pending migrations", migrator.Up),
		newMigrateCommand(o, "down", "Roll back the most recent migration", migrator.Down),
		newMigrateCommand(o, "status", "Show applied and pending migrations", migrator.Status),
	)
	return cmd
}

func newMigrateCommand(o *options, use, short string, action func(migrator, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if o.dsn == "" {
				return errors.New("no database configured: pass --dsn or set " + dsnEnv)
			}

			log := logging.New(cmd.ErrOrStderr(), o.logFormat, o.logLevel).With("command", use)

			m, closeFn, err := connect(ctx, o, log)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := action(m, ctx); err != nil {
				return fmt.Errorf("%s: %w", use, err)
			}

			v, err := m.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", v)
			return nil
		},
	}
}
