// Package schema applies the embedded backend migrations to a Postgres
// database with goose.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gophbell/internal/logging"
	"github.com/dmitrijs2005/gophbell/internal/server/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const dialect = "pgx"

// goose keeps its settings in package globals.
var gooseMu sync.Mutex

// Open connects to dsn through the pgx stdlib driver and checks the
// connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

type Migrator struct {
	db  *sql.DB
	log logging.Logger
}

func NewMigrator(db *sql.DB, log logging.Logger) *Migrator {
	if log == nil {
		log = logging.Nop()
	}
	return &Migrator{db: db, log: log}
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	return m.run(ctx, func() error { return goose.UpContext(ctx, m.db, ".") })
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	return m.run(ctx, func() error { return goose.DownContext(ctx, m.db, ".") })
}

// Status logs the applied state of every migration.
func (m *Migrator) Status(ctx context.Context) error {
	return m.run(ctx, func() error { return goose.StatusContext(ctx, m.db, ".") })
}

// Version returns the current schema version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	var v int64
	err := m.run(ctx, func() error {
		var err error
		v, err = goose.GetDBVersionContext(ctx, m.db)
		return err
	})
	return v, err
}

func (m *Migrator) run(ctx context.Context, fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := configure(ctx, m.log); err != nil {
		return err
	}
	return fn()
}

func configure(ctx context.Context, log logging.Logger) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(&gooseLogger{ctx: ctx, log: log})
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	return nil
}

// Sources lists the embedded migrations in version order.
func Sources() (goose.Migrations, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.Migrations)
	return goose.CollectMigrations(".", 0, goose.MaxVersion)
}

// gooseLogger routes goose output to a logging.Logger.
type gooseLogger struct {
	ctx context.Context
	log logging.Logger
}

func (g *gooseLogger) Printf(format string, v ...any) {
	g.log.Info(g.ctx, fmt.Sprintf(format, v...))
}

// Fatalf is only reached on goose internal errors; it logs instead of
// exiting the process.
func (g *gooseLogger) Fatalf(format string, v ...any) {
	g.log.Error(g.ctx, fmt.Sprintf(format, v...))
}
