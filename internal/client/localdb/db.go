// Package localdb opens the client's SQLite database, applies the embedded
// goose migrations and vends the key-value repositories built on it.
package localdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/gophbell/internal/client/migrations"
	"github.com/dmitrijs2005/gophbell/internal/client/repositories/kv"
	"github.com/dmitrijs2005/gophbell/internal/common"
	"github.com/dmitrijs2005/gophbell/internal/cryptox"
	"github.com/dmitrijs2005/gophbell/internal/dbx"
	"github.com/dmitrijs2005/gophbell/internal/filex"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

const saltKey = "secure.salt"

// Repositories bundles the stores backed by one database. Secure is nil when
// no device secret was configured.
type Repositories struct {
	DB     *sql.DB
	Plain  kv.Repository
	Secure kv.Repository

	secureKey []byte
}

func (r *Repositories) Close() error {
	return r.DB.Close()
}

// Stores returns the repositories bound to the database itself.
func (r *Repositories) Stores() (plain, secure kv.Repository) {
	return r.Plain, r.Secure
}

// WithTx runs fn with plain and secure repositories bound to one
// transaction; either every write in fn lands or none does. fn must not use
// r.Plain or r.Secure: the pool holds a single connection.
func (r *Repositories) WithTx(ctx context.Context, fn func(ctx context.Context, plain, secure kv.Repository) error) error {
	return dbx.WithTx(ctx, r.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var secure kv.Repository
		if r.secureKey != nil {
			secure = kv.NewSecureRepository(kv.NewSQLiteRepository(tx, kv.TableSecure), r.secureKey)
		}
		return fn(ctx, kv.NewSQLiteRepository(tx, kv.TablePlain), secure)
	})
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open opens (creating if needed) the database at dsn and migrates it.
func Open(ctx context.Context, dsn string, deviceSecret string) (*Repositories, error) {
	if err := filex.EnsureParentDir(dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// A single writer avoids SQLITE_BUSY between the two tables.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate local db: %w", err)
	}

	repos := &Repositories{
		DB:    db,
		Plain: kv.NewSQLiteRepository(db, kv.TablePlain),
	}

	if deviceSecret != "" {
		key, err := secureKey(ctx, repos.Plain, deviceSecret)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		repos.secureKey = key
		repos.Secure = kv.NewSecureRepository(kv.NewSQLiteRepository(db, kv.TableSecure), key)
	}

	return repos, nil
}

// secureKey derives the secure-store key from the device secret and a salt
// persisted on first use.
func secureKey(ctx context.Context, plain kv.Repository, secret string) ([]byte, error) {
	salt, err := plain.Get(ctx, saltKey)
	if err != nil {
		return nil, err
	}
	if salt == nil {
		salt = common.GenerateRandByteArray(16)
		if err := plain.Set(ctx, saltKey, salt); err != nil {
			return nil, err
		}
	}
	return cryptox.DeriveKey([]byte(secret), salt), nil
}
