package localdb

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/gophbell/internal/client/repositories/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func TestOpen_CreatesTables(t *testing.T) {
	ctx := context.Background()
	repos, err := Open(ctx, filepath.Join(t.TempDir(), "app.db"), "")
	require.NoError(t, err)
	defer repos.Close()

	for _, name := range []string{"goose_db_version", "kv", "secure_kv"} {
		assert.True(t, tableExists(t, repos.DB, name), "table %s", name)
	}
	assert.Nil(t, repos.Secure, "no device secret, no secure store")
}

func TestRunMigrations_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrations(ctx, db))
	require.NoError(t, RunMigrations(ctx, db))
}

func TestOpen_SecureStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "app.db")

	repos, err := Open(ctx, dsn, "device-secret")
	require.NoError(t, err)
	require.NotNil(t, repos.Secure)
	require.NoError(t, repos.Secure.Set(ctx, "auth.refresh_token", []byte("R1")))
	require.NoError(t, repos.Close())

	repos, err = Open(ctx, dsn, "device-secret")
	require.NoError(t, err)
	defer repos.Close()

	v, err := repos.Secure.Get(ctx, "auth.refresh_token")
	require.NoError(t, err)
	assert.Equal(t, []byte("R1"), v)
}

func TestOpen_DifferentSecretCannotRead(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "app.db")

	repos, err := Open(ctx, dsn, "one")
	require.NoError(t, err)
	require.NoError(t, repos.Secure.Set(ctx, "k", []byte("v")))
	require.NoError(t, repos.Close())

	repos, err = Open(ctx, dsn, "two")
	require.NoError(t, err)
	defer repos.Close()

	_, err = repos.Secure.Get(ctx, "k")
	require.Error(t, err)
}

func TestWithTx_CommitsBothStores(t *testing.T) {
	ctx := context.Background()
	repos, err := Open(ctx, filepath.Join(t.TempDir(), "app.db"), "device-secret")
	require.NoError(t, err)
	defer repos.Close()

	err = repos.WithTx(ctx, func(ctx context.Context, plain, secure kv.Repository) error {
		require.NotNil(t, secure)
		if err := plain.Set(ctx, "p", []byte("1")); err != nil {
			return err
		}
		return secure.Set(ctx, "s", []byte("2"))
	})
	require.NoError(t, err)

	v, err := repos.Plain.Get(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
	v, err = repos.Secure.Get(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	repos, err := Open(ctx, filepath.Join(t.TempDir(), "app.db"), "device-secret")
	require.NoError(t, err)
	defer repos.Close()
	require.NoError(t, repos.Plain.Set(ctx, "p", []byte("old")))

	boom := errors.New("boom")
	err = repos.WithTx(ctx, func(ctx context.Context, plain, secure kv.Repository) error {
		if err := plain.Delete(ctx, "p"); err != nil {
			return err
		}
		if err := secure.Set(ctx, "s", []byte("new")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	v, err := repos.Plain.Get(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), v)
	v, err = repos.Secure.Get(ctx, "s")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestWithTx_NoSecureStoreWithoutSecret(t *testing.T) {
	ctx := context.Background()
	repos, err := Open(ctx, filepath.Join(t.TempDir(), "app.db"), "")
	require.NoError(t, err)
	defer repos.Close()

	err = repos.WithTx(ctx, func(_ context.Context, plain, secure kv.Repository) error {
		assert.NotNil(t, plain)
		assert.Nil(t, secure)
		return nil
	})
	require.NoError(t, err)
}
