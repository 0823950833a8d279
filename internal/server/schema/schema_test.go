package schema

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/gophbell/internal/logging"
	"github.com/dmitrijs2005/gophbell/internal/server/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSources_InVersionOrder(t *testing.T) {
	ms, err := Sources()
	require.NoError(t, err)
	require.Len(t, ms, 3)

	for i, m := range ms {
		assert.Equal(t, int64(i+1), m.Version)
	}
}

func TestMigrations_HaveUpAndDown(t *testing.T) {
	files, err := fs.Glob(migrations.Migrations, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, name := range files {
		b, err := fs.ReadFile(migrations.Migrations, name)
		require.NoError(t, err)
		text := string(b)

		up := strings.Index(text, "-- +goose Up")
		down := strings.Index(text, "-- +goose Down")
		assert.GreaterOrEqual(t, up, 0, name)
		assert.Greater(t, down, up, name)
		assert.Equal(t, strings.Count(text, "-- +goose StatementBegin"), strings.Count(text, "-- +goose StatementEnd"), name)
	}
}

func TestMigrations_DefineClientRPCs(t *testing.T) {
	b, err := fs.ReadFile(migrations.Migrations, "00003_notification_rpc.sql")
	require.NoError(t, err)
	text := string(b)

	for _, fn := range []string{
		"public.get_unread_count()",
		"public.mark_notification_read(notification_id uuid)",
		"public.mark_all_notifications_read()",
	} {
		assert.Contains(t, text, "CREATE OR REPLACE FUNCTION "+fn)
	}
}

func TestMigrations_PublishNotifications(t *testing.T) {
	b, err := fs.ReadFile(migrations.Migrations, "00002_notifications.sql")
	require.NoError(t, err)
	assert.Contains(t, string(b), "ALTER PUBLICATION supabase_realtime ADD TABLE public.notifications")
}

type recLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recLogger) add(level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, level+" "+msg)
}

func (r *recLogger) Debug(_ context.Context, msg string, _ ...any) { r.add("debug", msg) }
func (r *recLogger) Info(_ context.Context, msg string, _ ...any)  { r.add("info", msg) }
func (r *recLogger) Warn(_ context.Context, msg string, _ ...any)  { r.add("warn", msg) }
func (r *recLogger) Error(_ context.Context, msg string, _ ...any) { r.add("error", msg) }
func (r *recLogger) With(...any) logging.Logger                    { return r }

func TestGooseLogger(t *testing.T) {
	rec := &recLogger{}
	g := &gooseLogger{ctx: context.Background(), log: rec}

	g.Printf("OK   %s (%s)", "00001_profiles.sql", "12ms")
	g.Fatalf("failed: %v", fmt.Errorf("boom"))

	assert.Equal(t, []string{
		"info OK   00001_profiles.sql (12ms)",
		"error failed: boom",
	}, rec.msgs)
}
