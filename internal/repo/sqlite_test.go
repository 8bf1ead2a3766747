package repo

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"shopee-dash/internal/logging"
	"shopee-dash/migrations"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestSQLite(t *testing.T) (*SQLiteRepository, *stepClock) {
	t.Helper()
	clock := &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	ctx := context.Background()
	r, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "accounts.db"), logging.Discard(), WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(r.Close)
	require.NoError(t, r.RunMigrations(ctx, migrations.SQLite()))
	return r, clock
}

func sampleAccount(id, note string) Account {
	return Account{
		ID:       id,
		Username: FallbackUsername(id),
		Cookie:   "SPC_EC=abc; SPC_U=" + id,
		Note:     note,
		Expiry:   ExpiryActive,
	}
}

func TestSQLiteUpsertIsIdempotent(t *testing.T) {
	r, _ := newTestSQLite(t)
	ctx := context.Background()

	acc := sampleAccount("999", "Shop1")
	require.NoError(t, r.Upsert(ctx, acc))
	require.NoError(t, r.Upsert(ctx, acc))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "999", list[0].ID)
	assert.Equal(t, "User_999", list[0].Username)
}

func TestSQLiteUpsertReplacesFieldsAndKeepsCreation(t *testing.T) {
	r, _ := newTestSQLite(t)
	ctx := context.Background()

	level := "Lv 3"
	first := sampleAccount("999", "Shop1")
	first.Level = &level
	require.NoError(t, r.Upsert(ctx, first))

	before, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, before, 1)

	second := sampleAccount("999", "Shop1-renamed")
	second.Username = "realname"
	require.NoError(t, r.Upsert(ctx, second))

	after, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "Shop1-renamed", after[0].Note)
	assert.Equal(t, "realname", after[0].Username)
	assert.Nil(t, after[0].Level, "full replace clears fields absent from the new record")
	assert.Equal(t, before[0].CreatedAt, after[0].CreatedAt)
}

func TestSQLiteListNewestFirst(t *testing.T) {
	r, _ := newTestSQLite(t)
	ctx := context.Background()

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, r.Upsert(ctx, sampleAccount(id, "n"+id)))
	}
	// re-upserting the oldest must not move it to the top
	require.NoError(t, r.Upsert(ctx, sampleAccount("1", "changed")))

	list, err := r.List(ctx)
	require.NoError(t, err)
	ids := []string{}
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"3", "2", "1"}, ids)
}

func TestSQLiteRemove(t *testing.T) {
	r, _ := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, sampleAccount("1", "a")))
	require.NoError(t, r.Upsert(ctx, sampleAccount("2", "b")))

	require.NoError(t, r.Remove(ctx, "does-not-exist"))
	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, r.Remove(ctx, "1"))
	require.NoError(t, r.Remove(ctx, "1"))
	list, err = r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "2", list[0].ID)
}

func TestSQLiteRejectsEmptyID(t *testing.T) {
	r, _ := newTestSQLite(t)
	err := r.Upsert(context.Background(), Account{Cookie: "x", Note: "y"})
	require.ErrorIs(t, err, ErrInvalidAccount)
}

func TestSQLiteMigrationsAreRepeatable(t *testing.T) {
	r, _ := newTestSQLite(t)
	require.NoError(t, r.RunMigrations(context.Background(), migrations.SQLite()))
}

func TestNewSQLiteRequiresPath(t *testing.T) {
	_, err := NewSQLite(context.Background(), "  ", logging.Discard())
	require.ErrorIs(t, err, ErrNotConfigured)
}
