package repo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopee-dash/internal/logging"
)

func TestOpenSupabaseWithoutCredentials(t *testing.T) {
	store, err := Open(context.Background(), OpenConfig{Driver: DriverSupabase}, logging.Discard())
	require.NoError(t, err)

	u, ok := store.(Unconfigured)
	require.True(t, ok)
	assert.Equal(t, []string{"SUPABASE_URL", "SUPABASE_KEY"}, u.Missing)

	_, err = store.List(context.Background())
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestOpenSQLiteMigrates(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, OpenConfig{Driver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "a.db")}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.NoError(t, store.Upsert(ctx, sampleAccount("1", "Shop1")))
	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), OpenConfig{Driver: "mongo"}, logging.Discard())
	require.Error(t, err)
}
