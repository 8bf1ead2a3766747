package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopee-dash/internal/cache"
	"shopee-dash/internal/logging"
	"shopee-dash/internal/metrics"
	"shopee-dash/internal/repo"
	"shopee-dash/internal/shopee"
	"shopee-dash/migrations"
)

// flakyStore fails on demand in front of a real store.
type flakyStore struct {
	repo.Store
	failList  atomic.Bool
	failWrite atomic.Bool
}

func (s *flakyStore) List(ctx context.Context) ([]repo.Account, error) {
	if s.failList.Load() {
		return nil, fmt.Errorf("%w: connection refused", repo.ErrUnavailable)
	}
	return s.Store.List(ctx)
}

func (s *flakyStore) Upsert(ctx context.Context, a repo.Account) error {
	if s.failWrite.Load() {
		return fmt.Errorf("%w: connection refused", repo.ErrUnavailable)
	}
	return s.Store.Upsert(ctx, a)
}

func (s *flakyStore) Remove(ctx context.Context, id string) error {
	if s.failWrite.Load() {
		return fmt.Errorf("%w: connection refused", repo.ErrUnavailable)
	}
	return s.Store.Remove(ctx, id)
}

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	store    *flakyStore
	slot     *cache.FileSlot
	resolver *shopee.Resolver
	metrics  *metrics.Metrics
	registry *Registry
}

// newFixture wires a SQLite store, a file snapshot and a resolver whose
// upstream answers every probe with 500.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	clock := &stepClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	sqlite, err := repo.NewSQLite(ctx, filepath.Join(dir, "accounts.db"), logging.Discard(), repo.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(sqlite.Close)
	require.NoError(t, sqlite.RunMigrations(ctx, migrations.SQLite()))

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	t.Cleanup(upstream.Close)

	f := &fixture{
		store:   &flakyStore{Store: sqlite},
		slot:    cache.NewFileSlot(filepath.Join(dir, "cache", cache.DefaultSlotName+".json")),
		metrics: metrics.NewUnregistered("test"),
	}
	f.resolver = shopee.New(shopee.Config{
		StatusURL: upstream.URL + "/status",
		PageURL:   upstream.URL + "/page",
	}, logging.Discard(), f.metrics)
	f.registry = f.newRegistry()
	return f
}

func (f *fixture) newRegistry() *Registry {
	return New(f.store, f.resolver, logging.Discard(), WithCache(f.slot), WithMetrics(f.metrics))
}

func TestNewRegistryIsLoading(t *testing.T) {
	f := newFixture(t)
	v := f.registry.View()
	assert.Equal(t, StateLoading, v.State)
	assert.Empty(t, v.Accounts)
	assert.False(t, v.Syncing)
	assert.Nil(t, v.Notice)
}

func TestAddAccountWithUnreachableNameUsesFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acc, res, err := f.registry.AddAccount(ctx, "SPC_EC=abc; SPC_U=999; other=x", "Shop1")
	require.NoError(t, err)

	assert.Equal(t, shopee.KindFallback, res.Kind)
	assert.Equal(t, "999", acc.ID)
	assert.Equal(t, "User_999", acc.Username)
	assert.Equal(t, "Shop1", acc.Note)
	assert.Equal(t, repo.ExpiryActive, acc.Expiry)
	assert.Equal(t, "SPC_EC=abc; SPC_U=999; other=x", acc.Cookie)

	stored, err := f.store.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "User_999", stored[0].Username)

	v := f.registry.View()
	assert.Equal(t, StateReady, v.State)
	require.Len(t, v.Accounts, 1)
	require.NotNil(t, v.Notice)
	assert.Equal(t, NoticeWarning, v.Notice.Level)
}

func TestAddAccountTwiceUpserts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	raw := "SPC_EC=abc; SPC_U=999; other=x"

	_, _, err := f.registry.AddAccount(ctx, raw, "Shop1")
	require.NoError(t, err)
	_, _, err = f.registry.AddAccount(ctx, raw, "Shop1-renamed")
	require.NoError(t, err)

	stored, err := f.store.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "999", stored[0].ID)
	assert.Equal(t, "Shop1-renamed", stored[0].Note)

	v := f.registry.View()
	require.Len(t, v.Accounts, 1)
	assert.Equal(t, "Shop1-renamed", v.Accounts[0].Note)
}

func TestAddAccountWithoutIdentityKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.registry.AddAccount(ctx, "SPC_EC=abc; other=x", "Shop1")
	require.ErrorIs(t, err, ErrIdentityKey)

	stored, err := f.store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)

	v := f.registry.View()
	assert.Equal(t, StateLoading, v.State)
	require.NotNil(t, v.Notice)
	assert.Equal(t, NoticeError, v.Notice.Level)
	assert.False(t, v.Syncing)
}

func TestRefreshFallsBackToSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.registry.AddAccount(ctx, "SPC_U=1", "first")
	require.NoError(t, err)
	_, _, err = f.registry.AddAccount(ctx, "SPC_U=2", "second")
	require.NoError(t, err)

	// A fresh registry has never loaded but finds the snapshot on disk.
	f.store.failList.Store(true)
	fresh := f.newRegistry()
	err = fresh.Refresh(ctx)
	require.ErrorIs(t, err, repo.ErrUnavailable)

	v := fresh.View()
	assert.Equal(t, StateReadyWithWarning, v.State)
	assert.NotEmpty(t, v.Warning)
	require.Len(t, v.Accounts, 2)
	assert.Equal(t, "2", v.Accounts[0].ID)
	assert.Equal(t, "1", v.Accounts[1].ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RegistryState.WithLabelValues(string(StateReadyWithWarning))))
}

func TestRefreshKeepsLoadedAccountsWithoutSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := New(f.store, f.resolver, logging.Discard())

	_, _, err := r.AddAccount(ctx, "SPC_U=1", "first")
	require.NoError(t, err)

	f.store.failList.Store(true)
	require.Error(t, r.Refresh(ctx))

	v := r.View()
	assert.Equal(t, StateReadyWithWarning, v.State)
	require.Len(t, v.Accounts, 1)
	assert.Equal(t, "1", v.Accounts[0].ID)
}

func TestFirstRefreshWithoutSnapshotIsConfigError(t *testing.T) {
	f := newFixture(t)
	f.store.failList.Store(true)

	require.Error(t, f.registry.Refresh(context.Background()))
	v := f.registry.View()
	assert.Equal(t, StateConfigError, v.State)
	assert.Empty(t, v.Accounts)
}

func TestUnconfiguredStoreIsConfigError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.slot.Put(context.Background(), []repo.Account{{ID: "1"}}))

	r := New(repo.Unconfigured{Missing: []string{"SUPABASE_URL"}}, f.resolver, logging.Discard(), WithCache(f.slot))
	err := r.Refresh(context.Background())
	require.ErrorIs(t, err, repo.ErrNotConfigured)

	v := r.View()
	assert.Equal(t, StateConfigError, v.State)
	assert.Empty(t, v.Accounts)
}

func TestAddAccountStoreFailureLeavesCollection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.registry.AddAccount(ctx, "SPC_U=1", "first")
	require.NoError(t, err)

	f.store.failWrite.Store(true)
	_, _, err = f.registry.AddAccount(ctx, "SPC_U=2", "second")
	require.ErrorIs(t, err, ErrMutation)
	require.ErrorIs(t, err, repo.ErrUnavailable)

	v := f.registry.View()
	assert.Equal(t, StateReady, v.State)
	require.Len(t, v.Accounts, 1)
	assert.Equal(t, "1", v.Accounts[0].ID)
}

func TestRemoveAccountConfirmsThenUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.registry.AddAccount(ctx, "SPC_U=1", "first")
	require.NoError(t, err)
	_, _, err = f.registry.AddAccount(ctx, "SPC_U=2", "second")
	require.NoError(t, err)

	f.store.failWrite.Store(true)
	require.ErrorIs(t, f.registry.RemoveAccount(ctx, "1"), ErrMutation)
	assert.Len(t, f.registry.View().Accounts, 2)

	f.store.failWrite.Store(false)
	require.NoError(t, f.registry.RemoveAccount(ctx, "1"))

	v := f.registry.View()
	require.Len(t, v.Accounts, 1)
	assert.Equal(t, "2", v.Accounts[0].ID)

	var snapshot []repo.Account
	found, err := f.slot.Get(ctx, &snapshot)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "2", snapshot[0].ID)
}

func TestRemoveUnknownAccountIsIdempotent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.RemoveAccount(context.Background(), "missing"))
}

// stubResolver answers with a fixed result, optionally blocking until released.
type stubResolver struct {
	result  shopee.ResolvedName
	started chan struct{}
	release chan struct{}
}

func (s *stubResolver) Resolve(ctx context.Context, _, key string) (shopee.ResolvedName, error) {
	if s.started != nil {
		close(s.started)
		<-s.release
	}
	res := s.result
	if res.Kind == shopee.KindFallback {
		res.Name = repo.FallbackUsername(key)
	}
	return res, nil
}

func TestOverlappingCallsFailFast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stub := &stubResolver{
		result:  shopee.ResolvedName{Kind: shopee.KindConfirmed, Name: "seller"},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	r := New(f.store, stub, logging.Discard())

	done := make(chan error, 1)
	go func() {
		_, _, err := r.AddAccount(ctx, "SPC_U=1", "first")
		done <- err
	}()
	<-stub.started

	assert.True(t, r.View().Syncing)
	assert.ErrorIs(t, r.Refresh(ctx), ErrBusy)
	assert.ErrorIs(t, r.RemoveAccount(ctx, "1"), ErrBusy)
	_, _, err := r.AddAccount(ctx, "SPC_U=2", "second")
	assert.ErrorIs(t, err, ErrBusy)

	close(stub.release)
	require.NoError(t, <-done)
	assert.False(t, r.View().Syncing)
	assert.Len(t, r.View().Accounts, 1)
}

func TestReverifyUpgradesFallbackName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.registry.AddAccount(ctx, "SPC_U=1", "first")
	require.NoError(t, err)

	stub := &stubResolver{result: shopee.ResolvedName{Kind: shopee.KindConfirmed, Name: "seller_th", Source: "status"}}
	r := New(f.store, stub, logging.Discard())
	require.NoError(t, r.Refresh(ctx))

	acc, res, err := r.Reverify(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, shopee.KindConfirmed, res.Kind)
	assert.Equal(t, "seller_th", acc.Username)
	assert.Equal(t, "first", acc.Note)

	stored, err := f.store.List(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "seller_th", stored[0].Username)
}

func TestReverifyKeepsConfirmedName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Upsert(ctx, repo.Account{ID: "1", Username: "seller_th", Cookie: "SPC_U=1", Note: "n", Expiry: repo.ExpiryActive}))

	stub := &stubResolver{result: shopee.ResolvedName{Kind: shopee.KindFallback}}
	r := New(f.store, stub, logging.Discard())
	require.NoError(t, r.Refresh(ctx))

	acc, res, err := r.Reverify(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, shopee.KindConfirmed, res.Kind)
	assert.Equal(t, "seller_th", acc.Username)
}

func TestReverifyUnknownAccount(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.registry.Reverify(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResetClearsState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, _, err := f.registry.AddAccount(ctx, "SPC_U=1", "first")
	require.NoError(t, err)

	f.registry.Reset()
	v := f.registry.View()
	assert.Equal(t, StateLoading, v.State)
	assert.Empty(t, v.Accounts)
	assert.Nil(t, v.Notice)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.Accounts))
}
