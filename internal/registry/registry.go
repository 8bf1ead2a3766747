// Package registry owns the in-memory account collection shown by the
// dashboard and reconciles it with the account store and the snapshot cache.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"shopee-dash/internal/cache"
	"shopee-dash/internal/cookie"
	"shopee-dash/internal/metrics"
	"shopee-dash/internal/repo"
	"shopee-dash/internal/shopee"
)

// State of the collection.
type State string

const (
	StateLoading          State = "loading"
	StateReady            State = "ready"
	StateReadyWithWarning State = "ready_with_warning"
	StateConfigError      State = "config_error"
)

var allStates = []State{StateLoading, StateReady, StateReadyWithWarning, StateConfigError}

var (
	// ErrBusy is returned when another mutation or refresh is in flight.
	ErrBusy = errors.New("registry is syncing")
	// ErrIdentityKey is returned when a submitted cookie carries no SPC_U value.
	ErrIdentityKey = errors.New("cookie has no identity key")
	// ErrMutation wraps store failures of add, remove and reverify.
	ErrMutation = errors.New("account store rejected the change")
	// ErrNotFound is returned for ids the registry does not hold.
	ErrNotFound = errors.New("account not found")
)

// Resolver resolves display names for cookies.
type Resolver interface {
	Resolve(ctx context.Context, cookie, identityKey string) (shopee.ResolvedName, error)
}

// NoticeLevel grades a Notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is the last user-facing message produced by an operation.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}

// View is a point-in-time copy of the registry.
type View struct {
	State    State          `json:"state"`
	Accounts []repo.Account `json:"accounts"`
	Warning  string         `json:"warning,omitempty"`
	Syncing  bool           `json:"syncing"`
	Notice   *Notice        `json:"notice,omitempty"`
}

// Registry holds the account collection. All methods are safe for concurrent use;
// mutations and refreshes are serialized by a syncing flag and fail fast with ErrBusy.
type Registry struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	store    repo.Store
	resolver Resolver
	slot     cache.Slot
	now      func() time.Time

	syncing atomic.Bool

	mu       sync.RWMutex
	state    State
	accounts []repo.Account
	warning  string
	notice   *Notice
	loaded   bool
}

// Option customises a Registry.
type Option func(*Registry)

// WithCache mirrors every successful load into slot and reads it back when the store fails.
func WithCache(slot cache.Slot) Option {
	return func(r *Registry) { r.slot = slot }
}

// WithMetrics publishes state and size gauges.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithClock overrides the clock stamped on notices.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates an empty registry in the Loading state.
func New(store repo.Store, resolver Resolver, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		logger:   logger.With("component", "registry"),
		store:    store,
		resolver: resolver,
		now:      time.Now,
		state:    StateLoading,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.publish()
	return r
}

// Reset returns the registry to its initial Loading state.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.state = StateLoading
	r.accounts = nil
	r.warning = ""
	r.notice = nil
	r.loaded = false
	r.mu.Unlock()
	r.syncing.Store(false)
	r.publish()
}

// View returns a copy of the current state.
func (r *Registry) View() View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v := View{
		State:    r.state,
		Accounts: slices.Clone(r.accounts),
		Warning:  r.warning,
		Syncing:  r.syncing.Load(),
	}
	if v.Accounts == nil {
		v.Accounts = []repo.Account{}
	}
	if r.notice != nil {
		n := *r.notice
		v.Notice = &n
	}
	return v
}

// Lookup returns the account with id from the current collection.
func (r *Registry) Lookup(id string) (repo.Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := slices.IndexFunc(r.accounts, func(a repo.Account) bool { return a.ID == id })
	if i < 0 {
		return repo.Account{}, false
	}
	return r.accounts[i], true
}

func (r *Registry) acquire() error {
	if !r.syncing.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

func (r *Registry) release() {
	r.syncing.Store(false)
}

// Refresh reloads the collection from the store. The returned error is the
// load failure, if any; the registry has already degraded accordingly.
func (r *Registry) Refresh(ctx context.Context) error {
	if err := r.acquire(); err != nil {
		return err
	}
	defer r.release()
	return r.refresh(ctx)
}

func (r *Registry) refresh(ctx context.Context) error {
	r.mu.Lock()
	r.state = StateLoading
	r.mu.Unlock()
	r.publish()
	defer r.publish()

	accounts, err := r.store.List(ctx)
	if err == nil {
		if accounts == nil {
			accounts = []repo.Account{}
		}
		r.mu.Lock()
		r.state = StateReady
		r.accounts = accounts
		r.warning = ""
		r.loaded = true
		r.mu.Unlock()
		r.mirror(ctx, accounts)
		r.logger.Info("accounts loaded", "count", len(accounts))
		return nil
	}

	if errors.Is(err, repo.ErrNotConfigured) {
		r.logger.Error("account store not configured", "error", err)
		r.mu.Lock()
		r.state = StateConfigError
		r.warning = ""
		r.mu.Unlock()
		r.setNotice(NoticeError, "Account store is not configured. Check the store settings and retry.")
		return fmt.Errorf("refresh accounts: %w", err)
	}

	r.countError()
	cached, found := r.readCache(ctx)

	r.mu.Lock()
	switch {
	case found:
		r.state = StateReadyWithWarning
		r.accounts = cached
		r.warning = "Account store is unreachable; showing the last saved snapshot."
	case r.loaded:
		r.state = StateReadyWithWarning
		r.warning = "Account store is unreachable; showing the accounts loaded earlier."
	default:
		r.state = StateConfigError
		r.warning = ""
	}
	state, warning := r.state, r.warning
	r.mu.Unlock()

	if state == StateConfigError {
		r.logger.Error("account store unreachable and no snapshot available", "error", err)
		r.setNotice(NoticeError, "Could not load accounts and no saved snapshot exists.")
	} else {
		r.logger.Warn("account store unreachable, degraded", "error", err, "from_cache", found)
		r.setNotice(NoticeWarning, warning)
	}
	return fmt.Errorf("refresh accounts: %w", err)
}

// AddAccount registers the account identified by the cookie's SPC_U value,
// replacing any existing record with the same id.
func (r *Registry) AddAccount(ctx context.Context, rawCookie, note string) (repo.Account, shopee.ResolvedName, error) {
	if err := r.acquire(); err != nil {
		return repo.Account{}, shopee.ResolvedName{}, err
	}
	defer r.release()

	key, ok := cookie.ExtractIdentityKey(rawCookie)
	if !ok {
		r.logger.Warn("cookie rejected", "cookie", cookie.Redact(rawCookie))
		r.setNotice(NoticeError, "SPC_U was not found in the cookie. Copy the full cookie string and try again.")
		return repo.Account{}, shopee.ResolvedName{}, fmt.Errorf("%w: %w", ErrIdentityKey, cookie.ErrIdentityKeyNotFound)
	}

	res, err := r.resolver.Resolve(ctx, rawCookie, key)
	if err != nil {
		r.setNotice(NoticeError, "SPC_U was not found in the cookie. Copy the full cookie string and try again.")
		return repo.Account{}, shopee.ResolvedName{}, fmt.Errorf("%w: %w", ErrIdentityKey, err)
	}

	account := repo.Account{
		ID:       key,
		Username: res.Name,
		Cookie:   rawCookie,
		Note:     note,
		Expiry:   repo.ExpiryActive,
	}
	if err := r.store.Upsert(ctx, account); err != nil {
		r.countError()
		r.logger.Error("add account failed", "id", key, "error", err)
		r.setNotice(NoticeError, "Saving the account failed: "+err.Error())
		return repo.Account{}, res, fmt.Errorf("%w: %w", ErrMutation, err)
	}
	r.logger.Info("account saved", "id", key, "kind", res.Kind.String(), "source", res.Source)

	if err := r.refresh(ctx); err != nil {
		r.logger.Warn("reload after add failed", "error", err)
	}
	if stored, ok := r.Lookup(key); ok {
		account = stored
	}

	if res.Kind == shopee.KindFallback {
		r.setNotice(NoticeWarning, fmt.Sprintf("Saved as %s; the shop name could not be verified.", res.Name))
	} else {
		r.setNotice(NoticeInfo, fmt.Sprintf("Saved %s.", res.Name))
	}
	return account, res, nil
}

// RemoveAccount deletes the account from the store and, once confirmed, from memory.
func (r *Registry) RemoveAccount(ctx context.Context, id string) error {
	if err := r.acquire(); err != nil {
		return err
	}
	defer r.release()

	if err := r.store.Remove(ctx, id); err != nil {
		r.countError()
		r.logger.Error("remove account failed", "id", id, "error", err)
		r.setNotice(NoticeError, "Removing the account failed: "+err.Error())
		return fmt.Errorf("%w: %w", ErrMutation, err)
	}

	r.mu.Lock()
	r.accounts = slices.DeleteFunc(slices.Clone(r.accounts), func(a repo.Account) bool { return a.ID == id })
	snapshot := slices.Clone(r.accounts)
	r.mu.Unlock()
	r.publish()

	r.mirror(ctx, snapshot)
	r.logger.Info("account removed", "id", id)
	r.setNotice(NoticeInfo, "Account removed.")
	return nil
}

// Reverify resolves the display name of a stored account again and saves it
// with the same note. A confirmed name is never replaced by a fallback.
func (r *Registry) Reverify(ctx context.Context, id string) (repo.Account, shopee.ResolvedName, error) {
	if err := r.acquire(); err != nil {
		return repo.Account{}, shopee.ResolvedName{}, err
	}
	defer r.release()

	account, ok := r.Lookup(id)
	if !ok {
		return repo.Account{}, shopee.ResolvedName{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	res, err := r.resolver.Resolve(ctx, account.Cookie, account.ID)
	if err != nil {
		return account, shopee.ResolvedName{}, fmt.Errorf("%w: %w", ErrIdentityKey, err)
	}
	if res.Kind == shopee.KindFallback && !account.NeedsVerification() {
		r.setNotice(NoticeWarning, fmt.Sprintf("Could not verify %s; keeping the current name.", account.Username))
		return account, shopee.Classify(account), nil
	}

	account.Username = res.Name
	if err := r.store.Upsert(ctx, account); err != nil {
		r.countError()
		r.logger.Error("reverify account failed", "id", id, "error", err)
		r.setNotice(NoticeError, "Saving the account failed: "+err.Error())
		return account, res, fmt.Errorf("%w: %w", ErrMutation, err)
	}

	if err := r.refresh(ctx); err != nil {
		r.logger.Warn("reload after reverify failed", "error", err)
	}
	if stored, ok := r.Lookup(id); ok {
		account = stored
	}
	r.setNotice(NoticeInfo, fmt.Sprintf("Verified %s.", res.Name))
	return account, res, nil
}

func (r *Registry) mirror(ctx context.Context, accounts []repo.Account) {
	if r.slot == nil {
		return
	}
	if err := r.slot.Put(ctx, accounts); err != nil {
		r.countError()
		r.logger.Warn("snapshot mirror failed", "slot", r.slot.Name(), "error", err)
	}
}

func (r *Registry) readCache(ctx context.Context) ([]repo.Account, bool) {
	if r.slot == nil {
		return nil, false
	}
	var accounts []repo.Account
	found, err := r.slot.Get(ctx, &accounts)
	if err != nil {
		r.logger.Warn("snapshot unreadable", "slot", r.slot.Name(), "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	if accounts == nil {
		accounts = []repo.Account{}
	}
	return accounts, true
}

func (r *Registry) setNotice(level NoticeLevel, message string) {
	r.mu.Lock()
	r.notice = &Notice{Level: level, Message: message, At: r.now()}
	r.mu.Unlock()
}

func (r *Registry) countError() {
	if r.metrics != nil {
		r.metrics.Errors.WithLabelValues("registry").Inc()
	}
}

func (r *Registry) publish() {
	if r.metrics == nil {
		return
	}
	r.mu.RLock()
	state, n := r.state, len(r.accounts)
	r.mu.RUnlock()
	for _, s := range allStates {
		v := 0.0
		if s == state {
			v = 1
		}
		r.metrics.RegistryState.WithLabelValues(string(s)).Set(v)
	}
	r.metrics.Accounts.Set(float64(n))
}
