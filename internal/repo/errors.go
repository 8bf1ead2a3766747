package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotConfigured is returned when the store connection parameters are missing.
	ErrNotConfigured = errors.New("account store not configured")
	// ErrUnavailable wraps transport level failures reaching the store.
	ErrUnavailable = errors.New("account store unavailable")
	// ErrUnauthorized indicates the store rejected the configured credentials.
	ErrUnauthorized = errors.New("account store rejected credentials")
	// ErrInvalidAccount is returned for records that cannot be keyed.
	ErrInvalidAccount = errors.New("invalid account")
)

// Unconfigured is the Store used when connection parameters are absent.
// Every operation fails with ErrNotConfigured.
type Unconfigured struct {
	Missing []string
}

func (u Unconfigured) err() error {
	if len(u.Missing) == 0 {
		return ErrNotConfigured
	}
	return fmt.Errorf("%w: missing %s", ErrNotConfigured, strings.Join(u.Missing, ", "))
}

// Close is a no-op.
func (u Unconfigured) Close() {}

// Ping always fails.
func (u Unconfigured) Ping(context.Context) error { return u.err() }

// Upsert always fails.
func (u Unconfigured) Upsert(context.Context, Account) error { return u.err() }

// List always fails.
func (u Unconfigured) List(context.Context) ([]Account, error) { return nil, u.err() }

// Remove always fails.
func (u Unconfigured) Remove(context.Context, string) error { return u.err() }

func validateAccount(a Account) error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidAccount)
	}
	return nil
}
