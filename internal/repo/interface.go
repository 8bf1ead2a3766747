package repo

import (
	"context"
	"io/fs"
)

// Store defines the persistence boundary for accounts.
type Store interface {
	// Lifecycle
	Close()
	Ping(ctx context.Context) error

	// Upsert inserts the account or replaces every mutable field of the
	// record with the same id. The creation time of an existing record is kept.
	Upsert(ctx context.Context, account Account) error
	// List returns all accounts, newest first.
	List(ctx context.Context) ([]Account, error)
	// Remove deletes by id. Removing an unknown id is not an error.
	Remove(ctx context.Context, id string) error
}

// Migrator is implemented by backends owning their schema.
type Migrator interface {
	RunMigrations(ctx context.Context, filesystem fs.FS) error
}
