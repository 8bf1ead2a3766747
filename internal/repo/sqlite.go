package repo

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const backendSQLite = "sqlite"

// SQLiteRepository stores accounts in a local SQLite database.
type SQLiteRepository struct {
	db     *sql.DB
	logger *slog.Logger
	opts   options
}

// NewSQLite opens a new connection to the SQLite database.
func NewSQLite(ctx context.Context, databasePath string, logger *slog.Logger, opts ...Option) (*SQLiteRepository, error) {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite database path is empty", ErrNotConfigured)
	}
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn = fmt.Sprintf("%s%s_pragma=busy_timeout=10000&_pragma=journal_mode=WAL", dsn, sep)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteRepository{
		db:     db,
		logger: logger.With("component", "repo_sqlite"),
		opts:   buildOptions(opts),
	}, nil
}

// Close releases the database connection.
func (r *SQLiteRepository) Close() {
	if r.db != nil {
		r.db.Close()
	}
}

// Ping ensures the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// RunMigrations applies schema migrations on the connected database.
func (r *SQLiteRepository) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	return ApplySQLMigrations(ctx, r.db, filesystem)
}

// Upsert stores the account, replacing every field of an existing row with the same id.
func (r *SQLiteRepository) Upsert(ctx context.Context, account Account) (err error) {
	defer func(start time.Time) { r.opts.observe(backendSQLite, "upsert", start, err) }(time.Now())

	if err := validateAccount(account); err != nil {
		return err
	}
	const q = `
INSERT INTO shopee_accounts (id, username, cookie, note, expiry, level, total_sales, total_commission, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    username = excluded.username,
    cookie = excluded.cookie,
    note = excluded.note,
    expiry = excluded.expiry,
    level = excluded.level,
    total_sales = excluded.total_sales,
    total_commission = excluded.total_commission,
    updated_at = excluded.updated_at;
`
	now := r.opts.now().UTC().UnixNano()
	_, err = r.db.ExecContext(ctx, q,
		account.ID,
		account.Username,
		account.Cookie,
		account.Note,
		account.Expiry,
		account.Level,
		account.TotalSales,
		account.TotalCommission,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// List returns every account ordered by creation time, newest first.
func (r *SQLiteRepository) List(ctx context.Context) (accounts []Account, err error) {
	defer func(start time.Time) { r.opts.observe(backendSQLite, "list", start, err) }(time.Now())

	const q = `
SELECT id, username, cookie, note, expiry, level, total_sales, total_commission, created_at
FROM shopee_accounts
ORDER BY created_at DESC, id ASC;
`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a         Account
			createdAt int64
		)
		if err := rows.Scan(&a.ID, &a.Username, &a.Cookie, &a.Note, &a.Expiry, &a.Level, &a.TotalSales, &a.TotalCommission, &createdAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.CreatedAt = time.Unix(0, createdAt).UTC()
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// Remove deletes the account with the given id, if any.
func (r *SQLiteRepository) Remove(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { r.opts.observe(backendSQLite, "remove", start, err) }(time.Now())

	if _, err = r.db.ExecContext(ctx, `DELETE FROM shopee_accounts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove account: %w", err)
	}
	return nil
}
