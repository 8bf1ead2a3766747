package repo

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const backendPostgres = "postgres"

// Repository provides typed access to the accounts table on Postgres (Supabase or self-hosted).
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	schema string
	opts   options
}

// New opens a new connection pool to the database with the desired search_path.
func New(ctx context.Context, databaseURL, schema string, logger *slog.Logger, opts ...Option) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	if schema != "" {
		cfg.ConnConfig.RuntimeParams["search_path"] = schema
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	r := &Repository{
		pool:   pool,
		logger: logger.With("component", "repo"),
		schema: schema,
		opts:   buildOptions(opts),
	}

	if err := r.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return r, nil
}

// Close releases the connection pool.
func (r *Repository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Ping ensures the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations applies schema migrations on the connected database.
func (r *Repository) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	return ApplyMigrations(ctx, r.pool, filesystem)
}

// Upsert stores the account, replacing every field of an existing row with the same id.
func (r *Repository) Upsert(ctx context.Context, account Account) (err error) {
	defer func(start time.Time) { r.opts.observe(backendPostgres, "upsert", start, err) }(time.Now())

	if err := validateAccount(account); err != nil {
		return err
	}
	const q = `
INSERT INTO shopee_accounts (id, username, cookie, note, expiry, level, total_sales, total_commission, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
ON CONFLICT (id) DO UPDATE SET
    username = EXCLUDED.username,
    cookie = EXCLUDED.cookie,
    note = EXCLUDED.note,
    expiry = EXCLUDED.expiry,
    level = EXCLUDED.level,
    total_sales = EXCLUDED.total_sales,
    total_commission = EXCLUDED.total_commission,
    updated_at = EXCLUDED.updated_at;
`
	_, err = r.pool.Exec(ctx, q,
		account.ID,
		account.Username,
		account.Cookie,
		account.Note,
		account.Expiry,
		account.Level,
		account.TotalSales,
		account.TotalCommission,
		r.opts.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// List returns every account ordered by creation time, newest first.
func (r *Repository) List(ctx context.Context) (accounts []Account, err error) {
	defer func(start time.Time) { r.opts.observe(backendPostgres, "list", start, err) }(time.Now())

	const q = `
SELECT id, username, cookie, note, expiry, level, total_sales, total_commission, created_at
FROM shopee_accounts
ORDER BY created_at DESC, id ASC;
`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Username, &a.Cookie, &a.Note, &a.Expiry, &a.Level, &a.TotalSales, &a.TotalCommission, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// Remove deletes the account with the given id, if any.
func (r *Repository) Remove(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { r.opts.observe(backendPostgres, "remove", start, err) }(time.Now())

	if _, err = r.pool.Exec(ctx, `DELETE FROM shopee_accounts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("remove account: %w", err)
	}
	return nil
}
