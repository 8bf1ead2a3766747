package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"shopee-dash/migrations"
)

// Drivers accepted by Open.
const (
	DriverSupabase = "supabase"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// OpenConfig selects and configures a store backend.
type OpenConfig struct {
	Driver      string
	Supabase    SupabaseConfig
	DatabaseURL string
	Schema      string
	SQLitePath  string
	// AutoMigrate applies the embedded Postgres migrations. SQLite is always migrated.
	AutoMigrate bool
}

// Open builds the configured backend. A Supabase backend with missing
// credentials yields Unconfigured instead of an error so the dashboard can
// start and report the problem.
func Open(ctx context.Context, cfg OpenConfig, logger *slog.Logger, opts ...Option) (Store, error) {
	switch cfg.Driver {
	case DriverSupabase, "":
		store, err := NewSupabase(cfg.Supabase, logger, opts...)
		if errors.Is(err, ErrNotConfigured) {
			var u Unconfigured
			if strings.TrimSpace(cfg.Supabase.URL) == "" {
				u.Missing = append(u.Missing, "SUPABASE_URL")
			}
			if strings.TrimSpace(cfg.Supabase.APIKey) == "" {
				u.Missing = append(u.Missing, "SUPABASE_KEY")
			}
			logger.Warn("supabase not configured; accounts unavailable until settings are provided", "missing", u.Missing)
			return u, nil
		}
		if err != nil {
			return nil, err
		}
		return store, nil

	case DriverPostgres:
		r, err := New(ctx, cfg.DatabaseURL, cfg.Schema, logger, opts...)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.AutoMigrate {
			if err := r.RunMigrations(ctx, migrations.Postgres()); err != nil {
				r.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
			logger.Info("database migrated", "driver", cfg.Driver)
		}
		return r, nil

	case DriverSQLite:
		r, err := NewSQLite(ctx, cfg.SQLitePath, logger, opts...)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := r.RunMigrations(ctx, migrations.SQLite()); err != nil {
			r.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		return r, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
