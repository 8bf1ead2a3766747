// Command migrate imports a legacy account export into the configured store.
//
//	migrate -source export.json
//	migrate -source https://script.google.com/macros/s/<id>/exec -dry-run
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shopee-dash/internal/config"
	"shopee-dash/internal/legacy"
	"shopee-dash/internal/logging"
	"shopee-dash/internal/repo"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	source := flag.String("source", "", "export file path or http(s) URL returning a JSON array")
	dryRun := flag.Bool("dry-run", false, "print the normalized accounts without writing them")
	flag.Parse()
	if *source == "" {
		flag.Usage()
		return fmt.Errorf("-source is required")
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	records, err := legacy.Load(ctx, *source)
	if err != nil {
		return fmt.Errorf("load export: %w", err)
	}
	accounts := legacy.Normalize(records, time.Now())
	logger.Info("export loaded", "records", len(records))

	if *dryRun {
		for _, a := range accounts {
			fmt.Printf("%s\t%s\t%s\t%s\n", a.ID, a.Username, a.Note, a.Expiry)
		}
		return nil
	}

	store, err := repo.Open(ctx, cfg.Store(), logger)
	if err != nil {
		return fmt.Errorf("init account store: %w", err)
	}
	defer store.Close()

	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("account store unreachable: %w", err)
	}

	res := legacy.Import(ctx, store, accounts, logger)
	logger.Info("import finished", "imported", res.Imported, "failed", res.Failed)
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d accounts failed to import", res.Failed, len(accounts))
	}
	return nil
}
