// Command watchy runs the agent infrastructure auditor: an HTTP service that
// reads EIP-8004 registrations on-chain, probes the registered agents'
// endpoints, and scores their infrastructure health.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/watchy-xyz/watchy/pkg/api"
	"github.com/watchy-xyz/watchy/pkg/audit"
	"github.com/watchy-xyz/watchy/pkg/chain"
	"github.com/watchy-xyz/watchy/pkg/chains"
	"github.com/watchy-xyz/watchy/pkg/config"
	"github.com/watchy-xyz/watchy/pkg/metadata"
	"github.com/watchy-xyz/watchy/pkg/probe"
	"github.com/watchy-xyz/watchy/pkg/store"
)

const version = "0.4.0"

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	table := chains.Defaults()
	if cfg.ChainsFile != "" {
		table, err = chains.LoadFile(cfg.ChainsFile)
		if err != nil {
			return err
		}
		log.Info("chain table overlaid", "file", cfg.ChainsFile)
	}

	httpClient := &http.Client{Timeout: probe.DefaultTimeout}
	engine := audit.NewEngine(
		table,
		chain.NewResolver(table, httpClient),
		metadata.NewResolver(httpClient),
		probe.NewClient(0),
		audit.WithClientAddress(cfg.SignerAddress),
		audit.WithLogger(log),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var jobs store.JobStore
	if cfg.RedisURL != "" {
		rs := store.NewRedisStore(ctx, cfg.RedisURL, log)
		log.Info("job store ready", "redis", rs.HasRedis())
		jobs = rs
	} else {
		log.Info("job store ready", "redis", false)
		jobs = store.NewMemoryStore()
	}

	archive, closeArchive, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}
	if closeArchive != nil {
		defer closeArchive()
	}
	log.Info("report archive", "enabled", archive != nil, "driver", cfg.ArchiveDriver)

	srv := api.NewServer(cfg, table, jobs, archive, engine, log, version)
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", httpSrv.Addr, "version", version,
			"default_chain", cfg.DefaultChainID, "auth", cfg.APIKey != "")
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Drain in-flight audits so their results still land in the stores.
	srv.Wait()
	return nil
}

// openArchive opens the SQL report archive when a DSN is configured. The
// returned close function is nil when archiving is disabled.
func openArchive(ctx context.Context, cfg config.Config) (store.Archive, func(), error) {
	if cfg.ArchiveDSN == "" {
		return nil, nil, nil
	}

	var (
		db      *sql.DB
		archive *store.SQLArchive
		err     error
	)
	switch cfg.ArchiveDriver {
	case "postgres":
		db, err = sql.Open("postgres", cfg.ArchiveDSN)
		if err == nil {
			archive = store.NewPostgresArchive(db)
		}
	default:
		db, err = sql.Open("sqlite", cfg.ArchiveDSN)
		if err == nil {
			archive = store.NewSQLiteArchive(db)
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open archive: %w", err)
	}

	if err := archive.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return archive, func() { db.Close() }, nil
}
