// Command txqd runs the txq service: it loads configuration, connects
// the Redis backlog and the Postgres entity store, starts the engine
// and serves the HTTP API until SIGINT or SIGTERM.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/siga-labs/txq/academic"
	"github.com/siga-labs/txq/api"
	"github.com/siga-labs/txq/backlog"
	"github.com/siga-labs/txq/callback"
	"github.com/siga-labs/txq/config"
	"github.com/siga-labs/txq/engine"
	"github.com/siga-labs/txq/status"
)

func main() {
	if err := run(); err != nil {
		slog.Error("txqd exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	bl := backlog.NewRedis(client, backlog.WithLogger(logger))
	if err := bl.Ping(ctx); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	st := status.NewRedis(client)

	entities, cleanup, err := openEntityStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	sender := callback.NewSender(
		callback.WithTimeout(cfg.Callback.Timeout),
		callback.WithLogger(logger),
	)

	eng, err := engine.New(bl, st, entities,
		engine.WithLogger(logger),
		engine.WithQueues(cfg.Descriptors()...),
		engine.WithVisibility(cfg.Reclaim.Visibility),
		engine.WithSweepSchedule(cfg.Reclaim.Schedule),
		engine.WithCallbackSender(sender),
	)
	if err != nil {
		return err
	}
	if err := eng.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.New(eng, api.WithLogger(logger)).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", slog.String("error", err.Error()))
	}
	return eng.Stop(shutdownCtx)
}

// openEntityStore connects the Bun store over Postgres and runs the
// embedded migrations when configured to.
func openEntityStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (academic.Store, func(), error) {
	if cfg.Postgres.DSN == "" {
		// No database configured: processors run against the in-memory
		// store, which is only useful for local experiments.
		logger.Warn("postgres.dsn is empty, using the in-memory entity store")
		return academic.NewMemory(), func() {}, nil
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.DSN)))
	db := bun.NewDB(sqldb, pgdialect.New())
	store := academic.NewBun(db, academic.WithLogger(logger))

	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("postgres ping: %w", err)
	}
	if cfg.Postgres.Migrate {
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	return store, func() { _ = db.Close() }, nil
}
