package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ArielSltty/Orion/internal/agent"
	"github.com/ArielSltty/Orion/internal/api"
	"github.com/ArielSltty/Orion/internal/config"
	"github.com/ArielSltty/Orion/internal/observability"
	"github.com/ArielSltty/Orion/internal/service"
	"github.com/ArielSltty/Orion/internal/storage"
	chstore "github.com/ArielSltty/Orion/internal/storage/clickhouse"
	"github.com/ArielSltty/Orion/internal/storage/memory"
	"github.com/ArielSltty/Orion/internal/storage/migrations"
	pgstore "github.com/ArielSltty/Orion/internal/storage/postgres"
)

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the simulation service",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply PostgreSQL and ClickHouse migrations and exit",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Storage.PostgresDSN == "" && cfg.Storage.ClickhouseDSN == "" {
		return errors.New("nothing to migrate: set storage.postgres_dsn or storage.clickhouse_dsn")
	}
	if cfg.Storage.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return err
		}
		err = migrations.RunPostgresMigrations(ctx, pool, logger)
		pool.Close()
		if err != nil {
			return err
		}
	}
	if cfg.Storage.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN, logger)
		if err != nil {
			return err
		}
		_ = conn.Close()
	}
	logger.Info("migrations applied")
	return nil
}

// stores is the storage selected by configuration.
type stores struct {
	requests storage.RequestStore
	archive  storage.ResultArchive
}

// openStores connects the configured backends. The in-memory archive is
// only used with the memory backend; a PostgreSQL deployment without a
// ClickHouse DSN keeps no archive.
func openStores(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, migrate bool) (*stores, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	s := &stores{}
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		if migrate {
			if err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
				cleanup()
				return nil, nil, err
			}
		}
		s.requests = storage.Instrument(pgstore.NewRequestStore(pool), metrics, config.BackendPostgres)
	default:
		s.requests = storage.Instrument(memory.NewRequestStore(), metrics, config.BackendMemory)
	}

	switch {
	case cfg.Storage.ClickhouseDSN != "":
		var conn *chstore.Conn
		var err error
		if migrate {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN, logger)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.Storage.ClickhouseDSN)
		}
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse: %w", err)
		}
		closers = append(closers, func() { _ = conn.Close() })
		s.archive = chstore.NewResultArchive(conn)
	case cfg.Storage.Backend == config.BackendMemory:
		s.archive = memory.NewResultArchive()
	}

	logger.Info("storage ready",
		zap.String("backend", cfg.Storage.Backend),
		zap.Bool("archive", s.archive != nil))
	return s, cleanup, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(cfg.Server.MetricsNamespace)

	st, cleanup, err := openStores(ctx, cfg, metrics, migrateOnStart)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer cleanup()

	hub := api.NewHub(metrics, logger)

	opts := service.Options{
		Store:         st.requests,
		Archive:       st.archive,
		Publisher:     hub,
		StaleAfter:    cfg.Server.StaleAfter,
		SweepInterval: cfg.Server.SweepInterval,
		Retention:     cfg.Server.Retention,
		Metrics:       metrics,
		Logger:        logger,
	}
	if cfg.Server.AgentEndpoint != "" {
		opts.Dispatcher = agent.NewDispatcher(agent.Config{
			Endpoint:    cfg.Server.AgentEndpoint,
			CallbackURL: agent.CallbackURL(cfg.Server.PublicURL),
			Token:       cfg.Server.AgentToken,
			MaxRetries:  cfg.Server.DispatchRetries,
		}, metrics, logger)
	} else {
		logger.Warn("no agent endpoint configured; requests stay pending until a result is delivered")
	}
	if cfg.Server.AgentToken == "" {
		logger.Warn("no agent token configured; any caller can deliver results")
	}

	svc := service.New(opts)
	defer svc.Close()
	hub.SetService(svc)

	server := &http.Server{
		Addr: cfg.Server.ListenAddr,
		Handler: api.NewHandler(api.Options{
			Service:        svc,
			Hub:            hub,
			Metrics:        metrics,
			Logger:         logger,
			AgentToken:     cfg.Server.AgentToken,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Debug:          cfg.Logging.Development,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server starting",
			zap.String("addr", cfg.Server.ListenAddr),
			zap.String("public_url", cfg.Server.PublicURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := svc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
