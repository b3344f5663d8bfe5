// Package main provides the entry point for the storefront server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/narvanalabs/storefront/internal/api"
	"github.com/narvanalabs/storefront/internal/auth"
	"github.com/narvanalabs/storefront/internal/domainverify"
	"github.com/narvanalabs/storefront/internal/metrics"
	"github.com/narvanalabs/storefront/internal/shutdown"
	"github.com/narvanalabs/storefront/internal/store"
	"github.com/narvanalabs/storefront/internal/store/memory"
	pgstore "github.com/narvanalabs/storefront/internal/store/postgres"
	"github.com/narvanalabs/storefront/internal/tenantcache"
	"github.com/narvanalabs/storefront/pkg/config"
	"github.com/narvanalabs/storefront/pkg/logger"
)

func main() {
	// Bootstrap logger until the configured one exists.
	log := logger.Default()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if log, err = logger.FromConfig(cfg.LogLevel, cfg.LogFormat); err != nil {
		logger.Default().Error("invalid log configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log.Logger)
	if err != nil {
		log.Error("failed to open store", "error", err, "driver", cfg.StoreDriver)
		os.Exit(1)
	}

	coordinator := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.ShutdownTimeout),
		shutdown.WithLogger(log.Logger),
	)
	coordinator.Register(shutdown.NewCloserComponent("store", st))

	m := metrics.New()
	cache := tenantcache.NewMemoryCache(m)
	warmer := tenantcache.NewWarmer(cache, st.Tenants(), log.Logger,
		tenantcache.WithTimeout(cfg.WarmupTimeout),
		tenantcache.WithMetrics(m),
	)

	resolver := domainverify.NewDNSResolver(cfg.DNS.Nameservers, cfg.DNS.Timeout)
	log.Info("dns resolver configured", "nameservers", resolver.Servers())

	verifier := domainverify.NewService(st.Tenants(), cache, resolver, log.Logger,
		domainverify.WithBaseDomain(cfg.BaseDomain),
		domainverify.WithLookupTimeout(cfg.DNS.Timeout),
		domainverify.WithMetrics(m),
	)

	authService := auth.NewService(&auth.Config{
		JWTSecret:   []byte(cfg.JWTSecret),
		TokenExpiry: cfg.JWTExpiry,
	}, log.Logger)

	server := api.NewServer(cfg, api.Deps{
		Store:    st,
		Cache:    cache,
		Warmer:   warmer,
		Verifier: verifier,
		Auth:     authService,
		Metrics:  m,
	}, log.Logger)

	coordinator.Register(shutdown.NewFuncComponent("http", server.Shutdown))

	// Startup warmup; the first routed request would trigger it otherwise.
	warmer.WarmOnce()

	exitCode := 0
	if err := server.Start(ctx); err != nil {
		log.Error("server error", "error", err)
		exitCode = 1
	}
	if err := coordinator.Shutdown(); err != nil {
		log.Error("shutdown incomplete", "error", err)
	}
	if coordinator.ExitCode() != 0 {
		exitCode = coordinator.ExitCode()
	}
	log.Info("server stopped")
	stop()
	os.Exit(exitCode)
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(), nil
	case config.StoreDriverPostgres:
		pg, err := pgstore.NewPostgresStore(pgstore.DefaultConfig(cfg.DatabaseDSN), log)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("migrating schema: %w", err)
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
