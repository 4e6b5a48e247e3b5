package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/authguard/internal/auth"
	"github.com/BradenHooton/authguard/internal/background"
	"github.com/BradenHooton/authguard/internal/config"
	"github.com/BradenHooton/authguard/internal/database"
	"github.com/BradenHooton/authguard/internal/handlers"
	"github.com/BradenHooton/authguard/internal/metrics"
	middlewareCustom "github.com/BradenHooton/authguard/internal/middleware"
	"github.com/BradenHooton/authguard/internal/retry"
	"github.com/BradenHooton/authguard/internal/routes"
	"github.com/BradenHooton/authguard/internal/services"
	"github.com/BradenHooton/authguard/internal/store"
	pkglogger "github.com/BradenHooton/authguard/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// backend is the store selected by STORE_DRIVER plus whatever it needs at runtime
type backend struct {
	kv      store.KVStore
	health  handlers.HealthChecker
	cleanup *background.CleanupManager
	close   func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := pkglogger.New(os.Stdout, cfg.Server.LogLevel)
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("store", cfg.Store.Driver),
		slog.String("installation_id", cfg.Server.InstallationID))

	if err := run(cfg, logger); err != nil {
		logger.Error("authguard exited with error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	auditLogger := pkglogger.NewAuditLogger(logger)
	retrier := retry.NewExecutor(retry.WithLogger(logger), retry.WithMetrics(m))
	opts := []services.Option{
		services.WithRetryExecutor(retrier),
		services.WithMetrics(m),
		services.WithAuditLogger(auditLogger),
	}

	// Guard components
	limiter := services.NewRateLimiter(be.kv, services.RateLimitConfig{
		MaxAttemptsPerWindow: cfg.Guard.RateLimitMaxAttempts,
		WindowDuration:       cfg.Guard.RateLimitWindow,
	}, logger, opts...)

	lockout := services.NewLockoutGuard(be.kv, services.LockoutConfig{
		MaxAttempts:                cfg.Guard.LockoutMaxAttempts,
		LockoutDuration:            cfg.Guard.LockoutDuration,
		ExtendOnFailureWhileLocked: cfg.Guard.LockoutExtendWhileLocked,
	}, logger, opts...)

	vault := services.NewBackupCodeVault(be.kv, services.BackupCodeConfig{
		Count:        cfg.Guard.BackupCodeCount,
		LowThreshold: cfg.Guard.BackupCodeLowThreshold,
		HashCost:     cfg.Guard.BackupCodeHashCost,
	}, logger, opts...)

	totpManager, err := auth.NewTOTPManager(cfg.Guard.TOTPIssuer)
	if err != nil {
		return fmt.Errorf("init totp: %w", err)
	}
	twoFactor := services.NewTwoFactorService(vault, totpManager, logger)

	// HTTP surface
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenExpiry)
	guardHandler := handlers.NewGuardHandler(limiter, lockout, vault, twoFactor, logger)
	healthHandler := handlers.NewHealthHandler(be.health, cfg.Store.Driver, cfg.Server.InstallationID, logger)

	rateLimitConfig := middlewareCustom.DefaultRateLimit()
	rateLimitConfig.RequestsPerMinute = cfg.Server.RequestsPerMinute

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, guardHandler, healthHandler,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), tokenManager, rateLimitConfig)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if be.cleanup != nil {
		g.Go(func() error { return be.cleanup.Start(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		if be.cleanup != nil {
			be.cleanup.Stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// openBackend connects the configured store. Postgres rows never expire on
// their own, so that driver also gets a cleanup manager for rate-limit windows.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backend, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverRedis:
		rs, err := store.OpenRedisStore(ctx, store.RedisConfig{
			URL:       cfg.Store.RedisURL,
			KeyPrefix: cfg.Store.RedisKeyPrefix,
			TTL:       cfg.Store.RedisTTL,
			// Lockout and two-factor records must outlive any TTL
			TTLNamespaces: []string{services.NamespaceRateLimit},
			PoolSize:      cfg.Store.RedisPoolSize,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		logger.Info("redis store connected")
		return &backend{
			kv:     rs,
			health: rs,
			close: func() {
				if err := rs.Close(); err != nil {
					logger.Warn("failed to close redis client", slog.Any("error", err))
				}
			},
		}, nil

	case config.StoreDriverPostgres:
		db, err := database.NewConnection(&cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		ps := store.NewPostgresStore(db)
		cleanup := background.NewCleanupManager(ps, []background.PurgeTarget{
			{Namespace: services.NamespaceRateLimit, MaxAge: cfg.Guard.RateLimitWindow},
		}, logger, cfg.Guard.CleanupInterval)
		return &backend{kv: ps, health: ps, cleanup: cleanup, close: db.Close}, nil

	default:
		logger.Warn("using in-memory store; guard state is lost on restart")
		return &backend{kv: store.NewMemoryStore(), close: func() {}}, nil
	}
}
