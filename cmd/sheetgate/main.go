package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sheetgate/sheetgate/internal/app"
	"github.com/sheetgate/sheetgate/internal/auth"
	"github.com/sheetgate/sheetgate/internal/identity"
	"github.com/sheetgate/sheetgate/internal/observability"
	"github.com/sheetgate/sheetgate/internal/platform/cache"
	"github.com/sheetgate/sheetgate/internal/platform/db"
	"github.com/sheetgate/sheetgate/internal/rbac"
	"github.com/sheetgate/sheetgate/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, role listing cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	verifier := identity.NewVerifier(cfg.TokenSecret, cfg.TokenIssuer)
	identityMiddleware := identity.Middleware{Verifier: verifier, Logger: logger}

	rolesCache := rbac.NewCache(redisClient, cfg.RolesCacheTTL)
	store := rbac.NewService(rbac.NewRepository(pool), rolesCache, cfg.AdminEmailSet(), logger)

	metrics := observability.NewMetrics()

	authHandler := auth.NewHandler(logger, store)
	rbacHandler := rbac.NewHandler(logger, store)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:      logger,
		Config:      cfg,
		Identity:    identityMiddleware,
		AuthHandler: authHandler,
		RBACHandler: rbacHandler,
		JobsHandler: jobsHandler,
		Metrics:     metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
