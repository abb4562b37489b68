package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-sis/meridian-sis/internal/app"
	"github.com/meridian-sis/meridian-sis/internal/audit"
	audithttp "github.com/meridian-sis/meridian-sis/internal/audit/http"
	"github.com/meridian-sis/meridian-sis/internal/catalog"
	"github.com/meridian-sis/meridian-sis/internal/observability"
	"github.com/meridian-sis/meridian-sis/internal/platform/cache"
	"github.com/meridian-sis/meridian-sis/internal/platform/db"
	"github.com/meridian-sis/meridian-sis/internal/rbac"
	"github.com/meridian-sis/meridian-sis/internal/shared"
	"github.com/meridian-sis/meridian-sis/internal/users"
	"github.com/meridian-sis/meridian-sis/jobs"
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
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	metrics := observability.NewMetrics()

	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)
	recorder := audit.NewRecorder(auditRepo, logger, metrics)

	usersRepo := users.NewRepository(pool)
	directory := users.NewDirectoryAdapter(usersRepo)

	rbacRepo := rbac.NewRepository(pool)
	rbacCache := rbac.NewCache(redisClient, cfg.PermissionCacheTTL)
	rbacService := rbac.NewService(rbacRepo, directory, recorder, rbacCache, logger)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo)

	usersService := users.NewService(usersRepo, recorder)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		Directory:      directory,
		CatalogHandler: catalog.NewHandler(logger, catalogService),
		RBACHandler:    rbac.NewHandler(logger, rbacService),
		UsersHandler:   users.NewHandler(logger, usersService, rbacMiddleware),
		AuditHandler:   audithttp.NewHandler(logger, auditService, rbacService),
		JobsHandler:    jobs.NewHandler(inspector, logger),
		RBACMiddleware: rbacMiddleware,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
