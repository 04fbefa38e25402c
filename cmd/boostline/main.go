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
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/boostline/boostline/internal/app"
	"github.com/boostline/boostline/internal/audit"
	"github.com/boostline/boostline/internal/gate"
	"github.com/boostline/boostline/internal/identity"
	"github.com/boostline/boostline/internal/observability"
	"github.com/boostline/boostline/internal/platform/cache"
	"github.com/boostline/boostline/internal/ratelimit"
	"github.com/boostline/boostline/internal/serviceaccount"
	"github.com/boostline/boostline/internal/session"
	"github.com/boostline/boostline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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
	metrics := observability.NewMetrics()

	identityClient := identity.NewClient(cfg.IdentityBaseURL, cfg.IdentityAPIKey)
	sessions := session.NewAdapter(identityClient, logger, cfg.IsProduction(), cfg.SessionTTL)

	accounts := serviceaccount.LoadAccounts(cfg.ServiceAccounts, logger)
	verifier := serviceaccount.NewVerifier(accounts, cfg.MaintenanceSecret)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error("connect redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	var limiter ratelimit.Store
	memoryStore := ratelimit.NewMemoryStore()
	if redisClient != nil {
		limiter = ratelimit.NewRedisStore(redisClient)
	} else {
		limiter = memoryStore
	}

	// Audit delivery: queue through Redis when available so the worker
	// persists records durably; otherwise post straight to the
	// collector.
	var sink audit.Sink
	var asynqClient *asynq.Client
	if cfg.RedisAddr != "" {
		asynqClient = asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := asynqClient.Close(); err != nil {
				logger.Warn("asynq close", slog.Any("error", err))
			}
		}()
		sink = jobs.NewEnqueuer(asynqClient)
	} else {
		sink = audit.NewHTTPSink(cfg.AuditBaseURL, cfg.AuditAPIKey)
	}
	dispatcher := audit.NewDispatcher(sink, logger, cfg.AuditQueueSize)

	g := gate.New(gate.Config{
		Policies: gate.DefaultPolicies(),
		Limiter:  limiter,
		Verifier: verifier,
		Sessions: sessions,
		Recorder: dispatcher,
		Observer: metrics,
		Logger:   logger,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		Gate:       g,
		Metrics:    metrics,
		Downstream: storefrontHandler(logger, sessions, identityClient, dispatcher),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return dispatcher.Run(groupCtx)
	})

	if redisClient == nil {
		group.Go(func() error {
			memoryStore.StartSweeper(groupCtx, cfg.RateLimitSweepInterval, logger)
			return nil
		})
	}

	group.Go(func() error {
		logger.Info("gateway listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("gateway stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}
