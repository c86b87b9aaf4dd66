// Package main запускает HTTP-сервер портала жилищной очереди.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/housing-queue/internal/config"
	"github.com/mmeshcher/housing-queue/internal/handler"
	"github.com/mmeshcher/housing-queue/internal/metrics"
	"github.com/mmeshcher/housing-queue/internal/middleware"
	"github.com/mmeshcher/housing-queue/internal/notify"
	"github.com/mmeshcher/housing-queue/internal/repository"
	"github.com/mmeshcher/housing-queue/internal/service"
)

const (
	queueCheckBurst     = 10
	limiterCleanupEvery = time.Minute
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var repo service.Repository
	if cfg.DatabaseURI != "" {
		pgRepo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		repo = pgRepo
	} else {
		sugar.Warn("database URI is not set, applications are kept in memory")
		repo = repository.NewMemoryRepository()
	}

	var notifiers notify.Multi
	if cfg.RedisAddress != "" {
		redisNotifier, err := notify.NewRedisNotifier(ctx, cfg.RedisAddress)
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}
		defer redisNotifier.Close()
		notifiers = append(notifiers, redisNotifier)
	}
	if cfg.NotifyWebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.NotifyWebhookURL))
	}

	var notifier service.Notifier = notify.Nop{}
	if len(notifiers) > 0 {
		notifier = notifiers
	}

	m := metrics.New()

	svc := service.NewService(repo, notifier, logger, service.WithMetrics(m))
	defer svc.Close()

	if cfg.AuthSecret == "" {
		sugar.Warn("auth secret is not set, sessions will not survive a restart")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	limiter := middleware.NewRateLimiter(cfg.QueueCheckRPS, queueCheckBurst, logger)

	h := handler.NewHandler(svc, logger, authMiddleware, limiter, m)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Ежегодное начисление срока ожидания по расписанию
	g.Go(func() error {
		if err := svc.StartWaitingYearsAccrual(ctx, cfg.AccrualSchedule); err != nil {
			return err
		}
		sugar.Infow("waiting years accrual scheduled", "schedule", cfg.AccrualSchedule)
		<-ctx.Done()
		return nil
	})

	// Очистка неактивных клиентов ограничителя запросов
	g.Go(func() error {
		limiter.RunCleanup(ctx, limiterCleanupEvery)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting housing queue server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
