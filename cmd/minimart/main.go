// Package main запускает HTTP-сервер кассового сервиса мини-маркета.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/minimart-pos/internal/billing"
	"github.com/mmeshcher/minimart-pos/internal/checkout"
	"github.com/mmeshcher/minimart-pos/internal/config"
	"github.com/mmeshcher/minimart-pos/internal/handler"
	"github.com/mmeshcher/minimart-pos/internal/idempotency"
	"github.com/mmeshcher/minimart-pos/internal/metrics"
	"github.com/mmeshcher/minimart-pos/internal/middleware"
	"github.com/mmeshcher/minimart-pos/internal/printer"
	"github.com/mmeshcher/minimart-pos/internal/repository"
	"github.com/mmeshcher/minimart-pos/internal/service"
)

const receiptQueueSize = 64

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	policy, err := cfg.LoyaltyPolicy()
	if err != nil {
		sugar.Fatalw("loyalty policy error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	m := metrics.New("minimart", prometheus.DefaultRegisterer)

	var guard checkout.Guard = idempotency.NewLocalGuard()
	if cfg.RedisAddress != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		defer rdb.Close()
		guard = idempotency.NewRedisGuard(rdb, time.Minute)
	}

	var spooler *printer.Spooler
	deps := checkout.Deps{
		Store:   repo,
		Engine:  billing.NewEngine(policy),
		Guard:   guard,
		Logger:  logger,
		Metrics: m,
	}
	if cfg.ReceiptPrinterAddress != "" {
		spooler = printer.NewSpooler(printer.NewClient(cfg.ReceiptPrinterAddress), receiptQueueSize, logger, m)
		deps.Printer = spooler
	}

	sequencer := checkout.NewSequencer(deps, checkout.Config{
		InvoicePrefix:     cfg.InvoicePrefix,
		InvoiceRetryLimit: cfg.InvoiceRetryLimit,
		StepTimeout:       cfg.StoreCallTimeout,
	})
	reconciler := checkout.NewReconciler(repo, cfg.ReconcileInterval, cfg.PendingThreshold, logger, m)

	svc := service.NewService(repo, logger)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, sequencer, logger, authMiddleware, m)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Поиск зависших чеков в статусе pending
	g.Go(func() error {
		return reconciler.Run(ctx)
	})

	if spooler != nil {
		g.Go(func() error {
			return spooler.Run(ctx)
		})
	}

	g.Go(func() error {
		sugar.Infow("starting minimart server", "addr", cfg.RunAddress, "invoice_prefix", cfg.InvoicePrefix)
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
