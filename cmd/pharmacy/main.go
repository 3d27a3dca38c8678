// Package main запускает HTTP-сервер витрины аптеки.
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/pharmacy-storefront/internal/config"
	"github.com/mmeshcher/pharmacy-storefront/internal/events"
	"github.com/mmeshcher/pharmacy-storefront/internal/handler"
	"github.com/mmeshcher/pharmacy-storefront/internal/metrics"
	"github.com/mmeshcher/pharmacy-storefront/internal/middleware"
	"github.com/mmeshcher/pharmacy-storefront/internal/repository"
	"github.com/mmeshcher/pharmacy-storefront/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := newRepository(cfg)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var publisher service.Publisher
	if brokers := events.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		kp := events.NewKafkaPublisher(brokers, cfg.OrderEventsTopic)
		defer kp.Close()
		publisher = kp
		sugar.Infow("order events enabled", "brokers", brokers, "topic", cfg.OrderEventsTopic)
	}

	svc := service.NewService(repo, publisher,
		service.WithLogger(logger),
		service.WithMetrics(m),
	)
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SeedDemo {
		if err := svc.SeedDemoCatalog(ctx); err != nil {
			sugar.Fatalw("seed demo catalog error", "error", err.Error())
		}
		sugar.Infow("demo catalog loaded", "login", service.DemoLogin)
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware,
		handler.WithMetrics(m, reg),
		handler.WithCheckoutLimiter(middleware.NewRateLimiter(cfg.CheckoutRPS, cfg.CheckoutBurst, middleware.LoginKey)),
		handler.WithAdminToken(cfg.AdminToken),
	)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Ретранслятор событий работает, пока жив контекст.
	svc.StartOutboxRelay(ctx)

	g.Go(func() error {
		sugar.Infow("starting pharmacy storefront", "addr", cfg.RunAddress, "in_memory", cfg.DatabaseURI == "")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

func newRepository(cfg *config.Config) (service.Repository, error) {
	if cfg.DatabaseURI == "" {
		return repository.NewMemoryRepository(), nil
	}
	return repository.NewPostgresRepository(cfg.DatabaseURI)
}
