package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mide-ajayi/transflow/internal/config"
	"github.com/mide-ajayi/transflow/internal/handler"
	"github.com/mide-ajayi/transflow/internal/ledger"
	"github.com/mide-ajayi/transflow/internal/logging"
	"github.com/mide-ajayi/transflow/internal/metrics"
	"github.com/mide-ajayi/transflow/internal/middleware"
	"github.com/mide-ajayi/transflow/internal/notifier"
	"github.com/mide-ajayi/transflow/internal/resilience"
	"github.com/mide-ajayi/transflow/internal/saga"
	"github.com/mide-ajayi/transflow/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("transflow-api", cfg.LogLevel, cfg.AppEnv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewPostgresDB(ctx, cfg.DatabaseURL, store.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	transferStore := store.NewTransferRepository(db)
	idemStore := store.NewIdempotencyRepository(db, cfg.IdempotencyTTL)

	breaker := resilience.NewBreaker("ledger", resilience.BreakerConfig{
		WindowSize:       cfg.BreakerWindowSize,
		MinSamples:       cfg.BreakerMinSamples,
		FailureThreshold: cfg.BreakerFailureThreshold,
		OpenFor:          cfg.BreakerOpenFor,
		HalfOpenProbes:   cfg.BreakerHalfOpenProbes,
	})
	breaker.OnStateChange(func(name string, from, to resilience.BreakerState) {
		slog.Warn("circuit breaker state changed", "dependency", name, "from", from.String(), "to", to.String())
		metrics.BreakerState.WithLabelValues(name).Set(float64(to))
	})

	caller := resilience.NewCaller(resilience.CallerConfig{
		Timeout:       cfg.LedgerCallTimeout,
		MaxRetries:    cfg.LedgerMaxRetries,
		RetryInterval: cfg.LedgerRetryInterval,
	}, breaker)

	ledgerClient := ledger.NewClient(cfg.LedgerBaseURL, caller)

	var events saga.Notifier
	if cfg.NotifierURL != "" {
		events = notifier.NewWebhook(cfg.NotifierURL)
	} else {
		events = notifier.Log{}
	}

	orch := saga.NewOrchestrator(saga.Steps(ledgerClient), transferStore, events, saga.OrchestratorConfig{
		TransferDeadline:    cfg.TransferDeadline,
		CompensationTimeout: cfg.CompensationTimeout,
	})

	pool := saga.NewPool(orch, transferStore, slog.Default(), cfg.WorkerCount, cfg.QueueSize, cfg.RecoverySweepLimit)
	go pool.Start(ctx)

	go sweepIdempotencyKeys(ctx, idemStore, cfg.IdempotencySweep)

	svc := saga.NewService(transferStore, idemStore, pool)
	transferHandler := handler.NewTransferHandler(svc)

	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.Logging, middleware.Recovery, middleware.Metrics)
	router.HandleFunc("/health", handler.Health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/transfers", transferHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/transfers/{reference}", transferHandler.Get).Methods(http.MethodGet)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Stop accepting new work only after the listener is closed, so nothing
	// submits into a closing pool.
	cancel()
	slog.Info("server stopped")
}

func sweepIdempotencyKeys(ctx context.Context, repo *store.IdempotencyRepository, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.CleanExpired(ctx)
			if err != nil {
				slog.Error("idempotency sweep failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("expired idempotency keys removed", "count", n)
			}
		}
	}
}
