// Command broker-worker runs one dispatcher process (C7): it pops tasks
// from the primary/retry queues, executes them through the handler
// registry with breaker/rate-limit gating, and routes failures to
// backoff-and-retry or the dead letter queue.
//
// A worker is horizontally scalable — start as many as the queue depth
// needs, all reading from the same store.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rjalexa/taskbroker/internal/breaker"
	"github.com/rjalexa/taskbroker/internal/config"
	"github.com/rjalexa/taskbroker/internal/dispatcher"
	"github.com/rjalexa/taskbroker/internal/eventbus"
	"github.com/rjalexa/taskbroker/internal/handler"
	"github.com/rjalexa/taskbroker/internal/liveness"
	"github.com/rjalexa/taskbroker/internal/provider"
	"github.com/rjalexa/taskbroker/internal/ratelimit"
	"github.com/rjalexa/taskbroker/internal/router"
	"github.com/rjalexa/taskbroker/internal/store"
	"github.com/rjalexa/taskbroker/internal/taskstore"
	"github.com/rjalexa/taskbroker/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting broker-worker")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	workerID := fmt.Sprintf("%s-%d", hostname(), os.Getpid())

	storeClient, err := store.New(ctx, store.Config{
		Addr:                cfg.StoreAddr,
		Password:            cfg.StorePassword,
		DB:                  cfg.StoreDB,
		MaxConnections:      cfg.StoreMaxConnections,
		BlockingConnections: cfg.StoreBlockingConnections,
		SocketTimeout:       cfg.StoreSocketTimeout,
		BlockingTimeout:     cfg.StoreBlockingTimeout,
		HealthCheckInterval: cfg.StoreHealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to store", "error", err)
		os.Exit(1)
	}
	defer storeClient.Close()
	logger.Info("store connected", "addr", cfg.StoreAddr)

	tasks := taskstore.New(storeClient)

	limiter := ratelimit.New(storeClient)
	if err := limiter.EnsureBucket(ctx, cfg.RateLimitCapacity, cfg.RateLimitRefillRate); err != nil {
		logger.Error("failed to seed rate limit bucket", "error", err)
		os.Exit(1)
	}

	brk := breaker.New(workerID, breaker.Config{
		VolumeThreshold: cfg.BreakerVolumeThreshold,
		FailureRatio:    cfg.BreakerFailureRatio,
		OpenDuration:    cfg.BreakerOpenDuration,
		HalfOpenProbes:  cfg.BreakerHalfOpenProbes,
	}, storeClient)

	providerCache := provider.New(storeClient, provider.Config{
		Fresh:            cfg.ProviderStateFresh,
		CircuitThreshold: cfg.ProviderStateCircuitThreshold,
	}, nil)

	retryRouter := router.New(tasks, config.DefaultRetrySchedules(), cfg.MaxTaskAge)

	registry := handler.NewRegistry()
	registry.Register("echo", handler.Echo)
	registry.Register("http_call", handler.HTTPCall)

	bus := eventbus.New(storeClient, tasks, logger)
	go bus.RunHeartbeat(ctx, cfg.EventSnapshotInterval)

	d := dispatcher.New(dispatcher.Config{
		Tasks:          tasks,
		Store:          storeClient,
		Breaker:        brk,
		Limiter:        limiter,
		Provider:       providerCache,
		Registry:       registry,
		Router:         retryRouter,
		Bus:            bus,
		Concurrency:    cfg.DispatcherConcurrency,
		PopTimeout:     cfg.DispatchPopTimeout,
		TokenWait:      cfg.TokenWait,
		SoftLimit:      cfg.SoftLimit,
		HardLimit:      cfg.HardLimit,
		RetryRatioWarn: int64(cfg.RetryRatioWarn),
		RetryRatioCrit: int64(cfg.RetryRatioCrit),
		Logger:         logger,
	})
	d.Start(ctx)
	logger.Info("dispatcher started", "worker_id", workerID, "concurrency", cfg.DispatcherConcurrency)

	reporter := liveness.NewReporter(liveness.Config{
		Store:        storeClient,
		WorkerID:     workerID,
		Period:       cfg.HeartbeatPeriod,
		InFlight:     d.InFlight,
		BreakerState: func() string { return string(brk.State()) },
	})
	go reporter.Run(ctx)

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	go pollMetrics(ctx, tasks, brk, workerID, metrics, 5*time.Second, int64(cfg.RetryRatioWarn), int64(cfg.RetryRatioCrit))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":" + cfg.Port
	srv := &http.Server{Addr: port, Handler: mux}
	go func() {
		logger.Info("listening", "addr", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("broker-worker shutting down")

	d.Stop(cfg.ShutdownGrace)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)

	logger.Info("broker-worker stopped")
}

// pollMetrics periodically refreshes the gauges that don't have a natural
// push site (queue depths, state counts, retry ratio, breaker state) so
// /metrics stays current between task events.
func pollMetrics(ctx context.Context, tasks *taskstore.TaskStore, brk *breaker.Breaker, workerID string, m *telemetry.Metrics, period time.Duration, retryWarn, retryCrit int64) {
	tk := time.NewTicker(period)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			primary, retry, scheduled, dlq, err := tasks.QueueDepths(ctx)
			if err == nil {
				m.QueueDepth.WithLabelValues("primary").Set(float64(primary))
				m.QueueDepth.WithLabelValues("retry").Set(float64(retry))
				m.QueueDepth.WithLabelValues("scheduled").Set(float64(scheduled))
				m.QueueDepth.WithLabelValues("dlq").Set(float64(dlq))
				m.RetryRatio.Set(eventbus.AdaptiveRetryRatio(retry, retryWarn, retryCrit))
			}

			counts, err := tasks.StateCounts(ctx)
			if err == nil {
				for state, n := range counts {
					m.TaskStateTotal.WithLabelValues(state.Lower()).Set(float64(n))
				}
			}

			m.BreakerState.WithLabelValues(workerID).Set(telemetry.BreakerStateValue(string(brk.State())))
		}
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "worker"
	}
	return h
}
