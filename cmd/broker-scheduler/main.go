// Command broker-scheduler runs the C6 tick loop: every interval it
// promotes due entries from tasks:scheduled into the retry queue.
//
// Scheduler is not required to run singly — Tick is idempotent against
// concurrent callers (each promotion is a CAS), so running more than one
// instance only means redundant ZRANGEBYSCORE reads, not double delivery.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rjalexa/taskbroker/internal/config"
	"github.com/rjalexa/taskbroker/internal/scheduler"
	"github.com/rjalexa/taskbroker/internal/store"
	"github.com/rjalexa/taskbroker/internal/taskstore"
	"github.com/rjalexa/taskbroker/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting broker-scheduler")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

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
	sched := scheduler.New(scheduler.Config{Tasks: tasks, Logger: logger})

	driver, err := scheduler.NewDriver(sched, cfg.SchedulerTick, logger)
	if err != nil {
		logger.Error("failed to build scheduler driver", "error", err)
		os.Exit(1)
	}
	driver.Start()
	logger.Info("scheduler tick started", "interval", cfg.SchedulerTick)

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
	logger.Info("broker-scheduler shutting down")
	<-driver.Stop().Done()
	logger.Info("broker-scheduler stopped")
}
