// Command broker-cli is the operator tool for submitting and inspecting
// tasks, reading queue status, and broadcasting circuit breaker overrides.
//
// Usage:
//
//	broker [--json] <command> <subcommand> [flags]
//
// Commands:
//
//	task     Submit and inspect tasks
//	queue    Queue depths and orphan recovery
//	dlq      Dead letter queue
//	circuit  Broadcast breaker overrides
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rjalexa/taskbroker/internal/cli"
	"github.com/rjalexa/taskbroker/internal/config"
	"github.com/rjalexa/taskbroker/internal/eventbus"
	"github.com/rjalexa/taskbroker/internal/handler"
	"github.com/rjalexa/taskbroker/internal/ingress"
	"github.com/rjalexa/taskbroker/internal/store"
	"github.com/rjalexa/taskbroker/internal/taskstore"
)

// version is set via ldflags at build time.
var version = "dev"

func main() {
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "broker",
		Short:         "broker CLI — task broker operator tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	var ig *ingress.Ingress
	clientFn := func() *cli.Client {
		if ig == nil {
			var err error
			ig, err = connect(context.Background())
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
		}
		return cli.NewClient(ig)
	}
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewTaskCmd(clientFn, outputFn),
		cli.NewQueueCmd(clientFn, outputFn),
		cli.NewDLQCmd(clientFn, outputFn),
		cli.NewCircuitCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// connect wires the same collaborators a worker process uses, minus the
// dispatcher — the CLI only ever calls ingress, never pops a queue itself.
func connect(ctx context.Context) (*ingress.Ingress, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
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
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to store: %w", err)
	}

	tasks := taskstore.New(storeClient)
	bus := eventbus.New(storeClient, tasks, nil)

	registry := handler.NewRegistry()
	registry.Register("echo", handler.Echo)
	registry.Register("http_call", handler.HTTPCall)

	return ingress.New(ingress.Config{
		Tasks:      tasks,
		Bus:        bus,
		Registry:   registry,
		MaxRetries: cfg.MaxRetries,
	}), nil
}
