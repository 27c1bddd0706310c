package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config configures the three logical pools of the Store Adapter.
type Config struct {
	Addr     string
	Password string
	DB       int

	MaxConnections      int
	BlockingConnections int

	SocketTimeout        time.Duration
	BlockingTimeout      time.Duration
	HealthCheckInterval  time.Duration
}

// DefaultConfig returns the connection policy defaults from §4.1/§6.4.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:                addr,
		MaxConnections:      50,
		BlockingConnections: 10,
		SocketTimeout:       5 * time.Second,
		BlockingTimeout:     5 * time.Second,
		HealthCheckInterval: 30 * time.Second,
	}
}

// Client wraps three *redis.Client pools tuned for the access patterns
// §4.1 calls out: short scripted operations, long-blocking pops, and
// best-effort pipelines.
type Client struct {
	standard *redis.Client
	blocking *redis.Client
	pipeline *redis.Client

	cfg    Config
	logger *slog.Logger

	cancelHealth context.CancelFunc
	wg           sync.WaitGroup
}

// New dials all three pools and verifies connectivity before returning.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	standard := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		DialTimeout:  cfg.SocketTimeout,
		ReadTimeout:  cfg.SocketTimeout,
		WriteTimeout: cfg.SocketTimeout,
	})

	// The blocking pool uses a read timeout slightly above the caller's
	// blocking-pop timeout so go-redis doesn't surface a client-side
	// timeout before the server's own BRPOP ceiling fires.
	blocking := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.BlockingConnections,
		DialTimeout:  cfg.SocketTimeout,
		ReadTimeout:  cfg.BlockingTimeout + cfg.SocketTimeout,
		WriteTimeout: cfg.SocketTimeout,
	})

	pipeline := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		DialTimeout:  cfg.SocketTimeout,
		ReadTimeout:  cfg.SocketTimeout,
		WriteTimeout: cfg.SocketTimeout,
	})

	c := &Client{standard: standard, blocking: blocking, pipeline: pipeline, cfg: cfg, logger: logger}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.SocketTimeout)
	defer cancel()
	if err := standard.Ping(pingCtx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("ping standard pool: %w", err)
	}

	healthCtx, healthCancel := context.WithCancel(context.Background())
	c.cancelHealth = healthCancel
	c.wg.Add(1)
	go c.healthLoop(healthCtx)

	return c, nil
}

// healthLoop pings each pool on an interval. A failed ping is logged but
// not fatal — go-redis retires and reopens individual connections inside
// its own pool on the next use; this loop exists purely to surface
// sustained outages in logs, the way internal/mq/connection.go's watch
// loop did for the teacher's AMQP connection.
func (c *Client) healthLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, client := range map[string]*redis.Client{
				"standard": c.standard,
				"blocking": c.blocking,
				"pipeline": c.pipeline,
			} {
				pingCtx, cancel := context.WithTimeout(ctx, c.cfg.SocketTimeout)
				err := client.Ping(pingCtx).Err()
				cancel()
				if err != nil {
					c.logger.Warn("store pool health check failed", "pool", name, "error", err)
				}
			}
		}
	}
}

// Close stops the health loop and closes all three pools.
func (c *Client) Close() error {
	if c.cancelHealth != nil {
		c.cancelHealth()
		c.wg.Wait()
	}

	var firstErr error
	for _, client := range []*redis.Client{c.standard, c.blocking, c.pipeline} {
		if client == nil {
			continue
		}
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Standard returns the pool for short operations and scripts.
func (c *Client) Standard() *redis.Client { return c.standard }

// Blocking returns the pool for long-blocking pops.
func (c *Client) Blocking() *redis.Client { return c.blocking }

// Pipeline returns the pool for best-effort batched round trips.
func (c *Client) Pipeline() *redis.Client { return c.pipeline }
