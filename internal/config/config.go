// Package config loads the core's configuration from environment
// variables via envconfig tags, per the §6.4 configuration spec.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "BROKER"

// RetrySchedule is the per-attempt delay (in seconds) for one error class;
// §4.9.
type RetrySchedule []int

// Config is shared by every core binary (worker, scheduler, CLI). Fields
// are grouped by the component that consumes them.
type Config struct {
	// Store Adapter (C1).
	StoreAddr                string        `envconfig:"STORE_ADDR" default:"localhost:6379"`
	StorePassword            string        `envconfig:"STORE_PASSWORD" default:""`
	StoreDB                  int           `envconfig:"STORE_DB" default:"0"`
	StoreMaxConnections      int           `envconfig:"STORE_MAX_CONNECTIONS" default:"50"`
	StoreBlockingConnections int           `envconfig:"STORE_BLOCKING_CONNECTIONS" default:"10"`
	StoreSocketTimeout       time.Duration `envconfig:"STORE_SOCKET_TIMEOUT" default:"5s"`
	StoreBlockingTimeout     time.Duration `envconfig:"STORE_BLOCKING_TIMEOUT" default:"5s"`
	StoreHealthCheckInterval time.Duration `envconfig:"STORE_HEALTH_CHECK_INTERVAL" default:"30s"`

	// Task defaults.
	MaxRetries int           `envconfig:"MAX_RETRIES" default:"3"`
	MaxTaskAge time.Duration `envconfig:"MAX_TASK_AGE" default:"2h"`

	// Dispatcher (C7).
	DispatcherConcurrency int           `envconfig:"DISPATCHER_CONCURRENCY" default:"5"`
	RetryRatioWarn        int           `envconfig:"RETRY_RATIO_WARN" default:"1000"`
	RetryRatioCrit        int           `envconfig:"RETRY_RATIO_CRIT" default:"5000"`
	SoftLimit             time.Duration `envconfig:"SOFT_LIMIT" default:"600s"`
	HardLimit             time.Duration `envconfig:"HARD_LIMIT" default:"900s"`
	DispatchPopTimeout    time.Duration `envconfig:"DISPATCH_POP_TIMEOUT" default:"2s"`
	ShutdownGrace         time.Duration `envconfig:"SHUTDOWN_GRACE" default:"30s"`

	// Rate limiter (C3).
	RateLimitCapacity   float64       `envconfig:"RATE_LIMIT_CAPACITY" default:"10"`
	RateLimitRefillRate float64       `envconfig:"RATE_LIMIT_REFILL_RATE" default:"1"`
	TokenWait           time.Duration `envconfig:"TOKEN_WAIT" default:"30s"`

	// Circuit breaker (C4).
	BreakerVolumeThreshold int           `envconfig:"BREAKER_VOLUME_THRESHOLD" default:"10"`
	BreakerFailureRatio    float64       `envconfig:"BREAKER_FAILURE_RATIO" default:"0.5"`
	BreakerOpenDuration    time.Duration `envconfig:"BREAKER_OPEN_DURATION" default:"30s"`
	BreakerHalfOpenProbes  int           `envconfig:"BREAKER_HALF_OPEN_PROBES" default:"1"`

	// Provider state cache (C5).
	ProviderStateFresh           time.Duration `envconfig:"PROVIDER_STATE_FRESH" default:"60s"`
	ProviderStateCircuitThreshold int          `envconfig:"PROVIDER_STATE_CIRCUIT_THRESHOLD" default:"5"`

	// Scheduler (C6).
	SchedulerTick time.Duration `envconfig:"SCHEDULER_TICK" default:"1s"`

	// Liveness (C11).
	HeartbeatPeriod     time.Duration `envconfig:"HEARTBEAT_PERIOD" default:"10s"`
	HeartbeatTTLFactor  int           `envconfig:"HEARTBEAT_TTL_FACTOR" default:"3"`

	// Event bus (C10).
	EventSnapshotInterval time.Duration `envconfig:"EVENT_SNAPSHOT_INTERVAL" default:"5s"`

	// Ambient.
	LogLevel  string `envconfig:"LOG_LEVEL" default:"INFO"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	Port      string `envconfig:"PORT" default:"8080"`
}

// Load reads Config from the environment, applying defaults for unset
// variables.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultRetrySchedules returns the per-error-class retry schedules (§4.9).
// It returns a fresh map on every call, so callers may mutate it without
// side effects on other configurations.
func DefaultRetrySchedules() map[string]RetrySchedule {
	return map[string]RetrySchedule{
		"Transient/RateLimit":         {60, 120, 300, 600},
		"Transient/ServiceUnavailable": {5, 10, 30, 60, 120},
		"Transient/Credits":           {300, 600, 1800},
		"Transient/Network":           {2, 5, 10, 30, 60},
		"Transient/Default":          {5, 15, 60, 300},
	}
}
