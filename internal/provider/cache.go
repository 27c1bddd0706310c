package provider

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rjalexa/taskbroker/internal/store"
)

// nowFunc is overridable in tests; production code always uses time.Now.
var nowFunc = time.Now

const refreshLockTTL = 5 * time.Second

// Prober performs the actual upstream health check during a refresh. It is
// supplied by the collaborator that knows how to talk to the provider;
// payload business logic is outside this package's scope (§1).
type Prober func(ctx context.Context) error

// Config parameterizes Cache.
type Config struct {
	Fresh            time.Duration // §6.4 provider_state.fresh, default 60s
	CircuitThreshold int           // consecutive failures before circuit_open, default 5
}

// Cache implements C5: the single shared provider-state record (§4.5).
type Cache struct {
	store  *store.Client
	cfg    Config
	prober Prober
}

// New creates a Cache. prober may be nil, in which case force_refresh
// relies solely on workers' report_success/report_failure calls.
func New(s *store.Client, cfg Config, prober Prober) *Cache {
	return &Cache{store: s, cfg: cfg, prober: prober}
}

func dateKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

// GetState implements C5's read API (§4.5).
func (c *Cache) GetState(ctx context.Context, forceRefresh bool) (State, error) {
	current, err := c.readState(ctx)
	if err != nil {
		return State{}, err
	}

	now := nowFunc()
	if !forceRefresh && !current.CircuitOpen && !current.Stale(c.cfg.Fresh, now) {
		return current, nil
	}
	if current.CircuitOpen {
		return current, nil
	}

	acquired, err := c.store.SetNX(ctx, store.ProviderRefreshLockKey, "1", refreshLockTTL)
	if err != nil {
		return State{}, fmt.Errorf("acquire refresh lock: %w", err)
	}
	if !acquired {
		// Another process owns the refresh; serve the cached value.
		return current, nil
	}
	defer func() { _ = c.store.HashDel(ctx, store.ProviderRefreshLockKey) }()

	if c.prober == nil {
		return current, nil
	}

	if err := c.prober(ctx); err != nil {
		if rerr := c.ReportFailure(ctx, KindUnknown, err.Error(), 0); rerr != nil {
			return State{}, rerr
		}
	} else if rerr := c.ReportSuccess(ctx); rerr != nil {
		return State{}, rerr
	}

	return c.readState(ctx)
}

func (c *Cache) readState(ctx context.Context) (State, error) {
	fields, err := c.store.HashGetAll(ctx, store.ProviderStateKey)
	if err != nil {
		return State{}, fmt.Errorf("read provider state: %w", err)
	}
	if len(fields) == 0 {
		return State{State: "active"}, nil
	}

	s := State{
		State:       fields["state"],
		Message:     fields["message"],
		BalanceHint: fields["balance_hint"],
		UsageHint:   fields["usage_hint"],
	}
	if v := fields["consecutive_failures"]; v != "" {
		s.ConsecutiveFailures, _ = strconv.Atoi(v)
	}
	if v := fields["circuit_open"]; v == "true" {
		s.CircuitOpen = true
	}
	if v := fields["last_check"]; v != "" {
		s.LastCheck, _ = time.Parse(time.RFC3339Nano, v)
	}
	return s, nil
}

// ReportSuccess implements C5's report_success() write API.
func (c *Cache) ReportSuccess(ctx context.Context) error {
	_, err := c.store.RunScript(ctx, reportSuccessScript, []string{store.ProviderStateKey},
		nowFunc().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("report_success: %w", err)
	}
	return nil
}

// ReportFailure implements C5's report_failure() write API. httpStatus is 0
// when not applicable.
func (c *Cache) ReportFailure(ctx context.Context, kind Kind, message string, httpStatus int) error {
	now := nowFunc().UTC()
	_, err := c.store.RunScript(ctx, reportFailureScript,
		[]string{store.ProviderStateKey, store.ProviderMetricsKey(dateKey(now))},
		string(kind), message, now.Format(time.RFC3339Nano), c.cfg.CircuitThreshold, httpStatus,
	)
	if err != nil {
		return fmt.Errorf("report_failure: %w", err)
	}
	return nil
}
