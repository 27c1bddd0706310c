package cli

import (
	"context"

	"github.com/rjalexa/taskbroker/internal/domain"
	"github.com/rjalexa/taskbroker/internal/ingress"
)

// Client is a thin wrapper over ingress.Ingress: the CLI runs embedded in
// the same process as the rest of the broker, so there is no transport to
// encode/decode — every command calls straight into the ingress package.
type Client struct {
	ig *ingress.Ingress
}

// NewClient wraps an already-constructed Ingress for CLI use.
func NewClient(ig *ingress.Ingress) *Client {
	return &Client{ig: ig}
}

func (c *Client) Submit(ctx context.Context, taskID, taskType, payload string, maxRetries *int) (string, error) {
	return c.ig.Submit(ctx, taskID, taskType, payload, maxRetries)
}

func (c *Client) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	return c.ig.Get(ctx, taskID)
}

func (c *Client) List(ctx context.Context, filter ingress.ListFilter) (ingress.ListResult, error) {
	return c.ig.List(ctx, filter)
}

func (c *Client) Retry(ctx context.Context, taskID string) error {
	return c.ig.Retry(ctx, taskID)
}

func (c *Client) Delete(ctx context.Context, taskID string) error {
	return c.ig.Delete(ctx, taskID)
}

func (c *Client) RequeueOrphaned(ctx context.Context) (int, error) {
	return c.ig.RequeueOrphaned(ctx)
}

func (c *Client) QueueStatus(ctx context.Context) (ingress.QueueStatusView, error) {
	return c.ig.QueueStatus(ctx)
}

func (c *Client) DLQList(ctx context.Context, limit int64) ([]*domain.Task, error) {
	return c.ig.DLQList(ctx, limit)
}

func (c *Client) ResetAllCircuits(ctx context.Context) error {
	return c.ig.ResetAllCircuits(ctx)
}

func (c *Client) OpenAllCircuits(ctx context.Context) error {
	return c.ig.OpenAllCircuits(ctx)
}
