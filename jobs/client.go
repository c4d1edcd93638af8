package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
)

// refreshMaxRetry is the retry budget of enqueued and scheduled refreshes.
const refreshMaxRetry = 3

// Client enqueues balance tasks.
type Client struct {
	client *asynq.Client
}

// NewClient constructs a Client. The Redis connection is opened lazily.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	if redisOpts.Addr == "" {
		return nil, errors.New("jobs client: redis address required")
	}
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueBalanceRefresh requests a rebuild of the consolidated statement.
func (c *Client) EnqueueBalanceRefresh(ctx context.Context, reload bool, trigger string) (*asynq.TaskInfo, error) {
	task, err := NewBalanceRefreshTask(reload, trigger)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(refreshMaxRetry))
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
