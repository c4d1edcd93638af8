package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultGenerationKey holds the statement generation shared by the API
// and the worker.
const DefaultGenerationKey = "balance360:statement:generation"

// Generation is a monotonically increasing counter in Redis. Processes that
// cache derived state compare it to the value they last saw.
type Generation struct {
	client *redis.Client
	key    string
}

// NewGeneration returns a counter stored under key, or under
// DefaultGenerationKey when key is empty.
func NewGeneration(client *redis.Client, key string) *Generation {
	if key == "" {
		key = DefaultGenerationKey
	}
	return &Generation{client: client, key: key}
}

// Current returns the counter; an absent key reads as zero.
func (g *Generation) Current(ctx context.Context) (int64, error) {
	n, err := g.client.Get(ctx, g.key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("platform/cache: read generation: %w", err)
	}
	return n, nil
}

// Bump increments the counter and returns the new value.
func (g *Generation) Bump(ctx context.Context) (int64, error) {
	n, err := g.client.Incr(ctx, g.key).Result()
	if err != nil {
		return 0, fmt.Errorf("platform/cache: bump generation: %w", err)
	}
	return n, nil
}

// Watcher tracks the last generation this process acted on.
type Watcher struct {
	gen    *Generation
	logger *slog.Logger

	mu     sync.Mutex
	seen   int64
	primed bool
}

// NewWatcher wraps gen. The first Changed call records a baseline.
func NewWatcher(gen *Generation, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{gen: gen, logger: logger.With(slog.String("component", "cache.generation"))}
}

// Changed reports whether another process bumped the generation since the
// last call. Redis errors are logged and read as unchanged so a cache outage
// never blocks serving.
func (w *Watcher) Changed(ctx context.Context) bool {
	if w == nil || w.gen == nil {
		return false
	}
	n, err := w.gen.Current(ctx)
	if err != nil {
		w.logger.Warn("generation unavailable", slog.Any("error", err))
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.primed {
		w.primed, w.seen = true, n
		return false
	}
	if n == w.seen {
		return false
	}
	w.seen = n
	return true
}

// Publish bumps the generation so other processes drop their copies. A bump
// that directly follows the last seen value is this process's own and is
// not reported back by Changed.
func (w *Watcher) Publish(ctx context.Context) error {
	if w == nil || w.gen == nil {
		return nil
	}
	n, err := w.gen.Bump(ctx)
	if err != nil {
		return err
	}
	w.mu.Lock()
	if w.primed && n == w.seen+1 {
		w.seen = n
	}
	w.mu.Unlock()
	return nil
}
