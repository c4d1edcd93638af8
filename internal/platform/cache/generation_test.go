package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newGeneration(t *testing.T) (*miniredis.Miniredis, *Generation) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewGeneration(client, "")
}

func TestGenerationCurrentAndBump(t *testing.T) {
	mr, gen := newGeneration(t)
	ctx := context.Background()

	n, err := gen.Current(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = gen.Bump(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	raw, err := mr.Get(DefaultGenerationKey)
	require.NoError(t, err)
	require.Equal(t, "1", raw)
}

func TestWatcherSeesOtherProcessBumps(t *testing.T) {
	_, gen := newGeneration(t)
	ctx := context.Background()
	api := NewWatcher(gen, slog.New(slog.NewTextHandler(io.Discard, nil)))
	worker := NewWatcher(gen, nil)

	require.False(t, api.Changed(ctx), "first call records the baseline")
	require.False(t, api.Changed(ctx))

	require.NoError(t, worker.Publish(ctx))
	require.True(t, api.Changed(ctx))
	require.False(t, api.Changed(ctx), "a bump is reported once")

	require.NoError(t, api.Publish(ctx))
	require.False(t, api.Changed(ctx), "own bumps are not reported back")

	require.NoError(t, worker.Publish(ctx))
	require.NoError(t, api.Publish(ctx))
	require.True(t, api.Changed(ctx), "an interleaved foreign bump is still reported")
}

func TestWatcherTreatsRedisErrorsAsUnchanged(t *testing.T) {
	mr, gen := newGeneration(t)
	ctx := context.Background()
	w := NewWatcher(gen, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.False(t, w.Changed(ctx))

	mr.Close()
	require.False(t, w.Changed(ctx))
	require.Error(t, w.Publish(ctx))

	var nilWatcher *Watcher
	require.False(t, nilWatcher.Changed(ctx))
	require.NoError(t, nilWatcher.Publish(ctx))
}
