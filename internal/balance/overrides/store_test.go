package overrides

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetListDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Set(ctx, "ACTIVO|CAJA", decimal.NewFromInt(500)))
	values, err := store.List(ctx)
	require.NoError(t, err)
	require.True(t, values["ACTIVO|CAJA"].Equal(decimal.NewFromInt(500)))

	values["ACTIVO|CAJA"] = decimal.Zero
	again, err := store.List(ctx)
	require.NoError(t, err)
	require.True(t, again["ACTIVO|CAJA"].Equal(decimal.NewFromInt(500)), "list must return a copy")

	require.NoError(t, store.Delete(ctx, "ACTIVO|CAJA"))
	require.NoError(t, store.Delete(ctx, "ACTIVO|CAJA"))
	values, err = store.List(ctx)
	require.NoError(t, err)
	require.Empty(t, values)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	store := NewRedisStore(client, "")

	require.NoError(t, store.Set(ctx, "PASIVO|PROVEEDORES", decimal.RequireFromString("-1234.56")))
	require.NoError(t, store.Set(ctx, "ACTIVO|CAJA", decimal.NewFromInt(10)))

	values, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, values, 2)
	require.Equal(t, "-1234.56", values["PASIVO|PROVEEDORES"].String())
	require.Equal(t, "-1234.56", mr.HGet(DefaultRedisKey, "PASIVO|PROVEEDORES"))

	require.NoError(t, store.Delete(ctx, "ACTIVO|CAJA"))
	values, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, values, 1)
}

func TestRedisStoreRejectsCorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	mr.HSet("custom:key", "ACTIVO|CAJA", "not-a-number")
	store := NewRedisStore(client, "custom:key")
	_, err := store.List(context.Background())
	require.Error(t, err)
}
