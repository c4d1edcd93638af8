package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/esgari/balance360/internal/balance"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("MAPPING_URL", "gs://finance/mapeo.xlsx")
	t.Setenv("LEDGER_URL", "https://example.test/balanza.xlsx")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, OverrideStoreRedis, cfg.OverrideStore)
	require.Equal(t, "0 2 * * *", cfg.RefreshCron)
	require.Equal(t, 2, cfg.WorkerConcurrency)
	require.False(t, cfg.IsProduction())

	bc := cfg.BalanceConfig()
	require.Equal(t, balance.SignedLedger, bc.Convention)
	require.Equal(t, "1", bc.Epsilon.String())
	require.Empty(t, bc.Entities)
}

func TestLoadConfigRequiresSources(t *testing.T) {
	t.Setenv("MAPPING_URL", "")
	t.Setenv("LEDGER_URL", "x.xlsx")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "mapping url")
}

func TestLoadConfigRejectsBadPolicy(t *testing.T) {
	setRequired(t)
	t.Setenv("SIGN_CONVENTION", "sideways")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("SIGN_CONVENTION", "conventional")
	t.Setenv("BALANCE_EPSILON", "0")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "epsilon")

	t.Setenv("BALANCE_EPSILON", "0.5")
	t.Setenv("OVERRIDE_STORE", "etcd")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "override store")
}

func TestBalanceConfigNormalizesEntities(t *testing.T) {
	setRequired(t)
	t.Setenv("ENTITIES", " fwd,wh ,,holding")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "2")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, []string{"FWD", "WH", "HOLDING"}, cfg.BalanceConfig().Entities)
	require.Equal(t, "redis:6380", cfg.RedisOptions().Addr)
	require.Equal(t, 2, cfg.QueueOptions().DB)
}
