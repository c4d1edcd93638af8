package history

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/esgari/balance360/internal/balance"
	"github.com/esgari/balance360/internal/platform/db"
)

func statement(id string) balance.Statement {
	lines := balance.Adjust([]balance.ConsolidatedLine{{
		LineKey: balance.LineKey{Classification: balance.Activo, Category: "CAJA"},
		Amounts: map[string]decimal.Decimal{"A": decimal.NewFromInt(500)},
	}}, nil, balance.AdjustmentContext{})
	return balance.Statement{
		RunID:    id,
		BuiltAt:  time.Date(2025, 1, 31, 2, 0, 0, 0, time.UTC),
		Entities: []string{"A"},
		Lines:    lines,
		Totals:   balance.Validate(lines, balance.SignedLedger, balance.DefaultEpsilon),
		Unmapped: []balance.UnmappedRow{{}},
		Warnings: []balance.Warning{{Kind: balance.ImbalanceWarning, Message: "statement not balanced"}},
	}
}

func TestRunFromStatement(t *testing.T) {
	run := RunFromStatement(statement("run-1"), "cron")
	require.Equal(t, "run-1", run.ID)
	require.Equal(t, "cron", run.Trigger)
	require.Equal(t, "unbalanced", run.Status)
	require.Equal(t, "signed", run.Convention)
	require.Equal(t, 1, run.Unmapped)
	require.True(t, run.Difference.Equal(decimal.NewFromInt(500)))
	require.Len(t, run.Warnings, 1)
}

func TestNilRepository(t *testing.T) {
	var r *Repository
	require.Error(t, r.EnsureSchema(context.Background()))
	_, err := r.List(context.Background(), 0)
	require.Error(t, err)
}

// TestRepositoryRoundTrip needs a disposable database in BALANCE360_TEST_PG_DSN.
func TestRepositoryRoundTrip(t *testing.T) {
	dsn := os.Getenv("BALANCE360_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("BALANCE360_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	pool, err := db.New(ctx, dsn, 0)
	require.NoError(t, err)
	defer pool.Close()

	repo := NewRepository(pool)
	require.NoError(t, repo.EnsureSchema(ctx))

	id := uuid.NewString()
	require.NoError(t, repo.Record(ctx, statement(id), "manual"))
	require.ErrorIs(t, repo.Record(ctx, statement(id), "manual"), ErrDuplicateRun)

	run, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, run.Entities)
	require.True(t, run.Activo.Equal(decimal.NewFromInt(500)))
	require.Equal(t, balance.ImbalanceWarning, run.Warnings[0].Kind)

	runs, err := repo.List(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, runs)

	_, err = repo.Get(ctx, uuid.NewString())
	require.ErrorIs(t, err, ErrNotFound)
}
