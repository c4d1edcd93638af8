// Package history records every consolidation run in Postgres.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/esgari/balance360/internal/balance"
	"github.com/esgari/balance360/internal/platform/db"
)

var (
	// ErrNotFound is returned when a run ID is unknown.
	ErrNotFound = errors.New("history: run not found")
	// ErrDuplicateRun is returned when a run ID was already recorded.
	ErrDuplicateRun = errors.New("history: run already recorded")
)

// DefaultListLimit bounds List when no limit is given.
const DefaultListLimit = 50

const schema = `
CREATE TABLE IF NOT EXISTS balance_runs (
    id          UUID PRIMARY KEY,
    built_at    TIMESTAMPTZ NOT NULL,
    trigger     TEXT NOT NULL,
    entities    TEXT[] NOT NULL,
    total_activo  NUMERIC(20,2) NOT NULL,
    total_pasivo  NUMERIC(20,2) NOT NULL,
    total_capital NUMERIC(20,2) NOT NULL,
    difference    NUMERIC(20,2) NOT NULL,
    convention  TEXT NOT NULL,
    status      TEXT NOT NULL,
    unmapped    INTEGER NOT NULL,
    warnings    JSONB NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS balance_runs_built_at_idx ON balance_runs (built_at DESC);
CREATE TABLE IF NOT EXISTS balance_run_lines (
    run_id         UUID NOT NULL REFERENCES balance_runs(id) ON DELETE CASCADE,
    classification TEXT NOT NULL,
    category       TEXT NOT NULL,
    total          NUMERIC(20,2) NOT NULL,
    debit          NUMERIC(20,2) NOT NULL,
    credit         NUMERIC(20,2) NOT NULL,
    manual         NUMERIC(20,2) NOT NULL,
    adjusted_total NUMERIC(20,2) NOT NULL,
    PRIMARY KEY (run_id, classification, category)
);`

// Run is the stored summary of one consolidation.
type Run struct {
	ID         string            `json:"id"`
	BuiltAt    time.Time         `json:"built_at"`
	Trigger    string            `json:"trigger"`
	Entities   []string          `json:"entities"`
	Activo     decimal.Decimal   `json:"total_activo"`
	Pasivo     decimal.Decimal   `json:"total_pasivo"`
	Capital    decimal.Decimal   `json:"total_capital"`
	Difference decimal.Decimal   `json:"difference"`
	Convention string            `json:"convention"`
	Status     string            `json:"status"`
	Unmapped   int               `json:"unmapped"`
	Warnings   []balance.Warning `json:"warnings"`
}

// RunFromStatement summarises a statement for storage.
func RunFromStatement(stmt balance.Statement, trigger string) Run {
	return Run{
		ID:         stmt.RunID,
		BuiltAt:    stmt.BuiltAt,
		Trigger:    trigger,
		Entities:   append([]string{}, stmt.Entities...),
		Activo:     stmt.Totals.Activo,
		Pasivo:     stmt.Totals.Pasivo,
		Capital:    stmt.Totals.Capital,
		Difference: stmt.Totals.Difference,
		Convention: string(stmt.Totals.Convention),
		Status:     string(stmt.Totals.Status),
		Unmapped:   len(stmt.Unmapped),
		Warnings:   append([]balance.Warning{}, stmt.Warnings...),
	}
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository persists runs.
type Repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository binds the repository to a pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool, pool: pool}
}

// EnsureSchema creates the history tables when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil {
		return errors.New("history: repository not initialised")
	}
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("history: ensure schema: %w", err)
	}
	return nil
}

// Record stores the run summary and its adjusted lines in one transaction.
func (r *Repository) Record(ctx context.Context, stmt balance.Statement, trigger string) error {
	if r == nil {
		return errors.New("history: repository not initialised")
	}
	run := RunFromStatement(stmt, trigger)
	warnings, err := json.Marshal(run.Warnings)
	if err != nil {
		return fmt.Errorf("history: encode warnings: %w", err)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO balance_runs
			(id, built_at, trigger, entities, total_activo, total_pasivo, total_capital, difference, convention, status, unmapped, warnings)
			VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9, $10, $11, $12)`,
			run.ID, run.BuiltAt, run.Trigger, run.Entities,
			run.Activo.StringFixed(2), run.Pasivo.StringFixed(2), run.Capital.StringFixed(2), run.Difference.StringFixed(2),
			run.Convention, run.Status, run.Unmapped, warnings)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrDuplicateRun
			}
			return fmt.Errorf("history: insert run: %w", err)
		}

		batch := &pgx.Batch{}
		for _, l := range stmt.Lines {
			batch.Queue(`INSERT INTO balance_run_lines
				(run_id, classification, category, total, debit, credit, manual, adjusted_total)
				VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric)`,
				run.ID, string(l.Classification), l.Category,
				l.Total().StringFixed(2), l.Debit.StringFixed(2), l.Credit.StringFixed(2),
				l.Manual.StringFixed(2), l.AdjustedTotal().StringFixed(2))
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("history: insert lines: %w", err)
		}
		return nil
	})
}

const selectRun = `SELECT id::text, built_at, trigger, entities,
	total_activo::text, total_pasivo::text, total_capital::text, difference::text,
	convention, status, unmapped, warnings
	FROM balance_runs`

// List returns the most recent runs, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]Run, error) {
	if r == nil {
		return nil, errors.New("history: repository not initialised")
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := r.db.Query(ctx, selectRun+` ORDER BY built_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	return runs, nil
}

// Get loads one run by ID.
func (r *Repository) Get(ctx context.Context, id string) (Run, error) {
	if r == nil {
		return Run{}, errors.New("history: repository not initialised")
	}
	run, err := scanRun(r.db.QueryRow(ctx, selectRun+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return run, err
}

func scanRun(row pgx.Row) (Run, error) {
	var (
		run                           Run
		activo, pasivo, capital, diff string
		warnings                      []byte
	)
	if err := row.Scan(&run.ID, &run.BuiltAt, &run.Trigger, &run.Entities,
		&activo, &pasivo, &capital, &diff,
		&run.Convention, &run.Status, &run.Unmapped, &warnings); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("history: scan run: %w", err)
	}
	var err error
	if run.Activo, err = decimal.NewFromString(activo); err != nil {
		return Run{}, fmt.Errorf("history: total_activo: %w", err)
	}
	if run.Pasivo, err = decimal.NewFromString(pasivo); err != nil {
		return Run{}, fmt.Errorf("history: total_pasivo: %w", err)
	}
	if run.Capital, err = decimal.NewFromString(capital); err != nil {
		return Run{}, fmt.Errorf("history: total_capital: %w", err)
	}
	if run.Difference, err = decimal.NewFromString(diff); err != nil {
		return Run{}, fmt.Errorf("history: difference: %w", err)
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &run.Warnings); err != nil {
			return Run{}, fmt.Errorf("history: decode warnings: %w", err)
		}
	}
	return run, nil
}
