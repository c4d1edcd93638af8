package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/esgari/balance360/internal/balance"
	balancehttp "github.com/esgari/balance360/internal/balance/http"
	jobmetrics "github.com/esgari/balance360/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// StatementBuilder runs the consolidation pipeline.
type StatementBuilder interface {
	Build(ctx context.Context, opts balance.BuildOptions) (balance.Statement, error)
}

// RunRecorder stores a finished run.
type RunRecorder interface {
	Record(ctx context.Context, stmt balance.Statement, trigger string) error
}

// Invalidator tells the API processes to drop their cached statement.
type Invalidator interface {
	Publish(ctx context.Context) error
}

// BalanceRefreshJob rebuilds the statement in the background.
type BalanceRefreshJob struct {
	Service     StatementBuilder
	History     RunRecorder
	Observer    balancehttp.StatementObserver
	Invalidator Invalidator
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	clock       func() time.Time
}

// NewBalanceRefreshJob constructs the job handler. history may be nil.
func NewBalanceRefreshJob(service StatementBuilder, history RunRecorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *BalanceRefreshJob {
	return &BalanceRefreshJob{
		Service: service,
		History: history,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the refresh. Malformed payloads and configuration errors
// skip retries since retrying cannot fix them.
func (j *BalanceRefreshJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil {
		return errors.New("balance refresh: dependencies not configured")
	}
	tracker := j.metrics().Track(TaskBalanceRefresh)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	var payload BalanceRefreshPayload
	if body := task.Payload(); len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			j.log().Warn("discarding malformed payload", slog.Any("error", err))
			return fmt.Errorf("balance refresh: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	start := j.now()
	stmt, err := j.Service.Build(ctx, balance.BuildOptions{Reload: payload.reload()})
	if err != nil {
		j.log().Error("build statement", slog.Bool("reload", payload.reload()), slog.Any("error", err))
		if errors.Is(err, balance.ErrConfiguration) {
			return errors.Join(err, asynq.SkipRetry)
		}
		return err
	}

	if j.History != nil {
		if err := j.History.Record(ctx, stmt, payload.trigger()); err != nil {
			j.log().Warn("record run", slog.String("run_id", stmt.RunID), slog.Any("error", err))
		}
	}
	if j.Observer != nil {
		j.Observer.ObserveStatement(stmt)
	}
	counts := make(map[balance.WarningKind]int)
	for _, w := range stmt.Warnings {
		counts[w.Kind]++
	}
	for kind, n := range counts {
		j.metrics().AddWarnings(TaskBalanceRefresh, string(kind), n)
	}

	balancehttp.BustViewCache()
	if j.Invalidator != nil {
		if err := j.Invalidator.Publish(ctx); err != nil {
			j.log().Warn("publish cache invalidation", slog.Any("error", err))
		}
	}

	level := slog.LevelInfo
	if !stmt.Totals.Balanced() {
		level = slog.LevelWarn
	}
	j.log().Log(ctx, level, "refreshed consolidated statement",
		slog.String("run_id", stmt.RunID),
		slog.String("status", string(stmt.Totals.Status)),
		slog.String("difference", stmt.Totals.Difference.StringFixed(2)),
		slog.Int("warnings", len(stmt.Warnings)),
		slog.Duration("duration", j.now().Sub(start)))
	return nil
}

func (j *BalanceRefreshJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *BalanceRefreshJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBalanceRefresh))
	}
	return slog.Default().With(slog.String("job", TaskBalanceRefresh))
}

func (j *BalanceRefreshJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *BalanceRefreshJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
