package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/esgari/balance360/internal/balance"
	balancehttp "github.com/esgari/balance360/internal/balance/http"
	"github.com/esgari/balance360/internal/balance/history"
	"github.com/esgari/balance360/internal/balance/overrides"
	"github.com/esgari/balance360/internal/balance/profile"
	"github.com/esgari/balance360/internal/platform/cache"
	"github.com/esgari/balance360/internal/platform/db"
	"github.com/esgari/balance360/internal/workbook"
)

// Services holds the long-lived collaborators shared by the API server and
// the worker.
type Services struct {
	Config    *Config
	Profile   balance.Profile
	Fetcher   *workbook.Fetcher
	Balance   *balance.Service
	Overrides balance.OverrideStore
	History   *history.Repository
	Redis     *redis.Client
	Pool      *pgxpool.Pool

	// Invalidation is shared through Redis and nil with the memory store,
	// where every process holds its own overrides anyway.
	Invalidation *cache.Watcher

	logger  *slog.Logger
	closers []func() error
}

// NewServices connects the configured backends and wires the pipeline.
// Run history is enabled only when PG_DSN is set.
func NewServices(ctx context.Context, cfg *Config, logger *slog.Logger) (*Services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Services{Config: cfg, logger: logger}

	prof, err := profile.Load(cfg.ProfileFile)
	if err != nil {
		return nil, err
	}
	s.Profile = prof

	fetchOpts := []workbook.Option{workbook.WithLogger(logger)}
	if cfg.GCSEnabled {
		opener, err := workbook.NewGCSOpener(ctx)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, opener.Close)
		fetchOpts = append(fetchOpts, workbook.WithObjectOpener(opener))
	}
	s.Fetcher = workbook.NewFetcher(fetchOpts...)

	switch cfg.OverrideStore {
	case OverrideStoreRedis:
		client, err := cache.New(ctx, cfg.RedisOptions())
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Redis = client
		s.closers = append(s.closers, client.Close)
		s.Overrides = overrides.NewRedisStore(client, cfg.OverrideRedisKey)
		s.Invalidation = cache.NewWatcher(cache.NewGeneration(client, cfg.GenerationRedisKey), logger)
	default:
		s.Overrides = overrides.NewMemoryStore()
	}

	if cfg.PGDSN != "" {
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Pool = pool
		s.closers = append(s.closers, func() error {
			pool.Close()
			return nil
		})
		s.History = history.NewRepository(pool)
		if err := s.History.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}

	s.Balance = balance.NewService(cfg.BalanceConfig(), prof, s.Fetcher, s.Overrides, logger)
	logger.Info("services ready",
		slog.Any("entities", s.Balance.Entities()),
		slog.String("override_store", cfg.OverrideStore),
		slog.Bool("history", s.History != nil),
		slog.Bool("shared_invalidation", s.Invalidation != nil),
		slog.Bool("gcs", cfg.GCSEnabled))
	return s, nil
}

// RunHistory returns the history repository, or a nil interface when run
// history is disabled.
func (s *Services) RunHistory() balancehttp.RunHistory {
	if s == nil || s.History == nil {
		return nil
	}
	return s.History
}

// CacheInvalidation returns the shared invalidation, or a nil interface
// when it is disabled.
func (s *Services) CacheInvalidation() balancehttp.CacheInvalidator {
	if s == nil || s.Invalidation == nil {
		return nil
	}
	return s.Invalidation
}

// Close releases backends in reverse order of acquisition.
func (s *Services) Close() {
	if s == nil {
		return
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("close service", slog.Any("error", err))
		}
	}
	s.closers = nil
}
