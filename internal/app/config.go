package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/esgari/balance360/internal/balance"
	"github.com/esgari/balance360/internal/platform/cache"
)

// Override store backends.
const (
	OverrideStoreMemory = "memory"
	OverrideStoreRedis  = "redis"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"60s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"45s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	// PGDSN enables run history when set.
	PGDSN      string `envconfig:"PG_DSN"`
	PGMaxConns int32  `envconfig:"PG_MAX_CONNS" default:"4"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	RefreshCron       string `envconfig:"REFRESH_CRON" default:"0 2 * * *"`
	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"2"`

	MappingURL   string   `envconfig:"MAPPING_URL"`
	MappingSheet string   `envconfig:"MAPPING_SHEET"`
	LedgerURL    string   `envconfig:"LEDGER_URL"`
	ManualURL    string   `envconfig:"MANUAL_URL"`
	Entities     []string `envconfig:"ENTITIES"`
	ProfileFile  string   `envconfig:"PROFILE_FILE"`

	SignConvention string  `envconfig:"SIGN_CONVENTION" default:"signed"`
	Epsilon        float64 `envconfig:"BALANCE_EPSILON" default:"1"`

	OverrideStore    string `envconfig:"OVERRIDE_STORE" default:"redis"`
	OverrideRedisKey string `envconfig:"OVERRIDE_REDIS_KEY" default:"balance360:overrides"`

	// GenerationRedisKey is bumped whenever any process changes what the
	// statement is built from. Used only with the redis override store.
	GenerationRedisKey string `envconfig:"GENERATION_REDIS_KEY" default:"balance360:statement:generation"`

	GCSEnabled bool `envconfig:"GCS_ENABLED" default:"false"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.MappingURL == "" {
		return nil, errors.New("mapping url must be provided")
	}
	if cfg.LedgerURL == "" {
		return nil, errors.New("ledger url must be provided")
	}
	if _, err := balance.ParseConvention(cfg.SignConvention); err != nil {
		return nil, err
	}
	if cfg.Epsilon <= 0 {
		return nil, fmt.Errorf("balance epsilon must be positive, got %v", cfg.Epsilon)
	}
	switch cfg.OverrideStore {
	case OverrideStoreMemory, OverrideStoreRedis:
	default:
		return nil, fmt.Errorf("unknown override store %q", cfg.OverrideStore)
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// RedisOptions returns the shared Redis endpoint.
func (c *Config) RedisOptions() cache.Options {
	return cache.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// QueueOptions returns the asynq connection for the same Redis endpoint.
func (c *Config) QueueOptions() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// BalanceConfig translates the environment into pipeline settings.
func (c *Config) BalanceConfig() balance.Config {
	convention, _ := balance.ParseConvention(c.SignConvention)
	entities := make([]string, 0, len(c.Entities))
	for _, e := range c.Entities {
		if e = strings.ToUpper(strings.TrimSpace(e)); e != "" {
			entities = append(entities, e)
		}
	}
	return balance.Config{
		MappingSource: c.MappingURL,
		MappingSheet:  c.MappingSheet,
		LedgerSource:  c.LedgerURL,
		ManualSource:  c.ManualURL,
		Entities:      entities,
		Convention:    convention,
		Epsilon:       decimal.NewFromFloat(c.Epsilon),
	}
}
