package http

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/esgari/balance360/internal/balance"
)

const statementTTL = 5 * time.Minute

var (
	viewCache  = newStatementCache(statementTTL)
	buildGroup singleflight.Group
)

// statementCache holds the last built statement. Every Bust advances the
// generation; a build may only publish its result under the generation it
// started in, so a build that raced an override change is discarded.
type statementCache struct {
	ttl time.Duration

	mu      sync.Mutex
	gen     uint64
	stmt    balance.Statement
	expires time.Time
	filled  bool
}

func newStatementCache(ttl time.Duration) *statementCache {
	return &statementCache{ttl: ttl}
}

// Load returns the cached statement, if still fresh, and the current
// generation.
func (c *statementCache) Load() (balance.Statement, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.filled && time.Now().After(c.expires) {
		c.filled = false
		c.stmt = balance.Statement{}
	}
	return c.stmt, c.gen, c.filled
}

// Store caches stmt when gen is still current.
func (c *statementCache) Store(gen uint64, stmt balance.Statement) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.stmt, c.filled = stmt, true
	c.expires = time.Now().Add(c.ttl)
	return true
}

// Bust drops the statement and starts a new generation.
func (c *statementCache) Bust() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.stmt, c.filled = balance.Statement{}, false
	return c.gen
}

// BustViewCache drops the cached statement so the next request rebuilds it.
func BustViewCache() {
	viewCache.Bust()
}

// buildKey scopes a build to its generation so requests arriving after a
// bust never join a build that started before it.
func buildKey(gen uint64, reload bool) string {
	key := "statement@" + strconv.FormatUint(gen, 10)
	if reload {
		key += ":reload"
	}
	return key
}

// sharedBuild runs fn once per key. The build outlives a cancelled caller so
// the other waiters still get a result.
func sharedBuild(ctx context.Context, key string, fn func(context.Context) (balance.Statement, error)) (balance.Statement, error) {
	ch := buildGroup.DoChan(key, func() (interface{}, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return balance.Statement{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return balance.Statement{}, res.Err
		}
		return res.Val.(balance.Statement), nil
	}
}

type cacheMetrics struct {
	hits   prometheus.Counter
	misses prometheus.Counter
	stale  prometheus.Counter
	builds *prometheus.HistogramVec
}

var activeCacheMetrics atomic.Pointer[cacheMetrics]

// SetupCacheMetrics registers the statement cache collectors with reg, or
// with the default registerer when nil. Collectors already present in reg are
// reused.
func SetupCacheMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	hits, err := registerCollector(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balance360_statement_cache_hits_total",
		Help: "Statement requests served from the in-process cache.",
	}))
	if err != nil {
		return err
	}
	misses, err := registerCollector(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balance360_statement_cache_misses_total",
		Help: "Statement requests that triggered or joined a build.",
	}))
	if err != nil {
		return err
	}
	stale, err := registerCollector(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "balance360_statement_cache_discarded_total",
		Help: "Built statements not cached because the cache was busted mid-build.",
	}))
	if err != nil {
		return err
	}
	builds, err := registerCollector(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "balance360_statement_build_duration_seconds",
		Help:    "Duration of statement builds started by HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"reload"}))
	if err != nil {
		return err
	}
	activeCacheMetrics.Store(&cacheMetrics{hits: hits, misses: misses, stale: stale, builds: builds})
	return nil
}

func registerCollector[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	var zero C
	return zero, err
}

func recordCacheHit() {
	if m := activeCacheMetrics.Load(); m != nil {
		m.hits.Inc()
	}
}

func recordCacheMiss() {
	if m := activeCacheMetrics.Load(); m != nil {
		m.misses.Inc()
	}
}

func recordDiscardedBuild() {
	if m := activeCacheMetrics.Load(); m != nil {
		m.stale.Inc()
	}
}

func observeBuildDuration(reload bool, d time.Duration) {
	if m := activeCacheMetrics.Load(); m != nil {
		m.builds.WithLabelValues(strconv.FormatBool(reload)).Observe(d.Seconds())
	}
}
