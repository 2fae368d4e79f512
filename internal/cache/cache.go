// Package cache memoizes compiled rule queries. A QueryCache is constructed
// explicitly and injected into the compilers that use it.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/filter"
)

var lookups = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rule_query_cache_lookups_total",
		Help: "Compiled rule query cache lookups by tier and result",
	},
	[]string{"tier", "result"},
)

// Key identifies one compiled query. Scope holds the fingerprint of the
// exclusion set the query was compiled under, so results computed inside a
// cyclic traversal are never served to a top-level lookup.
type Key struct {
	Kind     domain.OwnerKind
	OwnerID  int64
	OptionID int64
	StoreID  int64
	Scope    string
}

func (k Key) String() string {
	s := fmt.Sprintf("%s/%d/%d/%d", k.Kind, k.OwnerID, k.OptionID, k.StoreID)
	if k.Scope != "" {
		s += "/" + k.Scope
	}
	return s
}

// Tier is a persistent backend shared across processes or runs.
type Tier interface {
	Get(ctx context.Context, key string) (filter.Compiled, bool, error)
	Set(ctx context.Context, key string, value filter.Compiled, tags []string) error
	InvalidateTags(ctx context.Context, tags ...string) error
}

type entry struct {
	value filter.Compiled
	tags  []string
}

// QueryCache is a process-local map in front of an optional persistent tier.
// Local entries never expire; they are dropped by Invalidate. Tier failures
// are logged and treated as misses.
type QueryCache struct {
	mu     sync.RWMutex
	local  map[string]entry
	tier   Tier
	logger *slog.Logger
}

// New creates a cache. tier may be nil.
func New(tier Tier, logger *slog.Logger) *QueryCache {
	return &QueryCache{
		local:  make(map[string]entry),
		tier:   tier,
		logger: logger,
	}
}

// Get returns the cached value for key.
func (c *QueryCache) Get(ctx context.Context, key Key) (filter.Compiled, bool) {
	k := key.String()

	c.mu.RLock()
	e, ok := c.local[k]
	c.mu.RUnlock()
	if ok {
		lookups.WithLabelValues("local", "hit").Inc()
		return e.value, true
	}
	lookups.WithLabelValues("local", "miss").Inc()

	if c.tier == nil {
		return filter.Compiled{}, false
	}

	value, ok, err := c.tier.Get(ctx, k)
	if err != nil {
		lookups.WithLabelValues("persistent", "error").Inc()
		c.logger.WarnContext(ctx, "query cache tier read failed",
			slog.String("key", k),
			slog.String("error", err.Error()),
		)
		return filter.Compiled{}, false
	}
	if !ok {
		lookups.WithLabelValues("persistent", "miss").Inc()
		return filter.Compiled{}, false
	}

	lookups.WithLabelValues("persistent", "hit").Inc()
	c.mu.Lock()
	c.local[k] = entry{value: value, tags: value.Tags()}
	c.mu.Unlock()
	return value, true
}

// Put stores value under key in both tiers, tagged with the ids it depends on.
func (c *QueryCache) Put(ctx context.Context, key Key, value filter.Compiled) {
	k := key.String()
	tags := value.Tags()

	c.mu.Lock()
	c.local[k] = entry{value: value, tags: tags}
	c.mu.Unlock()

	if c.tier == nil {
		return
	}
	if err := c.tier.Set(ctx, k, value, tags); err != nil {
		c.logger.WarnContext(ctx, "query cache tier write failed",
			slog.String("key", k),
			slog.String("error", err.Error()),
		)
	}
}

// Invalidate drops every entry tagged with any of tags.
func (c *QueryCache) Invalidate(ctx context.Context, tags ...string) error {
	if len(tags) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		drop[t] = struct{}{}
	}

	c.mu.Lock()
	for k, e := range c.local {
		for _, t := range e.tags {
			if _, ok := drop[t]; ok {
				delete(c.local, k)
				break
			}
		}
	}
	c.mu.Unlock()

	if c.tier == nil {
		return nil
	}
	if err := c.tier.InvalidateTags(ctx, tags...); err != nil {
		return fmt.Errorf("invalidate cache tags: %w", err)
	}
	return nil
}

// Reset clears the process-local tier.
func (c *QueryCache) Reset() {
	c.mu.Lock()
	c.local = make(map[string]entry)
	c.mu.Unlock()
}

// Len returns the number of process-local entries.
func (c *QueryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.local)
}
