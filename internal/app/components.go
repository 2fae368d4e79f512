package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/searchandising/internal/bulk"
	"github.com/utafrali/searchandising/internal/cache"
	"github.com/utafrali/searchandising/internal/catalog"
	"github.com/utafrali/searchandising/internal/condition"
	"github.com/utafrali/searchandising/internal/config"
	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/engine"
	esengine "github.com/utafrali/searchandising/internal/engine/elasticsearch"
	"github.com/utafrali/searchandising/internal/engine/memory"
	"github.com/utafrali/searchandising/internal/event"
	handler "github.com/utafrali/searchandising/internal/handler/http"
	"github.com/utafrali/searchandising/internal/overlay"
	"github.com/utafrali/searchandising/internal/provider"
	"github.com/utafrali/searchandising/internal/repository"
	repomemory "github.com/utafrali/searchandising/internal/repository/memory"
	"github.com/utafrali/searchandising/internal/repository/postgres"
	"github.com/utafrali/searchandising/internal/rule"
	"github.com/utafrali/searchandising/internal/service"
	"github.com/utafrali/searchandising/migrations"
	"github.com/utafrali/searchandising/pkg/database"
	"github.com/utafrali/searchandising/pkg/health"
	"github.com/utafrali/searchandising/pkg/httpclient"
	pkgkafka "github.com/utafrali/searchandising/pkg/kafka"
)

// Components are the wired services shared by the HTTP server and the CLI.
type Components struct {
	Catalog   *catalog.Catalog
	Engine    engine.Engine
	Cache     *cache.QueryCache
	Search    *service.SearchService
	Positions *service.PositionService
	Sync      *service.SyncService
	Health    *health.Handler

	// Redis is set when the query cache uses the redis tier.
	Redis *redis.Client

	closers []func() error
}

type stores struct {
	termPositions     repository.PositionRepository
	categoryPositions repository.PositionRepository
	terms             repository.SearchTermRepository
	runs              repository.SyncRunRepository
}

// Build connects every backend selected by cfg and wires the services. On
// error everything opened so far is closed again.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Components, err error) {
	c := &Components{Health: health.NewHandler()}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)

	if c.Catalog, err = catalog.Load(cfg.CatalogPath); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	logger.Info("catalog loaded",
		slog.String("pattern", cfg.CatalogPath),
		slog.Int("stores", len(c.Catalog.Stores())),
		slog.Int("virtual_attributes", len(c.Catalog.VirtualAttributes())),
	)

	if c.Engine, err = c.openEngine(ctx, cfg, logger); err != nil {
		return nil, err
	}
	repos, err := c.openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	tier, err := c.openTier(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	c.Cache = cache.New(tier, logger)

	conditions := condition.NewCompiler(c.Catalog)
	categories := rule.NewCategoryCompiler(c.Catalog, conditions, c.Cache, logger)
	options := rule.NewOptionCompiler(conditions, categories, c.Cache, logger)
	ov := overlay.New(map[domain.OwnerKind]overlay.OverrideChecker{
		domain.OwnerSearchTerm: repos.termPositions,
		domain.OwnerCategory:   repos.categoryPositions,
	}, logger)

	registry, err := provider.NewRegistry(
		provider.NewTermPositionProvider(repos.termPositions),
		provider.NewCategoryPositionProvider(repos.categoryPositions),
	)
	if err != nil {
		return nil, err
	}
	runner := provider.NewRunner(c.Catalog, c.Engine, bulk.NewSynchronizer(c.Engine, logger), logger,
		provider.WithScroll(cfg.ScrollPageSize, cfg.ScrollKeepAlive),
	)
	c.Sync = service.NewSyncService(registry, runner, repos.runs, logger)

	if err := c.Engine.EnsureIndex(ctx, c.Sync.MappingProperties()); err != nil {
		return nil, fmt.Errorf("ensure index: %w", err)
	}

	// saved positions are resynced through the bus when it is available
	var resync service.Resyncer = c.Sync
	if cfg.KafkaEnabled {
		producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		c.closers = append(c.closers, producer.Close)
		c.Health.RegisterNonCritical("kafka", producer.Ping)
		resync = event.NewResyncPublisher(producer)
	}

	c.Positions = service.NewPositionService(map[domain.OwnerKind]repository.PositionRepository{
		domain.OwnerSearchTerm: repos.termPositions,
		domain.OwnerCategory:   repos.categoryPositions,
	}, repos.terms, c.Catalog, resync, logger)
	c.Search = service.NewSearchService(c.Engine, categories, options, c.Catalog, repos.terms, ov, logger)

	return c, nil
}

func (c *Components) openEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.Engine, error) {
	if cfg.SearchEngine == config.EngineMemory {
		mem, err := memory.New()
		if err != nil {
			return nil, fmt.Errorf("init memory engine: %w", err)
		}
		c.closers = append(c.closers, mem.Close)
		for id, doc := range c.Catalog.Documents() {
			if err := mem.Put(ctx, id, doc); err != nil {
				return nil, fmt.Errorf("seed memory engine: %w", err)
			}
		}
		logger.Info("in-memory search engine initialized", slog.Int("documents", mem.Len()))
		return mem, nil
	}

	transport := httpclient.NewBreakerTransport(
		httpclient.NewTransport(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig("elasticsearch"),
		logger,
	)
	es, err := esengine.New(esengine.Config{
		URL:       cfg.ElasticsearchURL,
		Index:     cfg.ElasticsearchIndex,
		Refresh:   cfg.ElasticsearchRefresh,
		Transport: transport,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init elasticsearch engine: %w", err)
	}
	c.Health.RegisterCritical("elasticsearch", es.Ping)
	logger.Info("elasticsearch search engine initialized",
		slog.String("url", cfg.ElasticsearchURL),
		slog.String("index", es.IndexName()),
	)
	return es, nil
}

func (c *Components) openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (stores, error) {
	if cfg.OverrideStorage == config.StorageMemory {
		terms := repomemory.NewSearchTermRepository()
		logger.Info("in-memory override storage initialized")
		return stores{
			termPositions:     repomemory.NewTermPositionRepository(terms),
			categoryPositions: repomemory.NewCategoryPositionRepository(),
			terms:             terms,
			runs:              repomemory.NewSyncRunRepository(),
		}, nil
	}

	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return stores{}, err
	}
	c.closers = append(c.closers, func() error { pool.Close(); return nil })

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		return stores{}, fmt.Errorf("run migrations: %w", err)
	}
	database.RegisterPoolMetrics(pool, handler.ServiceName)
	c.Health.RegisterCritical("postgres", pool.Ping)

	return stores{
		termPositions:     postgres.NewTermPositionRepository(pool),
		categoryPositions: postgres.NewCategoryPositionRepository(pool),
		terms:             postgres.NewSearchTermRepository(pool),
		runs:              postgres.NewSyncRunRepository(pool),
	}, nil
}

// openTier returns the persistent query cache tier, or nil when the cache is
// process-local only.
func (c *Components) openTier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.Tier, error) {
	switch cfg.QueryCacheBackend {
	case config.CacheRedis:
		client, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
		if err != nil {
			return nil, err
		}
		c.Redis = client
		c.closers = append(c.closers, client.Close)
		c.Health.RegisterNonCritical("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		return cache.NewRedisTier(client, cfg.QueryCacheTTL), nil
	case config.CacheBolt:
		tier, err := cache.OpenBoltTier(cfg.QueryCacheFile)
		if err != nil {
			return nil, fmt.Errorf("open query cache file: %w", err)
		}
		c.closers = append(c.closers, tier.Close)
		return tier, nil
	}
	return nil, nil
}

// Close releases every backend in reverse opening order.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
