package config

import (
	"fmt"
	"slices"
	"time"

	pkgconfig "github.com/utafrali/searchandising/pkg/config"
	"github.com/utafrali/searchandising/pkg/database"
	"github.com/utafrali/searchandising/pkg/tracing"
)

// Search engine backends.
const (
	EngineElasticsearch = "elasticsearch"
	EngineMemory        = "memory"
)

// Override storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Persistent query cache tiers.
const (
	CacheRedis = "redis"
	CacheBolt  = "bolt"
	CacheNone  = "none"
)

// Config holds all configuration for the searchandising service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Version     string `env:"SERVICE_VERSION" envDefault:"dev"`

	// HTTP server
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8010"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	SearchCacheTTL  time.Duration `env:"SEARCH_CACHE_TTL" envDefault:"0s"`
	PprofCIDRs      []string      `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`

	// Catalog metadata
	CatalogPath string `env:"CATALOG_PATH" envDefault:"catalog/**/*.yaml"`

	// Search engine
	SearchEngine       string `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`
	ElasticsearchURL   string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200"`
	ElasticsearchIndex string `env:"ELASTICSEARCH_INDEX" envDefault:"catalog_products"`

	// Refresh policy of bulk writes: true, false or wait_for.
	ElasticsearchRefresh string        `env:"ELASTICSEARCH_REFRESH" envDefault:"false"`
	ScrollPageSize       int           `env:"SYNC_SCROLL_PAGE_SIZE" envDefault:"1000"`
	ScrollKeepAlive      time.Duration `env:"SYNC_SCROLL_KEEP_ALIVE" envDefault:"5m"`

	// Override storage
	OverrideStorage    string        `env:"OVERRIDE_STORAGE" envDefault:"postgres"`
	PostgresHost       string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort       int           `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser       string        `env:"POSTGRES_USER" envDefault:"searchandising"`
	PostgresPassword   string        `env:"POSTGRES_PASSWORD" envDefault:"searchandising"`
	PostgresDB         string        `env:"POSTGRES_DB" envDefault:"searchandising"`
	PostgresSSLMode    string        `env:"POSTGRES_SSLMODE" envDefault:"disable"`
	PostgresMaxConns   int32         `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	SlowQueryThreshold time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Query cache
	QueryCacheBackend string        `env:"QUERY_CACHE_BACKEND" envDefault:"redis"`
	QueryCacheTTL     time.Duration `env:"QUERY_CACHE_TTL" envDefault:"24h"`
	QueryCacheFile    string        `env:"QUERY_CACHE_FILE" envDefault:"searchandising-cache.db"`
	RedisHost         string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort         int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword     string        `env:"REDIS_PASSWORD"`
	RedisDB           int           `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaEnabled       bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers       []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaConsumerGroup string        `env:"KAFKA_CONSUMER_GROUP" envDefault:"searchandising"`
	IdempotencyTTL     time.Duration `env:"KAFKA_IDEMPOTENCY_TTL" envDefault:"24h"`

	// Tracing
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return LoadWithPrefix("")
}

// LoadWithPrefix reads configuration from variables carrying prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.LoadWithPrefix(cfg, prefix); err != nil {
		return nil, fmt.Errorf("load searchandising config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if !slices.Contains([]string{EngineElasticsearch, EngineMemory}, c.SearchEngine) {
		return fmt.Errorf("invalid SEARCH_ENGINE %q: want %s or %s", c.SearchEngine, EngineElasticsearch, EngineMemory)
	}
	if !slices.Contains([]string{StoragePostgres, StorageMemory}, c.OverrideStorage) {
		return fmt.Errorf("invalid OVERRIDE_STORAGE %q: want %s or %s", c.OverrideStorage, StoragePostgres, StorageMemory)
	}
	if !slices.Contains([]string{CacheRedis, CacheBolt, CacheNone}, c.QueryCacheBackend) {
		return fmt.Errorf("invalid QUERY_CACHE_BACKEND %q: want %s, %s or %s", c.QueryCacheBackend, CacheRedis, CacheBolt, CacheNone)
	}
	if !slices.Contains([]string{"true", "false", "wait_for"}, c.ElasticsearchRefresh) {
		return fmt.Errorf("invalid ELASTICSEARCH_REFRESH %q", c.ElasticsearchRefresh)
	}
	if c.CatalogPath == "" {
		return fmt.Errorf("CATALOG_PATH is required")
	}
	if c.ScrollPageSize < 1 {
		return fmt.Errorf("invalid SYNC_SCROLL_PAGE_SIZE: %d", c.ScrollPageSize)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.OTelSampleRate < 0 || c.OTelSampleRate > 1 {
		return fmt.Errorf("invalid OTEL_SAMPLE_RATE: %v", c.OTelSampleRate)
	}
	return nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool { return c.Environment == "production" }

// Postgres returns the connection settings of the override database.
func (c *Config) Postgres() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPassword
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSLMode
	pg.MaxConns = c.PostgresMaxConns
	return pg
}

// Redis returns the connection settings of the query cache tier.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// Tracing returns the OpenTelemetry settings for serviceName.
func (c *Config) Tracing(serviceName string) tracing.Config {
	return tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: c.Version,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTelEndpoint,
		SampleRate:     c.OTelSampleRate,
		Enabled:        c.OTelEnabled,
	}
}
