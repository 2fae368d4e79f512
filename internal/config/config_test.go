package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8010, cfg.HTTPPort)
	assert.Equal(t, EngineElasticsearch, cfg.SearchEngine)
	assert.Equal(t, "http://localhost:9200", cfg.ElasticsearchURL)
	assert.Equal(t, "catalog_products", cfg.ElasticsearchIndex)
	assert.Equal(t, StoragePostgres, cfg.OverrideStorage)
	assert.Equal(t, CacheRedis, cfg.QueryCacheBackend)
	assert.Equal(t, 24*time.Hour, cfg.QueryCacheTTL)
	assert.Equal(t, 1000, cfg.ScrollPageSize)
	assert.Equal(t, 5*time.Minute, cfg.ScrollKeepAlive)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.PprofCIDRs)
	assert.False(t, cfg.KafkaEnabled)
	assert.False(t, cfg.OTelEnabled)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FromEnv(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":          "production",
		"HTTP_PORT":            "9000",
		"SEARCH_ENGINE":        "memory",
		"OVERRIDE_STORAGE":     "memory",
		"QUERY_CACHE_BACKEND":  "bolt",
		"QUERY_CACHE_FILE":     "/var/lib/searchandising/cache.db",
		"CATALOG_PATH":         "/etc/catalog/*.yaml",
		"KAFKA_ENABLED":        "true",
		"KAFKA_BROKERS":        "kafka-1:9092,kafka-2:9092",
		"CORS_ALLOWED_ORIGINS": "https://admin.example.com,https://shop.example.com",
		"PPROF_ALLOWED_CIDRS":  "10.0.0.0/8",
		"SEARCH_CACHE_TTL":     "30s",
		"OTEL_SAMPLE_RATE":     "0.1",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, EngineMemory, cfg.SearchEngine)
	assert.Equal(t, StorageMemory, cfg.OverrideStorage)
	assert.Equal(t, CacheBolt, cfg.QueryCacheBackend)
	assert.Equal(t, "/var/lib/searchandising/cache.db", cfg.QueryCacheFile)
	assert.Equal(t, "/etc/catalog/*.yaml", cfg.CatalogPath)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"https://admin.example.com", "https://shop.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, []string{"10.0.0.0/8"}, cfg.PprofCIDRs)
	assert.Equal(t, 30*time.Second, cfg.SearchCacheTTL)
	assert.InDelta(t, 0.1, cfg.OTelSampleRate, 1e-9)
}

func TestLoad_WithPrefix(t *testing.T) {
	t.Setenv("SEARCHCTL_SEARCH_ENGINE", "memory")
	t.Setenv("SEARCHCTL_QUERY_CACHE_BACKEND", "none")
	t.Setenv("SEARCH_ENGINE", "bogus")

	cfg, err := LoadWithPrefix("SEARCHCTL_")

	require.NoError(t, err)
	assert.Equal(t, EngineMemory, cfg.SearchEngine)
	assert.Equal(t, CacheNone, cfg.QueryCacheBackend)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		envs    map[string]string
		wantErr string
	}{
		{"port zero", map[string]string{"HTTP_PORT": "0"}, "invalid HTTP port"},
		{"port too large", map[string]string{"HTTP_PORT": "70000"}, "invalid HTTP port"},
		{"engine", map[string]string{"SEARCH_ENGINE": "solr"}, "invalid SEARCH_ENGINE"},
		{"storage", map[string]string{"OVERRIDE_STORAGE": "mysql"}, "invalid OVERRIDE_STORAGE"},
		{"cache", map[string]string{"QUERY_CACHE_BACKEND": "memcached"}, "invalid QUERY_CACHE_BACKEND"},
		{"refresh", map[string]string{"ELASTICSEARCH_REFRESH": "sometimes"}, "invalid ELASTICSEARCH_REFRESH"},
		{"page size", map[string]string{"SYNC_SCROLL_PAGE_SIZE": "0"}, "invalid SYNC_SCROLL_PAGE_SIZE"},
		{"sample rate", map[string]string{"OTEL_SAMPLE_RATE": "1.5"}, "invalid OTEL_SAMPLE_RATE"},
		{"duration", map[string]string{"QUERY_CACHE_TTL": "forever"}, "load searchandising config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnvs(t, tt.envs)

			cfg, err := Load()

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Derived(t *testing.T) {
	setEnvs(t, map[string]string{
		"POSTGRES_HOST":      "db",
		"POSTGRES_PORT":      "6543",
		"POSTGRES_MAX_CONNS": "4",
		"REDIS_HOST":         "cache",
		"REDIS_DB":           "3",
		"OTEL_ENABLED":       "true",
		"SERVICE_VERSION":    "1.2.3",
	})

	cfg, err := Load()
	require.NoError(t, err)

	pg := cfg.Postgres()
	assert.Equal(t, "db", pg.Host)
	assert.Equal(t, 6543, pg.Port)
	assert.Equal(t, int32(4), pg.MaxConns)
	assert.Equal(t, "postgres://searchandising:searchandising@db:6543/searchandising?sslmode=disable", pg.DSN())

	assert.Equal(t, "cache:6379", cfg.Redis().Addr())
	assert.Equal(t, 3, cfg.Redis().DB)

	tc := cfg.Tracing("searchandising")
	assert.True(t, tc.Enabled)
	assert.Equal(t, "searchandising", tc.ServiceName)
	assert.Equal(t, "1.2.3", tc.ServiceVersion)
	assert.Equal(t, "localhost:4318", tc.OTLPEndpoint)
}
