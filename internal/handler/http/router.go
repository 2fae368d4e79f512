package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/searchandising/internal/service"
	"github.com/utafrali/searchandising/pkg/health"
	"github.com/utafrali/searchandising/pkg/middleware"
)

// ServiceName labels metrics and spans of the HTTP server.
const ServiceName = "searchandising"

// Services are the application services behind the API.
type Services struct {
	Search    *service.SearchService
	Positions *service.PositionService
	Sync      *service.SyncService
}

// RouterConfig tunes the global middleware.
type RouterConfig struct {
	CORS            middleware.CORSConfig
	RequestTimeout  time.Duration
	SearchCacheTTL  time.Duration
	PprofAllowCIDRs []string
}

// NewRouter creates a chi router with every API route registered.
func NewRouter(svc Services, cfg RouterConfig, healthHandler *health.Handler, logger *slog.Logger) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))
	r.Use(chimw.Compress(5))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	if len(cfg.PprofAllowCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofAllowCIDRs, logger)
	}

	searchHandler := NewSearchHandler(svc.Search, logger)
	ruleHandler := NewRuleHandler(svc.Search, logger)
	positionHandler := NewPositionHandler(svc.Positions, logger)
	syncHandler := NewSyncHandler(svc.Sync, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.RequestTimeout))

		r.With(middleware.CacheControl(int(cfg.SearchCacheTTL.Seconds()))).Get("/search", searchHandler.Search)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/categories/{id}", ruleHandler.Category)
			r.Get("/attributes/{code}", ruleHandler.Attribute)
		})

		r.Route("/positions/{kind}/{ownerID}", func(r chi.Router) {
			r.Get("/", positionHandler.List)
			r.With(chimw.AllowContentType("application/json")).Put("/", positionHandler.Save)
		})
		r.With(chimw.AllowContentType("application/json")).Post("/terms", positionHandler.RegisterTerm)

		r.Route("/sync", func(r chi.Router) {
			r.Get("/providers", syncHandler.Providers)
			r.Get("/runs", syncHandler.Runs)
			r.Post("/{provider}", syncHandler.Start)
		})
	})

	return r
}
