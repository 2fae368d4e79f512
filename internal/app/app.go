package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/utafrali/searchandising/internal/config"
	"github.com/utafrali/searchandising/internal/event"
	handler "github.com/utafrali/searchandising/internal/handler/http"
	pkgkafka "github.com/utafrali/searchandising/pkg/kafka"
	"github.com/utafrali/searchandising/pkg/middleware"
	"github.com/utafrali/searchandising/pkg/tracing"
)

// App wires together all dependencies and runs the searchandising service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	comps      *Components
	consumers  []*pkgkafka.Consumer
	dlq        *pkgkafka.DLQProducer
	httpServer *http.Server
	shutdownTP tracing.Shutdown
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	shutdownTP, err := tracing.InitTracer(ctx, cfg.Tracing(handler.ServiceName))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	comps, err := Build(ctx, cfg, logger)
	if err != nil {
		_ = shutdownTP(ctx)
		return nil, err
	}

	a := &App{
		cfg:        cfg,
		logger:     logger,
		comps:      comps,
		shutdownTP: shutdownTP,
	}
	if cfg.KafkaEnabled {
		a.initConsumers()
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSOrigins
	router := handler.NewRouter(handler.Services{
		Search:    comps.Search,
		Positions: comps.Positions,
		Sync:      comps.Sync,
	}, handler.RouterConfig{
		CORS:            cors,
		RequestTimeout:  cfg.RequestTimeout,
		SearchCacheTTL:  cfg.SearchCacheTTL,
		PprofAllowCIDRs: cfg.PprofCIDRs,
	}, comps.Health, logger)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return a, nil
}

// initConsumers subscribes to every topic that triggers a resync or a cache
// invalidation.
func (a *App) initConsumers() {
	var store pkgkafka.IdempotencyStore
	if a.comps.Redis != nil {
		store = pkgkafka.NewRedisIdempotencyStore(a.comps.Redis, a.cfg.IdempotencyTTL)
	} else {
		store = pkgkafka.NewMemoryIdempotencyStore(a.cfg.IdempotencyTTL)
	}
	a.dlq = pkgkafka.NewDLQProducer(a.cfg.KafkaBrokers, a.logger)

	eventConsumer := event.NewConsumer(a.comps.Sync, a.comps.Cache, a.logger)
	handle := pkgkafka.IdempotentHandler(store, eventConsumer.Handle, a.logger)

	topics := event.Topics()
	for _, topic := range topics {
		c := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:   a.cfg.KafkaBrokers,
			GroupID:   a.cfg.KafkaConsumerGroup,
			Topic:     topic,
			MinBytes:  1,
			MaxBytes:  10e6, // 10 MB
			Permanent: event.Permanent,
			Backoff:   time.Second,
		}, handle, a.logger, pkgkafka.WithDeadLetter(a.dlq))
		a.consumers = append(a.consumers, c)
	}
	a.logger.Info("kafka consumers initialized",
		slog.Any("brokers", a.cfg.KafkaBrokers),
		slog.Int("topic_count", len(topics)),
	)
}

// Run starts the HTTP server and Kafka consumers, blocking until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	for _, c := range a.consumers {
		go func() {
			if err := c.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("engine", a.cfg.SearchEngine),
			slog.String("storage", a.cfg.OverrideStorage),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops all components. Running syncs are drained before
// the backends close.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	drained := make(chan struct{})
	go func() {
		a.comps.Sync.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		a.logger.Warn("sync runs still in progress at shutdown")
	}

	if err := a.comps.Close(); err != nil {
		a.logger.Error("backend close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.shutdownTP(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
