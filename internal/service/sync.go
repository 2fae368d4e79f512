package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/provider"
	"github.com/utafrali/searchandising/internal/repository"
	"github.com/utafrali/searchandising/pkg/logger"
	"github.com/utafrali/searchandising/pkg/tracing"
)

// SyncService runs registered providers and records every run.
type SyncService struct {
	registry *provider.Registry
	runner   *provider.Runner
	runs     repository.SyncRunRepository
	logger   *slog.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

// NewSyncService creates a new sync service.
func NewSyncService(registry *provider.Registry, runner *provider.Runner, runs repository.SyncRunRepository, logger *slog.Logger) *SyncService {
	return &SyncService{
		registry: registry,
		runner:   runner,
		runs:     runs,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SyncInput selects the provider and the run scope.
type SyncInput struct {
	Provider  string
	StoreID   *int64
	EntityIDs []int64
	Observer  provider.Observer
}

// Run executes a provider synchronously. The returned run holds the final
// status; a failed run is returned together with its error.
func (s *SyncService) Run(ctx context.Context, in SyncInput) (*domain.SyncRun, error) {
	p, run, err := s.begin(ctx, in)
	if err != nil {
		return nil, err
	}
	err = s.execute(ctx, p, run, in)
	return run, err
}

// Start records a run and executes it in the background, detached from
// ctx cancellation. It returns the run as recorded at start.
func (s *SyncService) Start(ctx context.Context, in SyncInput) (domain.SyncRun, error) {
	p, run, err := s.begin(ctx, in)
	if err != nil {
		return domain.SyncRun{}, err
	}
	started := *run

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.execute(context.WithoutCancel(ctx), p, run, in)
	}()
	return started, nil
}

// Wait blocks until every background run has finished.
func (s *SyncService) Wait() { s.wg.Wait() }

// Resync runs a targeted update of entityIDs in storeID.
func (s *SyncService) Resync(ctx context.Context, providerName string, storeID int64, entityIDs []int64) error {
	if len(entityIDs) == 0 {
		return nil
	}
	_, err := s.Run(ctx, SyncInput{Provider: providerName, StoreID: &storeID, EntityIDs: entityIDs})
	return err
}

// Runs lists the latest runs, filtered by provider when set.
func (s *SyncService) Runs(ctx context.Context, providerName string, limit int) ([]domain.SyncRun, error) {
	return s.runs.List(ctx, providerName, limit)
}

// Providers returns the registered provider names.
func (s *SyncService) Providers() []string { return s.registry.Names() }

// MappingProperties returns the merged mapping fragment of every provider.
func (s *SyncService) MappingProperties() map[string]any { return s.registry.MappingProperties() }

func (s *SyncService) begin(ctx context.Context, in SyncInput) (provider.Provider, *domain.SyncRun, error) {
	p, err := s.registry.Get(in.Provider)
	if err != nil {
		return nil, nil, err
	}
	run := &domain.SyncRun{
		ID:        uuid.NewString(),
		Provider:  p.Name(),
		Scope:     domain.ScopeOf(in.StoreID, in.EntityIDs),
		StoreID:   in.StoreID,
		Status:    domain.SyncInProgress,
		StartedAt: s.now(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, nil, err
	}
	return p, run, nil
}

func (s *SyncService) execute(ctx context.Context, p provider.Provider, run *domain.SyncRun, in SyncInput) error {
	ctx = logger.WithRunID(ctx, run.ID)
	ctx, span := tracing.Start(ctx, "sync.run",
		attribute.String("sync.run_id", run.ID),
		attribute.String("sync.provider", run.Provider),
		attribute.String("sync.scope", string(run.Scope)),
	)
	defer span.End()

	n, err := s.runner.Run(ctx, p, provider.Request{
		StoreID:   in.StoreID,
		EntityIDs: in.EntityIDs,
		Observer:  in.Observer,
	})

	finished := s.now()
	run.EntityCount = n
	run.FinishedAt = &finished
	run.Status = domain.SyncValid
	span.SetAttributes(attribute.Int("sync.documents", n))
	if err != nil {
		run.Status = domain.SyncInvalid
		run.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "sync run failed")
		s.logger.ErrorContext(ctx, "sync run failed",
			slog.String("run_id", run.ID),
			slog.String("provider", run.Provider),
			slog.String("scope", string(run.Scope)),
			slog.Int("documents", n),
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.InfoContext(ctx, "sync run finished",
			slog.String("run_id", run.ID),
			slog.String("provider", run.Provider),
			slog.String("scope", string(run.Scope)),
			slog.Int("documents", n),
			slog.Duration("duration", finished.Sub(run.StartedAt)),
		)
	}

	if finishErr := s.runs.Finish(context.WithoutCancel(ctx), run); finishErr != nil {
		s.logger.ErrorContext(ctx, "failed to record sync run status",
			slog.String("run_id", run.ID),
			slog.String("error", finishErr.Error()),
		)
	}
	return err
}
