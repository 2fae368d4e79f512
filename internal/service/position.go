package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/provider"
	"github.com/utafrali/searchandising/internal/repository"
	apperrors "github.com/utafrali/searchandising/pkg/errors"
)

// Resyncer requests a targeted provider update, directly or through an event.
type Resyncer interface {
	Resync(ctx context.Context, providerName string, storeID int64, entityIDs []int64) error
}

// providerFor maps an owner kind to the provider writing its positions.
var providerFor = map[domain.OwnerKind]string{
	domain.OwnerSearchTerm: provider.TermPositionName,
	domain.OwnerCategory:   provider.CategoryPositionName,
}

// PositionService saves manual positions and keeps the index in step.
type PositionService struct {
	positions map[domain.OwnerKind]repository.PositionRepository
	terms     repository.SearchTermRepository
	stores    provider.StoreSource
	resync    Resyncer
	logger    *slog.Logger
}

// NewPositionService creates a new position service.
func NewPositionService(
	positions map[domain.OwnerKind]repository.PositionRepository,
	terms repository.SearchTermRepository,
	stores provider.StoreSource,
	resync Resyncer,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		positions: positions,
		terms:     terms,
		stores:    stores,
		resync:    resync,
		logger:    logger,
	}
}

func (s *PositionService) repo(kind domain.OwnerKind) (repository.PositionRepository, error) {
	r, ok := s.positions[kind]
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("owner kind %q has no positions", kind))
	}
	return r, nil
}

// Save replaces the positions of owner and resyncs every product that gained
// or lost a position. An owner without a stored identity is ignored.
func (s *PositionService) Save(ctx context.Context, owner domain.Owner, positions map[int64]int) error {
	repo, err := s.repo(owner.Kind)
	if err != nil {
		return err
	}
	if !owner.Persisted() {
		return nil
	}
	for product, pos := range positions {
		if product <= 0 || pos < 0 || pos > domain.MaxPosition {
			return apperrors.InvalidInput(fmt.Sprintf("invalid position %d for product %d", pos, product))
		}
	}

	stores, err := s.affectedStores(ctx, owner)
	if err != nil {
		return err
	}

	previous, err := repo.ProductIDsByOwner(ctx, owner.ID, owner.StoreID)
	if err != nil {
		return fmt.Errorf("read previous positions: %w", err)
	}
	if err := repo.Save(ctx, owner.ID, owner.StoreID, positions); err != nil {
		return fmt.Errorf("save positions: %w", err)
	}

	affected := append(previous, slices.Collect(maps.Keys(positions))...)
	slices.Sort(affected)
	affected = slices.Compact(affected)

	s.logger.InfoContext(ctx, "positions saved",
		slog.String("owner_kind", string(owner.Kind)),
		slog.Int64("owner_id", owner.ID),
		slog.Int64("store_id", owner.StoreID),
		slog.Int("positions", len(positions)),
		slog.Int("affected_products", len(affected)),
	)

	for _, storeID := range stores {
		if err := s.resync.Resync(ctx, providerFor[owner.Kind], storeID, affected); err != nil {
			return fmt.Errorf("resync store %d: %w", storeID, err)
		}
	}
	return nil
}

// affectedStores lists the stores whose documents carry owner's positions:
// the term's own store, or every store for admin category positions.
func (s *PositionService) affectedStores(ctx context.Context, owner domain.Owner) ([]int64, error) {
	switch {
	case owner.Kind == domain.OwnerSearchTerm:
		term, err := s.terms.GetByID(ctx, owner.ID)
		if err != nil {
			return nil, err
		}
		return []int64{term.StoreID}, nil
	case owner.StoreID == domain.AdminStoreID:
		return s.stores.StoreIDs(ctx)
	default:
		return []int64{owner.StoreID}, nil
	}
}

// List returns the positions of owner ordered by position.
func (s *PositionService) List(ctx context.Context, owner domain.Owner) ([]domain.PositionOverride, error) {
	repo, err := s.repo(owner.Kind)
	if err != nil {
		return nil, err
	}
	return repo.ByOwner(ctx, owner.ID, owner.StoreID)
}

// ProductIDs returns the products owner has a position for.
func (s *PositionService) ProductIDs(ctx context.Context, owner domain.Owner) ([]int64, error) {
	repo, err := s.repo(owner.Kind)
	if err != nil {
		return nil, err
	}
	return repo.ProductIDsByOwner(ctx, owner.ID, owner.StoreID)
}

// RegisterTerm stores a search term so positions can be saved for it.
func (s *PositionService) RegisterTerm(ctx context.Context, storeID int64, text string) (*domain.SearchTerm, error) {
	if text == "" {
		return nil, apperrors.InvalidInput("search term text is required")
	}
	return s.terms.Create(ctx, storeID, text)
}
