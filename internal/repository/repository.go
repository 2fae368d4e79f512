package repository

import (
	"context"

	"github.com/utafrali/searchandising/internal/domain"
)

// PositionRepository persists manual product positions for one owner kind.
type PositionRepository interface {
	// Save upserts every product position of owner and deletes the owner's
	// rows whose product is absent from positions. Owner id 0 is a no-op.
	Save(ctx context.Context, ownerID, storeID int64, positions map[int64]int) error

	// ByProductIDs returns the overrides of the given products, store-scoped
	// when storeID is set.
	ByProductIDs(ctx context.Context, productIDs []int64, storeID *int64) ([]domain.PositionOverride, error)

	// ByOwner returns the overrides of owner ordered by position.
	ByOwner(ctx context.Context, ownerID, storeID int64) ([]domain.PositionOverride, error)

	// ProductIDsByOwner returns the products owner has a position for.
	ProductIDsByOwner(ctx context.Context, ownerID, storeID int64) ([]int64, error)

	// HasOverrides reports whether owner has at least one position.
	HasOverrides(ctx context.Context, ownerID, storeID int64) (bool, error)
}

// SearchTermRepository reads and registers stored search terms.
type SearchTermRepository interface {
	// GetByID returns apperrors.ErrNotFound for unknown ids.
	GetByID(ctx context.Context, id int64) (*domain.SearchTerm, error)

	// GetByText returns the term of store matching text, ignoring case.
	GetByText(ctx context.Context, storeID int64, text string) (*domain.SearchTerm, error)

	// Create registers text for store, returning the existing term if present.
	Create(ctx context.Context, storeID int64, text string) (*domain.SearchTerm, error)
}

// SyncRunRepository records provider sync runs.
type SyncRunRepository interface {
	Create(ctx context.Context, run *domain.SyncRun) error
	Finish(ctx context.Context, run *domain.SyncRun) error
	// List returns the latest runs, newest first, filtered by provider when set.
	List(ctx context.Context, provider string, limit int) ([]domain.SyncRun, error)
}
