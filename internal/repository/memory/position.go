// Package memory provides map-backed repositories for development and tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/utafrali/searchandising/internal/domain"
)

type positionKey struct {
	owner   int64
	product int64
	store   int64
}

// PositionRepository keeps positions of one owner kind in memory. Term
// positions ignore the store argument on writes and read the store from the
// registered term, like the PostgreSQL implementation.
type PositionRepository struct {
	mu    sync.RWMutex
	kind  domain.OwnerKind
	rows  map[positionKey]int
	terms *SearchTermRepository
}

// NewCategoryPositionRepository creates an in-memory category position store.
func NewCategoryPositionRepository() *PositionRepository {
	return &PositionRepository{kind: domain.OwnerCategory, rows: make(map[positionKey]int)}
}

// NewTermPositionRepository creates an in-memory term position store reading
// term stores from terms.
func NewTermPositionRepository(terms *SearchTermRepository) *PositionRepository {
	return &PositionRepository{kind: domain.OwnerSearchTerm, rows: make(map[positionKey]int), terms: terms}
}

func (r *PositionRepository) rowStore(ownerID, storeID int64) int64 {
	if r.kind != domain.OwnerSearchTerm {
		return storeID
	}
	if t, ok := r.terms.lookup(ownerID); ok {
		return t.StoreID
	}
	return domain.AdminStoreID
}

// visible reports whether a row stored for rowStore is read in storeID.
func (r *PositionRepository) visible(rowStore, storeID int64) bool {
	if r.kind == domain.OwnerSearchTerm {
		return rowStore == storeID
	}
	return rowStore == storeID || rowStore == domain.AdminStoreID
}

func (r *PositionRepository) Save(_ context.Context, ownerID, storeID int64, positions map[int64]int) error {
	if ownerID == 0 {
		return nil
	}
	store := r.rowStore(ownerID, storeID)

	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.rows {
		if k.owner != ownerID || k.store != store {
			continue
		}
		if _, keep := positions[k.product]; !keep {
			delete(r.rows, k)
		}
	}
	for product, pos := range positions {
		r.rows[positionKey{owner: ownerID, product: product, store: store}] = pos
	}
	return nil
}

// resolve returns the rows visible in storeID, a store row shadowing the
// admin row of the same owner and product.
func (r *PositionRepository) resolve(match func(positionKey) bool, storeID *int64) []domain.PositionOverride {
	type ownerProduct struct{ owner, product int64 }
	best := make(map[ownerProduct]domain.PositionOverride)

	r.mu.RLock()
	for k, pos := range r.rows {
		if !match(k) {
			continue
		}
		if storeID != nil && !r.visible(k.store, *storeID) {
			continue
		}
		op := ownerProduct{k.owner, k.product}
		if cur, ok := best[op]; ok && cur.StoreID >= k.store {
			continue
		}
		best[op] = domain.PositionOverride{
			OwnerKind: r.kind, OwnerID: k.owner, ProductID: k.product, StoreID: k.store, Position: pos,
		}
	}
	r.mu.RUnlock()

	out := make([]domain.PositionOverride, 0, len(best))
	for _, o := range best {
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b domain.PositionOverride) int {
		if a.ProductID != b.ProductID {
			return cmpInt64(a.ProductID, b.ProductID)
		}
		return cmpInt64(a.OwnerID, b.OwnerID)
	})
	return out
}

func (r *PositionRepository) ByProductIDs(_ context.Context, productIDs []int64, storeID *int64) ([]domain.PositionOverride, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	return r.resolve(func(k positionKey) bool { return slices.Contains(productIDs, k.product) }, storeID), nil
}

func (r *PositionRepository) ByOwner(_ context.Context, ownerID, storeID int64) ([]domain.PositionOverride, error) {
	scope := &storeID
	if r.kind == domain.OwnerSearchTerm {
		scope = nil
	}
	out := r.resolve(func(k positionKey) bool { return k.owner == ownerID }, scope)
	slices.SortStableFunc(out, func(a, b domain.PositionOverride) int { return a.Position - b.Position })
	return out, nil
}

func (r *PositionRepository) ProductIDsByOwner(ctx context.Context, ownerID, storeID int64) ([]int64, error) {
	rows, _ := r.ByOwner(ctx, ownerID, storeID)
	ids := make([]int64, 0, len(rows))
	for _, o := range rows {
		ids = append(ids, o.ProductID)
	}
	slices.Sort(ids)
	return ids, nil
}

// HasOverrides stops at the first row of ownerID visible in storeID.
func (r *PositionRepository) HasOverrides(_ context.Context, ownerID, storeID int64) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k := range r.rows {
		if k.owner != ownerID {
			continue
		}
		if r.kind == domain.OwnerSearchTerm || r.visible(k.store, storeID) {
			return true, nil
		}
	}
	return false, nil
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
