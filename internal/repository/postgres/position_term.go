package postgres

import (
	"context"
	"fmt"

	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/pkg/database"
)

// TermPositionRepository stores search term positions. A term belongs to one
// store, so the store scope of a row is read from search_terms.
type TermPositionRepository struct {
	pool database.DBTX
}

// NewTermPositionRepository creates a new PostgreSQL-backed term position repository.
func NewTermPositionRepository(pool database.DBTX) *TermPositionRepository {
	return &TermPositionRepository{pool: pool}
}

// Save replaces the positions of term ownerID. storeID is implied by the term.
func (r *TermPositionRepository) Save(ctx context.Context, ownerID, _ int64, positions map[int64]int) (err error) {
	if ownerID == 0 {
		return nil
	}
	productIDs, values := splitPositions(positions)

	ctx, end := database.TraceQuery(ctx, "SaveTermPositions", "search_term_product_position")
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if len(productIDs) > 0 {
		upsert := `
			INSERT INTO search_term_product_position (query_id, product_id, position)
			SELECT $1, p.product_id, p.position
			FROM unnest($2::bigint[], $3::int[]) AS p(product_id, position)
			ON CONFLICT (query_id, product_id) DO UPDATE SET
				position = EXCLUDED.position`
		if _, err = tx.Exec(ctx, upsert, ownerID, productIDs, values); err != nil {
			return fmt.Errorf("upsert term positions: %w", err)
		}
	}

	prune := `
		DELETE FROM search_term_product_position
		WHERE query_id = $1 AND NOT (product_id = ANY($2::bigint[]))`
	if _, err = tx.Exec(ctx, prune, ownerID, productIDs); err != nil {
		return fmt.Errorf("prune term positions: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ByProductIDs returns the term positions of the given products.
func (r *TermPositionRepository) ByProductIDs(ctx context.Context, productIDs []int64, storeID *int64) ([]domain.PositionOverride, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT p.query_id, p.product_id, t.store_id, p.position
		FROM search_term_product_position p
		JOIN search_terms t ON t.id = p.query_id
		WHERE p.product_id = ANY($1::bigint[])
		  AND ($2::bigint IS NULL OR t.store_id = $2)
		ORDER BY p.product_id, p.query_id`

	rows, err := r.pool.Query(ctx, query, productIDs, storeID)
	if err != nil {
		return nil, fmt.Errorf("list term positions by products: %w", err)
	}
	return scanOverrides(rows, domain.OwnerSearchTerm)
}

// ByOwner returns the positions of term ownerID.
func (r *TermPositionRepository) ByOwner(ctx context.Context, ownerID, _ int64) ([]domain.PositionOverride, error) {
	query := `
		SELECT p.query_id, p.product_id, t.store_id, p.position
		FROM search_term_product_position p
		JOIN search_terms t ON t.id = p.query_id
		WHERE p.query_id = $1
		ORDER BY p.position, p.product_id`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list term positions: %w", err)
	}
	return scanOverrides(rows, domain.OwnerSearchTerm)
}

// ProductIDsByOwner returns the products term ownerID has a position for.
func (r *TermPositionRepository) ProductIDsByOwner(ctx context.Context, ownerID, _ int64) ([]int64, error) {
	query := `
		SELECT product_id
		FROM search_term_product_position
		WHERE query_id = $1
		ORDER BY product_id`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list term product ids: %w", err)
	}
	return scanIDs(rows)
}

// HasOverrides reports whether term ownerID has any position.
func (r *TermPositionRepository) HasOverrides(ctx context.Context, ownerID, _ int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM search_term_product_position WHERE query_id = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, ownerID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check term positions: %w", err)
	}
	return exists, nil
}
