package postgres

import (
	"context"
	"fmt"

	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/pkg/database"
)

// CategoryPositionRepository stores category positions per store. Rows saved
// for the admin store (0) apply to every store view; a store specific row for
// the same product wins over the admin row.
type CategoryPositionRepository struct {
	pool database.DBTX
}

// NewCategoryPositionRepository creates a new PostgreSQL-backed category position repository.
func NewCategoryPositionRepository(pool database.DBTX) *CategoryPositionRepository {
	return &CategoryPositionRepository{pool: pool}
}

// Save replaces the positions of category ownerID in storeID.
func (r *CategoryPositionRepository) Save(ctx context.Context, ownerID, storeID int64, positions map[int64]int) (err error) {
	if ownerID == 0 {
		return nil
	}
	productIDs, values := splitPositions(positions)

	ctx, end := database.TraceQuery(ctx, "SaveCategoryPositions", "category_product_position")
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if len(productIDs) > 0 {
		upsert := `
			INSERT INTO category_product_position (category_id, product_id, store_id, position)
			SELECT $1, p.product_id, $2, p.position
			FROM unnest($3::bigint[], $4::int[]) AS p(product_id, position)
			ON CONFLICT (category_id, product_id, store_id) DO UPDATE SET
				position = EXCLUDED.position`
		if _, err = tx.Exec(ctx, upsert, ownerID, storeID, productIDs, values); err != nil {
			return fmt.Errorf("upsert category positions: %w", err)
		}
	}

	prune := `
		DELETE FROM category_product_position
		WHERE category_id = $1 AND store_id = $2 AND NOT (product_id = ANY($3::bigint[]))`
	if _, err = tx.Exec(ctx, prune, ownerID, storeID, productIDs); err != nil {
		return fmt.Errorf("prune category positions: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ByProductIDs returns the category positions of the given products. With a
// store, admin rows are included and shadowed by store rows.
func (r *CategoryPositionRepository) ByProductIDs(ctx context.Context, productIDs []int64, storeID *int64) ([]domain.PositionOverride, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT DISTINCT ON (category_id, product_id) category_id, product_id, store_id, position
		FROM category_product_position
		WHERE product_id = ANY($1::bigint[])
		  AND ($2::bigint IS NULL OR store_id IN (0, $2))
		ORDER BY category_id, product_id, store_id DESC`

	rows, err := r.pool.Query(ctx, query, productIDs, storeID)
	if err != nil {
		return nil, fmt.Errorf("list category positions by products: %w", err)
	}
	return scanOverrides(rows, domain.OwnerCategory)
}

// ByOwner returns the positions of category ownerID visible in storeID.
func (r *CategoryPositionRepository) ByOwner(ctx context.Context, ownerID, storeID int64) ([]domain.PositionOverride, error) {
	query := `
		SELECT category_id, product_id, store_id, position
		FROM (
			SELECT DISTINCT ON (product_id) category_id, product_id, store_id, position
			FROM category_product_position
			WHERE category_id = $1 AND store_id IN (0, $2)
			ORDER BY product_id, store_id DESC
		) visible
		ORDER BY position, product_id`

	rows, err := r.pool.Query(ctx, query, ownerID, storeID)
	if err != nil {
		return nil, fmt.Errorf("list category positions: %w", err)
	}
	return scanOverrides(rows, domain.OwnerCategory)
}

// ProductIDsByOwner returns the products category ownerID has a position for in storeID.
func (r *CategoryPositionRepository) ProductIDsByOwner(ctx context.Context, ownerID, storeID int64) ([]int64, error) {
	query := `
		SELECT DISTINCT product_id
		FROM category_product_position
		WHERE category_id = $1 AND store_id IN (0, $2)
		ORDER BY product_id`

	rows, err := r.pool.Query(ctx, query, ownerID, storeID)
	if err != nil {
		return nil, fmt.Errorf("list category product ids: %w", err)
	}
	return scanIDs(rows)
}

// HasOverrides reports whether category ownerID has any position visible in storeID.
func (r *CategoryPositionRepository) HasOverrides(ctx context.Context, ownerID, storeID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM category_product_position
			WHERE category_id = $1 AND store_id IN (0, $2)
		)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, ownerID, storeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check category positions: %w", err)
	}
	return exists, nil
}
