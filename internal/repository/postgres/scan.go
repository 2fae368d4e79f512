package postgres

import (
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/searchandising/internal/domain"
)

// splitPositions turns a position map into parallel arrays ordered by
// product id, ready for unnest.
func splitPositions(positions map[int64]int) ([]int64, []int32) {
	productIDs := make([]int64, 0, len(positions))
	for id := range positions {
		productIDs = append(productIDs, id)
	}
	slices.Sort(productIDs)

	values := make([]int32, len(productIDs))
	for i, id := range productIDs {
		values[i] = int32(positions[id])
	}
	return productIDs, values
}

func scanOverrides(rows pgx.Rows, kind domain.OwnerKind) ([]domain.PositionOverride, error) {
	defer rows.Close()

	var out []domain.PositionOverride
	for rows.Next() {
		o := domain.PositionOverride{OwnerKind: kind}
		if err := rows.Scan(&o.OwnerID, &o.ProductID, &o.StoreID, &o.Position); err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}
	return out, nil
}

func scanIDs(rows pgx.Rows) ([]int64, error) {
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id row: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate id rows: %w", err)
	}
	return out, nil
}
