// Package overlay injects manual product positions into assembled search
// requests.
package overlay

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/filter"
)

// OverrideChecker probes whether an owner has manual positions.
type OverrideChecker interface {
	HasOverrides(ctx context.Context, ownerID, storeID int64) (bool, error)
}

// Overlay prepends position sorts for owners with overrides.
type Overlay struct {
	checkers map[domain.OwnerKind]OverrideChecker
	logger   *slog.Logger
}

// New creates an Overlay. checkers maps each owner kind with a position
// layout to its override store.
func New(checkers map[domain.OwnerKind]OverrideChecker, logger *slog.Logger) *Overlay {
	return &Overlay{checkers: checkers, logger: logger}
}

// Apply returns req with a position sort for owner as its primary sort key
// when owner has overrides. Otherwise, and when the override probe fails,
// req is returned unchanged.
func (o *Overlay) Apply(ctx context.Context, req domain.SearchRequest, owner domain.Owner) domain.SearchRequest {
	if !owner.Persisted() {
		return req
	}
	layout, ok := domain.LayoutFor(owner.Kind)
	checker := o.checkers[owner.Kind]
	if !ok || checker == nil {
		return req
	}

	has, err := checker.HasOverrides(ctx, owner.ID, owner.StoreID)
	if err != nil {
		o.logger.WarnContext(ctx, "position overlay skipped",
			slog.String("owner_kind", string(owner.Kind)),
			slog.Int64("owner_id", owner.ID),
			slog.String("error", err.Error()),
		)
		return req
	}
	if !has {
		return req
	}

	req.Sort = append([]domain.SortClause{PositionSort(layout, owner.ID)}, req.Sort...)
	return req
}

// PositionSort is the ascending nested sort on owner's positions. Products
// without a position for owner sort after every positioned product.
func PositionSort(layout domain.PositionLayout, ownerID int64) domain.SortClause {
	missing := domain.MissingPosition
	return domain.SortClause{
		Field:        layout.PositionPath(),
		Order:        domain.SortAsc,
		Missing:      &missing,
		UnmappedType: "long",
		Nested: &domain.NestedSort{
			Path:   layout.Path,
			Filter: filter.Term(layout.OwnerPath(), strconv.FormatInt(ownerID, 10)),
		},
	}
}
