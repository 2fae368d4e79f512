package provider

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/repository"
)

// Registered provider names.
const (
	TermPositionName     = "search_terms_position"
	CategoryPositionName = "virtual_category_position"
)

// PositionProvider writes the manual positions of one owner kind as a nested
// list of {owner id, position} objects.
type PositionProvider struct {
	name      string
	layout    domain.PositionLayout
	positions repository.PositionRepository
}

// NewTermPositionProvider creates the search term position provider.
func NewTermPositionProvider(positions repository.PositionRepository) *PositionProvider {
	return &PositionProvider{name: TermPositionName, layout: domain.TermPositionLayout, positions: positions}
}

// NewCategoryPositionProvider creates the category position provider.
func NewCategoryPositionProvider(positions repository.PositionRepository) *PositionProvider {
	return &PositionProvider{name: CategoryPositionName, layout: domain.CategoryPositionLayout, positions: positions}
}

func (p *PositionProvider) Name() string { return p.name }

// EntitiesData reads the positions of entityIDs visible in storeID. Entities
// without positions get an empty list.
func (p *PositionProvider) EntitiesData(ctx context.Context, storeID int64, entityIDs []int64) (map[int64]domain.Fields, error) {
	rows, err := p.positions.ByProductIDs(ctx, entityIDs, &storeID)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	grouped := make(map[int64][]domain.PositionOverride, len(entityIDs))
	for _, id := range entityIDs {
		grouped[id] = nil
	}
	for _, row := range rows {
		if _, wanted := grouped[row.ProductID]; !wanted {
			continue
		}
		grouped[row.ProductID] = append(grouped[row.ProductID], row)
	}

	out := make(map[int64]domain.Fields, len(grouped))
	for id, overrides := range grouped {
		slices.SortFunc(overrides, func(a, b domain.PositionOverride) int {
			return cmp.Compare(a.OwnerID, b.OwnerID)
		})
		entries := make([]map[string]any, 0, len(overrides))
		for _, o := range overrides {
			entries = append(entries, map[string]any{
				p.layout.OwnerField:    o.OwnerID,
				p.layout.PositionField: o.Position,
			})
		}
		out[id] = domain.Fields{p.layout.Path: entries}
	}
	return out, nil
}

// MappingProperties maps the subtree as nested objects with long fields.
func (p *PositionProvider) MappingProperties() map[string]any {
	return map[string]any{
		p.layout.Path: map[string]any{
			"type": "nested",
			"properties": map[string]any{
				p.layout.OwnerField:    map[string]any{"type": "long"},
				p.layout.PositionField: map[string]any{"type": "long"},
			},
		},
	}
}
