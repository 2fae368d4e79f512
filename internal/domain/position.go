package domain

import "math"

// SortOrderLast is the global tie-break sentinel placing a document last.
const SortOrderLast int64 = math.MaxInt64

// MissingPosition is the sort value of products without an explicit
// position: after every overridden product, before SortOrderLast.
const MissingPosition = SortOrderLast - 1

// MaxPosition is the largest storable position.
const MaxPosition = math.MaxInt32

// PositionOverride is one manual product position for an owner.
type PositionOverride struct {
	OwnerKind OwnerKind `json:"owner_kind"`
	OwnerID   int64     `json:"owner_id"`
	ProductID int64     `json:"product_id"`
	StoreID   int64     `json:"store_id"`
	Position  int       `json:"position"`
}

// PositionLayout is the nested index field a provider writes positions to
// and the overlay sorts on.
type PositionLayout struct {
	Path          string
	OwnerField    string
	PositionField string
}

// OwnerPath is the fully qualified nested owner id field.
func (l PositionLayout) OwnerPath() string { return l.Path + "." + l.OwnerField }

// PositionPath is the fully qualified nested position field.
func (l PositionLayout) PositionPath() string { return l.Path + "." + l.PositionField }

var (
	TermPositionLayout = PositionLayout{
		Path:          "search_terms_position",
		OwnerField:    "query_id",
		PositionField: "term_product_position",
	}
	CategoryPositionLayout = PositionLayout{
		Path:          "virtual_category_position",
		OwnerField:    "virtual_category_id",
		PositionField: "category_product_position",
	}
)

// LayoutFor returns the position layout of an owner kind.
func LayoutFor(kind OwnerKind) (PositionLayout, bool) {
	switch kind {
	case OwnerSearchTerm:
		return TermPositionLayout, true
	case OwnerCategory:
		return CategoryPositionLayout, true
	}
	return PositionLayout{}, false
}
