package domain

import (
	"slices"
	"strings"

	"github.com/utafrali/searchandising/internal/filter"
)

// Sort options for search results.
const (
	SortRelevance = "relevance"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortNewest    = "newest"
)

// ValidSortOptions returns the list of valid sort options.
func ValidSortOptions() []string {
	return []string{SortRelevance, SortPriceAsc, SortPriceDesc, SortNewest}
}

// IsValidSort checks whether the given sort string is a valid sort option.
func IsValidSort(sort string) bool {
	return slices.Contains(ValidSortOptions(), sort)
}

// SearchQuery is a storefront search request before rule compilation.
type SearchQuery struct {
	Query      string `json:"query"`
	StoreID    int64  `json:"store_id"`
	CategoryID *int64 `json:"category_id,omitempty"`
	// TermID is the stored search term matching Query; its positions rank the results.
	TermID *int64 `json:"term_id,omitempty"`
	// VirtualAttributes maps a virtual attribute code to the selected option ids.
	VirtualAttributes map[string][]int64 `json:"virtual_attributes,omitempty"`
	// Facets lists the virtual attribute codes to build query groups for.
	Facets  []string `json:"facets,omitempty"`
	SortBy  string   `json:"sort_by"`
	Page    int      `json:"page"`
	PerPage int      `json:"per_page"`
}

// SortOrder is asc or desc.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// NestedSort scopes a sort on a nested field to the nested objects matching Filter.
type NestedSort struct {
	Path   string
	Filter filter.Expr
}

// SortClause is one engine sort key.
type SortClause struct {
	Field        string
	Order        SortOrder
	Missing      *int64
	UnmappedType string
	Nested       *NestedSort
}

// QueryGroup is a named set of sub-queries evaluated as one aggregation
// request. Each bucket is named Prefix+key so results from different owner
// kinds never collide.
type QueryGroup struct {
	Name    string
	Prefix  string
	Queries map[string]filter.Expr
}

// BucketName returns the engine aggregation name for key.
func (g QueryGroup) BucketName(key string) string { return g.Prefix + key }

// KeyFromBucket strips the group prefix from an aggregation name.
func (g QueryGroup) KeyFromBucket(name string) (string, bool) {
	if !strings.HasPrefix(name, g.Prefix) {
		return "", false
	}
	return strings.TrimPrefix(name, g.Prefix), true
}

// SearchRequest is a fully assembled engine query.
type SearchRequest struct {
	Text        string
	StoreID     int64
	Filters     []filter.Expr
	QueryGroups []QueryGroup
	Sort        []SortClause
	From        int
	Size        int
}

// Hit is one matching index document.
type Hit struct {
	DocumentID string         `json:"document_id"`
	EntityID   int64          `json:"entity_id"`
	Score      float64        `json:"score"`
	Source     map[string]any `json:"source,omitempty"`
}

// FacetItem is one query group bucket read back from the engine.
type FacetItem struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// SearchResult holds the paginated search response.
type SearchResult struct {
	Hits    []Hit                  `json:"hits"`
	Total   int                    `json:"total"`
	Page    int                    `json:"page"`
	PerPage int                    `json:"per_page"`
	TookMs  int64                  `json:"took_ms"`
	Facets  map[string][]FacetItem `json:"facets,omitempty"`
}
