package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/utafrali/searchandising/internal/condition"
	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/engine"
	"github.com/utafrali/searchandising/internal/filter"
	"github.com/utafrali/searchandising/internal/overlay"
	"github.com/utafrali/searchandising/internal/repository"
	"github.com/utafrali/searchandising/internal/rule"
	apperrors "github.com/utafrali/searchandising/pkg/errors"
)

// Page size bounds for storefront searches.
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// SearchService assembles storefront searches from rules, selections and
// manual positions and executes them on the engine.
type SearchService struct {
	engine     engine.Searcher
	categories *rule.CategoryCompiler
	options    *rule.OptionCompiler
	attributes condition.AttributeSource
	terms      repository.SearchTermRepository
	overlay    *overlay.Overlay
	logger     *slog.Logger
}

// NewSearchService creates a new search service.
func NewSearchService(
	eng engine.Searcher,
	categories *rule.CategoryCompiler,
	options *rule.OptionCompiler,
	attributes condition.AttributeSource,
	terms repository.SearchTermRepository,
	ov *overlay.Overlay,
	logger *slog.Logger,
) *SearchService {
	return &SearchService{
		engine:     eng,
		categories: categories,
		options:    options,
		attributes: attributes,
		terms:      terms,
		overlay:    ov,
		logger:     logger,
	}
}

// Search executes a search query. Rule compilation errors are returned to
// the caller; facet and position failures only degrade the result.
func (s *SearchService) Search(ctx context.Context, query *domain.SearchQuery) (*domain.SearchResult, error) {
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.PerPage <= 0 {
		query.PerPage = DefaultPerPage
	}
	if query.PerPage > MaxPerPage {
		query.PerPage = MaxPerPage
	}
	if query.SortBy == "" {
		query.SortBy = domain.SortRelevance
	}
	if !domain.IsValidSort(query.SortBy) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown sort %q", query.SortBy))
	}

	req, err := s.Assemble(ctx, query)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Search(ctx, req)
	if err != nil {
		return nil, apperrors.EngineCommunication("search", err)
	}
	result.Page = query.Page
	result.PerPage = query.PerPage

	s.logger.DebugContext(ctx, "search executed",
		slog.String("query", query.Query),
		slog.Int64("store_id", query.StoreID),
		slog.Int("total", result.Total),
		slog.Int64("took_ms", result.TookMs),
	)
	return result, nil
}

// Assemble builds the engine request for query without executing it.
func (s *SearchService) Assemble(ctx context.Context, query *domain.SearchQuery) (domain.SearchRequest, error) {
	req := domain.SearchRequest{
		Text:    query.Query,
		StoreID: query.StoreID,
		Sort:    sortClauses(query.SortBy),
		From:    (query.Page - 1) * query.PerPage,
		Size:    query.PerPage,
	}

	if query.CategoryID != nil {
		compiled, err := s.categories.SearchQuery(ctx, *query.CategoryID, query.StoreID, rule.NewExclusion())
		if err != nil {
			return domain.SearchRequest{}, fmt.Errorf("category %d: %w", *query.CategoryID, err)
		}
		req.Filters = append(req.Filters, compiled.Filter)
	}

	for _, code := range slices.Sorted(maps.Keys(query.VirtualAttributes)) {
		attr, ok := s.attributes.AttributeByCode(code)
		if !ok {
			return domain.SearchRequest{}, apperrors.InvalidInput(fmt.Sprintf("unknown attribute %q", code))
		}
		compiled, err := s.options.SearchQueryForOptions(ctx, attr, query.VirtualAttributes[code], query.StoreID)
		if err != nil {
			return domain.SearchRequest{}, fmt.Errorf("attribute %q: %w", code, err)
		}
		req.Filters = append(req.Filters, compiled.Filter)
	}

	req.QueryGroups = s.queryGroups(ctx, query)

	if owner, ok := s.owner(ctx, query); ok {
		req = s.overlay.Apply(ctx, req, owner)
	}
	if len(req.Sort) > 0 && query.SortBy == domain.SortRelevance {
		// positioned products first, the rest by relevance
		req.Sort = append(req.Sort, domain.SortClause{Field: "_score", Order: domain.SortDesc})
	}
	return req, nil
}

// queryGroups builds one query group per requested facet. A facet that
// cannot be built is left out.
func (s *SearchService) queryGroups(ctx context.Context, query *domain.SearchQuery) []domain.QueryGroup {
	var groups []domain.QueryGroup
	for _, code := range query.Facets {
		attr, ok := s.attributes.AttributeByCode(code)
		if !ok {
			s.logger.WarnContext(ctx, "facet skipped: unknown attribute", slog.String("attribute", code))
			continue
		}
		queries, err := s.options.OptionQueries(ctx, attr, query.StoreID)
		if err != nil {
			s.logger.WarnContext(ctx, "facet skipped",
				slog.String("attribute", code),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(queries.Queries) == 0 {
			continue
		}
		groups = append(groups, queries.QueryGroup(attr))
	}
	return groups
}

// owner picks whose manual positions rank the results: the stored search
// term matching the text, otherwise the browsed category.
func (s *SearchService) owner(ctx context.Context, query *domain.SearchQuery) (domain.Owner, bool) {
	if query.TermID != nil {
		return domain.Owner{Kind: domain.OwnerSearchTerm, ID: *query.TermID, StoreID: query.StoreID}, true
	}
	if query.Query != "" && s.terms != nil {
		term, err := s.terms.GetByText(ctx, query.StoreID, query.Query)
		switch {
		case err == nil:
			return domain.Owner{Kind: domain.OwnerSearchTerm, ID: term.ID, StoreID: query.StoreID}, true
		case !errors.Is(err, apperrors.ErrNotFound):
			s.logger.WarnContext(ctx, "search term lookup failed",
				slog.String("query", query.Query),
				slog.String("error", err.Error()),
			)
		}
	}
	if query.CategoryID != nil {
		return domain.Owner{Kind: domain.OwnerCategory, ID: *query.CategoryID, StoreID: query.StoreID}, true
	}
	return domain.Owner{}, false
}

func sortClauses(sortBy string) []domain.SortClause {
	switch sortBy {
	case domain.SortPriceAsc:
		return []domain.SortClause{{Field: "price", Order: domain.SortAsc}}
	case domain.SortPriceDesc:
		return []domain.SortClause{{Field: "price", Order: domain.SortDesc}}
	case domain.SortNewest:
		return []domain.SortClause{{Field: "created_at", Order: domain.SortDesc}}
	}
	return nil
}

// CategoryRule returns the compiled membership query of a category.
func (s *SearchService) CategoryRule(ctx context.Context, id, storeID int64) (filter.Compiled, error) {
	return s.categories.SearchQuery(ctx, id, storeID, rule.NewExclusion())
}

// AttributeRules returns the compiled query of every option of a virtual attribute.
func (s *SearchService) AttributeRules(ctx context.Context, code string, storeID int64) (rule.OptionQueries, error) {
	attr, ok := s.attributes.AttributeByCode(code)
	if !ok {
		return rule.OptionQueries{}, apperrors.NotFound("attribute", code)
	}
	return s.options.OptionQueries(ctx, attr, storeID)
}
