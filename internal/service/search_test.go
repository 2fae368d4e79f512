package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/searchandising/internal/bulk"
	"github.com/utafrali/searchandising/internal/cache"
	"github.com/utafrali/searchandising/internal/catalog"
	"github.com/utafrali/searchandising/internal/condition"
	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/engine/memory"
	"github.com/utafrali/searchandising/internal/overlay"
	"github.com/utafrali/searchandising/internal/provider"
	"github.com/utafrali/searchandising/internal/repository"
	repomemory "github.com/utafrali/searchandising/internal/repository/memory"
	"github.com/utafrali/searchandising/internal/rule"
	apperrors "github.com/utafrali/searchandising/pkg/errors"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func int64Ptr(v int64) *int64 { return &v }

func leafRule(attribute string, op domain.Operator, value string) *domain.ConditionNode {
	n := domain.Leaf(attribute, op, value)
	return &n
}

// testCatalog has products 101-103 in store 1 and 104 in both stores.
func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Build(catalog.File{
		Stores: []catalog.StoreSpec{{ID: 1, Code: "default"}, {ID: 2, Code: "fr"}},
		Categories: []catalog.CategorySpec{
			{ID: 2, Name: "Root"},
			{ID: 5, ParentID: 2, Name: "Shoes", Position: 1},
			{ID: 6, ParentID: 2, Name: "Red things", Position: 2, Virtual: true, Rule: leafRule("color", domain.OpEqual, "12")},
			{ID: 7, Name: "Broken", Virtual: true, Rule: leafRule("fabric", domain.OpEqual, "silk")},
		},
		Attributes: []catalog.AttributeSpec{
			{ID: 93, Code: "color", Input: "select", Backend: "int"},
			{ID: 77, Code: "price", Input: "price", Backend: "decimal"},
			{ID: 150, Code: "style", Label: "Style", Input: "virtual_attribute_list", Options: []catalog.OptionSpec{
				{ID: 1, Label: "Shoes", SortOrder: 1, Rule: leafRule("category_ids", domain.OpIsOneOf, "5")},
				{ID: 2, Label: "Blue", SortOrder: 2, Rule: leafRule("color", domain.OpEqual, "14")},
				{ID: 3, Label: "Unset", SortOrder: 3},
			}},
		},
		Products: []catalog.ProductSpec{
			{ID: 101, Stores: []int64{1}, Fields: map[string]any{
				"name": "Red runner", "color": "12", "categories": []any{"5"}, "price": 50,
			}},
			{ID: 102, Stores: []int64{1}, Fields: map[string]any{
				"name": "Blue runner", "color": "14", "categories": []any{"5"}, "price": 30,
			}},
			{ID: 103, Stores: []int64{1}, Fields: map[string]any{
				"name": "Red scarf", "color": "12", "categories": []any{"9"}, "price": 20,
			}},
			{ID: 104, Fields: map[string]any{
				"name": "Green boot", "color": "13", "categories": []any{"9"}, "price": 80,
			}},
		},
	})
	require.NoError(t, err)
	return cat
}

type fixture struct {
	engine    *memory.Engine
	runs      *repomemory.SyncRunRepository
	search    *SearchService
	positions *PositionService
	sync      *SyncService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := newTestLogger()
	cat := testCatalog(t)

	eng, err := memory.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	for id, doc := range cat.Documents() {
		require.NoError(t, eng.Put(ctx, id, doc))
	}

	terms := repomemory.NewSearchTermRepository()
	termPos := repomemory.NewTermPositionRepository(terms)
	catPos := repomemory.NewCategoryPositionRepository()
	runs := repomemory.NewSyncRunRepository()

	queryCache := cache.New(nil, logger)
	conditions := condition.NewCompiler(cat)
	categories := rule.NewCategoryCompiler(cat, conditions, queryCache, logger)
	options := rule.NewOptionCompiler(conditions, categories, queryCache, logger)
	ov := overlay.New(map[domain.OwnerKind]overlay.OverrideChecker{
		domain.OwnerSearchTerm: termPos,
		domain.OwnerCategory:   catPos,
	}, logger)

	registry, err := provider.NewRegistry(
		provider.NewTermPositionProvider(termPos),
		provider.NewCategoryPositionProvider(catPos),
	)
	require.NoError(t, err)
	runner := provider.NewRunner(cat, eng, bulk.NewSynchronizer(eng, logger), logger)
	syncSvc := NewSyncService(registry, runner, runs, logger)
	positions := NewPositionService(map[domain.OwnerKind]repository.PositionRepository{
		domain.OwnerSearchTerm: termPos,
		domain.OwnerCategory:   catPos,
	}, terms, cat, syncSvc, logger)

	return &fixture{
		engine:    eng,
		runs:      runs,
		search:    NewSearchService(eng, categories, options, cat, terms, ov, logger),
		positions: positions,
		sync:      syncSvc,
	}
}

func entityIDs(res *domain.SearchResult) []int64 {
	ids := []int64{}
	for _, h := range res.Hits {
		ids = append(ids, h.EntityID)
	}
	return ids
}

func TestSearchService_VirtualCategory(t *testing.T) {
	f := newFixture(t)

	res, err := f.search.Search(context.Background(), &domain.SearchQuery{
		StoreID:    1,
		CategoryID: int64Ptr(6),
		SortBy:     domain.SortPriceAsc,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{103, 101}, entityIDs(res))
	assert.Equal(t, 2, res.Total)
}

func TestSearchService_StaticCategoryIncludesChildren(t *testing.T) {
	f := newFixture(t)

	res, err := f.search.Search(context.Background(), &domain.SearchQuery{
		StoreID:    1,
		CategoryID: int64Ptr(2),
		SortBy:     domain.SortPriceAsc,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{103, 102, 101}, entityIDs(res))
}

func TestSearchService_StoreIsolation(t *testing.T) {
	f := newFixture(t)

	res, err := f.search.Search(context.Background(), &domain.SearchQuery{StoreID: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{104}, entityIDs(res))
}

func TestSearchService_VirtualAttributeSelection(t *testing.T) {
	tests := []struct {
		name    string
		options []int64
		want    []int64
	}{
		{"category rule", []int64{1}, []int64{102, 101}},
		{"attribute rule", []int64{2}, []int64{102}},
		{"options are ORed", []int64{1, 2}, []int64{102, 101}},
		{"option without rule", []int64{3}, []int64{}},
	}

	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.search.Search(context.Background(), &domain.SearchQuery{
				StoreID:           1,
				VirtualAttributes: map[string][]int64{"style": tt.options},
				SortBy:            domain.SortPriceAsc,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, entityIDs(res))
		})
	}
}

func TestSearchService_VirtualAttributeErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.search.Search(ctx, &domain.SearchQuery{
		StoreID:           1,
		VirtualAttributes: map[string][]int64{"fabric": {1}},
	})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	_, err = f.search.Search(ctx, &domain.SearchQuery{
		StoreID:           1,
		VirtualAttributes: map[string][]int64{"style": {42}},
	})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	_, err = f.search.Search(ctx, &domain.SearchQuery{
		StoreID:           1,
		VirtualAttributes: map[string][]int64{"color": {12}},
	})
	assert.True(t, errors.Is(err, apperrors.ErrConfiguration))
}

func TestSearchService_Facets(t *testing.T) {
	f := newFixture(t)

	res, err := f.search.Search(context.Background(), &domain.SearchQuery{
		Query:   "runner",
		StoreID: 1,
		// color is not virtual and fabric is unknown: both are skipped
		Facets: []string{"style", "color", "fabric"},
	})
	require.NoError(t, err)

	require.Len(t, res.Facets, 1)
	assert.Equal(t, []domain.FacetItem{
		{Key: "1", Count: 2},
		{Key: "2", Count: 1},
	}, res.Facets["virtual_attribute_style"])
}

func TestSearchService_CategoryPositionsRankFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	owner := domain.Owner{Kind: domain.OwnerCategory, ID: 6, StoreID: 1}
	require.NoError(t, f.positions.Save(ctx, owner, map[int64]int{103: 0}))

	res, err := f.search.Search(ctx, &domain.SearchQuery{StoreID: 1, CategoryID: int64Ptr(6)})
	require.NoError(t, err)
	assert.Equal(t, []int64{103, 101}, entityIDs(res))
}

func TestSearchService_TermPositionsWinOverCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	term, err := f.positions.RegisterTerm(ctx, 1, "runner")
	require.NoError(t, err)
	require.NoError(t, f.positions.Save(ctx,
		domain.Owner{Kind: domain.OwnerSearchTerm, ID: term.ID, StoreID: 1}, map[int64]int{102: 0}))
	require.NoError(t, f.positions.Save(ctx,
		domain.Owner{Kind: domain.OwnerCategory, ID: 5, StoreID: 1}, map[int64]int{101: 0}))

	res, err := f.search.Search(ctx, &domain.SearchQuery{Query: "runner", StoreID: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{102, 101}, entityIDs(res))

	res, err = f.search.Search(ctx, &domain.SearchQuery{Query: "runner", StoreID: 1, CategoryID: int64Ptr(5)})
	require.NoError(t, err)
	assert.Equal(t, []int64{102, 101}, entityIDs(res))

	res, err = f.search.Search(ctx, &domain.SearchQuery{StoreID: 1, CategoryID: int64Ptr(5)})
	require.NoError(t, err)
	assert.Equal(t, []int64{101, 102}, entityIDs(res))
}

func TestSearchService_AssembleSortOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	owner := domain.Owner{Kind: domain.OwnerCategory, ID: 6, StoreID: 1}
	require.NoError(t, f.positions.Save(ctx, owner, map[int64]int{101: 0}))

	req, err := f.search.Assemble(ctx, &domain.SearchQuery{
		StoreID: 1, CategoryID: int64Ptr(6), SortBy: domain.SortRelevance, Page: 1, PerPage: 20,
	})
	require.NoError(t, err)
	require.Len(t, req.Sort, 2)
	assert.Equal(t, "virtual_category_position.category_product_position", req.Sort[0].Field)
	assert.Equal(t, domain.SortClause{Field: "_score", Order: domain.SortDesc}, req.Sort[1])

	req, err = f.search.Assemble(ctx, &domain.SearchQuery{
		StoreID: 1, CategoryID: int64Ptr(6), SortBy: domain.SortPriceDesc, Page: 2, PerPage: 10,
	})
	require.NoError(t, err)
	require.Len(t, req.Sort, 2)
	assert.Equal(t, "price", req.Sort[1].Field)
	assert.Equal(t, 10, req.From)

	req, err = f.search.Assemble(ctx, &domain.SearchQuery{StoreID: 1, SortBy: domain.SortRelevance, Page: 1, PerPage: 20})
	require.NoError(t, err)
	assert.Empty(t, req.Sort)
}

func TestSearchService_Pagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.search.Search(ctx, &domain.SearchQuery{StoreID: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, DefaultPerPage, res.PerPage)

	res, err = f.search.Search(ctx, &domain.SearchQuery{StoreID: 1, PerPage: 500})
	require.NoError(t, err)
	assert.Equal(t, MaxPerPage, res.PerPage)

	res, err = f.search.Search(ctx, &domain.SearchQuery{StoreID: 1, Page: 2, PerPage: 3, SortBy: domain.SortPriceAsc})
	require.NoError(t, err)
	assert.Equal(t, []int64{104}, entityIDs(res))
	assert.Equal(t, 4, res.Total)
}

func TestSearchService_InvalidSort(t *testing.T) {
	f := newFixture(t)

	_, err := f.search.Search(context.Background(), &domain.SearchQuery{StoreID: 1, SortBy: "popularity"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestSearchService_CategoryErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.search.Search(ctx, &domain.SearchQuery{StoreID: 1, CategoryID: int64Ptr(7)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrCompilation))

	_, err = f.search.Search(ctx, &domain.SearchQuery{StoreID: 1, CategoryID: int64Ptr(404)})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

type failingSearcher struct{}

func (failingSearcher) Search(context.Context, domain.SearchRequest) (*domain.SearchResult, error) {
	return nil, errors.New("connection refused")
}

func TestSearchService_EngineFailure(t *testing.T) {
	f := newFixture(t)
	svc := *f.search
	svc.engine = failingSearcher{}

	_, err := svc.Search(context.Background(), &domain.SearchQuery{StoreID: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrEngineCommunication))
}

func TestSearchService_CategoryRule(t *testing.T) {
	f := newFixture(t)

	compiled, err := f.search.CategoryRule(context.Background(), 6, 1)
	require.NoError(t, err)
	assert.Equal(t, `color:"12"`, compiled.String())
	assert.Equal(t, []int64{93}, compiled.AttributeIDs)
	assert.Equal(t, []int64{6}, compiled.CategoryIDs)
}

func TestSearchService_AttributeRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	queries, err := f.search.AttributeRules(ctx, "style", 1)
	require.NoError(t, err)
	require.Len(t, queries.Queries, 2)
	assert.Equal(t, `categories:"5"`, queries.Queries[1].String())
	assert.Equal(t, `color:"14"`, queries.Queries[2].String())

	_, err = f.search.AttributeRules(ctx, "fabric", 1)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
