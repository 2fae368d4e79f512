package rule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/searchandising/internal/cache"
	"github.com/utafrali/searchandising/internal/condition"
	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/filter"
	apperrors "github.com/utafrali/searchandising/pkg/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type attributeMap map[string]domain.Attribute

func (m attributeMap) AttributeByCode(code string) (domain.Attribute, bool) {
	a, ok := m[code]
	return a, ok
}

var testAttributes = attributeMap{
	"color": {ID: 93, Code: "color", Backend: domain.BackendInt},
	"price": {ID: 77, Code: "price", Backend: domain.BackendDecimal},
}

// categoryTree is an in-memory CategorySource counting reads.
type categoryTree struct {
	byID  map[int64]domain.Category
	reads int
}

func newCategoryTree(cats ...domain.Category) *categoryTree {
	t := &categoryTree{byID: make(map[int64]domain.Category)}
	for _, c := range cats {
		t.byID[c.ID] = c
	}
	return t
}

func (t *categoryTree) Category(_ context.Context, id, _ int64) (domain.Category, error) {
	t.reads++
	c, ok := t.byID[id]
	if !ok {
		return domain.Category{}, apperrors.NotFound("category", id)
	}
	return c, nil
}

func (t *categoryTree) Children(_ context.Context, parentID, _ int64) ([]domain.Category, error) {
	t.reads++
	var out []domain.Category
	for id := int64(1); id <= 1000; id++ {
		if c, ok := t.byID[id]; ok && c.ParentID == parentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func rulePtr(n domain.ConditionNode) *domain.ConditionNode { return &n }

func newCategoryCompiler(tree *categoryTree) (*CategoryCompiler, *cache.QueryCache) {
	qc := cache.New(nil, discardLogger())
	return NewCategoryCompiler(tree, condition.NewCompiler(testAttributes), qc, discardLogger()), qc
}

func TestExclusion_WithDoesNotMutate(t *testing.T) {
	base := NewExclusion(1, 2)
	next := base.With(3)

	assert.Equal(t, []int64{1, 2}, base.IDs())
	assert.Equal(t, []int64{1, 2, 3}, next.IDs())
	assert.False(t, base.Contains(3))
	assert.True(t, next.Contains(3))

	var zero Exclusion
	assert.Equal(t, 0, zero.Len())
	assert.False(t, zero.Contains(1))
	assert.Equal(t, []int64{7}, zero.With(7).IDs())
}

func TestExclusion_Fingerprint(t *testing.T) {
	assert.Equal(t, "", Exclusion{}.Fingerprint())
	assert.Equal(t, "", NewExclusion().Fingerprint())

	a := NewExclusion(3, 1, 2).Fingerprint()
	b := NewExclusion(1, 2).With(3).Fingerprint()
	assert.NotEmpty(t, a)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, NewExclusion(1, 2).Fingerprint())
}

func TestCategory_StaticIncludesActiveChildren(t *testing.T) {
	tree := newCategoryTree(
		domain.Category{ID: 3, IsActive: true},
		domain.Category{ID: 4, ParentID: 3, IsActive: true},
		domain.Category{ID: 5, ParentID: 3, IsActive: false},
		domain.Category{ID: 6, ParentID: 4, IsActive: true},
	)
	c, _ := newCategoryCompiler(tree)

	out, err := c.SearchQuery(context.Background(), 3, 1, Exclusion{})
	require.NoError(t, err)
	assert.Equal(t, `(categories:"3" OR categories:"4" OR categories:"6")`, out.String())
	assert.Equal(t, []int64{3, 4, 6}, out.CategoryIDs)
}

func TestCategory_StaticWithoutMembersMatchesOwnFieldOnly(t *testing.T) {
	c, _ := newCategoryCompiler(newCategoryTree(domain.Category{ID: 7, IsActive: true}))

	out, err := c.SearchQuery(context.Background(), 7, 1, Exclusion{})
	require.NoError(t, err)
	assert.Equal(t, `categories:"7"`, out.String())
}

func TestCategory_VirtualCompilesRule(t *testing.T) {
	tree := newCategoryTree(domain.Category{
		ID: 10, IsActive: true, IsVirtual: true,
		Rule: rulePtr(domain.All(
			domain.Leaf("color", domain.OpEqual, "12"),
			domain.Leaf("price", domain.OpLess, "50"),
		)),
	})
	c, _ := newCategoryCompiler(tree)

	out, err := c.SearchQuery(context.Background(), 10, 1, Exclusion{})
	require.NoError(t, err)
	assert.Equal(t, `(color:"12" AND price:{* TO 50})`, out.String())
	assert.Equal(t, []int64{77, 93}, out.AttributeIDs)
	assert.Equal(t, []int64{10}, out.CategoryIDs)
}

func TestCategory_VirtualWithoutRuleMatchesNothing(t *testing.T) {
	tree := newCategoryTree(
		domain.Category{ID: 11, IsActive: true, IsVirtual: true},
		domain.Category{ID: 12, IsActive: true, IsVirtual: true, Rule: rulePtr(domain.All(domain.Any()))},
	)
	c, _ := newCategoryCompiler(tree)

	for _, id := range []int64{11, 12} {
		out, err := c.SearchQuery(context.Background(), id, 1, Exclusion{})
		require.NoError(t, err)
		assert.True(t, out.Filter.IsMatchNone(), "category %d", id)
	}
}

func TestCategory_CycleTerminates(t *testing.T) {
	// 20 is virtual and references 21; 21 is static with 20 as a child.
	tree := newCategoryTree(
		domain.Category{
			ID: 20, ParentID: 21, IsActive: true, IsVirtual: true,
			Rule: rulePtr(domain.Leaf("category_ids", domain.OpEqual, "21")),
		},
		domain.Category{ID: 21, IsActive: true},
	)
	c, _ := newCategoryCompiler(tree)
	ctx := context.Background()

	out, err := c.SearchQuery(ctx, 21, 1, NewExclusion(21))
	require.NoError(t, err)
	assert.Equal(t, `categories:"21"`, out.String())

	out, err = c.SearchQuery(ctx, 20, 1, Exclusion{})
	require.NoError(t, err)
	assert.Equal(t, `categories:"21"`, out.String())
	assert.Equal(t, []int64{20, 21}, out.CategoryIDs)
}

func TestCategory_SelfReferenceMatchesNothing(t *testing.T) {
	tree := newCategoryTree(domain.Category{
		ID: 30, IsActive: true, IsVirtual: true,
		Rule: rulePtr(domain.Leaf("category_ids", domain.OpEqual, "30")),
	})
	c, _ := newCategoryCompiler(tree)

	out, err := c.SearchQuery(context.Background(), 30, 1, Exclusion{})
	require.NoError(t, err)
	assert.True(t, out.Filter.IsMatchNone())
}

func TestCategory_NestedResultIsNotServedTopLevel(t *testing.T) {
	tree := newCategoryTree(
		domain.Category{
			ID: 20, ParentID: 21, IsActive: true, IsVirtual: true,
			Rule: rulePtr(domain.Leaf("category_ids", domain.OpEqual, "21")),
		},
		domain.Category{ID: 21, IsActive: true},
	)
	c, qc := newCategoryCompiler(tree)
	ctx := context.Background()

	// compiling 21 first caches 20 as seen from inside 21's traversal
	out, err := c.SearchQuery(ctx, 21, 1, Exclusion{})
	require.NoError(t, err)
	assert.Equal(t, `categories:"21"`, out.String())
	assert.Equal(t, 2, qc.Len())

	out, err = c.SearchQuery(ctx, 20, 1, Exclusion{})
	require.NoError(t, err)
	assert.Equal(t, `categories:"21"`, out.String())
}

func TestCategory_UnknownReferenceMatchesNothing(t *testing.T) {
	tree := newCategoryTree(domain.Category{
		ID: 40, IsActive: true, IsVirtual: true,
		Rule: rulePtr(domain.Any(
			domain.Leaf("category_ids", domain.OpEqual, "999"),
			domain.Leaf("color", domain.OpEqual, "1"),
		)),
	})
	c, _ := newCategoryCompiler(tree)

	out, err := c.SearchQuery(context.Background(), 40, 1, Exclusion{})
	require.NoError(t, err)
	assert.Equal(t, `color:"1"`, out.String())
	assert.Contains(t, out.CategoryIDs, int64(999))
}

func TestCategory_Errors(t *testing.T) {
	tree := newCategoryTree(domain.Category{
		ID: 50, IsActive: true, IsVirtual: true,
		Rule: rulePtr(domain.Leaf("fabric", domain.OpEqual, "silk")),
	})
	c, qc := newCategoryCompiler(tree)
	ctx := context.Background()

	_, err := c.SearchQuery(ctx, 50, 1, Exclusion{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrCompilation))
	assert.Equal(t, 0, qc.Len())

	_, err = c.SearchQuery(ctx, 51, 1, Exclusion{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestCategory_CachesAndInvalidatesByTag(t *testing.T) {
	tree := newCategoryTree(
		domain.Category{ID: 3, IsActive: true},
		domain.Category{ID: 4, ParentID: 3, IsActive: true},
	)
	c, qc := newCategoryCompiler(tree)
	ctx := context.Background()

	_, err := c.SearchQuery(ctx, 3, 1, Exclusion{})
	require.NoError(t, err)
	reads := tree.reads

	_, err = c.SearchQuery(ctx, 3, 1, Exclusion{})
	require.NoError(t, err)
	assert.Equal(t, reads, tree.reads)

	// other stores are cached separately
	_, err = c.SearchQuery(ctx, 3, 2, Exclusion{})
	require.NoError(t, err)
	assert.Greater(t, tree.reads, reads)

	child := tree.byID[4]
	child.IsActive = false
	tree.byID[4] = child
	require.NoError(t, qc.Invalidate(ctx, filter.CategoryTag(4)))

	out, err := c.SearchQuery(ctx, 3, 1, Exclusion{})
	require.NoError(t, err)
	assert.Equal(t, `categories:"3"`, out.String())
}

func newOptionCompiler(tree *categoryTree) *OptionCompiler {
	qc := cache.New(nil, discardLogger())
	conditions := condition.NewCompiler(testAttributes)
	categories := NewCategoryCompiler(tree, conditions, qc, discardLogger())
	return NewOptionCompiler(conditions, categories, qc, discardLogger())
}

func colourFamily() domain.Attribute {
	return domain.Attribute{
		ID: 500, Code: "colour_family", Kind: domain.KindVirtualList,
		Options: []domain.AttributeOption{
			{ID: 1, Label: "Warm", Rule: rulePtr(domain.Leaf("color", domain.OpIsOneOf, "12,14"))},
			{ID: 2, Label: "Unused"},
			{ID: 3, Label: "Kitchen", Rule: rulePtr(domain.Leaf("category_ids", domain.OpEqual, "3"))},
		},
	}
}

func TestOption_OptionQueriesSkipsEmptyOptions(t *testing.T) {
	c := newOptionCompiler(newCategoryTree(domain.Category{ID: 3, IsActive: true}))

	out, err := c.OptionQueries(context.Background(), colourFamily(), 1)
	require.NoError(t, err)

	require.Len(t, out.Queries, 2)
	assert.Equal(t, `color:("12" OR "14")`, out.Queries[1].String())
	assert.Equal(t, `categories:"3"`, out.Queries[3].String())
	assert.Equal(t, []int64{93, 500}, out.AttributeIDs)
	assert.Equal(t, []int64{3}, out.CategoryIDs)
	assert.Contains(t, out.Tags(), "attribute_500")

	group := out.QueryGroup(colourFamily())
	assert.Equal(t, "virtual_attribute_colour_family", group.Name)
	assert.Equal(t, "virtual_attribute_colour_family_1", group.BucketName("1"))
	assert.Contains(t, group.Queries, "3")
}

func TestOption_SearchQueryForOptions(t *testing.T) {
	c := newOptionCompiler(newCategoryTree(domain.Category{ID: 3, IsActive: true}))
	ctx := context.Background()

	out, err := c.SearchQueryForOptions(ctx, colourFamily(), []int64{1, 3}, 1)
	require.NoError(t, err)
	assert.Equal(t, `(color:("12" OR "14") OR categories:"3")`, out.String())

	out, err = c.SearchQueryForOptions(ctx, colourFamily(), []int64{2}, 1)
	require.NoError(t, err)
	assert.True(t, out.Filter.IsMatchNone())
}

func TestOption_FlagKindUsesFirstOption(t *testing.T) {
	c := newOptionCompiler(newCategoryTree())
	attr := domain.Attribute{
		ID: 600, Code: "bestseller", Kind: domain.KindVirtualFlag,
		Options: []domain.AttributeOption{
			{ID: 1, Rule: rulePtr(domain.Leaf("price", domain.OpGreater, "100"))},
			{ID: 2, Rule: rulePtr(domain.Leaf("price", domain.OpLess, "5"))},
		},
	}

	out, err := c.OptionQueries(context.Background(), attr, 1)
	require.NoError(t, err)
	require.Len(t, out.Queries, 1)
	assert.Equal(t, `price:{100 TO *}`, out.Queries[1].String())
}

func TestOption_Errors(t *testing.T) {
	c := newOptionCompiler(newCategoryTree())
	ctx := context.Background()

	_, err := c.SearchQuery(ctx, domain.Attribute{ID: 93, Code: "color"}, 1, 1)
	assert.True(t, errors.Is(err, apperrors.ErrConfiguration))

	_, err = c.OptionQueries(ctx, domain.Attribute{ID: 93, Code: "color"}, 1)
	assert.True(t, errors.Is(err, apperrors.ErrConfiguration))

	_, err = c.SearchQuery(ctx, colourFamily(), 42, 1)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	broken := colourFamily()
	broken.Options[0].Rule = rulePtr(domain.Leaf("color", "~", "1"))
	_, err = c.OptionQueries(ctx, broken, 1)
	assert.True(t, errors.Is(err, apperrors.ErrCompilation))
}
