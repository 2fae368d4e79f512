package condition

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/filter"
	apperrors "github.com/utafrali/searchandising/pkg/errors"
)

type attributeMap map[string]domain.Attribute

func (m attributeMap) AttributeByCode(code string) (domain.Attribute, bool) {
	a, ok := m[code]
	return a, ok
}

func testAttributes() attributeMap {
	return attributeMap{
		"color": {ID: 93, Code: "color", Backend: domain.BackendInt},
		"price": {ID: 77, Code: "price", Backend: domain.BackendDecimal},
		"name":  {ID: 71, Code: "name", Backend: domain.BackendVarchar},
		"sku":   {ID: 74, Code: "sku", Backend: domain.BackendVarchar, Field: "sku_exact"},
	}
}

func compile(t *testing.T, node domain.ConditionNode) filter.Compiled {
	t.Helper()
	c := NewCompiler(testAttributes())
	out, err := c.Compile(context.Background(), node, nil)
	require.NoError(t, err)
	return out
}

func TestCompile_Leaves(t *testing.T) {
	tests := []struct {
		name string
		node domain.ConditionNode
		want string
	}{
		{"equal", domain.Leaf("color", domain.OpEqual, "12"), `color:"12"`},
		{"not equal", domain.Leaf("color", domain.OpNotEqual, "12"), `(*:* AND NOT color:"12")`},
		{"greater or equal", domain.Leaf("price", domain.OpGreaterEq, "10"), `price:[10 TO *}`},
		{"less", domain.Leaf("price", domain.OpLess, "99.5"), `price:{* TO 99.5}`},
		{"is one of", domain.Leaf("color", domain.OpIsOneOf, "12,14"), `color:("12" OR "14")`},
		{"is not one of", domain.Leaf("color", domain.OpIsNotOneOf, "12"), `(*:* AND NOT color:"12")`},
		{"custom field", domain.Leaf("sku", domain.OpEqual, "AB-1"), `sku_exact:"AB-1"`},
		{"flag", domain.Leaf("in_stock", domain.OpEqual, "1"), `in_stock:"true"`},
		{"flag negated", domain.Leaf("has_discount", domain.OpNotEqual, "true"), `(*:* AND NOT has_discount:"true")`},
		{"static category reference", domain.Leaf("category_ids", domain.OpIsOneOf, "5,6"), `(categories:"5" OR categories:"6")`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, compile(t, tt.node).String())
		})
	}
}

func TestCompile_CombineAggregators(t *testing.T) {
	red := domain.Leaf("color", domain.OpEqual, "12")
	cheap := domain.Leaf("price", domain.OpLessEq, "20")

	assert.Equal(t, `(color:"12" AND price:{* TO 20])`, compile(t, domain.All(red, cheap)).String())
	assert.Equal(t, `(color:"12" OR price:{* TO 20])`, compile(t, domain.Any(red, cheap)).String())

	// every child false
	assert.Equal(t, `(*:* AND NOT (color:"12" OR price:{* TO 20]))`,
		compile(t, domain.All(red, cheap).Negated()).String())
	// some child false
	assert.Equal(t, `(*:* AND NOT (color:"12" AND price:{* TO 20]))`,
		compile(t, domain.Any(red, cheap).Negated()).String())
}

func TestCompile_EmptyGroupsAreOmitted(t *testing.T) {
	red := domain.Leaf("color", domain.OpEqual, "12")

	out := compile(t, domain.All(domain.Any(), red, domain.All(domain.Any())))
	assert.Equal(t, `color:"12"`, out.String())
	assert.NotContains(t, out.String(), "()")

	empty := compile(t, domain.All())
	assert.True(t, empty.Filter.IsEmpty())
	assert.Equal(t, "", empty.String())
}

func TestCompile_CollectsAttributeIDs(t *testing.T) {
	out := compile(t, domain.All(
		domain.Leaf("color", domain.OpEqual, "12"),
		domain.Any(domain.Leaf("price", domain.OpGreater, "5"), domain.Leaf("color", domain.OpEqual, "14")),
	))
	assert.Equal(t, []int64{77, 93}, out.AttributeIDs)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		node domain.ConditionNode
	}{
		{"unknown operator", domain.Leaf("color", "~=", "12")},
		{"unknown attribute", domain.Leaf("fabric", domain.OpEqual, "silk")},
		{"range on text", domain.Leaf("name", domain.OpGreater, "a")},
		{"non numeric range", domain.Leaf("price", domain.OpGreater, "cheap")},
		{"empty value", domain.Leaf("color", domain.OpEqual, " ")},
		{"empty list", domain.Leaf("color", domain.OpIsOneOf, ",")},
		{"bad flag", domain.Leaf("in_stock", domain.OpEqual, "maybe")},
		{"flag range", domain.Leaf("in_stock", domain.OpGreater, "1")},
		{"bad category reference", domain.Leaf("category_ids", domain.OpIsOneOf, "kitchen")},
		{"unknown node type", domain.ConditionNode{Type: "group"}},
		{"unknown aggregator", domain.ConditionNode{
			Type: domain.NodeCombine, Aggregator: "most",
			Children: []domain.ConditionNode{domain.Leaf("color", domain.OpEqual, "1")},
		}},
		{"unknown aggregator without children", domain.ConditionNode{Type: domain.NodeCombine, Aggregator: "xor"}},
		{"missing aggregator in empty group", domain.All(domain.ConditionNode{Type: domain.NodeCombine})},
		{"error in nested leaf", domain.All(domain.Any(domain.Leaf("color", "like", "1")))},
	}

	c := NewCompiler(testAttributes())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Compile(context.Background(), tt.node, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrCompilation))
		})
	}
}

func TestCompile_CategoryResolver(t *testing.T) {
	var asked []int64
	resolve := func(_ context.Context, id int64) (filter.Compiled, error) {
		asked = append(asked, id)
		if id == 6 {
			return filter.Compiled{Filter: filter.MatchNone(), CategoryIDs: []int64{6}}, nil
		}
		return filter.Compiled{
			Filter:       filter.Or(filter.Term("categories", "5"), filter.Term("color", "12")),
			AttributeIDs: []int64{93},
			CategoryIDs:  []int64{5, 8},
		}, nil
	}

	c := NewCompiler(testAttributes())
	out, err := c.Compile(context.Background(), domain.Leaf("category_ids", domain.OpIsOneOf, "5,6"), resolve)
	require.NoError(t, err)

	assert.Equal(t, []int64{5, 6}, asked)
	assert.Equal(t, `(categories:"5" OR color:"12")`, out.String())
	assert.Equal(t, []int64{5, 6, 8}, out.CategoryIDs)
	assert.Equal(t, []int64{93}, out.AttributeIDs)
}

func TestCompile_CategoryReferenceToNothingStaysRestrictive(t *testing.T) {
	resolve := func(context.Context, int64) (filter.Compiled, error) {
		return filter.Compiled{Filter: filter.MatchNone()}, nil
	}

	c := NewCompiler(testAttributes())
	node := domain.All(
		domain.Leaf("color", domain.OpEqual, "12"),
		domain.Leaf("category_ids", domain.OpEqual, "6"),
	)
	out, err := c.Compile(context.Background(), node, resolve)
	require.NoError(t, err)
	assert.True(t, out.Filter.IsMatchNone())
}

func TestCompile_ResolverErrorPropagates(t *testing.T) {
	resolve := func(context.Context, int64) (filter.Compiled, error) {
		return filter.Compiled{}, apperrors.Compilation("broken child rule")
	}

	c := NewCompiler(testAttributes())
	_, err := c.Compile(context.Background(), domain.Leaf("category_ids", domain.OpEqual, "6"), resolve)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrCompilation))
	assert.Contains(t, err.Error(), "resolve category 6")
}
