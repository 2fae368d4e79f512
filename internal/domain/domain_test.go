package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/searchandising/pkg/errors"
)

func TestDocumentID_RoundTrip(t *testing.T) {
	id := DocumentID(101, 1)
	assert.Equal(t, "101|1", id)

	entity, store, err := ParseDocumentID(id)
	require.NoError(t, err)
	assert.Equal(t, int64(101), entity)
	assert.Equal(t, int64(1), store)
}

func TestParseDocumentID_Malformed(t *testing.T) {
	for _, id := range []string{"101", "abc|1", "101|x", ""} {
		_, _, err := ParseDocumentID(id)
		require.Error(t, err, id)
		assert.True(t, errors.Is(err, apperrors.ErrDataIntegrity), id)
	}
}

func TestParseAttributeKind(t *testing.T) {
	k, err := ParseAttributeKind("virtual_attribute_list")
	require.NoError(t, err)
	assert.Equal(t, KindVirtualList, k)
	assert.True(t, k.Behavior().Virtual)
	assert.False(t, k.Behavior().SingleOption)

	k, err = ParseAttributeKind("virtual_attribute_flag")
	require.NoError(t, err)
	assert.True(t, k.Behavior().SingleOption)

	k, err = ParseAttributeKind("multiselect")
	require.NoError(t, err)
	assert.Equal(t, KindStandard, k)
	assert.False(t, k.Behavior().Virtual)

	_, err = ParseAttributeKind("swatch_visual_magic")
	assert.True(t, errors.Is(err, apperrors.ErrConfiguration))
}

func TestAttribute_QueryGroupName(t *testing.T) {
	a := Attribute{Code: "occasion", Kind: KindVirtualList}
	assert.Equal(t, "virtual_attribute_occasion", a.QueryGroupName())
	assert.Equal(t, "occasion", a.FieldName())

	a.Field = "occasion_ids"
	assert.Equal(t, "occasion_ids", a.FieldName())
}

func TestConditionNode_Values(t *testing.T) {
	n := Leaf("category_ids", OpIsOneOf, " 12, 14,,15 ")
	assert.Equal(t, []string{"12", "14", "15"}, n.Values())
	assert.True(t, All().IsExpected())
	assert.False(t, All().Negated().IsExpected())
}

func TestQueryGroup_Buckets(t *testing.T) {
	g := QueryGroup{Name: "virtual_attribute_color", Prefix: "virtual_attribute_color_"}
	assert.Equal(t, "virtual_attribute_color_12", g.BucketName("12"))

	key, ok := g.KeyFromBucket("virtual_attribute_color_12")
	assert.True(t, ok)
	assert.Equal(t, "12", key)

	_, ok = g.KeyFromBucket("category_12")
	assert.False(t, ok)
}

func TestLayoutFor(t *testing.T) {
	l, ok := LayoutFor(OwnerSearchTerm)
	require.True(t, ok)
	assert.Equal(t, "search_terms_position.query_id", l.OwnerPath())
	assert.Equal(t, "search_terms_position.term_product_position", l.PositionPath())

	_, ok = LayoutFor(OwnerAttributeOption)
	assert.False(t, ok)
}

func TestScopeOf(t *testing.T) {
	store := int64(1)
	assert.Equal(t, ScopeAllStores, ScopeOf(nil, nil))
	assert.Equal(t, ScopeStoresTargeted, ScopeOf(nil, []int64{1}))
	assert.Equal(t, ScopeStoreFull, ScopeOf(&store, nil))
	assert.Equal(t, ScopeTargeted, ScopeOf(&store, []int64{4}))
}

func TestBulkFailure_Error(t *testing.T) {
	err := &BulkFailure{Total: 10, Failures: []ItemFailure{
		{DocumentID: "1|1", Type: "document_missing_exception", Reason: "missing"},
	}}
	assert.Equal(t, "1 of 10 bulk items failed; 1|1: document_missing_exception (missing)", err.Error())
}
