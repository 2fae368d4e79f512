package filter

import (
	"slices"
	"strconv"
)

// Compiled is the output of a rule compilation: the filter plus the ids of
// the attributes and categories it was derived from, which become the cache
// invalidation tags.
type Compiled struct {
	Filter       Expr    `json:"filter"`
	AttributeIDs []int64 `json:"attribute_ids,omitempty"`
	CategoryIDs  []int64 `json:"category_ids,omitempty"`
}

// String returns the wire form of the filter.
func (c Compiled) String() string { return c.Filter.String() }

// Merge returns a copy of c whose id sets also contain other's.
func (c Compiled) Merge(other Compiled) Compiled {
	c.AttributeIDs = UnionIDs(c.AttributeIDs, other.AttributeIDs)
	c.CategoryIDs = UnionIDs(c.CategoryIDs, other.CategoryIDs)
	return c
}

// Tags returns the cache tags for every id the compilation depended on.
func (c Compiled) Tags() []string {
	tags := make([]string, 0, len(c.AttributeIDs)+len(c.CategoryIDs))
	for _, id := range c.AttributeIDs {
		tags = append(tags, AttributeTag(id))
	}
	for _, id := range c.CategoryIDs {
		tags = append(tags, CategoryTag(id))
	}
	return tags
}

// AttributeTag is the invalidation tag for an attribute's configuration.
func AttributeTag(id int64) string { return "attribute_" + strconv.FormatInt(id, 10) }

// CategoryTag is the invalidation tag for a category's configuration.
func CategoryTag(id int64) string { return "category_" + strconv.FormatInt(id, 10) }

// UnionIDs returns the sorted, de-duplicated union of the given id lists.
func UnionIDs(lists ...[]int64) []int64 {
	var out []int64
	for _, l := range lists {
		out = append(out, l...)
	}
	if len(out) == 0 {
		return nil
	}
	slices.Sort(out)
	return slices.Compact(out)
}
