// Package condition compiles merchandiser condition trees into structured filters.
package condition

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/filter"
	apperrors "github.com/utafrali/searchandising/pkg/errors"
)

// CategoryAttribute is the pseudo attribute referencing other categories.
const CategoryAttribute = "category_ids"

// flagFields are boolean pseudo attributes and their index fields.
var flagFields = map[string]string{
	"in_stock":     "in_stock",
	"has_image":    "has_image",
	"has_discount": "has_discount",
	"is_new":       "is_new",
}

// AttributeSource resolves attribute metadata by code.
type AttributeSource interface {
	AttributeByCode(code string) (domain.Attribute, bool)
}

// CategoryResolver expands a category referenced from a rule into its
// membership query. A nil resolver matches the static category field only.
type CategoryResolver func(ctx context.Context, categoryID int64) (filter.Compiled, error)

// Compiler turns condition trees into filters. It holds no state besides the
// attribute metadata it reads.
type Compiler struct {
	attributes AttributeSource
}

// NewCompiler creates a compiler reading attribute metadata from attributes.
func NewCompiler(attributes AttributeSource) *Compiler {
	return &Compiler{attributes: attributes}
}

// Compile compiles node. A combine node without effective children compiles
// to the empty filter, which callers omit from enclosing groups.
func (c *Compiler) Compile(ctx context.Context, node domain.ConditionNode, resolve CategoryResolver) (filter.Compiled, error) {
	switch node.Type {
	case domain.NodeCombine:
		return c.combine(ctx, node, resolve)
	case domain.NodeLeaf:
		return c.leaf(ctx, node, resolve)
	}
	return filter.Compiled{}, apperrors.Compilation(fmt.Sprintf("unknown condition node type %q", node.Type))
}

func (c *Compiler) combine(ctx context.Context, node domain.ConditionNode, resolve CategoryResolver) (filter.Compiled, error) {
	if node.Aggregator != domain.AggregatorAll && node.Aggregator != domain.AggregatorAny {
		return filter.Compiled{}, apperrors.Compilation(fmt.Sprintf("unknown aggregator %q", node.Aggregator))
	}

	var out filter.Compiled
	parts := make([]filter.Expr, 0, len(node.Children))
	for _, child := range node.Children {
		compiled, err := c.Compile(ctx, child, resolve)
		if err != nil {
			return filter.Compiled{}, err
		}
		out = out.Merge(compiled)
		if !compiled.Filter.IsEmpty() {
			parts = append(parts, compiled.Filter)
		}
	}
	if len(parts) == 0 {
		return out, nil
	}

	switch {
	case node.Aggregator == domain.AggregatorAll && node.IsExpected():
		out.Filter = filter.And(parts...)
	case node.Aggregator == domain.AggregatorAny && node.IsExpected():
		out.Filter = filter.Or(parts...)
	case node.Aggregator == domain.AggregatorAll:
		// all children false: none of them is true
		out.Filter = filter.Not(filter.Or(parts...))
	default:
		// at least one child false: not all of them are true
		out.Filter = filter.Not(filter.And(parts...))
	}
	return out, nil
}

func (c *Compiler) leaf(ctx context.Context, node domain.ConditionNode, resolve CategoryResolver) (filter.Compiled, error) {
	if node.Attribute == "" {
		return filter.Compiled{}, apperrors.Compilation("condition leaf without attribute")
	}
	if node.Attribute == CategoryAttribute {
		return categoryLeaf(ctx, node, resolve)
	}
	if field, ok := flagFields[node.Attribute]; ok {
		return flagLeaf(node, field)
	}

	attr, ok := c.attributes.AttributeByCode(node.Attribute)
	if !ok {
		return filter.Compiled{}, apperrors.Compilation(fmt.Sprintf("unknown attribute %q", node.Attribute))
	}

	expr, err := attributeLeaf(node, attr)
	if err != nil {
		return filter.Compiled{}, err
	}
	return filter.Compiled{Filter: expr, AttributeIDs: []int64{attr.ID}}, nil
}

func attributeLeaf(node domain.ConditionNode, attr domain.Attribute) (filter.Expr, error) {
	field := attr.FieldName()
	value := strings.TrimSpace(node.Value)

	switch node.Operator {
	case domain.OpEqual, domain.OpNotEqual:
		if value == "" {
			return filter.Expr{}, emptyValue(node)
		}
		expr := filter.Term(field, value)
		if node.Operator == domain.OpNotEqual {
			expr = filter.Not(expr)
		}
		return expr, nil

	case domain.OpGreaterEq, domain.OpLessEq, domain.OpGreater, domain.OpLess:
		if !attr.Ordered() {
			return filter.Expr{}, apperrors.Compilation(fmt.Sprintf(
				"operator %q needs a numeric or date attribute, %q is %s", node.Operator, attr.Code, attr.Backend))
		}
		if value == "" {
			return filter.Expr{}, emptyValue(node)
		}
		if attr.Backend != domain.BackendDatetime {
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				return filter.Expr{}, apperrors.Compilation(fmt.Sprintf("value %q of %q is not a number", value, attr.Code))
			}
		}
		return rangeFor(field, node.Operator, value), nil

	case domain.OpIsOneOf, domain.OpContains, domain.OpIsNotOneOf, domain.OpNotContains:
		values := node.Values()
		if len(values) == 0 {
			return filter.Expr{}, emptyValue(node)
		}
		expr := filter.In(field, values...)
		if node.Operator == domain.OpIsNotOneOf || node.Operator == domain.OpNotContains {
			expr = filter.Not(expr)
		}
		return expr, nil
	}

	return filter.Expr{}, unknownOperator(node)
}

func rangeFor(field string, op domain.Operator, value string) filter.Expr {
	switch op {
	case domain.OpGreaterEq:
		return filter.Range(field, value, "", true, false)
	case domain.OpGreater:
		return filter.Range(field, value, "", false, false)
	case domain.OpLessEq:
		return filter.Range(field, "", value, false, true)
	default:
		return filter.Range(field, "", value, false, false)
	}
}

func flagLeaf(node domain.ConditionNode, field string) (filter.Compiled, error) {
	var want bool
	switch strings.ToLower(strings.TrimSpace(node.Value)) {
	case "1", "true", "yes":
		want = true
	case "0", "false", "no":
		want = false
	default:
		return filter.Compiled{}, apperrors.Compilation(fmt.Sprintf("value %q of %q is not a boolean", node.Value, node.Attribute))
	}

	expr := filter.Term(field, strconv.FormatBool(want))
	switch node.Operator {
	case domain.OpEqual:
	case domain.OpNotEqual:
		expr = filter.Not(expr)
	default:
		return filter.Compiled{}, unknownOperator(node)
	}
	return filter.Compiled{Filter: expr}, nil
}

func categoryLeaf(ctx context.Context, node domain.ConditionNode, resolve CategoryResolver) (filter.Compiled, error) {
	values := node.Values()
	if len(values) == 0 {
		return filter.Compiled{}, emptyValue(node)
	}

	negate := false
	switch node.Operator {
	case domain.OpEqual, domain.OpIsOneOf, domain.OpContains:
	case domain.OpNotEqual, domain.OpIsNotOneOf, domain.OpNotContains:
		negate = true
	default:
		return filter.Compiled{}, unknownOperator(node)
	}

	out := filter.Compiled{}
	parts := make([]filter.Expr, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return filter.Compiled{}, apperrors.Compilation(fmt.Sprintf("category reference %q is not an id", v))
		}
		out.CategoryIDs = filter.UnionIDs(out.CategoryIDs, []int64{id})
		if resolve == nil {
			parts = append(parts, filter.Term(domain.CategoryField, v))
			continue
		}
		compiled, err := resolve(ctx, id)
		if err != nil {
			return filter.Compiled{}, fmt.Errorf("resolve category %d: %w", id, err)
		}
		out = out.Merge(compiled)
		parts = append(parts, compiled.Filter)
	}

	out.Filter = filter.Or(parts...)
	if out.Filter.IsEmpty() {
		// every referenced category was empty: the leaf still constrains
		out.Filter = filter.MatchNone()
	}
	if negate {
		out.Filter = filter.Not(out.Filter)
	}
	return out, nil
}

func emptyValue(node domain.ConditionNode) error {
	return apperrors.Compilation(fmt.Sprintf("condition on %q has no value", node.Attribute))
}

func unknownOperator(node domain.ConditionNode) error {
	return apperrors.Compilation(fmt.Sprintf("unknown operator %q for %q", node.Operator, node.Attribute))
}
