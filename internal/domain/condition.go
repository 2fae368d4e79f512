package domain

import "strings"

// NodeType distinguishes predicate leaves from boolean groups.
type NodeType string

const (
	NodeLeaf    NodeType = "leaf"
	NodeCombine NodeType = "combine"
)

// Aggregator joins the children of a combine node.
type Aggregator string

const (
	AggregatorAll Aggregator = "all"
	AggregatorAny Aggregator = "any"
)

// Operator is a leaf comparison.
type Operator string

const (
	OpEqual       Operator = "=="
	OpNotEqual    Operator = "!="
	OpGreaterEq   Operator = ">="
	OpLessEq      Operator = "<="
	OpGreater     Operator = ">"
	OpLess        Operator = "<"
	OpContains    Operator = "{}"
	OpNotContains Operator = "!{}"
	OpIsOneOf     Operator = "()"
	OpIsNotOneOf  Operator = "!()"
)

// ConditionNode is one node of a merchandiser rule. Leaves compare an
// attribute with a value; combine nodes join their children with Aggregator
// and, when Expected is false, negate the group.
type ConditionNode struct {
	Type       NodeType        `json:"type" yaml:"type"`
	Attribute  string          `json:"attribute,omitempty" yaml:"attribute,omitempty"`
	Operator   Operator        `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value      string          `json:"value,omitempty" yaml:"value,omitempty"`
	Aggregator Aggregator      `json:"aggregator,omitempty" yaml:"aggregator,omitempty"`
	Expected   *bool           `json:"expected,omitempty" yaml:"expected,omitempty"`
	Children   []ConditionNode `json:"children,omitempty" yaml:"children,omitempty"`
}

// IsExpected reports whether a combine node tests for its children being
// true (the default) rather than false.
func (n ConditionNode) IsExpected() bool {
	return n.Expected == nil || *n.Expected
}

// Values splits a list value such as "12, 14,15".
func (n ConditionNode) Values() []string {
	parts := strings.Split(n.Value, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Leaf builds a predicate node.
func Leaf(attribute string, op Operator, value string) ConditionNode {
	return ConditionNode{Type: NodeLeaf, Attribute: attribute, Operator: op, Value: value}
}

// All builds a group true when every child is true.
func All(children ...ConditionNode) ConditionNode {
	return ConditionNode{Type: NodeCombine, Aggregator: AggregatorAll, Children: children}
}

// Any builds a group true when at least one child is true.
func Any(children ...ConditionNode) ConditionNode {
	return ConditionNode{Type: NodeCombine, Aggregator: AggregatorAny, Children: children}
}

// Negated returns a copy of a combine node testing for its children being false.
func (n ConditionNode) Negated() ConditionNode {
	f := false
	n.Expected = &f
	return n
}
