// Package filter holds the structured boolean filter used internally by the
// rule compilers. Expressions are serialized to the engine's query_string
// grammar only when a request is put on the wire.
package filter

import (
	"slices"
	"strings"
)

// Op identifies the kind of an expression node.
type Op string

const (
	OpEmpty     Op = ""
	OpMatchAll  Op = "match_all"
	OpMatchNone Op = "match_none"
	OpTerm      Op = "term"
	OpIn        Op = "in"
	OpRange     Op = "range"
	OpAnd       Op = "and"
	OpOr        Op = "or"
	OpNot       Op = "not"
)

// Expr is one node of a filter tree. The zero value is the empty expression:
// it contributes no constraint and is dropped by And/Or.
type Expr struct {
	Op           Op       `json:"op,omitempty"`
	Field        string   `json:"field,omitempty"`
	Values       []string `json:"values,omitempty"`
	Lower        string   `json:"lower,omitempty"`
	Upper        string   `json:"upper,omitempty"`
	IncludeLower bool     `json:"include_lower,omitempty"`
	IncludeUpper bool     `json:"include_upper,omitempty"`
	Children     []Expr   `json:"children,omitempty"`
}

// MatchAll matches every document.
func MatchAll() Expr { return Expr{Op: OpMatchAll} }

// MatchNone matches no document.
func MatchNone() Expr { return Expr{Op: OpMatchNone} }

// Term matches documents whose field equals value.
func Term(field, value string) Expr {
	return Expr{Op: OpTerm, Field: field, Values: []string{value}}
}

// In matches documents whose field equals any of values. An empty value list
// matches nothing.
func In(field string, values ...string) Expr {
	switch len(values) {
	case 0:
		return MatchNone()
	case 1:
		return Term(field, values[0])
	}
	return Expr{Op: OpIn, Field: field, Values: slices.Clone(values)}
}

// Range matches field values between lower and upper. An empty bound is open.
func Range(field, lower, upper string, includeLower, includeUpper bool) Expr {
	return Expr{
		Op:           OpRange,
		Field:        field,
		Lower:        lower,
		Upper:        upper,
		IncludeLower: includeLower,
		IncludeUpper: includeUpper,
	}
}

// And joins children with a conjunction. Empty and match-all children are
// dropped and any match-none child makes the whole conjunction match nothing.
func And(children ...Expr) Expr {
	kept := make([]Expr, 0, len(children))
	sawAll := false
	for _, c := range children {
		switch c.Op {
		case OpEmpty:
			continue
		case OpMatchAll:
			sawAll = true
			continue
		case OpMatchNone:
			return MatchNone()
		case OpAnd:
			kept = append(kept, c.Children...)
			continue
		}
		kept = append(kept, c)
	}
	return join(OpAnd, kept, sawAll, OpMatchAll)
}

// Or joins children with a disjunction. Empty and match-none children are
// dropped and any match-all child makes the whole disjunction match all.
func Or(children ...Expr) Expr {
	kept := make([]Expr, 0, len(children))
	sawNone := false
	for _, c := range children {
		switch c.Op {
		case OpEmpty:
			continue
		case OpMatchNone:
			sawNone = true
			continue
		case OpMatchAll:
			return MatchAll()
		case OpOr:
			kept = append(kept, c.Children...)
			continue
		}
		kept = append(kept, c)
	}
	return join(OpOr, kept, sawNone, OpMatchNone)
}

func join(op Op, kept []Expr, sawNeutral bool, neutral Op) Expr {
	switch len(kept) {
	case 0:
		if sawNeutral {
			return Expr{Op: neutral}
		}
		return Expr{}
	case 1:
		return kept[0]
	}
	return Expr{Op: op, Children: kept}
}

// Not negates child. Negating the empty expression stays empty.
func Not(child Expr) Expr {
	switch child.Op {
	case OpEmpty:
		return Expr{}
	case OpMatchAll:
		return MatchNone()
	case OpMatchNone:
		return MatchAll()
	case OpNot:
		return child.Children[0]
	}
	return Expr{Op: OpNot, Children: []Expr{child}}
}

// IsEmpty reports whether e carries no constraint.
func (e Expr) IsEmpty() bool { return e.Op == OpEmpty }

// IsMatchNone reports whether e structurally matches nothing.
func (e Expr) IsMatchNone() bool { return e.Op == OpMatchNone }

// Fields returns the sorted distinct field names referenced by e.
func (e Expr) Fields() []string {
	seen := map[string]struct{}{}
	e.walk(func(n Expr) {
		if n.Field != "" {
			seen[n.Field] = struct{}{}
		}
	})
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

func (e Expr) walk(fn func(Expr)) {
	fn(e)
	for _, c := range e.Children {
		c.walk(fn)
	}
}

const (
	matchAllQuery  = "*:*"
	matchNoneQuery = "(*:* AND NOT *:*)"
)

// String serializes e to the Lucene query_string grammar. The empty
// expression serializes to "".
func (e Expr) String() string {
	var b strings.Builder
	e.write(&b)
	return b.String()
}

func (e Expr) write(b *strings.Builder) {
	switch e.Op {
	case OpEmpty:
	case OpMatchAll:
		b.WriteString(matchAllQuery)
	case OpMatchNone:
		b.WriteString(matchNoneQuery)
	case OpTerm:
		b.WriteString(e.Field)
		b.WriteByte(':')
		writeQuoted(b, e.Values[0])
	case OpIn:
		b.WriteString(e.Field)
		b.WriteString(":(")
		for i, v := range e.Values {
			if i > 0 {
				b.WriteString(" OR ")
			}
			writeQuoted(b, v)
		}
		b.WriteByte(')')
	case OpRange:
		b.WriteString(e.Field)
		b.WriteByte(':')
		if e.IncludeLower {
			b.WriteByte('[')
		} else {
			b.WriteByte('{')
		}
		writeBound(b, e.Lower)
		b.WriteString(" TO ")
		writeBound(b, e.Upper)
		if e.IncludeUpper {
			b.WriteByte(']')
		} else {
			b.WriteByte('}')
		}
	case OpAnd, OpOr:
		sep := " AND "
		if e.Op == OpOr {
			sep = " OR "
		}
		b.WriteByte('(')
		for i, c := range e.Children {
			if i > 0 {
				b.WriteString(sep)
			}
			c.write(b)
		}
		b.WriteByte(')')
	case OpNot:
		// a bare negative clause inside a group matches nothing in Lucene
		b.WriteString("(*:* AND NOT ")
		e.Children[0].write(b)
		b.WriteByte(')')
	}
}

func writeQuoted(b *strings.Builder, v string) {
	b.WriteByte('"')
	for _, r := range v {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
}

func writeBound(b *strings.Builder, v string) {
	if v == "" {
		b.WriteByte('*')
		return
	}
	if strings.ContainsAny(v, " \t]}\"\\") {
		writeQuoted(b, v)
		return
	}
	b.WriteString(v)
}
