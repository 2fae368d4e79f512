package memory

import (
	"cmp"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/filter"
)

// sortKey is a clause value. Missing values keep the exact int64 of the
// clause, which float64 cannot hold near math.MaxInt64.
type sortKey struct {
	num     float64
	exact   int64
	isExact bool
}

func compareKeys(a, b sortKey) int {
	switch {
	case a.isExact && b.isExact:
		return cmp.Compare(a.exact, b.exact)
	case a.isExact:
		return -compareFloatInt(b.num, a.exact)
	case b.isExact:
		return compareFloatInt(a.num, b.exact)
	}
	return cmp.Compare(a.num, b.num)
}

// compareFloatInt compares f with i without rounding i.
func compareFloatInt(f float64, i int64) int {
	if r := cmp.Compare(f, float64(i)); r != 0 {
		return r
	}
	// f is integral and within a rounding step of i
	if f >= math.MaxInt64 {
		return 1
	}
	return cmp.Compare(int64(f), i)
}

// sortHits orders hits by the sort clauses, then by score and document id.
// Without clauses the order is by relevance.
func sortHits(hits []domain.Hit, clauses []domain.SortClause) {
	keys := make(map[string][]sortKey, len(hits))
	for _, h := range hits {
		k := make([]sortKey, len(clauses))
		for i, c := range clauses {
			k[i] = sortValue(h.Source, c)
		}
		keys[h.DocumentID] = k
	}

	slices.SortFunc(hits, func(a, b domain.Hit) int {
		ka, kb := keys[a.DocumentID], keys[b.DocumentID]
		for i, c := range clauses {
			r := compareKeys(ka[i], kb[i])
			if c.Order == domain.SortDesc {
				r = -r
			}
			if r != 0 {
				return r
			}
		}
		if r := cmp.Compare(b.Score, a.Score); r != 0 {
			return r
		}
		return cmp.Compare(a.DocumentID, b.DocumentID)
	})
}

// sortValue extracts the sort key of c from source. Multi-valued fields sort
// by their minimum for ascending and maximum for descending clauses.
func sortValue(source map[string]any, c domain.SortClause) sortKey {
	var values []float64
	if c.Nested != nil {
		entries, _ := source[c.Nested.Path].([]any)
		if entry, ok := source[c.Nested.Path].(map[string]any); ok {
			entries = []any{entry}
		}
		rel := strings.TrimPrefix(c.Field, c.Nested.Path+".")
		for _, raw := range entries {
			entry, ok := raw.(map[string]any)
			if !ok || !matchesEntry(c.Nested.Filter, entry, c.Nested.Path) {
				continue
			}
			values = append(values, numbers(entry[rel])...)
		}
	} else {
		values = numbers(lookup(source, c.Field))
	}

	if len(values) == 0 {
		return missingValue(c)
	}
	if c.Order == domain.SortDesc {
		return sortKey{num: slices.Max(values)}
	}
	return sortKey{num: slices.Min(values)}
}

func missingValue(c domain.SortClause) sortKey {
	if c.Missing != nil {
		return sortKey{exact: *c.Missing, isExact: true}
	}
	if c.Order == domain.SortDesc {
		return sortKey{num: math.Inf(-1)}
	}
	return sortKey{num: math.Inf(1)}
}

// lookup resolves a dotted path through nested objects.
func lookup(source map[string]any, path string) any {
	var cur any = source
	for part := range strings.SplitSeq(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func numbers(v any) []float64 {
	switch val := v.(type) {
	case float64:
		return []float64{val}
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return []float64{f}
		}
	case []any:
		var out []float64
		for _, item := range val {
			out = append(out, numbers(item)...)
		}
		return out
	}
	return nil
}

// matchesEntry evaluates a nested sort filter against one nested object.
// Field names are qualified by the nested path.
func matchesEntry(e filter.Expr, entry map[string]any, path string) bool {
	switch e.Op {
	case filter.OpEmpty, filter.OpMatchAll:
		return true
	case filter.OpMatchNone:
		return false
	case filter.OpTerm, filter.OpIn:
		got := flatten(map[string]any{path: entry})[e.Field]
		values, _ := got.([]string)
		for _, v := range e.Values {
			if slices.Contains(values, v) {
				return true
			}
		}
		return false
	case filter.OpAnd:
		for _, c := range e.Children {
			if !matchesEntry(c, entry, path) {
				return false
			}
		}
		return true
	case filter.OpOr:
		for _, c := range e.Children {
			if matchesEntry(c, entry, path) {
				return true
			}
		}
		return false
	case filter.OpNot:
		return !matchesEntry(e.Children[0], entry, path)
	}
	return false
}

func sortFacets(items []domain.FacetItem) {
	slices.SortFunc(items, func(a, b domain.FacetItem) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
}
