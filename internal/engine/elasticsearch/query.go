package elasticsearch

import (
	"cmp"
	"slices"

	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/filter"
)

// textFields are the fields matched by free text queries.
var textFields = []string{"name^3", "description"}

// queryString wraps a filter expression in a query_string clause.
func queryString(expr filter.Expr) map[string]any {
	return map[string]any{
		"query_string": map[string]any{
			"query": expr.String(),
		},
	}
}

// buildSearchBody constructs the Elasticsearch query DSL for req.
func buildSearchBody(req domain.SearchRequest) map[string]any {
	var mustClause any
	if req.Text != "" {
		mustClause = map[string]any{
			"multi_match": map[string]any{
				"query":         req.Text,
				"fields":        textFields,
				"type":          "best_fields",
				"fuzziness":     "AUTO",
				"prefix_length": 1,
			},
		}
	} else {
		mustClause = map[string]any{
			"match_all": map[string]any{},
		}
	}

	filters := []any{
		map[string]any{"term": map[string]any{"store_id": req.StoreID}},
	}
	for _, f := range req.Filters {
		if f.IsEmpty() {
			continue
		}
		filters = append(filters, queryString(f))
	}

	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must":   []any{mustClause},
				"filter": filters,
			},
		},
		"from":             req.From,
		"size":             req.Size,
		"track_total_hits": true,
	}

	if len(req.Sort) > 0 {
		sorts := make([]any, 0, len(req.Sort))
		for _, c := range req.Sort {
			sorts = append(sorts, sortClause(c))
		}
		body["sort"] = sorts
	}

	if aggs := buildAggregations(req.QueryGroups); len(aggs) > 0 {
		body["aggs"] = aggs
	}

	return body
}

// sortClause encodes one sort key. Nested clauses restrict the sort to the
// nested objects matching the clause filter.
func sortClause(c domain.SortClause) map[string]any {
	opts := map[string]any{"order": string(c.Order)}
	if c.Missing != nil {
		opts["missing"] = *c.Missing
	}
	if c.UnmappedType != "" {
		opts["unmapped_type"] = c.UnmappedType
	}
	if c.Nested != nil {
		nested := map[string]any{"path": c.Nested.Path}
		if !c.Nested.Filter.IsEmpty() {
			nested["filter"] = queryString(c.Nested.Filter)
		}
		opts["nested"] = nested
	}
	return map[string]any{c.Field: opts}
}

// buildAggregations turns each query group bucket into a filter aggregation
// named by the group prefix and the bucket key.
func buildAggregations(groups []domain.QueryGroup) map[string]any {
	aggs := make(map[string]any)
	for _, g := range groups {
		for key, expr := range g.Queries {
			aggs[g.BucketName(key)] = map[string]any{
				"filter": queryString(expr),
			}
		}
	}
	return aggs
}

// readQueryGroups maps aggregation counts back to their groups. Buckets are
// ordered by count, then key.
func readQueryGroups(groups []domain.QueryGroup, counts map[string]int64) map[string][]domain.FacetItem {
	if len(groups) == 0 {
		return nil
	}
	out := make(map[string][]domain.FacetItem, len(groups))
	for _, g := range groups {
		items := make([]domain.FacetItem, 0, len(g.Queries))
		for name, count := range counts {
			key, ok := g.KeyFromBucket(name)
			if !ok {
				continue
			}
			if _, known := g.Queries[key]; !known {
				continue
			}
			items = append(items, domain.FacetItem{Key: key, Count: count})
		}
		slices.SortFunc(items, func(a, b domain.FacetItem) int {
			if c := cmp.Compare(b.Count, a.Count); c != 0 {
				return c
			}
			return cmp.Compare(a.Key, b.Key)
		})
		out[g.Name] = items
	}
	return out
}
