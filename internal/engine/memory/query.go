package memory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/filter"
)

// numSuffix names the numeric twin of a flattened field, used by range queries.
const numSuffix = "__num"

// flatten turns a source into dotted field paths holding every leaf value as
// a keyword, plus numeric twins for numbers. Arrays contribute each element
// under the same path.
func flatten(source map[string]any) map[string]any {
	terms := make(map[string][]string)
	nums := make(map[string][]float64)
	var walk func(path string, v any)
	walk = func(path string, v any) {
		switch val := v.(type) {
		case map[string]any:
			for k, child := range val {
				p := k
				if path != "" {
					p = path + "." + k
				}
				walk(p, child)
			}
		case []any:
			for _, child := range val {
				walk(path, child)
			}
		case string:
			terms[path] = append(terms[path], val)
		case float64:
			terms[path] = append(terms[path], strconv.FormatFloat(val, 'f', -1, 64))
			nums[path] = append(nums[path], val)
		case bool:
			terms[path] = append(terms[path], strconv.FormatBool(val))
		}
	}
	walk("", source)

	out := make(map[string]any, len(terms)+len(nums))
	for k, v := range terms {
		out[k] = v
	}
	for k, v := range nums {
		out[k+numSuffix] = v
	}
	return out
}

// translate maps a filter expression onto bleve queries. The empty
// expression matches everything.
func translate(e filter.Expr) (query.Query, error) {
	switch e.Op {
	case filter.OpEmpty, filter.OpMatchAll:
		return bleve.NewMatchAllQuery(), nil
	case filter.OpMatchNone:
		return bleve.NewMatchNoneQuery(), nil
	case filter.OpTerm:
		return termQuery(e.Field, e.Values[0]), nil
	case filter.OpIn:
		parts := make([]query.Query, 0, len(e.Values))
		for _, v := range e.Values {
			parts = append(parts, termQuery(e.Field, v))
		}
		return bleve.NewDisjunctionQuery(parts...), nil
	case filter.OpRange:
		return rangeQuery(e), nil
	case filter.OpAnd, filter.OpOr:
		parts := make([]query.Query, 0, len(e.Children))
		for _, c := range e.Children {
			q, err := translate(c)
			if err != nil {
				return nil, err
			}
			parts = append(parts, q)
		}
		if e.Op == filter.OpAnd {
			return bleve.NewConjunctionQuery(parts...), nil
		}
		return bleve.NewDisjunctionQuery(parts...), nil
	case filter.OpNot:
		inner, err := translate(e.Children[0])
		if err != nil {
			return nil, err
		}
		q := bleve.NewBooleanQuery()
		q.AddMust(bleve.NewMatchAllQuery())
		q.AddMustNot(inner)
		return q, nil
	}
	return nil, fmt.Errorf("memory engine: unsupported filter op %q", e.Op)
}

func termQuery(field, value string) query.Query {
	q := bleve.NewTermQuery(value)
	q.SetField(field)
	return q
}

func rangeQuery(e filter.Expr) query.Query {
	lower, lowerOK := parseBound(e.Lower)
	upper, upperOK := parseBound(e.Upper)
	incLower, incUpper := e.IncludeLower, e.IncludeUpper
	if lowerOK && upperOK {
		q := bleve.NewNumericRangeInclusiveQuery(lower, upper, &incLower, &incUpper)
		q.SetField(e.Field + numSuffix)
		return q
	}
	q := bleve.NewTermRangeInclusiveQuery(e.Lower, e.Upper, &incLower, &incUpper)
	q.SetField(e.Field)
	return q
}

// parseBound parses a numeric bound. An open bound parses as nil.
func parseBound(v string) (*float64, bool) {
	if v == "" {
		return nil, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, false
	}
	return &f, true
}

// baseQuery combines the text, store and filter constraints of req.
func baseQuery(req domain.SearchRequest) (query.Query, error) {
	parts := []query.Query{termQuery("store_id", strconv.FormatInt(req.StoreID, 10))}
	if req.Text != "" {
		name := bleve.NewMatchQuery(req.Text)
		name.SetField("name")
		name.SetBoost(3)
		description := bleve.NewMatchQuery(req.Text)
		description.SetField("description")
		parts = append(parts, bleve.NewDisjunctionQuery(name, description))
	}
	for _, f := range req.Filters {
		if f.IsEmpty() {
			continue
		}
		q, err := translate(f)
		if err != nil {
			return nil, err
		}
		parts = append(parts, q)
	}
	return bleve.NewConjunctionQuery(parts...), nil
}

// Search matches req against the index, sorts the matches by req.Sort and
// counts every query group bucket within the matched set.
func (e *Engine) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error) {
	start := time.Now()

	base, err := baseQuery(req)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	matches, err := e.match(ctx, base)
	if err != nil {
		return nil, err
	}

	hits := make([]domain.Hit, 0, len(matches))
	for id, score := range matches {
		entityID, _, _ := domain.ParseDocumentID(id)
		hits = append(hits, domain.Hit{DocumentID: id, EntityID: entityID, Score: score, Source: e.docs[id]})
	}
	sortHits(hits, req.Sort)
	total := len(hits)
	hits = paginate(hits, req.From, req.Size)

	facets, err := e.facets(ctx, base, req.QueryGroups)
	if err != nil {
		return nil, err
	}

	return &domain.SearchResult{
		Hits:   hits,
		Total:  total,
		TookMs: time.Since(start).Milliseconds(),
		Facets: facets,
	}, nil
}

// match returns the score of every document matching q.
func (e *Engine) match(ctx context.Context, q query.Query) (map[string]float64, error) {
	if len(e.docs) == 0 {
		return map[string]float64{}, nil
	}
	res, err := e.index.SearchInContext(ctx, bleve.NewSearchRequestOptions(q, len(e.docs), 0, false))
	if err != nil {
		return nil, fmt.Errorf("memory engine: search: %w", err)
	}
	out := make(map[string]float64, len(res.Hits))
	for _, h := range res.Hits {
		out[h.ID] = h.Score
	}
	return out, nil
}

func (e *Engine) count(ctx context.Context, q query.Query) (int64, error) {
	res, err := e.index.SearchInContext(ctx, bleve.NewSearchRequestOptions(q, 0, 0, false))
	if err != nil {
		return 0, fmt.Errorf("memory engine: count: %w", err)
	}
	return int64(res.Total), nil
}

func (e *Engine) facets(ctx context.Context, base query.Query, groups []domain.QueryGroup) (map[string][]domain.FacetItem, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	out := make(map[string][]domain.FacetItem, len(groups))
	for _, g := range groups {
		items := make([]domain.FacetItem, 0, len(g.Queries))
		for key, expr := range g.Queries {
			q, err := translate(expr)
			if err != nil {
				return nil, err
			}
			n, err := e.count(ctx, bleve.NewConjunctionQuery(base, q))
			if err != nil {
				return nil, err
			}
			items = append(items, domain.FacetItem{Key: key, Count: n})
		}
		sortFacets(items)
		out[g.Name] = items
	}
	return out, nil
}

func paginate(hits []domain.Hit, from, size int) []domain.Hit {
	if from < 0 {
		from = 0
	}
	if size < 0 {
		size = 0
	}
	if from > len(hits) {
		from = len(hits)
	}
	end := min(from+size, len(hits))
	return hits[from:end]
}
