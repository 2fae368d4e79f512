// Package rule resolves virtual owners (categories and attribute options)
// into compiled membership filters.
package rule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/utafrali/searchandising/internal/cache"
	"github.com/utafrali/searchandising/internal/condition"
	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/filter"
	apperrors "github.com/utafrali/searchandising/pkg/errors"
)

// CategorySource reads category metadata. Category returns an error
// wrapping ErrNotFound for unknown ids.
type CategorySource interface {
	Category(ctx context.Context, id, storeID int64) (domain.Category, error)
	Children(ctx context.Context, parentID, storeID int64) ([]domain.Category, error)
}

// CategoryCompiler compiles category membership queries.
type CategoryCompiler struct {
	categories CategorySource
	conditions *condition.Compiler
	cache      *cache.QueryCache
	logger     *slog.Logger
}

// NewCategoryCompiler creates a CategoryCompiler.
func NewCategoryCompiler(categories CategorySource, conditions *condition.Compiler, queryCache *cache.QueryCache, logger *slog.Logger) *CategoryCompiler {
	return &CategoryCompiler{
		categories: categories,
		conditions: conditions,
		cache:      queryCache,
		logger:     logger,
	}
}

// SearchQuery returns the membership query of category id in store.
// excluded lists the owners already on the compilation path; they are never
// expanded again. An owner without rule, members or children compiles to a
// query matching nothing.
func (c *CategoryCompiler) SearchQuery(ctx context.Context, id, storeID int64, excluded Exclusion) (filter.Compiled, error) {
	key := c.key(id, storeID, excluded)
	if cached, ok := c.cache.Get(ctx, key); ok {
		return cached, nil
	}

	cat, err := c.categories.Category(ctx, id, storeID)
	if err != nil {
		return filter.Compiled{}, fmt.Errorf("load category %d: %w", id, err)
	}
	return c.compileAndStore(ctx, key, cat, storeID, excluded)
}

func (c *CategoryCompiler) key(id, storeID int64, excluded Exclusion) cache.Key {
	return cache.Key{
		Kind:    domain.OwnerCategory,
		OwnerID: id,
		StoreID: storeID,
		Scope:   excluded.Fingerprint(),
	}
}

func (c *CategoryCompiler) compileAndStore(ctx context.Context, key cache.Key, cat domain.Category, storeID int64, excluded Exclusion) (filter.Compiled, error) {
	var (
		out filter.Compiled
		err error
	)
	if cat.IsVirtual {
		out, err = c.compileVirtual(ctx, cat, storeID, excluded)
	} else {
		out, err = c.compileStatic(ctx, cat, storeID, excluded)
	}
	if err != nil {
		return filter.Compiled{}, err
	}

	c.cache.Put(ctx, key, out)
	c.logger.DebugContext(ctx, "category query compiled",
		slog.Int64("category_id", cat.ID),
		slog.Int64("store_id", storeID),
		slog.Int("excluded", excluded.Len()),
		slog.String("query", out.String()),
	)
	return out, nil
}

func (c *CategoryCompiler) compileVirtual(ctx context.Context, cat domain.Category, storeID int64, excluded Exclusion) (filter.Compiled, error) {
	out := filter.Compiled{Filter: filter.MatchNone()}
	if cat.Rule != nil {
		compiled, err := c.conditions.Compile(ctx, *cat.Rule, c.Resolver(storeID, excluded.With(cat.ID)))
		if err != nil {
			return filter.Compiled{}, fmt.Errorf("compile rule of category %d: %w", cat.ID, err)
		}
		out = compiled
		if out.Filter.IsEmpty() {
			out.Filter = filter.MatchNone()
		}
	}
	out.CategoryIDs = filter.UnionIDs(out.CategoryIDs, []int64{cat.ID})
	return out, nil
}

// compileStatic joins the category's own membership with the queries of its
// active children. Children are compiled before the parent is joined.
func (c *CategoryCompiler) compileStatic(ctx context.Context, cat domain.Category, storeID int64, excluded Exclusion) (filter.Compiled, error) {
	own := filter.Term(domain.CategoryField, strconv.FormatInt(cat.ID, 10))
	out := filter.Compiled{CategoryIDs: []int64{cat.ID}}

	children, err := c.categories.Children(ctx, cat.ID, storeID)
	if err != nil {
		return filter.Compiled{}, fmt.Errorf("load children of category %d: %w", cat.ID, err)
	}

	childExcluded := excluded.With(cat.ID)
	parts := []filter.Expr{own}
	for _, child := range children {
		if !child.IsActive || childExcluded.Contains(child.ID) {
			continue
		}
		key := c.key(child.ID, storeID, childExcluded)
		sub, ok := c.cache.Get(ctx, key)
		if !ok {
			if sub, err = c.compileAndStore(ctx, key, child, storeID, childExcluded); err != nil {
				return filter.Compiled{}, err
			}
		}
		out = out.Merge(sub)
		parts = append(parts, sub.Filter)
	}

	out.Filter = filter.Or(parts...)
	return out, nil
}

// Resolver expands categories referenced from rules. Excluded categories
// resolve to a query matching nothing, which cuts cycles between rules and
// category trees. Dangling references are logged and match nothing.
func (c *CategoryCompiler) Resolver(storeID int64, excluded Exclusion) condition.CategoryResolver {
	return func(ctx context.Context, id int64) (filter.Compiled, error) {
		if excluded.Contains(id) {
			return filter.Compiled{Filter: filter.MatchNone(), CategoryIDs: []int64{id}}, nil
		}
		compiled, err := c.SearchQuery(ctx, id, storeID, excluded)
		if errors.Is(err, apperrors.ErrNotFound) {
			c.logger.WarnContext(ctx, "rule references unknown category",
				slog.Int64("category_id", id),
				slog.Int64("store_id", storeID),
			)
			return filter.Compiled{Filter: filter.MatchNone(), CategoryIDs: []int64{id}}, nil
		}
		return compiled, err
	}
}
