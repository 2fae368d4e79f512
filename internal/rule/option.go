package rule

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/utafrali/searchandising/internal/cache"
	"github.com/utafrali/searchandising/internal/condition"
	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/filter"
	apperrors "github.com/utafrali/searchandising/pkg/errors"
)

// OptionCompiler compiles the membership queries of virtual attribute options.
type OptionCompiler struct {
	conditions *condition.Compiler
	categories *CategoryCompiler
	cache      *cache.QueryCache
	logger     *slog.Logger
}

// NewOptionCompiler creates an OptionCompiler. Category references inside
// option rules are expanded through categories.
func NewOptionCompiler(conditions *condition.Compiler, categories *CategoryCompiler, queryCache *cache.QueryCache, logger *slog.Logger) *OptionCompiler {
	return &OptionCompiler{
		conditions: conditions,
		categories: categories,
		cache:      queryCache,
		logger:     logger,
	}
}

// OptionQueries holds the queries of every option of one attribute and the
// union of the ids they depend on.
type OptionQueries struct {
	AttributeID  int64
	Queries      map[int64]filter.Expr
	AttributeIDs []int64
	CategoryIDs  []int64
}

// Tags returns the cache tags shared by the whole option map.
func (q OptionQueries) Tags() []string {
	return filter.Compiled{AttributeIDs: q.AttributeIDs, CategoryIDs: q.CategoryIDs}.Tags()
}

// QueryGroup builds the facet query group of attr from the option map.
func (q OptionQueries) QueryGroup(attr domain.Attribute) domain.QueryGroup {
	name := attr.QueryGroupName()
	group := domain.QueryGroup{
		Name:    name,
		Prefix:  name + "_",
		Queries: make(map[string]filter.Expr, len(q.Queries)),
	}
	for id, expr := range q.Queries {
		group.Queries[strconv.FormatInt(id, 10)] = expr
	}
	return group
}

func requireVirtual(attr domain.Attribute) error {
	if !attr.Kind.Behavior().Virtual {
		return apperrors.Configuration(fmt.Sprintf("attribute %q is not a virtual attribute", attr.Code))
	}
	return nil
}

// SearchQuery returns the membership query of one option.
func (c *OptionCompiler) SearchQuery(ctx context.Context, attr domain.Attribute, optionID, storeID int64) (filter.Compiled, error) {
	if err := requireVirtual(attr); err != nil {
		return filter.Compiled{}, err
	}
	option, ok := attr.Option(optionID)
	if !ok {
		return filter.Compiled{}, apperrors.NotFound("attribute option", optionID)
	}
	return c.optionQuery(ctx, attr, option, storeID)
}

func (c *OptionCompiler) optionQuery(ctx context.Context, attr domain.Attribute, option domain.AttributeOption, storeID int64) (filter.Compiled, error) {
	key := cache.Key{
		Kind:     domain.OwnerAttributeOption,
		OwnerID:  attr.ID,
		OptionID: option.ID,
		StoreID:  storeID,
	}
	if cached, ok := c.cache.Get(ctx, key); ok {
		return cached, nil
	}

	out := filter.Compiled{Filter: filter.MatchNone()}
	if option.Rule != nil {
		compiled, err := c.conditions.Compile(ctx, *option.Rule, c.categories.Resolver(storeID, Exclusion{}))
		if err != nil {
			return filter.Compiled{}, fmt.Errorf("compile rule of option %d of %q: %w", option.ID, attr.Code, err)
		}
		out = compiled
		if out.Filter.IsEmpty() {
			out.Filter = filter.MatchNone()
		}
	}
	out.AttributeIDs = filter.UnionIDs(out.AttributeIDs, []int64{attr.ID})

	c.cache.Put(ctx, key, out)
	return out, nil
}

// OptionQueries compiles every option of attr. Options whose rule matches
// nothing are left out of the map.
func (c *OptionCompiler) OptionQueries(ctx context.Context, attr domain.Attribute, storeID int64) (OptionQueries, error) {
	if err := requireVirtual(attr); err != nil {
		return OptionQueries{}, err
	}

	options := attr.Options
	if attr.Kind.Behavior().SingleOption && len(options) > 1 {
		options = options[:1]
	}

	out := OptionQueries{
		AttributeID:  attr.ID,
		Queries:      make(map[int64]filter.Expr, len(options)),
		AttributeIDs: []int64{attr.ID},
	}
	for _, option := range options {
		compiled, err := c.optionQuery(ctx, attr, option, storeID)
		if err != nil {
			return OptionQueries{}, err
		}
		out.AttributeIDs = filter.UnionIDs(out.AttributeIDs, compiled.AttributeIDs)
		out.CategoryIDs = filter.UnionIDs(out.CategoryIDs, compiled.CategoryIDs)
		if compiled.Filter.IsMatchNone() {
			continue
		}
		out.Queries[option.ID] = compiled.Filter
	}
	return out, nil
}

// SearchQueryForOptions ORs the queries of the selected options.
func (c *OptionCompiler) SearchQueryForOptions(ctx context.Context, attr domain.Attribute, optionIDs []int64, storeID int64) (filter.Compiled, error) {
	out := filter.Compiled{}
	parts := make([]filter.Expr, 0, len(optionIDs))
	for _, id := range optionIDs {
		compiled, err := c.SearchQuery(ctx, attr, id, storeID)
		if err != nil {
			return filter.Compiled{}, err
		}
		out = out.Merge(compiled)
		parts = append(parts, compiled.Filter)
	}
	out.Filter = filter.Or(parts...)
	if out.Filter.IsEmpty() {
		out.Filter = filter.MatchNone()
	}
	return out, nil
}
