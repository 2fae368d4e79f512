package engine

import (
	"context"
	"time"

	"github.com/utafrali/searchandising/internal/domain"
)

// Scroll parameters shared by every provider scanning a store.
const (
	ScrollPageSize  = 1000
	ScrollKeepAlive = 5 * time.Minute
)

// Searcher executes assembled search requests.
type Searcher interface {
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error)
}

// BulkWriter applies partial document updates. A call either succeeds as a
// whole or returns an error, a *domain.BulkFailure when only some items failed.
type BulkWriter interface {
	BulkUpdate(ctx context.Context, ops []domain.UpdateOperation) error
}

// Scroller streams the ids of every document of a store in bounded pages.
type Scroller interface {
	OpenScroll(ctx context.Context, storeID int64, pageSize int, keepAlive time.Duration) (domain.ScrollPage, error)
	Scroll(ctx context.Context, scrollID string, keepAlive time.Duration) (domain.ScrollPage, error)
	ClearScroll(ctx context.Context, scrollID string) error
}

// Engine is the search engine the service talks to. Implementations may use
// Elasticsearch, in-memory storage, or other backends.
type Engine interface {
	Searcher
	BulkWriter
	Scroller

	// EnsureIndex creates the index when missing and merges the given field
	// mappings into it.
	EnsureIndex(ctx context.Context, properties map[string]any) error

	// Ping checks whether the engine is reachable.
	Ping(ctx context.Context) error
}
