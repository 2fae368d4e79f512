package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/searchandising/internal/domain"
)

// ErrScrollExpired is returned for unknown, cleared or expired cursors.
var ErrScrollExpired = errors.New("memory engine: search context missing")

type cursor struct {
	ids      []string
	next     int
	pageSize int
	expires  time.Time
}

// OpenScroll snapshots the ids of storeID and returns the first page.
func (e *Engine) OpenScroll(_ context.Context, storeID int64, pageSize int, keepAlive time.Duration) (domain.ScrollPage, error) {
	if pageSize <= 0 {
		return domain.ScrollPage{}, fmt.Errorf("memory engine: open scroll: page size %d", pageSize)
	}
	store := strconv.FormatInt(storeID, 10)

	e.mu.Lock()
	defer e.mu.Unlock()

	ids := e.sortedIDs(func(doc map[string]any) bool {
		for _, v := range numbers(doc["store_id"]) {
			if strconv.FormatFloat(v, 'f', -1, 64) == store {
				return true
			}
		}
		return false
	})
	id := uuid.NewString()
	c := &cursor{ids: ids, pageSize: pageSize}
	e.cursors[id] = c
	return e.advance(id, c, keepAlive), nil
}

// Scroll returns the next page of scrollID and renews its keep-alive.
func (e *Engine) Scroll(_ context.Context, scrollID string, keepAlive time.Duration) (domain.ScrollPage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.cursors[scrollID]
	if !ok || e.now().After(c.expires) {
		delete(e.cursors, scrollID)
		return domain.ScrollPage{}, fmt.Errorf("%w: %s", ErrScrollExpired, scrollID)
	}
	return e.advance(scrollID, c, keepAlive), nil
}

// ClearScroll forgets scrollID. Unknown cursors are ignored.
func (e *Engine) ClearScroll(_ context.Context, scrollID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.cursors, scrollID)
	return nil
}

func (e *Engine) advance(id string, c *cursor, keepAlive time.Duration) domain.ScrollPage {
	end := min(c.next+c.pageSize, len(c.ids))
	page := domain.ScrollPage{
		ScrollID:    id,
		Total:       len(c.ids),
		DocumentIDs: append([]string{}, c.ids[c.next:end]...),
	}
	c.next = end
	c.expires = e.now().Add(keepAlive)
	return page
}
