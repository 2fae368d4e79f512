package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/utafrali/searchandising/internal/domain"
	apperrors "github.com/utafrali/searchandising/pkg/errors"
)

// SearchTermRepository keeps search terms in memory.
type SearchTermRepository struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]domain.SearchTerm
}

// NewSearchTermRepository creates an empty term repository.
func NewSearchTermRepository() *SearchTermRepository {
	return &SearchTermRepository{nextID: 1, byID: make(map[int64]domain.SearchTerm)}
}

// Add stores t under its own id, for seeding.
func (r *SearchTermRepository) Add(t domain.SearchTerm) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.Text = strings.ToLower(strings.TrimSpace(t.Text))
	r.byID[t.ID] = t
	if t.ID >= r.nextID {
		r.nextID = t.ID + 1
	}
}

func (r *SearchTermRepository) lookup(id int64) (domain.SearchTerm, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	return t, ok
}

func (r *SearchTermRepository) GetByID(_ context.Context, id int64) (*domain.SearchTerm, error) {
	t, ok := r.lookup(id)
	if !ok {
		return nil, apperrors.NotFound("search term", id)
	}
	return &t, nil
}

func (r *SearchTermRepository) GetByText(_ context.Context, storeID int64, text string) (*domain.SearchTerm, error) {
	text = strings.ToLower(strings.TrimSpace(text))

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.byID {
		if t.StoreID == storeID && t.Text == text {
			return &t, nil
		}
	}
	return nil, apperrors.NotFound("search term", text)
}

func (r *SearchTermRepository) Create(ctx context.Context, storeID int64, text string) (*domain.SearchTerm, error) {
	if t, err := r.GetByText(ctx, storeID, text); err == nil {
		return t, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	t := domain.SearchTerm{ID: r.nextID, StoreID: storeID, Text: strings.ToLower(strings.TrimSpace(text))}
	r.byID[t.ID] = t
	r.nextID++
	return &t, nil
}
