package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/utafrali/searchandising/internal/domain"
	apperrors "github.com/utafrali/searchandising/pkg/errors"
)

// SyncRunRepository keeps sync runs in memory.
type SyncRunRepository struct {
	mu   sync.RWMutex
	runs []domain.SyncRun
}

// NewSyncRunRepository creates an empty run repository.
func NewSyncRunRepository() *SyncRunRepository {
	return &SyncRunRepository{}
}

func (r *SyncRunRepository) Create(_ context.Context, run *domain.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, *run)
	return nil
}

func (r *SyncRunRepository) Finish(_ context.Context, run *domain.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.runs {
		if r.runs[i].ID == run.ID {
			r.runs[i] = *run
			return nil
		}
	}
	return apperrors.NotFound("sync run", run.ID)
}

func (r *SyncRunRepository) List(_ context.Context, provider string, limit int) ([]domain.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.SyncRun
	for _, run := range slices.Backward(r.runs) {
		if provider != "" && run.Provider != provider {
			continue
		}
		out = append(out, run)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
