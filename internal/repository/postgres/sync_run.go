package postgres

import (
	"context"
	"fmt"

	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/pkg/database"
)

// SyncRunRepository implements repository.SyncRunRepository using PostgreSQL.
type SyncRunRepository struct {
	pool database.DBTX
}

// NewSyncRunRepository creates a new PostgreSQL-backed sync run repository.
func NewSyncRunRepository(pool database.DBTX) *SyncRunRepository {
	return &SyncRunRepository{pool: pool}
}

// Create records a started run.
func (r *SyncRunRepository) Create(ctx context.Context, run *domain.SyncRun) error {
	query := `
		INSERT INTO index_sync_runs (id, provider, scope, store_id, entity_count, status, error, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Provider,
		run.Scope,
		run.StoreID,
		run.EntityCount,
		run.Status,
		run.Error,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("create sync run: %w", err)
	}
	return nil
}

// Finish stores the final status of a run.
func (r *SyncRunRepository) Finish(ctx context.Context, run *domain.SyncRun) error {
	query := `
		UPDATE index_sync_runs
		SET status = $2, entity_count = $3, error = $4, finished_at = $5
		WHERE id = $1`

	_, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		run.EntityCount,
		run.Error,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("finish sync run: %w", err)
	}
	return nil
}

// List returns the latest runs, newest first.
func (r *SyncRunRepository) List(ctx context.Context, provider string, limit int) ([]domain.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, provider, scope, store_id, entity_count, status, error, started_at, finished_at
		FROM index_sync_runs
		WHERE ($1 = '' OR provider = $1)
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, provider, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.SyncRun
	for rows.Next() {
		var run domain.SyncRun
		if err := rows.Scan(
			&run.ID,
			&run.Provider,
			&run.Scope,
			&run.StoreID,
			&run.EntityCount,
			&run.Status,
			&run.Error,
			&run.StartedAt,
			&run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync runs: %w", err)
	}
	return runs, nil
}
