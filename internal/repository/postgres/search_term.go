package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/pkg/database"
	apperrors "github.com/utafrali/searchandising/pkg/errors"
)

// SearchTermRepository implements repository.SearchTermRepository using PostgreSQL.
type SearchTermRepository struct {
	pool database.DBTX
}

// NewSearchTermRepository creates a new PostgreSQL-backed search term repository.
func NewSearchTermRepository(pool database.DBTX) *SearchTermRepository {
	return &SearchTermRepository{pool: pool}
}

// GetByID retrieves a search term by id.
func (r *SearchTermRepository) GetByID(ctx context.Context, id int64) (*domain.SearchTerm, error) {
	query := `SELECT id, store_id, query_text FROM search_terms WHERE id = $1`

	var t domain.SearchTerm
	err := r.pool.QueryRow(ctx, query, id).Scan(&t.ID, &t.StoreID, &t.Text)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("search term", id)
		}
		return nil, fmt.Errorf("get search term by id: %w", err)
	}
	return &t, nil
}

// GetByText retrieves the term of a store matching text.
func (r *SearchTermRepository) GetByText(ctx context.Context, storeID int64, text string) (*domain.SearchTerm, error) {
	query := `
		SELECT id, store_id, query_text
		FROM search_terms
		WHERE store_id = $1 AND lower(query_text) = $2`

	var t domain.SearchTerm
	err := r.pool.QueryRow(ctx, query, storeID, normalizeTerm(text)).Scan(&t.ID, &t.StoreID, &t.Text)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("search term", text)
		}
		return nil, fmt.Errorf("get search term by text: %w", err)
	}
	return &t, nil
}

// Create registers a search term. Registering an existing term returns it unchanged.
func (r *SearchTermRepository) Create(ctx context.Context, storeID int64, text string) (*domain.SearchTerm, error) {
	query := `
		INSERT INTO search_terms (store_id, query_text)
		VALUES ($1, $2)
		ON CONFLICT (store_id, query_text) DO UPDATE SET
			query_text = EXCLUDED.query_text
		RETURNING id, store_id, query_text`

	var t domain.SearchTerm
	err := r.pool.QueryRow(ctx, query, storeID, normalizeTerm(text)).Scan(&t.ID, &t.StoreID, &t.Text)
	if err != nil {
		return nil, fmt.Errorf("create search term: %w", err)
	}
	return &t, nil
}

func normalizeTerm(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
