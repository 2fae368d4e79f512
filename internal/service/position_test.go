package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/provider"
	"github.com/utafrali/searchandising/internal/repository"
	repomemory "github.com/utafrali/searchandising/internal/repository/memory"
	apperrors "github.com/utafrali/searchandising/pkg/errors"
)

type resyncCall struct {
	provider string
	storeID  int64
	ids      []int64
}

type recordingResyncer struct {
	calls []resyncCall
	err   error
}

func (r *recordingResyncer) Resync(_ context.Context, providerName string, storeID int64, ids []int64) error {
	r.calls = append(r.calls, resyncCall{provider: providerName, storeID: storeID, ids: ids})
	return r.err
}

func newPositionService(t *testing.T) (*PositionService, *recordingResyncer) {
	t.Helper()
	terms := repomemory.NewSearchTermRepository()
	resync := &recordingResyncer{}
	svc := NewPositionService(map[domain.OwnerKind]repository.PositionRepository{
		domain.OwnerSearchTerm: repomemory.NewTermPositionRepository(terms),
		domain.OwnerCategory:   repomemory.NewCategoryPositionRepository(),
	}, terms, testCatalog(t), resync, newTestLogger())
	return svc, resync
}

func TestPositionService_SaveResyncsPreviousAndNewProducts(t *testing.T) {
	svc, resync := newPositionService(t)
	ctx := context.Background()
	owner := domain.Owner{Kind: domain.OwnerCategory, ID: 6, StoreID: 1}

	require.NoError(t, svc.Save(ctx, owner, map[int64]int{1: 0, 2: 1}))
	require.NoError(t, svc.Save(ctx, owner, map[int64]int{2: 0, 3: 1}))

	require.Len(t, resync.calls, 2)
	assert.Equal(t, resyncCall{provider: provider.CategoryPositionName, storeID: 1, ids: []int64{1, 2}}, resync.calls[0])
	// product 1 lost its position and must be rewritten too
	assert.Equal(t, resyncCall{provider: provider.CategoryPositionName, storeID: 1, ids: []int64{1, 2, 3}}, resync.calls[1])

	ids, err := svc.ProductIDs(ctx, owner)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{2, 3}, ids)

	list, err := svc.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].ProductID)
	assert.Equal(t, int64(3), list[1].ProductID)
}

func TestPositionService_AdminCategoryResyncsEveryStore(t *testing.T) {
	svc, resync := newPositionService(t)

	owner := domain.Owner{Kind: domain.OwnerCategory, ID: 6, StoreID: domain.AdminStoreID}
	require.NoError(t, svc.Save(context.Background(), owner, map[int64]int{7: 0}))

	require.Len(t, resync.calls, 2)
	assert.Equal(t, int64(1), resync.calls[0].storeID)
	assert.Equal(t, int64(2), resync.calls[1].storeID)
}

func TestPositionService_TermUsesItsStore(t *testing.T) {
	svc, resync := newPositionService(t)
	ctx := context.Background()

	term, err := svc.RegisterTerm(ctx, 2, "boots")
	require.NoError(t, err)

	owner := domain.Owner{Kind: domain.OwnerSearchTerm, ID: term.ID, StoreID: 2}
	require.NoError(t, svc.Save(ctx, owner, map[int64]int{104: 0}))

	require.Len(t, resync.calls, 1)
	assert.Equal(t, resyncCall{provider: provider.TermPositionName, storeID: 2, ids: []int64{104}}, resync.calls[0])
}

func TestPositionService_UnknownTerm(t *testing.T) {
	svc, resync := newPositionService(t)

	owner := domain.Owner{Kind: domain.OwnerSearchTerm, ID: 99, StoreID: 1}
	err := svc.Save(context.Background(), owner, map[int64]int{1: 0})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.Empty(t, resync.calls)
}

func TestPositionService_UnpersistedOwnerIsIgnored(t *testing.T) {
	svc, resync := newPositionService(t)

	owner := domain.Owner{Kind: domain.OwnerCategory, StoreID: 1}
	require.NoError(t, svc.Save(context.Background(), owner, map[int64]int{1: 0}))
	assert.Empty(t, resync.calls)
}

func TestPositionService_RejectsInvalidInput(t *testing.T) {
	svc, resync := newPositionService(t)
	ctx := context.Background()

	err := svc.Save(ctx, domain.Owner{Kind: domain.OwnerCategory, ID: 6, StoreID: 1}, map[int64]int{5: -1})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	err = svc.Save(ctx, domain.Owner{Kind: domain.OwnerCategory, ID: 6, StoreID: 1}, map[int64]int{5: 4294967297})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	err = svc.Save(ctx, domain.Owner{Kind: domain.OwnerCategory, ID: 6, StoreID: 1}, map[int64]int{5: domain.MaxPosition + 1})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	err = svc.Save(ctx, domain.Owner{Kind: domain.OwnerAttributeOption, ID: 6, StoreID: 1}, map[int64]int{5: 1})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	_, err = svc.RegisterTerm(ctx, 1, "")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	assert.Empty(t, resync.calls)
}

func TestPositionService_ResyncFailurePropagates(t *testing.T) {
	svc, resync := newPositionService(t)
	resync.err = apperrors.EngineCommunication("bulk", errors.New("timeout"))

	err := svc.Save(context.Background(), domain.Owner{Kind: domain.OwnerCategory, ID: 6, StoreID: 1}, map[int64]int{1: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resync store 1")
	assert.True(t, apperrors.MarksRunInvalid(err))
}

func TestPositionService_SaveUpdatesIndexedDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	owner := domain.Owner{Kind: domain.OwnerCategory, ID: 6, StoreID: domain.AdminStoreID}
	require.NoError(t, f.positions.Save(ctx, owner, map[int64]int{104: 0}))

	for _, id := range []string{"104|1", "104|2"} {
		doc, ok := f.engine.Document(id)
		require.True(t, ok, id)
		assert.NotEmpty(t, doc[provider.CategoryPositionName], id)
	}
	doc, ok := f.engine.Document("101|1")
	require.True(t, ok)
	assert.NotContains(t, doc, provider.CategoryPositionName)
}
