// Package provider keeps provider-owned subtrees of index documents in sync
// with their source data, for every store, one store or a set of entities.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/utafrali/searchandising/internal/bulk"
	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/engine"
	apperrors "github.com/utafrali/searchandising/pkg/errors"
)

// Provider computes one named subtree of index documents.
type Provider interface {
	// Name is the registration key.
	Name() string

	// EntitiesData returns the subtree of every given entity in storeID. Each
	// input id must be present in the result, with an empty subtree when the
	// entity has no data, so stale values get cleared.
	EntitiesData(ctx context.Context, storeID int64, entityIDs []int64) (map[int64]domain.Fields, error)

	// MappingProperties is the static mapping fragment of the subtree.
	MappingProperties() map[string]any
}

// StoreSource lists the store ids an all-stores run iterates.
type StoreSource interface {
	StoreIDs(ctx context.Context) ([]int64, error)
}

// Observer follows the progress of store scans.
type Observer interface {
	ScanStarted(storeID int64, total int)
	BatchSynced(storeID int64, documents int)
}

type noopObserver struct{}

func (noopObserver) ScanStarted(int64, int) {}
func (noopObserver) BatchSynced(int64, int) {}

// Request selects the run mode: no store means every store, a store without
// entity ids means a full scan of that store. Entity ids without a store are
// updated in every store.
type Request struct {
	StoreID   *int64
	EntityIDs []int64
	Observer  Observer
}

// Option configures a Runner.
type Option func(*Runner)

// WithScroll overrides the scroll page size and keep-alive.
func WithScroll(pageSize int, keepAlive time.Duration) Option {
	return func(r *Runner) {
		r.pageSize = pageSize
		r.keepAlive = keepAlive
	}
}

// Runner drives providers through the three resync modes. A run is
// synchronous; an error aborts it and the caller retries it as a whole.
type Runner struct {
	stores    StoreSource
	scroller  engine.Scroller
	sync      *bulk.Synchronizer
	logger    *slog.Logger
	pageSize  int
	keepAlive time.Duration
}

// NewRunner creates a Runner.
func NewRunner(stores StoreSource, scroller engine.Scroller, sync *bulk.Synchronizer, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		stores:    stores,
		scroller:  scroller,
		sync:      sync,
		logger:    logger,
		pageSize:  engine.ScrollPageSize,
		keepAlive: engine.ScrollKeepAlive,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run updates the subtree of p for the scope selected by req and returns the
// number of documents written.
func (r *Runner) Run(ctx context.Context, p Provider, req Request) (int, error) {
	obs := req.Observer
	if obs == nil {
		obs = noopObserver{}
	}

	switch domain.ScopeOf(req.StoreID, req.EntityIDs) {
	case domain.ScopeAllStores, domain.ScopeStoresTargeted:
		return r.allStores(ctx, p, req.EntityIDs, obs)
	case domain.ScopeStoreFull:
		return r.storeFull(ctx, p, *req.StoreID, obs)
	default:
		return r.targeted(ctx, p, *req.StoreID, req.EntityIDs)
	}
}

func (r *Runner) allStores(ctx context.Context, p Provider, entityIDs []int64, obs Observer) (int, error) {
	storeIDs, err := r.stores.StoreIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stores: %w", err)
	}
	if len(storeIDs) == 0 {
		return 0, apperrors.Configuration("no stores configured")
	}

	total := 0
	for _, storeID := range storeIDs {
		var n int
		if len(entityIDs) > 0 {
			n, err = r.targeted(ctx, p, storeID, entityIDs)
		} else {
			n, err = r.storeFull(ctx, p, storeID, obs)
		}
		total += n
		if err != nil {
			return total, fmt.Errorf("store %d: %w", storeID, err)
		}
	}
	return total, nil
}

// storeFull scrolls over every document of storeID and runs a targeted
// update per page.
func (r *Runner) storeFull(ctx context.Context, p Provider, storeID int64, obs Observer) (int, error) {
	page, err := r.scroller.OpenScroll(ctx, storeID, r.pageSize, r.keepAlive)
	if err != nil {
		return 0, apperrors.EngineCommunication("scroll", err)
	}
	defer func() {
		if page.ScrollID == "" {
			return
		}
		if err := r.scroller.ClearScroll(context.WithoutCancel(ctx), page.ScrollID); err != nil {
			r.logger.WarnContext(ctx, "failed to clear scroll",
				slog.Int64("store_id", storeID),
				slog.String("error", err.Error()),
			)
		}
	}()

	obs.ScanStarted(storeID, page.Total)
	r.logger.InfoContext(ctx, "store scan started",
		slog.String("provider", p.Name()),
		slog.Int64("store_id", storeID),
		slog.Int("documents", page.Total),
	)

	written, fetched := 0, 0
	for {
		fetched += len(page.DocumentIDs)
		if ids := r.entityIDs(ctx, storeID, page.DocumentIDs); len(ids) > 0 {
			n, err := r.targeted(ctx, p, storeID, ids)
			written += n
			if err != nil {
				return written, err
			}
		}
		obs.BatchSynced(storeID, len(page.DocumentIDs))

		if fetched >= page.Total || len(page.DocumentIDs) == 0 {
			break
		}
		next, err := r.scroller.Scroll(ctx, page.ScrollID, r.keepAlive)
		if err != nil {
			return written, apperrors.EngineCommunication("scroll", err)
		}
		if next.ScrollID == "" {
			next.ScrollID = page.ScrollID
		}
		page = next
	}
	return written, nil
}

// entityIDs parses the entity ids out of composite document ids. Ids of
// another shape are skipped.
func (r *Runner) entityIDs(ctx context.Context, storeID int64, docIDs []string) []int64 {
	ids := make([]int64, 0, len(docIDs))
	for _, docID := range docIDs {
		entityID, docStore, err := domain.ParseDocumentID(docID)
		if err == nil && docStore != storeID {
			err = apperrors.DataIntegrity(fmt.Sprintf("document %q scanned for store %d", docID, storeID))
		}
		if err != nil {
			r.logger.WarnContext(ctx, "skipping scanned document",
				slog.String("document_id", docID),
				slog.String("error", err.Error()),
			)
			continue
		}
		ids = append(ids, entityID)
	}
	return ids
}

// targeted recomputes the subtree of entityIDs and submits it as one bulk call.
func (r *Runner) targeted(ctx context.Context, p Provider, storeID int64, entityIDs []int64) (int, error) {
	ids := slices.Clone(entityIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	data, err := p.EntitiesData(ctx, storeID, ids)
	if err != nil {
		return 0, fmt.Errorf("provider %s: entities data: %w", p.Name(), err)
	}

	ops := make([]domain.UpdateOperation, 0, len(ids))
	for _, id := range ids {
		fields, ok := data[id]
		if !ok {
			return 0, apperrors.Configuration(fmt.Sprintf("provider %s returned no data for entity %d", p.Name(), id))
		}
		ops = append(ops, domain.UpdateOperation{
			DocumentID: domain.DocumentID(id, storeID),
			Fields:     fields,
		})
	}

	if err := r.sync.Submit(ctx, p.Name(), ops); err != nil {
		return 0, err
	}
	return len(ops), nil
}

// Registry holds the providers by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry of providers. Duplicate names are a
// configuration error.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if _, dup := r.providers[p.Name()]; dup {
			return nil, apperrors.Configuration(fmt.Sprintf("provider %q registered twice", p.Name()))
		}
		r.providers[p.Name()] = p
	}
	return r, nil
}

// Get returns the provider registered as name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, apperrors.NotFound("provider", name)
	}
	return p, nil
}

// Names returns the registered names in order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.providers))
}

// MappingProperties merges the mapping fragments of every provider.
func (r *Registry) MappingProperties() map[string]any {
	out := make(map[string]any)
	for _, name := range r.Names() {
		maps.Copy(out, r.providers[name].MappingProperties())
	}
	return out
}
