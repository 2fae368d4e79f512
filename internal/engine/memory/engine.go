// Package memory is an in-process engine backed by a bleve memory index. It
// serves development and tests with the same request semantics as the
// Elasticsearch engine.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/utafrali/searchandising/internal/domain"
)

// Engine keeps every document source in memory and mirrors a flattened copy
// into a bleve index used for matching. Sorting and pagination are done on
// the sources. Thread-safe via sync.RWMutex.
type Engine struct {
	mu         sync.RWMutex
	index      bleve.Index
	docs       map[string]map[string]any
	properties map[string]any
	cursors    map[string]*cursor
	now        func() time.Time
}

// New creates an empty in-memory engine.
func New() (*Engine, error) {
	im := bleve.NewIndexMapping()
	im.DefaultAnalyzer = keyword.Name

	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	im.DefaultMapping.AddFieldMappingsAt("name", text)
	im.DefaultMapping.AddFieldMappingsAt("description", text)

	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("memory engine: create index: %w", err)
	}
	return &Engine{
		index:      idx,
		docs:       make(map[string]map[string]any),
		properties: make(map[string]any),
		cursors:    make(map[string]*cursor),
		now:        time.Now,
	}, nil
}

// Close releases the bleve index.
func (e *Engine) Close() error {
	return e.index.Close()
}

// Ping always succeeds.
func (e *Engine) Ping(context.Context) error { return nil }

// EnsureIndex records the provider field mappings. Documents are dynamically
// mapped, so nothing else is needed.
func (e *Engine) EnsureIndex(_ context.Context, properties map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	maps.Copy(e.properties, properties)
	return nil
}

// Properties returns the field mappings registered through EnsureIndex.
func (e *Engine) Properties() map[string]any {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return maps.Clone(e.properties)
}

// Put stores a full document under id, replacing any previous version.
func (e *Engine) Put(_ context.Context, id string, doc domain.Fields) error {
	if _, _, err := domain.ParseDocumentID(id); err != nil {
		return err
	}
	source, err := normalize(doc)
	if err != nil {
		return fmt.Errorf("memory engine: normalize %s: %w", id, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.index.Index(id, flatten(source)); err != nil {
		return fmt.Errorf("memory engine: index %s: %w", id, err)
	}
	e.docs[id] = source
	return nil
}

// Document returns a copy of the stored source of id.
func (e *Engine) Document(id string) (map[string]any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	doc, ok := e.docs[id]
	if !ok {
		return nil, false
	}
	return maps.Clone(doc), true
}

// Len returns the number of stored documents.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.docs)
}

// BulkUpdate merges each operation's fields into its document. Operations on
// unknown documents fail individually, the rest are applied.
func (e *Engine) BulkUpdate(_ context.Context, ops []domain.UpdateOperation) error {
	if len(ops) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	batch := e.index.NewBatch()
	failure := &domain.BulkFailure{Total: len(ops)}
	for _, op := range ops {
		current, ok := e.docs[op.DocumentID]
		if !ok {
			failure.Failures = append(failure.Failures, domain.ItemFailure{
				DocumentID: op.DocumentID,
				Status:     404,
				Type:       "document_missing_exception",
				Reason:     fmt.Sprintf("[%s]: document missing", op.DocumentID),
			})
			continue
		}
		fields, err := normalize(op.Fields)
		if err != nil {
			failure.Failures = append(failure.Failures, domain.ItemFailure{
				DocumentID: op.DocumentID,
				Status:     400,
				Type:       "mapper_parsing_exception",
				Reason:     err.Error(),
			})
			continue
		}
		merged := mergeSource(current, fields)
		if err := batch.Index(op.DocumentID, flatten(merged)); err != nil {
			return fmt.Errorf("memory engine: bulk update %s: %w", op.DocumentID, err)
		}
		e.docs[op.DocumentID] = merged
	}
	if err := e.index.Batch(batch); err != nil {
		return fmt.Errorf("memory engine: bulk update: %w", err)
	}

	if len(failure.Failures) > 0 {
		return failure
	}
	return nil
}

// normalize round-trips fields through JSON so sources hold the same value
// shapes a search engine would return.
func normalize(fields domain.Fields) (map[string]any, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// mergeSource applies a partial update: objects merge recursively, every
// other value is replaced.
func mergeSource(current, update map[string]any) map[string]any {
	out := maps.Clone(current)
	for k, v := range update {
		prev, okPrev := out[k].(map[string]any)
		next, okNext := v.(map[string]any)
		if okPrev && okNext {
			out[k] = mergeSource(prev, next)
			continue
		}
		out[k] = v
	}
	return out
}

// sortedIDs returns the stored ids accepted by keep in ascending order.
func (e *Engine) sortedIDs(keep func(map[string]any) bool) []string {
	ids := make([]string, 0, len(e.docs))
	for id, doc := range e.docs {
		if keep(doc) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
