package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/utafrali/searchandising/internal/domain"
)

// Config configures the Elasticsearch engine.
type Config struct {
	URL   string
	Index string
	// Refresh is passed to bulk calls ("true", "false" or "wait_for").
	Refresh string
	// Transport replaces the default HTTP transport, typically with a
	// circuit breaker.
	Transport http.RoundTripper
}

// Engine is an Elasticsearch-backed implementation of engine.Engine.
type Engine struct {
	client    *elasticsearch.Client
	indexName string
	refresh   string
	logger    *slog.Logger
}

// esSearchResponse is the structure used to decode Elasticsearch search and scroll responses.
type esSearchResponse struct {
	Took     int    `json:"took"`
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string         `json:"_id"`
			Score  *float64       `json:"_score"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		DocCount int64 `json:"doc_count"`
	} `json:"aggregations"`
}

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates a new Elasticsearch engine. If cfg.Index is empty,
// DefaultIndexName is used. The index itself is created by EnsureIndex.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.Index == "" {
		cfg.Index = DefaultIndexName
	}
	if cfg.Refresh == "" {
		cfg.Refresh = "false"
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Transport: cfg.Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}

	return &Engine{
		client:    client,
		indexName: cfg.Index,
		refresh:   cfg.Refresh,
		logger:    logger,
	}, nil
}

// IndexName returns the index the engine reads and writes.
func (e *Engine) IndexName() string { return e.indexName }

// Ping checks whether the Elasticsearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// responseError turns an error response into an error naming op.
func responseError(op string, res *esapi.Response) error {
	var errResp esErrorResponse
	if decErr := json.NewDecoder(res.Body).Decode(&errResp); decErr == nil && errResp.Error.Type != "" {
		return fmt.Errorf("elasticsearch %s: %s: %s", op, errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Errorf("elasticsearch %s: unexpected status %s", op, res.Status())
}

func encodeBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// Search executes an assembled request and reads back hits and query group buckets.
func (e *Engine) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error) {
	body, err := encodeBody(buildSearchBody(req))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(body),
		e.client.Search.WithContext(ctx),
		e.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, responseError("search", res)
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}

	hits := make([]domain.Hit, 0, len(esResp.Hits.Hits))
	for _, h := range esResp.Hits.Hits {
		hit := domain.Hit{DocumentID: h.ID, Source: h.Source}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		entityID, _, err := domain.ParseDocumentID(h.ID)
		if err != nil {
			e.logger.WarnContext(ctx, "search hit with malformed document id",
				slog.String("document_id", h.ID),
				slog.String("error", err.Error()),
			)
		}
		hit.EntityID = entityID
		hits = append(hits, hit)
	}

	counts := make(map[string]int64, len(esResp.Aggregations))
	for name, agg := range esResp.Aggregations {
		counts[name] = agg.DocCount
	}

	return &domain.SearchResult{
		Hits:   hits,
		Total:  esResp.Hits.Total.Value,
		TookMs: int64(esResp.Took),
		Facets: readQueryGroups(req.QueryGroups, counts),
	}, nil
}

// DeleteIndex removes the entire Elasticsearch index.
// It is intended for testing and administrative operations only.
// A 404 response is treated as success (index already absent).
func (e *Engine) DeleteIndex(ctx context.Context) error {
	res, err := e.client.Indices.Delete(
		[]string{e.indexName},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("delete index", res)
	}

	e.logger.Info("elasticsearch index deleted", "index", e.indexName)
	return nil
}

// IndexDocument stores a full base document. Catalog import happens
// elsewhere; this exists for seeding development and test indices.
func (e *Engine) IndexDocument(ctx context.Context, id string, doc domain.Fields) error {
	body, err := encodeBody(doc)
	if err != nil {
		return fmt.Errorf("elasticsearch index: marshal document: %w", err)
	}

	res, err := e.client.Index(
		e.indexName,
		body,
		e.client.Index.WithDocumentID(id),
		e.client.Index.WithRefresh("true"),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("index", res)
	}
	return nil
}
