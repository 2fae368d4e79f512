package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/utafrali/searchandising/internal/domain"
)

// OpenScroll starts a scroll over the ids of every document of storeID.
func (e *Engine) OpenScroll(ctx context.Context, storeID int64, pageSize int, keepAlive time.Duration) (domain.ScrollPage, error) {
	body, err := encodeBody(map[string]any{
		"query":   map[string]any{"term": map[string]any{"store_id": storeID}},
		"_source": false,
		"sort":    []string{"_doc"},
	})
	if err != nil {
		return domain.ScrollPage{}, fmt.Errorf("elasticsearch open scroll: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(body),
		e.client.Search.WithSize(pageSize),
		e.client.Search.WithScroll(keepAlive),
		e.client.Search.WithTrackTotalHits(true),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return domain.ScrollPage{}, fmt.Errorf("elasticsearch open scroll: %w", err)
	}
	return decodeScrollPage("open scroll", res)
}

// Scroll fetches the next page of scrollID. An expired cursor is an error.
func (e *Engine) Scroll(ctx context.Context, scrollID string, keepAlive time.Duration) (domain.ScrollPage, error) {
	res, err := e.client.Scroll(
		e.client.Scroll.WithScrollID(scrollID),
		e.client.Scroll.WithScroll(keepAlive),
		e.client.Scroll.WithContext(ctx),
	)
	if err != nil {
		return domain.ScrollPage{}, fmt.Errorf("elasticsearch scroll: %w", err)
	}
	return decodeScrollPage("scroll", res)
}

// ClearScroll releases scrollID. A cursor that already expired is not an error.
func (e *Engine) ClearScroll(ctx context.Context, scrollID string) error {
	res, err := e.client.ClearScroll(
		e.client.ClearScroll.WithScrollID(scrollID),
		e.client.ClearScroll.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch clear scroll: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("clear scroll", res)
	}
	return nil
}

func decodeScrollPage(op string, res *esapi.Response) (domain.ScrollPage, error) {
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return domain.ScrollPage{}, responseError(op, res)
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return domain.ScrollPage{}, fmt.Errorf("elasticsearch %s: decode response: %w", op, err)
	}

	page := domain.ScrollPage{
		ScrollID:    esResp.ScrollID,
		Total:       esResp.Hits.Total.Value,
		DocumentIDs: make([]string, 0, len(esResp.Hits.Hits)),
	}
	for _, h := range esResp.Hits.Hits {
		page.DocumentIDs = append(page.DocumentIDs, h.ID)
	}
	return page, nil
}
