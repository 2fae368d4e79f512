package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"strings"
)

// DefaultIndexName is the default Elasticsearch index used for catalog documents.
const DefaultIndexName = "searchandising_products"

// baseProperties are the catalog fields every document carries. Attribute
// fields are mapped dynamically; provider subtrees are merged in by EnsureIndex.
func baseProperties() map[string]any {
	return map[string]any{
		"entity_id":    map[string]any{"type": "long"},
		"store_id":     map[string]any{"type": "long"},
		"sku":          map[string]any{"type": "keyword"},
		"name":         map[string]any{"type": "text", "fields": map[string]any{"keyword": map[string]any{"type": "keyword", "ignore_above": 256}}},
		"description":  map[string]any{"type": "text"},
		"categories":   map[string]any{"type": "keyword"},
		"price":        map[string]any{"type": "double"},
		"in_stock":     map[string]any{"type": "boolean"},
		"has_image":    map[string]any{"type": "boolean"},
		"has_discount": map[string]any{"type": "boolean"},
		"is_new":       map[string]any{"type": "boolean"},
		"created_at":   map[string]any{"type": "date"},
	}
}

// buildIndexMapping returns the index creation body with extra merged into
// the base properties.
func buildIndexMapping(extra map[string]any) (string, error) {
	props := baseProperties()
	maps.Copy(props, extra)

	body := map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]any{
			"dynamic_templates": []any{
				map[string]any{
					"attribute_strings": map[string]any{
						"match_mapping_type": "string",
						"mapping":            map[string]any{"type": "keyword"},
					},
				},
			},
			"properties": props,
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// EnsureIndex creates the index with the merged mapping when it is missing.
// For an existing index the provider properties are put as a mapping update.
func (e *Engine) EnsureIndex(ctx context.Context, properties map[string]any) error {
	res, err := e.client.Indices.Exists([]string{e.indexName}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	_ = res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return e.putMapping(ctx, properties)
	}

	mapping, err := buildIndexMapping(properties)
	if err != nil {
		return fmt.Errorf("build index mapping: %w", err)
	}
	res, err = e.client.Indices.Create(
		e.indexName,
		e.client.Indices.Create.WithBody(strings.NewReader(mapping)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("create index", res)
	}

	e.logger.Info("elasticsearch index created", "index", e.indexName, "provider_fields", len(properties))
	return nil
}

func (e *Engine) putMapping(ctx context.Context, properties map[string]any) error {
	if len(properties) == 0 {
		return nil
	}
	body, err := encodeBody(map[string]any{"properties": properties})
	if err != nil {
		return fmt.Errorf("put mapping: marshal: %w", err)
	}

	res, err := e.client.Indices.PutMapping(
		[]string{e.indexName},
		body,
		e.client.Indices.PutMapping.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("put mapping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("put mapping", res)
	}

	e.logger.Info("elasticsearch index mapping updated", "index", e.indexName, "provider_fields", len(properties))
	return nil
}
