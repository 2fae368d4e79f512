package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/utafrali/searchandising/internal/domain"
)

// esBulkResponse is the structure used to decode Elasticsearch bulk responses.
type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Update struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"update"`
	} `json:"items"`
}

// BulkUpdate merges each operation's fields into its existing document
// using the bulk NDJSON API. Documents are never replaced.
func (e *Engine) BulkUpdate(ctx context.Context, ops []domain.UpdateOperation) error {
	if len(ops) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, op := range ops {
		action := map[string]any{
			"update": map[string]any{
				"_index": e.indexName,
				"_id":    op.DocumentID,
			},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("elasticsearch bulk update: encode action: %w", err)
		}
		if err := enc.Encode(map[string]any{"doc": op.Fields}); err != nil {
			return fmt.Errorf("elasticsearch bulk update: encode document: %w", err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.indexName),
		e.client.Bulk.WithRefresh(e.refresh),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk update: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("bulk update", res)
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("elasticsearch bulk update: decode response: %w", err)
	}

	if bulkResp.Errors {
		failure := &domain.BulkFailure{Total: len(ops)}
		for _, item := range bulkResp.Items {
			if item.Update.Error == nil {
				continue
			}
			failure.Failures = append(failure.Failures, domain.ItemFailure{
				DocumentID: item.Update.ID,
				Status:     item.Update.Status,
				Type:       item.Update.Error.Type,
				Reason:     item.Update.Error.Reason,
			})
		}
		return failure
	}

	e.logger.DebugContext(ctx, "bulk updated documents", "count", len(ops))
	return nil
}
