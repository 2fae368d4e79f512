package domain

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/utafrali/searchandising/pkg/errors"
)

// DocumentIDSeparator joins entity and store ids in a composite document id.
const DocumentIDSeparator = "|"

// DocumentID returns the composite id addressing one per-store copy of an entity.
func DocumentID(entityID, storeID int64) string {
	return strconv.FormatInt(entityID, 10) + DocumentIDSeparator + strconv.FormatInt(storeID, 10)
}

// ParseDocumentID splits a composite document id. Ids that do not have the
// "{entityId}|{storeId}" shape yield a DataIntegrity error.
func ParseDocumentID(id string) (entityID, storeID int64, err error) {
	entity, store, ok := strings.Cut(id, DocumentIDSeparator)
	if !ok {
		return 0, 0, apperrors.DataIntegrity(fmt.Sprintf("document id %q has no store part", id))
	}
	if entityID, err = strconv.ParseInt(entity, 10, 64); err != nil {
		return 0, 0, apperrors.DataIntegrity(fmt.Sprintf("document id %q has a non numeric entity part", id))
	}
	if storeID, err = strconv.ParseInt(store, 10, 64); err != nil {
		return 0, 0, apperrors.DataIntegrity(fmt.Sprintf("document id %q has a non numeric store part", id))
	}
	return entityID, storeID, nil
}

// Fields is a partial index document.
type Fields map[string]any

// UpdateOperation merges Fields into the existing document DocumentID.
type UpdateOperation struct {
	DocumentID string
	Fields     Fields
}

// ItemFailure describes one rejected bulk item.
type ItemFailure struct {
	DocumentID string `json:"document_id"`
	Status     int    `json:"status"`
	Type       string `json:"type"`
	Reason     string `json:"reason"`
}

// BulkFailure is the aggregate error returned when a bulk call partially applied.
type BulkFailure struct {
	Total    int
	Failures []ItemFailure
}

func (e *BulkFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d bulk items failed", len(e.Failures), e.Total)
	for i, f := range e.Failures {
		if i == 3 {
			fmt.Fprintf(&b, "; and %d more", len(e.Failures)-i)
			break
		}
		fmt.Fprintf(&b, "; %s: %s (%s)", f.DocumentID, f.Type, f.Reason)
	}
	return b.String()
}

// ScrollPage is one page of a scroll cursor over a store's documents.
type ScrollPage struct {
	ScrollID    string
	Total       int
	DocumentIDs []string
}
