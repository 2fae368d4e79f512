// Package event connects the service to the message bus: it consumes
// position and catalog change events and publishes resync requests.
package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/searchandising/internal/filter"
	apperrors "github.com/utafrali/searchandising/pkg/errors"
	pkgkafka "github.com/utafrali/searchandising/pkg/kafka"
)

// TopicPositionsSaved carries targeted resync requests.
var TopicPositionsSaved = pkgkafka.Topic("positions", "saved")

// Catalog topics, owned by the catalog.
const (
	TopicAttributeSaved = "ecommerce.catalog.attribute.saved"
	TopicCategorySaved  = "ecommerce.catalog.category.saved"
)

// Event types carried in the envelope.
const (
	TypePositionsSaved = "positions.saved"
	TypeAttributeSaved = "catalog.attribute.saved"
	TypeCategorySaved  = "catalog.category.saved"
)

// Topics returns every topic the consumer subscribes to.
func Topics() []string {
	return []string{TopicPositionsSaved, TopicAttributeSaved, TopicCategorySaved}
}

// PositionsSavedData asks for a targeted provider run.
type PositionsSavedData struct {
	Provider  string  `json:"provider"`
	StoreID   int64   `json:"store_id"`
	EntityIDs []int64 `json:"entity_ids"`
}

// CatalogSavedData identifies a changed attribute or category.
type CatalogSavedData struct {
	ID int64 `json:"id"`
}

// Syncer runs targeted provider updates.
type Syncer interface {
	Resync(ctx context.Context, providerName string, storeID int64, entityIDs []int64) error
}

// Invalidator drops cached rule queries by tag.
type Invalidator interface {
	Invalidate(ctx context.Context, tags ...string) error
}

// Consumer dispatches bus events to the sync service and the query cache.
type Consumer struct {
	sync   Syncer
	cache  Invalidator
	logger *slog.Logger
}

// NewConsumer creates a new event consumer.
func NewConsumer(sync Syncer, cache Invalidator, logger *slog.Logger) *Consumer {
	return &Consumer{sync: sync, cache: cache, logger: logger}
}

// Handle processes a Kafka event based on its type.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case TypePositionsSaved:
		return c.handlePositionsSaved(ctx, event)
	case TypeAttributeSaved:
		return c.invalidate(ctx, event, filter.AttributeTag)
	case TypeCategorySaved:
		return c.invalidate(ctx, event, filter.CategoryTag)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

func (c *Consumer) handlePositionsSaved(ctx context.Context, event *pkgkafka.Event) error {
	var data PositionsSavedData
	if err := event.UnmarshalData(&data); err != nil {
		return apperrors.InvalidInput(err.Error())
	}
	if data.Provider == "" {
		return apperrors.InvalidInput(fmt.Sprintf("event %s names no provider", event.EventID))
	}

	if err := c.sync.Resync(ctx, data.Provider, data.StoreID, data.EntityIDs); err != nil {
		return fmt.Errorf("resync from event %s: %w", event.EventID, err)
	}

	c.logger.InfoContext(ctx, "resynced from positions event",
		slog.String("provider", data.Provider),
		slog.Int64("store_id", data.StoreID),
		slog.Int("entities", len(data.EntityIDs)),
	)
	return nil
}

func (c *Consumer) invalidate(ctx context.Context, event *pkgkafka.Event, tag func(int64) string) error {
	var data CatalogSavedData
	if err := event.UnmarshalData(&data); err != nil {
		return apperrors.InvalidInput(err.Error())
	}
	if data.ID <= 0 {
		return apperrors.InvalidInput(fmt.Sprintf("event %s carries no id", event.EventID))
	}

	if err := c.cache.Invalidate(ctx, tag(data.ID)); err != nil {
		return fmt.Errorf("invalidate %s: %w", tag(data.ID), err)
	}

	c.logger.InfoContext(ctx, "rule queries invalidated",
		slog.String("event_type", event.EventType),
		slog.String("tag", tag(data.ID)),
	)
	return nil
}

// Permanent reports handler errors that no retry can fix.
func Permanent(err error) bool {
	return errors.Is(err, apperrors.ErrInvalidInput) ||
		errors.Is(err, apperrors.ErrNotFound) ||
		errors.Is(err, apperrors.ErrConfiguration) ||
		errors.Is(err, apperrors.ErrCompilation)
}
