package event

import (
	"context"
	"fmt"

	pkgkafka "github.com/utafrali/searchandising/pkg/kafka"
)

// Publisher writes events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// ResyncPublisher defers targeted provider runs to the consumers of
// TopicPositionsSaved instead of running them in the request.
type ResyncPublisher struct {
	publisher Publisher
}

// NewResyncPublisher creates a resyncer publishing through p.
func NewResyncPublisher(p Publisher) *ResyncPublisher {
	return &ResyncPublisher{publisher: p}
}

// Resync publishes a positions saved event for entityIDs.
func (r *ResyncPublisher) Resync(ctx context.Context, providerName string, storeID int64, entityIDs []int64) error {
	if len(entityIDs) == 0 {
		return nil
	}
	event, err := pkgkafka.NewEvent(TypePositionsSaved, fmt.Sprintf("%s:%d", providerName, storeID), PositionsSavedData{
		Provider:  providerName,
		StoreID:   storeID,
		EntityIDs: entityIDs,
	})
	if err != nil {
		return err
	}
	return r.publisher.Publish(ctx, TopicPositionsSaved, event)
}
