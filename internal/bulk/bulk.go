// Package bulk submits batches of partial document updates to the engine.
package bulk

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/engine"
	apperrors "github.com/utafrali/searchandising/pkg/errors"
)

var (
	documentsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_sync_documents_total",
			Help: "Partial document updates submitted per provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	bulkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "index_sync_bulk_duration_seconds",
			Help:    "Duration of bulk update calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
)

// Synchronizer submits one bulk call per batch. It never retries: recovery
// from a partial failure is recomputing and resubmitting the whole batch.
type Synchronizer struct {
	writer engine.BulkWriter
	logger *slog.Logger
}

// NewSynchronizer creates a Synchronizer writing through writer.
func NewSynchronizer(writer engine.BulkWriter, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{writer: writer, logger: logger}
}

// Submit sends ops as a single bulk call on behalf of provider. Any failure,
// partial or total, is returned as an engine communication error; a partial
// failure still unwraps to *domain.BulkFailure.
func (s *Synchronizer) Submit(ctx context.Context, provider string, ops []domain.UpdateOperation) error {
	if len(ops) == 0 {
		return nil
	}

	start := time.Now()
	err := s.writer.BulkUpdate(ctx, ops)
	bulkDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())

	if err == nil {
		documentsSubmitted.WithLabelValues(provider, "ok").Add(float64(len(ops)))
		s.logger.DebugContext(ctx, "bulk batch submitted",
			slog.String("provider", provider),
			slog.Int("documents", len(ops)),
		)
		return nil
	}

	var failure *domain.BulkFailure
	if errors.As(err, &failure) {
		documentsSubmitted.WithLabelValues(provider, "failed").Add(float64(len(failure.Failures)))
		documentsSubmitted.WithLabelValues(provider, "ok").Add(float64(len(ops) - len(failure.Failures)))
		s.logger.ErrorContext(ctx, "bulk batch partially applied",
			slog.String("provider", provider),
			slog.Int("documents", len(ops)),
			slog.Int("failed", len(failure.Failures)),
		)
	} else {
		documentsSubmitted.WithLabelValues(provider, "failed").Add(float64(len(ops)))
	}
	return apperrors.EngineCommunication("bulk", err)
}
