package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/searchandising/pkg/logger"
)

// RequestLogger stores a request-scoped logger in the context, enriched with
// correlation_id, trace_id and span_id, plus the store_id query parameter of
// storefront requests. Handlers retrieve it with logger.FromContext.
//
// Mount it after RequestLogging and Tracing so both ids are present.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			enriched := logger.WithContext(ctx, base)
			if store := r.URL.Query().Get("store_id"); store != "" {
				enriched = enriched.With(slog.String("store_id", store))
			}

			next.ServeHTTP(w, r.WithContext(logger.NewContext(ctx, enriched)))
		})
	}
}
