package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/service"
	"github.com/utafrali/searchandising/pkg/httputil"
	"github.com/utafrali/searchandising/pkg/pagination"
	"github.com/utafrali/searchandising/pkg/validator"
)

var runBounds = pagination.Bounds{DefaultPerPage: 20, MaxPerPage: 200}

// SyncHandler starts provider runs and reports their status.
type SyncHandler struct {
	service *service.SyncService
	logger  *slog.Logger
}

// NewSyncHandler creates a new sync HTTP handler.
func NewSyncHandler(svc *service.SyncService, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		service: svc,
		logger:  logger,
	}
}

// StartSyncRequest selects the run scope. Without a store every store is
// resynced; entity ids require a store.
type StartSyncRequest struct {
	StoreID   *int64  `json:"store_id" validate:"omitempty,gt=0"`
	EntityIDs []int64 `json:"entity_ids" validate:"omitempty,max=10000,dive,gt=0"`
}

// ProvidersResponse lists the registered providers.
type ProvidersResponse struct {
	Providers []string `json:"providers"`
}

// Start handles POST /api/v1/sync/{provider}. The run continues in the
// background; the response carries the run as recorded at start.
func (h *SyncHandler) Start(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, httputil.MaxBodyBytes)

	var req StartSyncRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteValidationError(w, err)
		return
	}
	if req.StoreID == nil && len(req.EntityIDs) > 0 {
		httputil.WriteInvalidParameter(w, "entity_ids require store_id")
		return
	}

	run, err := h.service.Start(r.Context(), service.SyncInput{
		Provider:  chi.URLParam(r, "provider"),
		StoreID:   req.StoreID,
		EntityIDs: req.EntityIDs,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.logger.InfoContext(r.Context(), "sync run started",
		slog.String("run_id", run.ID),
		slog.String("provider", run.Provider),
		slog.String("scope", string(run.Scope)),
	)
	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{Data: run})
}

// Runs handles GET /api/v1/sync/runs?provider=&limit=
func (h *SyncHandler) Runs(w http.ResponseWriter, r *http.Request) {
	runs, err := h.service.Runs(r.Context(), r.URL.Query().Get("provider"), pagination.Limit(r, runBounds))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if runs == nil {
		runs = []domain.SyncRun{}
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: runs})
}

// Providers handles GET /api/v1/sync/providers
func (h *SyncHandler) Providers(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: ProvidersResponse{Providers: h.service.Providers()}})
}
