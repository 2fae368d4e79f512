package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/service"
	"github.com/utafrali/searchandising/pkg/httputil"
	"github.com/utafrali/searchandising/pkg/validator"
)

// PositionHandler handles merchandiser position and search term endpoints.
type PositionHandler struct {
	service *service.PositionService
	logger  *slog.Logger
}

// NewPositionHandler creates a new position HTTP handler.
func NewPositionHandler(svc *service.PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// PositionInput is one manual product position.
type PositionInput struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Position  int   `json:"position" validate:"gte=0,lte=2147483647"`
}

// SavePositionsRequest is the JSON body of a positions save. An empty list
// clears the owner's positions.
type SavePositionsRequest struct {
	StoreID   int64           `json:"store_id" validate:"gte=0"`
	Positions []PositionInput `json:"positions" validate:"max=1000,dive"`
}

// RegisterTermRequest is the JSON body of a search term registration.
type RegisterTermRequest struct {
	StoreID int64  `json:"store_id" validate:"gt=0"`
	Text    string `json:"text" validate:"required,min=1,max=255"`
}

// PositionsResponse lists the positions of one owner.
type PositionsResponse struct {
	Owner     domain.Owner              `json:"owner"`
	Positions []domain.PositionOverride `json:"positions"`
}

// --- Handlers ---

// List handles GET /api/v1/positions/{kind}/{ownerID}?store_id=
func (h *PositionHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := parseOwner(w, r)
	if !ok {
		return
	}
	storeID, ok := httputil.ParseStoreID(w, r.URL.Query().Get("store_id"))
	if !ok {
		return
	}
	owner.StoreID = storeID

	h.respond(w, r, owner, http.StatusOK)
}

// Save handles PUT /api/v1/positions/{kind}/{ownerID}
func (h *PositionHandler) Save(w http.ResponseWriter, r *http.Request) {
	owner, ok := parseOwner(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, httputil.MaxBodyBytes)
	var req SavePositionsRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	owner.StoreID = req.StoreID

	positions := make(map[int64]int, len(req.Positions))
	for _, p := range req.Positions {
		if _, dup := positions[p.ProductID]; dup {
			httputil.WriteInvalidParameter(w, fmt.Sprintf("product %d is positioned twice", p.ProductID))
			return
		}
		positions[p.ProductID] = p.Position
	}

	if err := h.service.Save(r.Context(), owner, positions); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.logger.InfoContext(r.Context(), "positions saved",
		slog.String("owner_kind", string(owner.Kind)),
		slog.Int64("owner_id", owner.ID),
		slog.Int64("store_id", owner.StoreID),
		slog.Int("count", len(positions)),
	)
	h.respond(w, r, owner, http.StatusOK)
}

// RegisterTerm handles POST /api/v1/terms
func (h *PositionHandler) RegisterTerm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, httputil.MaxBodyBytes)

	var req RegisterTermRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	term, err := h.service.RegisterTerm(r.Context(), req.StoreID, req.Text)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: term})
}

func (h *PositionHandler) respond(w http.ResponseWriter, r *http.Request, owner domain.Owner, status int) {
	list, err := h.service.List(r.Context(), owner)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if list == nil {
		list = []domain.PositionOverride{}
	}
	httputil.WriteJSON(w, status, httputil.Response{Data: PositionsResponse{Owner: owner, Positions: list}})
}

// parseOwner reads the {kind} and {ownerID} path parameters. Only search
// terms and categories carry positions.
func parseOwner(w http.ResponseWriter, r *http.Request) (domain.Owner, bool) {
	kind := domain.OwnerKind(chi.URLParam(r, "kind"))
	if _, ok := domain.LayoutFor(kind); !ok {
		httputil.WriteInvalidParameter(w, fmt.Sprintf("kind must be %s or %s", domain.OwnerSearchTerm, domain.OwnerCategory))
		return domain.Owner{}, false
	}
	id, ok := httputil.ParseID(w, "ownerID", chi.URLParam(r, "ownerID"))
	if !ok {
		return domain.Owner{}, false
	}
	return domain.Owner{Kind: kind, ID: id}, true
}
