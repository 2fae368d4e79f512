package http

import (
	"log/slog"
	"maps"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/searchandising/internal/service"
	"github.com/utafrali/searchandising/pkg/httputil"
)

// RuleHandler exposes compiled rules for inspection by merchandisers.
type RuleHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewRuleHandler creates a new rule HTTP handler.
func NewRuleHandler(svc *service.SearchService, logger *slog.Logger) *RuleHandler {
	return &RuleHandler{
		service: svc,
		logger:  logger,
	}
}

// CategoryRuleResponse is the compiled membership query of a category.
type CategoryRuleResponse struct {
	CategoryID   int64   `json:"category_id"`
	StoreID      int64   `json:"store_id"`
	Query        string  `json:"query"`
	MatchesNone  bool    `json:"matches_none"`
	AttributeIDs []int64 `json:"attribute_ids"`
	CategoryIDs  []int64 `json:"category_ids"`
}

// OptionRule is the compiled query of one attribute option.
type OptionRule struct {
	OptionID int64  `json:"option_id"`
	Query    string `json:"query"`
}

// AttributeRulesResponse lists the compiled option queries of an attribute.
type AttributeRulesResponse struct {
	Code         string       `json:"code"`
	AttributeID  int64        `json:"attribute_id"`
	StoreID      int64        `json:"store_id"`
	Options      []OptionRule `json:"options"`
	AttributeIDs []int64      `json:"attribute_ids"`
	CategoryIDs  []int64      `json:"category_ids"`
}

// Category handles GET /api/v1/rules/categories/{id}?store_id=
func (h *RuleHandler) Category(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, "id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	storeID, ok := httputil.ParseStoreID(w, r.URL.Query().Get("store_id"))
	if !ok {
		return
	}

	compiled, err := h.service.CategoryRule(r.Context(), id, storeID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: CategoryRuleResponse{
		CategoryID:   id,
		StoreID:      storeID,
		Query:        compiled.String(),
		MatchesNone:  compiled.Filter.IsMatchNone(),
		AttributeIDs: nonNil(compiled.AttributeIDs),
		CategoryIDs:  nonNil(compiled.CategoryIDs),
	}})
}

// Attribute handles GET /api/v1/rules/attributes/{code}?store_id=
func (h *RuleHandler) Attribute(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	storeID, ok := httputil.ParseStoreID(w, r.URL.Query().Get("store_id"))
	if !ok {
		return
	}

	queries, err := h.service.AttributeRules(r.Context(), code, storeID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	options := make([]OptionRule, 0, len(queries.Queries))
	for _, optionID := range slices.Sorted(maps.Keys(queries.Queries)) {
		options = append(options, OptionRule{OptionID: optionID, Query: queries.Queries[optionID].String()})
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: AttributeRulesResponse{
		Code:         code,
		AttributeID:  queries.AttributeID,
		StoreID:      storeID,
		Options:      options,
		AttributeIDs: nonNil(queries.AttributeIDs),
		CategoryIDs:  nonNil(queries.CategoryIDs),
	}})
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
