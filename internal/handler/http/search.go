package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/utafrali/searchandising/internal/domain"
	"github.com/utafrali/searchandising/internal/service"
	"github.com/utafrali/searchandising/pkg/httputil"
	"github.com/utafrali/searchandising/pkg/pagination"
)

// searchBounds are the page sizes of the storefront search.
var searchBounds = pagination.Bounds{DefaultPerPage: service.DefaultPerPage, MaxPerPage: service.MaxPerPage}

// SearchHandler handles HTTP requests for storefront search.
type SearchHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger,
	}
}

// SearchResponse is a search result with its page count.
type SearchResponse struct {
	*domain.SearchResult
	TotalPages int `json:"total_pages"`
}

// Search handles GET /api/v1/search
//
// Query parameters: q, store_id (required), category_id, term_id, sort, page,
// per_page, facets (comma separated attribute codes) and one attr[<code>]
// parameter per virtual attribute selection, holding comma separated option
// ids.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	storeID, ok := httputil.ParseID(w, "store_id", q.Get("store_id"))
	if !ok {
		return
	}
	page := pagination.FromRequest(r, searchBounds)

	query := &domain.SearchQuery{
		Query:   strings.TrimSpace(q.Get("q")),
		StoreID: storeID,
		SortBy:  q.Get("sort"),
		Page:    page.Page,
		PerPage: page.PerPage,
	}

	if v := q.Get("category_id"); v != "" {
		id, ok := httputil.ParseID(w, "category_id", v)
		if !ok {
			return
		}
		query.CategoryID = &id
	}
	if v := q.Get("term_id"); v != "" {
		id, ok := httputil.ParseID(w, "term_id", v)
		if !ok {
			return
		}
		query.TermID = &id
	}
	if v := q.Get("facets"); v != "" {
		query.Facets = splitList(v)
	}

	selections, err := parseSelections(q)
	if err != nil {
		httputil.WriteInvalidParameter(w, err.Error())
		return
	}
	query.VirtualAttributes = selections

	result, err := h.service.Search(r.Context(), query)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: SearchResponse{
		SearchResult: result,
		TotalPages:   page.TotalPages(result.Total),
	}})
}

type selectionError struct{ param, value string }

func (e selectionError) Error() string {
	return e.param + " must list positive option ids: " + e.value
}

// parseSelections reads attr[<code>]=1,2 parameters. Repeated parameters for
// one code are merged.
func parseSelections(q map[string][]string) (map[string][]int64, error) {
	var out map[string][]int64
	for key, values := range q {
		if !strings.HasPrefix(key, "attr[") || !strings.HasSuffix(key, "]") {
			continue
		}
		code := key[len("attr[") : len(key)-1]
		if code == "" {
			return nil, selectionError{param: key, value: ""}
		}
		for _, v := range values {
			for _, part := range splitList(v) {
				id, err := strconv.ParseInt(part, 10, 64)
				if err != nil || id <= 0 {
					return nil, selectionError{param: key, value: v}
				}
				if out == nil {
					out = make(map[string][]int64)
				}
				out[code] = append(out[code], id)
			}
		}
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
