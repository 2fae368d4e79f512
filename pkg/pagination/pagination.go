package pagination

import (
	"net/http"
	"strconv"
)

// Params holds pagination parameters extracted from query strings.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Offset  int `json:"-"`
}

// Bounds are the default and maximum page sizes of an endpoint.
type Bounds struct {
	DefaultPerPage int
	MaxPerPage     int
}

// FromRequest reads page and per_page. Missing or malformed values fall back
// to page 1 and the default size; sizes above the maximum are capped.
func FromRequest(r *http.Request, b Bounds) Params {
	p := Params{Page: 1, PerPage: b.DefaultPerPage}

	if v, ok := positive(r, "page"); ok {
		p.Page = v
	}
	if v, ok := positive(r, "per_page"); ok {
		p.PerPage = min(v, b.MaxPerPage)
	}

	p.Offset = (p.Page - 1) * p.PerPage
	return p
}

// Limit reads a single "limit" parameter with the same fallback and cap.
func Limit(r *http.Request, b Bounds) int {
	if v, ok := positive(r, "limit"); ok {
		return min(v, b.MaxPerPage)
	}
	return b.DefaultPerPage
}

// TotalPages returns the number of pages needed for total items.
func (p Params) TotalPages(total int) int {
	if p.PerPage <= 0 {
		return 0
	}
	return (total + p.PerPage - 1) / p.PerPage
}

func positive(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
