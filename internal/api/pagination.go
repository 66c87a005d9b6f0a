package api

import (
	"net/http"
	"strconv"
)

// Incident listings back an operator dashboard, not a bulk export: pages
// stay small and per_page is capped well below the incident table size.
const (
	defaultPage    = 1
	defaultPerPage = 25
	maxPerPage     = 100
)

// PaginationParams holds the parsed page window for an incident listing
type PaginationParams struct {
	Page    int
	PerPage int
}

// ParsePagination reads page and per_page from the query string. Missing,
// non-numeric or non-positive values fall back to the defaults; per_page is
// clamped to maxPerPage.
func ParsePagination(r *http.Request) PaginationParams {
	p := PaginationParams{Page: defaultPage, PerPage: defaultPerPage}

	if n := queryInt(r, "page"); n > 0 {
		p.Page = n
	}
	if n := queryInt(r, "per_page"); n > 0 {
		p.PerPage = n
		if p.PerPage > maxPerPage {
			p.PerPage = maxPerPage
		}
	}
	return p
}

// queryInt parses an integer query parameter, 0 when absent or invalid
func queryInt(r *http.Request, key string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// Offset returns the store offset of the current page
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// TotalPages reports how many pages the incident total spans
func (p PaginationParams) TotalPages(total int64) int {
	if p.PerPage <= 0 {
		return 0
	}
	pages := int(total) / p.PerPage
	if int(total)%p.PerPage > 0 {
		pages++
	}
	return pages
}
