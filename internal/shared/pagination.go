package shared

import "math"

const (
	defaultPerPage = 20
	maxPerPage     = 200
)

// Page is a requested window of a listing.
type Page struct {
	Page    int
	PerPage int
}

// Normalize clamps the window to sane bounds.
func (p Page) Normalize() Page {
	if p.PerPage <= 0 {
		p.PerPage = defaultPerPage
	}
	if p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	if p.Page <= 0 {
		p.Page = 1
	}
	return p
}

// Limit returns the SQL LIMIT.
func (p Page) Limit() int {
	return p.Normalize().PerPage
}

// Offset returns the SQL OFFSET.
func (p Page) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PerPage
}

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page Page, total int) Pagination {
	page = page.Normalize()
	totalPages := int(math.Ceil(float64(total) / float64(page.PerPage)))
	return Pagination{Page: page.Page, PerPage: page.PerPage, Total: total, TotalPages: totalPages}
}
