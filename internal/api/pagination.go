package api

import (
	"math"
	"net/http"
)

// PaginationParams holds parsed pagination values from query params.
type PaginationParams struct {
	Page   int
	Limit  int
	Offset int
}

// PaginatedResponse wraps a list page with pagination metadata.
type PaginatedResponse struct {
	Data       any            `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

// PaginationMeta contains pagination metadata for the response.
type PaginationMeta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

// ParsePagination extracts page and limit with defaults. An explicit offset
// parameter wins over page.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) PaginationParams {
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", defaultLimit)
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	p := PaginationParams{Page: page, Limit: limit, Offset: (page - 1) * limit}
	if off := queryInt(r, "offset", -1); off >= 0 {
		p.Offset = off
		p.Page = off/limit + 1
	}
	return p
}

// NewPaginatedResponse builds a PaginatedResponse from a page and the total.
func NewPaginatedResponse(data any, p PaginationParams, total int) PaginatedResponse {
	totalPages := int(math.Ceil(float64(total) / float64(p.Limit)))
	if totalPages < 1 {
		totalPages = 1
	}
	return PaginatedResponse{
		Data: data,
		Pagination: PaginationMeta{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasMore:    p.Offset+p.Limit < total,
		},
	}
}
