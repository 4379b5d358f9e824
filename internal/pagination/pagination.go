package pagination

import (
	"strconv"
	"strings"
)

const (
	// DefaultPage is used when the client omits page or sends garbage.
	DefaultPage = 1
	// DefaultLimit is the page size used when the client omits limit.
	DefaultLimit = 10
	// MaxLimit caps limit to keep queries bounded.
	MaxLimit = 100
)

// Params is a 1-based page request.
type Params struct {
	Page  int
	Limit int
}

// Options control how Parse fills in missing values.
type Options struct {
	DefaultLimit int
	MaxLimit     int
}

// Parse reads raw page and limit query values. Missing, non-numeric or
// non-positive values fall back to the defaults; limit is clamped to the max.
func Parse(rawPage, rawLimit string, opts Options) Params {
	maxLimit := opts.MaxLimit
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	defaultLimit := opts.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}

	params := Params{
		Page:  positiveOr(rawPage, DefaultPage),
		Limit: positiveOr(rawLimit, defaultLimit),
	}
	if params.Limit > maxLimit {
		params.Limit = maxLimit
	}
	return params
}

func positiveOr(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// Offset is the number of rows to skip for this page.
func (p Params) Offset() int {
	p = Must(p)
	return (p.Page - 1) * p.Limit
}

// Must ensures Page and Limit are usable before they reach a query.
func Must(p Params) Params {
	if p.Page <= 0 {
		p.Page = DefaultPage
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	return p
}

// Metadata describes where a page sits in the full result set.
type Metadata struct {
	Total           int64 `json:"total"`
	CurrentPage     int   `json:"currentPage"`
	TotalPages      int   `json:"totalPages"`
	PageSize        int   `json:"pageSize"`
	HasNextPage     bool  `json:"hasNextPage"`
	HasPreviousPage bool  `json:"hasPreviousPage"`
}

// NewMetadata computes page metadata for total matching rows.
func NewMetadata(total int64, p Params) Metadata {
	p = Must(p)
	totalPages := int((total + int64(p.Limit) - 1) / int64(p.Limit))
	return Metadata{
		Total:           total,
		CurrentPage:     p.Page,
		TotalPages:      totalPages,
		PageSize:        p.Limit,
		HasNextPage:     p.Page < totalPages,
		HasPreviousPage: p.Page > 1,
	}
}
