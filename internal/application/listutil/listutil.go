package listutil

import (
	"net/url"
	"strconv"
	"strings"
)

// PageParams carries pagination parameters parsed from a request.
type PageParams struct {
	Page  int // 1-indexed page number
	Limit int // rows per page
}

// SortParams carries sorting parameters parsed from a request.
type SortParams struct {
	Sort string // field name
	Dir  string // "asc" or "desc"
}

// FilterParams carries search, equality and range filters.
type FilterParams struct {
	Search  string              // free-text search query
	Filters map[string][]string // equality or one-of filters (e.g. status=active,inactive)
	From    string              // lower bound of the collection's range field
	To      string              // upper bound of the collection's range field
}

// PageInfo carries pagination metadata returned with a page of records.
type PageInfo struct {
	Page     int  `json:"page"`
	Limit    int  `json:"limit"`
	Total    int  `json:"total"`
	HasNext  bool `json:"hasNext"`
	FirstRow int  `json:"firstRow"` // "Showing 21-25 of 25"; 0 on an empty page
	LastRow  int  `json:"lastRow"`
}

// ListParams combines all list view parameters.
type ListParams struct {
	PageParams
	SortParams
	FilterParams
}

// Page size bounds.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ClampPage returns page, or 1 when page is below 1.
func ClampPage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// ClampLimit bounds limit to [1, MaxLimit]; zero or negative selects DefaultLimit.
// PRE: none
// POST: 1 <= result <= MaxLimit
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// ParsePageParams extracts page and limit from URL query values.
// PRE: none
// POST: returns valid PageParams with defaults applied
func ParsePageParams(q url.Values) PageParams {
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return PageParams{Page: ClampPage(page), Limit: ClampLimit(limit)}
}

// ParseSortParams extracts sort and dir from URL query values.
// PRE: none
// POST: returns SortParams; Sort is empty unless allowed; Dir is always "asc" or "desc"
func ParseSortParams(q url.Values, allowedFields []string) SortParams {
	sort := q.Get("sort")
	dir := q.Get("dir")

	if !isAllowedField(sort, allowedFields) {
		sort = ""
	}
	if dir != "asc" && dir != "desc" {
		dir = "desc"
	}
	return SortParams{Sort: sort, Dir: dir}
}

// ParseFilterParams extracts search, named filters and the range bounds.
// Comma-separated values become a one-of filter.
// PRE: filterKeys lists the allowed filter parameter names
// POST: returns FilterParams with only recognised keys
func ParseFilterParams(q url.Values, filterKeys []string) FilterParams {
	fp := FilterParams{
		Search:  strings.TrimSpace(q.Get("q")),
		Filters: make(map[string][]string),
		From:    q.Get("from"),
		To:      q.Get("to"),
	}
	for _, key := range filterKeys {
		v := q.Get(key)
		if v == "" {
			continue
		}
		var values []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, part)
			}
		}
		if len(values) > 0 {
			fp.Filters[key] = values
		}
	}
	return fp
}

// ParseListParams parses all list parameters from URL query values.
func ParseListParams(q url.Values, allowedSortFields []string, filterKeys []string) ListParams {
	return ListParams{
		PageParams:   ParsePageParams(q),
		SortParams:   ParseSortParams(q, allowedSortFields),
		FilterParams: ParseFilterParams(q, filterKeys),
	}
}

// NewPageInfo computes pagination metadata.
// PRE: total >= 0
// POST: Page >= 1, Limit in [1, MaxLimit], HasNext iff rows exist past this page
func NewPageInfo(page, limit, total int) PageInfo {
	page = ClampPage(page)
	limit = ClampLimit(limit)
	p := PageInfo{
		Page:    page,
		Limit:   limit,
		Total:   total,
		HasNext: page*limit < total,
	}
	p.FirstRow, p.LastRow = p.StartRow(), p.EndRow()
	return p
}

// Offset returns the row offset for a page.
// PRE: page and limit have been clamped
// POST: Returns (page-1) * limit
func Offset(page, limit int) int {
	return (page - 1) * limit
}

// StartRow returns the 1-indexed first row number on the current page.
// POST: Returns 0 if the page holds no rows, otherwise Offset+1
func (p PageInfo) StartRow() int {
	if Offset(p.Page, p.Limit) >= p.Total {
		return 0
	}
	return Offset(p.Page, p.Limit) + 1
}

// EndRow returns the 1-indexed last row number on the current page.
// POST: Returns 0 if the page holds no rows, otherwise min(Offset+Limit, Total)
func (p PageInfo) EndRow() int {
	if Offset(p.Page, p.Limit) >= p.Total {
		return 0
	}
	return min(Offset(p.Page, p.Limit)+p.Limit, p.Total)
}

func isAllowedField(field string, allowed []string) bool {
	for _, a := range allowed {
		if field == a {
			return true
		}
	}
	return false
}
