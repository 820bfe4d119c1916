// Package pagination reads limit/offset query parameters and shapes list
// responses.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a validated limit/offset pair.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads ?limit and ?offset. Missing, malformed or out-of-range
// values fall back to the defaults; limit is capped at MaxLimit.
func FromContext(c echo.Context) Params {
	p := Params{Limit: DefaultLimit}
	if n, err := strconv.Atoi(c.QueryParam("limit")); err == nil && n > 0 {
		p.Limit = min(n, MaxLimit)
	}
	if n, err := strconv.Atoi(c.QueryParam("offset")); err == nil && n > 0 {
		p.Offset = n
	}
	return p
}

// Response is one page of a list endpoint.
type Response[T any] struct {
	Data    []T  `json:"data"`
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// NewResponse wraps items; a nil slice is returned as an empty JSON array.
func NewResponse[T any](items []T, total int, p Params) *Response[T] {
	if items == nil {
		items = []T{}
	}
	return &Response[T]{
		Data:    items,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.Offset+len(items) < total,
	}
}
