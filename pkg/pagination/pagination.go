// Package pagination pages in-memory listings with limit/offset query
// parameters.
package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Params is the requested window.
type Params struct {
	Limit  int
	Offset int
}

// FromContext reads limit and offset, clamping them into range. Malformed
// values fall back to the defaults.
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

// hasNext avoids Offset+Limit, which overflows for absurd offsets.
func (p Params) hasNext(total int) bool { return p.Offset < total-p.Limit }

// Link is a navigation link of a page.
type Link struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// Page is one window of a listing.
type Page[T any] struct {
	Data    []T    `json:"data"`
	Total   int    `json:"total"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
	HasMore bool   `json:"hasMore"`
	Links   []Link `json:"links,omitempty"`
}

// Slice cuts the window p out of items. Data shares the backing array of
// items and is never nil.
func Slice[T any](items []T, p Params) Page[T] {
	page := Page[T]{
		Data:    []T{},
		Total:   len(items),
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.hasNext(len(items)),
	}
	if p.Offset < len(items) {
		page.Data = items[p.Offset:min(p.Offset+p.Limit, len(items))]
	}
	return page
}

// Of pages items using the request's limit and offset and links the page to
// its neighbours on the same path.
func Of[T any](c echo.Context, items []T) Page[T] {
	p := FromContext(c)
	page := Slice(items, p)
	page.Links = p.Links(c.Request().URL.Path, c.QueryParams(), len(items))
	return page
}

// Links builds self, next and previous links. Other query parameters, such
// as the selected date, are carried over.
func (p Params) Links(basePath string, query url.Values, total int) []Link {
	link := func(rel string, offset int) Link {
		q := url.Values{}
		for k, v := range query {
			if k != "limit" && k != "offset" {
				q[k] = v
			}
		}
		q.Set("limit", strconv.Itoa(p.Limit))
		q.Set("offset", strconv.Itoa(offset))
		return Link{Relation: rel, URL: basePath + "?" + q.Encode()}
	}

	links := []Link{link("self", p.Offset)}
	if p.hasNext(total) {
		links = append(links, link("next", p.Offset+p.Limit))
	}
	if p.Offset > 0 {
		links = append(links, link("previous", max(0, p.Offset-p.Limit)))
	}
	return links
}
