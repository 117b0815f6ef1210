package http

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Page is one slice of a list endpoint.
type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// paginate cuts items down to the window named by ?offset and ?limit and
// advertises the neighbouring windows in a Link header.
func paginate[T any](c *fiber.Ctx, items []T) Page[T] {
	p := Pagination{
		Offset: max(c.QueryInt("offset", 0), 0),
		Limit:  c.QueryInt("limit", defaultPageSize),
		Total:  len(items),
	}
	if p.Limit <= 0 || p.Limit > maxPageSize {
		p.Limit = defaultPageSize
	}

	data := []T{}
	if p.Offset < p.Total {
		data = items[p.Offset:min(p.Offset+p.Limit, p.Total)]
	}
	c.Set(fiber.HeaderLink, linkHeader(c, p))
	return Page[T]{Data: data, Pagination: p}
}

// linkHeader builds RFC 8288 links for the first, previous, next and last
// windows. Query parameters other than offset and limit are carried over.
func linkHeader(c *fiber.Ctx, p Pagination) string {
	query := url.Values{}
	c.Request().URI().QueryArgs().VisitAll(func(k, v []byte) {
		query.Add(string(k), string(v))
	})
	query.Set("limit", strconv.Itoa(p.Limit))

	link := func(offset int, rel string) string {
		query.Set("offset", strconv.Itoa(offset))
		return "<" + c.Path() + "?" + query.Encode() + `>; rel="` + rel + `"`
	}

	links := []string{link(0, "first")}
	if p.Offset > 0 {
		links = append(links, link(max(p.Offset-p.Limit, 0), "prev"))
	}
	if p.Offset+p.Limit < p.Total {
		links = append(links, link(p.Offset+p.Limit, "next"))
	}
	links = append(links, link(max(p.Total-p.Limit, 0), "last"))
	return strings.Join(links, ", ")
}
