package shared

import (
	"net/url"
	"strconv"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// Page holds limit/offset listing parameters.
type Page struct {
	Limit  int
	Offset int
}

// PageFromQuery reads limit and offset query parameters, clamping to sane bounds.
func PageFromQuery(q url.Values) Page {
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return NewPage(limit, offset)
}

// NewPage normalises limit and offset.
func NewPage(limit, offset int) Page {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return Page{Limit: limit, Offset: offset}
}
