// Package handlers contains HTTP handlers for the API.
package handlers

import (
	"net/http"

	"norelock.dev/soundscope/internal/auth"
	"norelock.dev/soundscope/internal/utils"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// SubjectFromRequest identifies the caller: the token subject when
// authenticated, the client address otherwise.
func SubjectFromRequest(r *http.Request) string {
	if subject := auth.SubjectFromContext(r.Context()); subject != "" {
		return subject
	}
	return "ip:" + utils.GetRequestIP(r)
}

// Paging reads the skip and limit query parameters.
func Paging(r *http.Request) (skip, limit int) {
	q := r.URL.Query()
	skip = max(utils.ParseInt(q.Get("skip"), 0), 0)
	limit = utils.ParseInt(q.Get("limit"), defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	return skip, limit
}
