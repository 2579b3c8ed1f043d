package pagination

import (
	"net/url"
	"strconv"
)

// CursorRequest requests a slice of records following StartAfter, the ID of
// the last record from the previous slice. An empty StartAfter begins at the newest record.
type CursorRequest struct {
	Limit      int    `json:"limit"`
	StartAfter string `json:"start_after,omitempty"`
}

// Normalize clamps Limit into the configured page size range.
func (r *CursorRequest) Normalize(cfg Config) {
	if r.Limit < 1 {
		r.Limit = cfg.DefaultPageSize
	}
	if r.Limit > cfg.MaxPageSize {
		r.Limit = cfg.MaxPageSize
	}
}

// CursorRequestFromQuery parses cursor parameters from URL query values.
// Supported parameters: limit, start_after.
func CursorRequestFromQuery(values url.Values, cfg Config) CursorRequest {
	limit, _ := strconv.Atoi(values.Get("limit"))

	req := CursorRequest{
		Limit:      limit,
		StartAfter: values.Get("start_after"),
	}

	req.Normalize(cfg)
	return req
}

// CursorResult holds a slice of data and the cursor for the next slice.
// NextCursor is empty when HasMore is false.
type CursorResult[T any] struct {
	Data       []T    `json:"data"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// NewCursorResult builds a CursorResult from rows fetched with limit+1.
// The extra row, when present, signals another slice and is trimmed.
func NewCursorResult[T any](rows []T, limit int, id func(T) string) CursorResult[T] {
	if rows == nil {
		rows = []T{}
	}

	if len(rows) <= limit {
		return CursorResult[T]{Data: rows}
	}

	data := rows[:limit]
	return CursorResult[T]{
		Data:       data,
		NextCursor: id(data[len(data)-1]),
		HasMore:    true,
	}
}
