package utils

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"learnhub/pkg/errors"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// CursorParams represents cursor pagination parameters
type CursorParams struct {
	Cursor int64
	Limit  int
}

// GetCursorParams extracts ?cursor= and ?limit= from the request. A missing
// cursor means "start from the newest item"; a missing limit means the
// default page size.
func GetCursorParams(c echo.Context) (CursorParams, error) {
	var params CursorParams

	if raw := c.QueryParam("cursor"); raw != "" {
		cursor, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || cursor < 0 {
			return params, errors.Validation("cursor must be a non-negative integer")
		}
		params.Cursor = cursor
	}

	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return params, errors.Validation("limit must be a positive integer")
		}
		params.Limit = limit
	}

	params.Limit = ClampLimit(params.Limit)
	return params, nil
}

func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
