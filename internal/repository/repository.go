// Package repository holds the forum's data access.  Every statement goes
// through database.Executor with its values in args; no SQL text here is
// ever assembled from caller input.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/iliyamo/secure-forum/internal/database"
)

// ErrNotFound is returned when a lookup by key matches no row.
var ErrNotFound = errors.New("repository: not found")

// Executor is the subset of *database.Executor the repositories need.
type Executor interface {
	Execute(ctx context.Context, stmt string, args ...any) (database.Result, error)
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case uint64:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	}
	return fmt.Sprint(v)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts.UTC()
			}
		}
	case int64:
		return time.Unix(t, 0).UTC()
	}
	return time.Time{}
}
