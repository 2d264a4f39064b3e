package asset

import "errors"

var (
	ErrCacheRead  = errors.New("cache read failed")
	ErrCacheWrite = errors.New("cache write failed")
	ErrPageLimit  = errors.New("inventory page limit reached")
)

// Kind names the failure class for logs.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrCacheRead):
		return "cache_read_failed"
	case errors.Is(err, ErrCacheWrite):
		return "cache_write_failed"
	case errors.Is(err, ErrPageLimit):
		return "page_limit_reached"
	default:
		return "upstream_failed"
	}
}
