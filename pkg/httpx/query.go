package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// ErrBadParam is wrapped by all query parameter errors.
var ErrBadParam = errors.New("bad query parameter")

// QueryInt reads an integer query parameter in [lo, hi]. A missing or empty
// value yields def.
func QueryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", ErrBadParam, name, raw)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%w: %s must be between %d and %d, got %d", ErrBadParam, name, lo, hi, v)
	}
	return v, nil
}
