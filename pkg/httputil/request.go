package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/validation"
)

// ParseJSON decodes JSON from the request body into dest. Malformed bodies
// are reported as bad_payload.
func ParseJSON(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.ErrBadPayload.WithHint("empty body")
		}
		return apperr.ErrBadPayload.WithHint("invalid JSON").WithCause(err)
	}
	return nil
}

// DecodeAndValidate decodes the JSON body then runs struct validation.
func DecodeAndValidate(r *http.Request, dest interface{}) error {
	if err := ParseJSON(r, dest); err != nil {
		return err
	}
	return validation.Struct(dest)
}

// ParseJSONOrError decodes JSON and writes an error response on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteAppError(w, r, err)
		return false
	}
	return true
}

// ParsePathString extracts a string path parameter
func ParsePathString(r *http.Request, key string) (string, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return "", apperr.ErrBadPayload.WithHint(fmt.Sprintf("missing path parameter: %s", key))
	}
	return str, nil
}

// ParseQueryInt extracts and parses an integer query parameter
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, apperr.ErrBadPayload.WithHint(fmt.Sprintf("invalid integer for query param %s: %s", key, str))
	}
	return val, nil
}

// ParseQueryClamped parses an integer query parameter and clamps it to
// [min, max]. Unparseable values fall back to the default.
func ParseQueryClamped(r *http.Request, key string, defaultVal, min, max int) int {
	val, err := ParseQueryInt(r, key, defaultVal)
	if err != nil {
		val = defaultVal
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// ParseQueryString extracts a trimmed string query parameter
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	val := strings.TrimSpace(r.URL.Query().Get(key))
	if val == "" {
		return defaultVal
	}
	return val
}

// ParseQueryFlag reports whether a query flag is set ("1", "true", "yes").
func ParseQueryFlag(r *http.Request, key string) bool {
	switch strings.ToLower(r.URL.Query().Get(key)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
