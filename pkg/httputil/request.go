package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/authsvc/pkg/auth"
)

// errBodyTooLarge is reported when MaxBytesMiddleware cut the body short
var errBodyTooLarge = errors.New("request body too large")

// ParseJSON decodes the request body into dest. An empty or malformed body is
// a Validation error; a body over the MaxBytesMiddleware limit is reported as
// errBodyTooLarge.
func ParseJSON(r *http.Request, dest interface{}) error {
	err := json.NewDecoder(r.Body).Decode(dest)
	if err == nil {
		return nil
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return errBodyTooLarge
	case errors.Is(err, io.EOF):
		return auth.Validationf("request body is required")
	default:
		return auth.Wrap(auth.KindValidation, "invalid JSON body", err)
	}
}

// ParseJSONOrError decodes JSON and writes 400, or 413 for an oversized body
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	err := ParseJSON(r, dest)
	if err == nil {
		return true
	}
	if errors.Is(err, errBodyTooLarge) {
		WriteErrorMessage(w, http.StatusRequestEntityTooLarge, err.Error())
		return false
	}
	WriteAuthError(w, err)
	return false
}

// ParseFormOrError parses a urlencoded body and writes 400 on failure
func ParseFormOrError(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		WriteAuthError(w, auth.Wrap(auth.KindValidation, "invalid form body", err))
		return false
	}
	return true
}

// ParsePathString returns a route variable such as {provider} or {user_id}
func ParsePathString(r *http.Request, key string) (string, error) {
	if val := mux.Vars(r)[key]; val != "" {
		return val, nil
	}
	return "", auth.Validationf("missing path parameter: %s", key)
}

// ParsePathStringOrError is ParsePathString writing 400 when the variable is empty
func ParsePathStringOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	val, err := ParsePathString(r, key)
	if err != nil {
		WriteAuthError(w, err)
		return "", false
	}
	return val, true
}

// ParseQueryString returns a query parameter or defaultVal
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	if val := r.URL.Query().Get(key); val != "" {
		return val
	}
	return defaultVal
}

// RequireNonEmpty writes 400 naming fieldName when value is empty
func RequireNonEmpty(w http.ResponseWriter, value, fieldName string) bool {
	if value != "" {
		return true
	}
	WriteAuthError(w, auth.Validationf("%s is required", fieldName))
	return false
}
