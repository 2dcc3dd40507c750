// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platinummonkey/authsvc/pkg/auth"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message})
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a successful creation response (201 Created) with JSON data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteAccepted writes an accepted response (202 Accepted) with JSON data
func WriteAccepted(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusAccepted, data)
}

// DetailResponse is the acknowledgement body of operations without a result
type DetailResponse struct {
	Detail string `json:"detail"`
}

// WriteDetail writes a 200 acknowledgement
func WriteDetail(w http.ResponseWriter, detail string) error {
	return WriteJSON(w, http.StatusOK, DetailResponse{Detail: detail})
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteNotFoundError writes a not found error response (404 Not Found)
func WriteNotFoundError(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteInternalError writes a 500 without leaking the cause
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}

// StatusForKind maps an error kind to its HTTP status
func StatusForKind(kind auth.Kind) int {
	switch kind {
	case auth.KindValidation:
		return http.StatusBadRequest
	case auth.KindConflict:
		return http.StatusConflict
	case auth.KindInvalidCredentials,
		auth.KindTokenExpired,
		auth.KindTokenMalformed,
		auth.KindTokenInvalid,
		auth.KindForbidden:
		return http.StatusForbidden
	case auth.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteAuthError writes err with the status of its kind
func WriteAuthError(w http.ResponseWriter, err error) {
	WriteAuthErrorStatus(w, StatusForKind(auth.KindOf(err)), err)
}

// WriteAuthErrorStatus writes err with an explicit status. Internal causes are never exposed.
func WriteAuthErrorStatus(w http.ResponseWriter, status int, err error) {
	kind := auth.KindOf(err)
	if kind == auth.KindInternal {
		WriteJSON(w, status, ErrorResponse{Error: "internal server error", Kind: string(kind)})
		return
	}

	message := string(kind)
	var e *auth.Error
	if errors.As(err, &e) && e.Message != "" {
		message = e.Message
	}
	WriteJSON(w, status, ErrorResponse{Error: message, Kind: string(kind)})
}
