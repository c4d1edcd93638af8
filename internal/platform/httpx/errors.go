// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors handlers wrap domain failures in. The wrapped message is
// returned to the client as the problem detail.
var (
	ErrNotFound    = errors.New("resource not found")
	ErrValidation  = errors.New("validation failed")
	ErrUnavailable = errors.New("dependency unavailable")
)

var problemTitles = map[int]string{
	http.StatusNotFound:           "Not Found",
	http.StatusBadRequest:         "Validation Failed",
	http.StatusServiceUnavailable: "Service Unavailable",
}

// StatusOf returns the HTTP status for err.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err as an RFC7807 response. Errors that wrap none of the
// sentinels become a 500 without detail.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusOf(err)
	title, ok := problemTitles[status]
	if !ok {
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	Problem(w, status, title, err.Error())
}
