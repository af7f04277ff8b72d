package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Codes used across the scan pipeline. Storage and per-candidate provider
// failures are recovered locally; only auth and transport failures end a job.
const (
	CodeInvalidInput    = "invalid_input"
	CodeNotFound        = "not_found"
	CodeStorageDegraded = "storage_degraded"
	CodeProviderAuth    = "provider_auth"
	CodeProviderOutput  = "provider_output"
	CodeTransport       = "transport"
	CodeInternal        = "internal"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Code extracts the taxonomy code from err, or CodeInternal when err
// carries none.
func Code(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Code != "" {
		return ae.Code
	}
	return CodeInternal
}

// HTTPStatus maps err to a response status for the handlers.
func HTTPStatus(err error) int {
	var ae *Error
	if errors.As(err, &ae) && ae.Status != 0 {
		return ae.Status
	}
	switch Code(err) {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeProviderAuth:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
