// Package errors defines the sentinel errors shared across the pipeline and
// the mapping from errors to HTTP status codes at the ingress layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnsupportedEncoding = errors.New("unsupported compression algorithm")
	ErrMalformedBody       = errors.New("malformed request body")
	ErrPayloadTooLarge     = errors.New("decoded payload too large")
	ErrInvalidInput        = errors.New("invalid input")
	ErrIndexNotFound       = errors.New("index not found")
	ErrIndexExists         = errors.New("index already exists")
	ErrUnavailable         = errors.New("backend unavailable")
	ErrInternal            = errors.New("internal error")
	ErrTimeout             = errors.New("operation timed out")
)

// AppError pairs a sentinel error with an HTTP status code and a
// human-readable message.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New wraps a sentinel error into an AppError.
func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Newf is New with printf-style message formatting.
func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error to the HTTP status code the ingress layer
// should respond with.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrUnsupportedEncoding):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrMalformedBody), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrIndexExists):
		return http.StatusConflict
	case errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
