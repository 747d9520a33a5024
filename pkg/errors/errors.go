// Package errors defines the sentinel errors shared by the search node and maps
// them to HTTP status codes at the transport boundary.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound    = errors.New("document not found")
	ErrDocumentExists      = errors.New("document already exists")
	ErrAnalyzer            = errors.New("analyzer rejected input")
	ErrReplicationDelivery = errors.New("replication delivery failed")
	ErrCache               = errors.New("cache unavailable")
	ErrInvalidInput        = errors.New("invalid input")
	ErrStoreUnavailable    = errors.New("document store unavailable")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrTimeout             = errors.New("operation timed out")
)

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

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode picks the response status for err. An explicit AppError wins
// over sentinel matching.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDocumentExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrAnalyzer):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text that may be shown to an API client. Internal
// failures collapse to a generic message.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return ErrDocumentNotFound.Error()
	case errors.Is(err, ErrDocumentExists):
		return ErrDocumentExists.Error()
	case errors.Is(err, ErrAnalyzer):
		return "document text could not be analyzed"
	case errors.Is(err, ErrInvalidInput):
		return ErrInvalidInput.Error()
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrTimeout):
		return "service temporarily unavailable"
	default:
		return "internal error"
	}
}
