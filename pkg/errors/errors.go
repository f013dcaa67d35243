// Package errors defines the error taxonomy shared by every service: sentinel
// errors for each failure class and an AppError carrying a user-facing
// message and HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrConfiguration        = errors.New("configuration error")
	ErrUnsupportedFormat    = errors.New("unsupported document format")
	ErrExternalService      = errors.New("external service error")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrDimensionMismatch    = errors.New("embedding dimension mismatch")
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotFound             = errors.New("not found")
	ErrRateLimited          = errors.New("rate limit exceeded")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInternal             = errors.New("internal error")
	ErrTimeout              = errors.New("operation timed out")
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

// External wraps err as a failure of the named external service. Embedding
// failures should use Embedding instead so callers can tell them apart.
func External(service string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrExternalService, service, err)
}

// Embedding wraps err as an EmbeddingUnavailable failure. It still matches
// ErrExternalService.
func Embedding(err error) error {
	return fmt.Errorf("%w: %w: %w", ErrEmbeddingUnavailable, ErrExternalService, err)
}

// Unsupported reports that no extractor handles mimeType.
func Unsupported(mimeType string) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
}

// Configuration reports missing or invalid settings.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnsupportedFormat):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrEmbeddingUnavailable), errors.Is(err, ErrExternalService):
		return http.StatusBadGateway
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show to end users. Only
// AppError messages are exposed; everything else collapses to a generic
// description of the failure class.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid request"
	case errors.Is(err, ErrEmbeddingUnavailable):
		return "the embedding service is unavailable, please try again later"
	case errors.Is(err, ErrExternalService):
		return "an upstream service is unavailable, please try again later"
	case errors.Is(err, ErrTimeout):
		return "the request timed out"
	case errors.Is(err, ErrDimensionMismatch):
		return "the knowledge base must be refreshed before it can be queried"
	default:
		return "internal error"
	}
}
