package errors

import (
	"errors"
	"net/http"
)

// Access error kinds returned by the Basic Auth middleware.
var (
	ErrUnauthorized = errors.New("user is not authorized")
	ErrForbidden    = errors.New("operation is forbidden for user")
)

// Pipeline error kinds. Callers wrap them with fmt.Errorf("%w: ...") and
// classify with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrPersistence         = errors.New("persistence failure")
)

// HTTPStatus maps an error to the status code the API answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidSignature):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPaymentNotCompleted):
		return http.StatusConflict
	case errors.Is(err, ErrGatewayUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RetryAfterSeconds is advertised to clients on retryable failures.
const RetryAfterSeconds = 5

// Retryable reports whether the caller may safely repeat the operation.
func Retryable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable) || errors.Is(err, ErrPersistence)
}
