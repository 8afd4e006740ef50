package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", fmt.Errorf("%w: attendees must not be empty", ErrValidation), http.StatusBadRequest},
		{"signature", fmt.Errorf("%w: bad header", ErrInvalidSignature), http.StatusBadRequest},
		{"unauthorized", fmt.Errorf("%w: missing credentials", ErrUnauthorized), http.StatusUnauthorized},
		{"forbidden", fmt.Errorf("%w: account is disabled", ErrForbidden), http.StatusForbidden},
		{"not found", fmt.Errorf("%w: event 7", ErrNotFound), http.StatusNotFound},
		{"not completed", fmt.Errorf("%w: status processing", ErrPaymentNotCompleted), http.StatusConflict},
		{"gateway", fmt.Errorf("%w: open circuit", ErrGatewayUnavailable), http.StatusBadGateway},
		{"persistence", fmt.Errorf("%w: tx aborted", ErrPersistence), http.StatusInternalServerError},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(fmt.Errorf("%w: timeout", ErrGatewayUnavailable)))
	assert.True(t, Retryable(fmt.Errorf("%w: deadlock", ErrPersistence)))
	assert.False(t, Retryable(fmt.Errorf("%w: empty", ErrValidation)))
	assert.False(t, Retryable(ErrNotFound))
	assert.False(t, Retryable(ErrUnauthorized))
}
