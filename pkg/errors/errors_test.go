package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errTestSentinel = errors.New("shelf is locked")

func init() {
	RegisterSentinel(errTestSentinel, func(err error) *AppError {
		return ErrConflict(err.Error())
	})
}

func TestMapDomainError(t *testing.T) {
	existing := ErrUndoRejected("WINDOW_EXPIRED", "too late")

	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{"app error passes through", existing, CodeUndoRejected, http.StatusConflict},
		{"wrapped app error", fmt.Errorf("undo: %w", existing), CodeUndoRejected, http.StatusConflict},
		{"registered sentinel", fmt.Errorf("claim T-1: %w", errTestSentinel), CodeConflict, http.StatusConflict},
		{"not found message", errors.New("scan not found"), CodeNotFound, http.StatusNotFound},
		{"invalid message", errors.New("invalid stage order"), CodeValidationError, http.StatusBadRequest},
		{"deadline", context.DeadlineExceeded, CodeTimeout, http.StatusGatewayTimeout},
		{"anything else", errors.New("disk on fire"), CodeInternalError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapDomainError(tt.err)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantStatus, got.HTTPStatus)
		})
	}

	assert.Nil(t, MapDomainError(nil))
}

func TestSentinelKeepsCause(t *testing.T) {
	err := fmt.Errorf("claim T-1: %w", errTestSentinel)
	got := MapDomainError(err)
	assert.ErrorIs(t, got, errTestSentinel)
}

func TestUndoRejectedCarriesReason(t *testing.T) {
	got := ErrUndoRejected("OPERATOR_MISMATCH", "scanned by another operator")
	assert.Equal(t, "OPERATOR_MISMATCH", got.Details["reason"])
	assert.Contains(t, got.Error(), "scanned by another operator")
}
