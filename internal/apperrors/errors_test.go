package apperrors_test

import (
	"debatechat/backend/internal/apperrors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusFromError(t *testing.T) {
	cases := map[error]int{
		apperrors.ErrNotFound:            http.StatusNotFound,
		apperrors.ErrAuthentication:      http.StatusUnauthorized,
		apperrors.ErrInvalidInput:        http.StatusBadRequest,
		apperrors.ErrStaleReference:      http.StatusForbidden,
		apperrors.ErrConcurrencyConflict: http.StatusConflict,
		apperrors.ErrExternalService:     http.StatusBadGateway,
		apperrors.ErrDataIntegrity:       http.StatusInternalServerError,
	}

	for err, want := range cases {
		assert.Equal(t, want, apperrors.HTTPStatusFromError(err), err.Error())
	}
}

func TestHTTPStatusFromError_Wrapped(t *testing.T) {
	err := fmt.Errorf("load user 42: %w", apperrors.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, apperrors.HTTPStatusFromError(err))
}
