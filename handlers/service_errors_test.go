package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/compta-pme/backend/services"
	"github.com/upb/compta-pme/backend/utils"
	"go.uber.org/zap"
)

func TestHandleServiceError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedError  string
		expectedCode   string
	}{
		{
			name:           "not found error",
			err:            services.ErrInvoiceNotFound,
			expectedStatus: http.StatusNotFound,
			expectedError:  "not_found",
			expectedCode:   "INVOICE_NOT_FOUND",
		},
		{
			name:           "validation error",
			err:            services.ErrInvalidInput,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "bad_request",
			expectedCode:   "INVALID_INPUT",
		},
		{
			name:           "inactive tenant",
			err:            services.ErrTenantInactive,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "bad_request",
			expectedCode:   "TENANT_INACTIVE",
		},
		{
			name:           "no active tenant",
			err:            services.ErrNoActiveTenant,
			expectedStatus: http.StatusBadRequest,
			expectedError:  "bad_request",
			expectedCode:   "NO_ACTIVE_TENANT",
		},
		{
			name:           "unauthorized error",
			err:            services.ErrUnauthorized,
			expectedStatus: http.StatusUnauthorized,
			expectedError:  "unauthorized",
			expectedCode:   "UNAUTHORIZED",
		},
		{
			name:           "tenant access denied",
			err:            services.ErrTenantAccessDenied,
			expectedStatus: http.StatusForbidden,
			expectedError:  "forbidden",
			expectedCode:   "TENANT_ACCESS_DENIED",
		},
		{
			name:           "owner protected",
			err:            services.ErrOwnerProtected,
			expectedStatus: http.StatusForbidden,
			expectedError:  "forbidden",
			expectedCode:   "OWNER_PROTECTED",
		},
		{
			name:           "self removal denied",
			err:            services.ErrSelfRemovalDenied,
			expectedStatus: http.StatusForbidden,
			expectedError:  "forbidden",
			expectedCode:   "SELF_REMOVAL_DENIED",
		},
		{
			name:           "conflict error",
			err:            services.ErrDuplicateSiret,
			expectedStatus: http.StatusConflict,
			expectedError:  "conflict",
			expectedCode:   "DUPLICATE_SIRET",
		},
		{
			name:           "external provider error",
			err:            fmt.Errorf("%w: dial tcp: refused", services.ErrAuthProviderUnavailable),
			expectedStatus: http.StatusBadGateway,
			expectedError:  "upstream_error",
			expectedCode:   "AUTH_PROVIDER_UNAVAILABLE",
		},
		{
			name:           "role seed missing",
			err:            services.ErrRoleSeedMissing,
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal_error",
			expectedCode:   "ROLE_SEED_MISSING",
		},
		{
			name:           "wrapped internal error",
			err:            services.WrapInternal("failed to load user", errors.New("connection reset")),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal_error",
			expectedCode:   "INTERNAL",
		},
		{
			name:           "unknown error",
			err:            errors.New("some unknown error"),
			expectedStatus: http.StatusInternalServerError,
			expectedError:  "internal_error",
			expectedCode:   "INTERNAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleServiceError(w, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response utils.ErrorResponse
			err := json.NewDecoder(w.Body).Decode(&response)
			require.NoError(t, err)

			assert.Equal(t, tt.expectedError, response.Error)
			assert.Equal(t, tt.expectedCode, response.Code)
			assert.NotEmpty(t, response.Message)
		})
	}
}

func TestHandleServiceError_InternalDetailsHidden(t *testing.T) {
	w := httptest.NewRecorder()
	HandleServiceError(w, services.WrapInternal("failed to insert invoice", errors.New("pq: relation missing")), zap.NewNop())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "pq:")
	assert.NotContains(t, w.Body.String(), "insert invoice")
}

func TestHandleServiceErrorWithDetails(t *testing.T) {
	logger := zap.NewNop()

	err := services.NewCodedError(services.ErrorTypeValidation, "INVALID_INPUT", "invalid line").
		WithDetail("line", 2).
		WithDetail("field", "qty")

	w := httptest.NewRecorder()
	HandleServiceError(w, err, logger)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response utils.ErrorResponse
	err2 := json.NewDecoder(w.Body).Decode(&response)
	require.NoError(t, err2)

	assert.Equal(t, "bad_request", response.Error)
	assert.Equal(t, "invalid line", response.Message)
	assert.Equal(t, float64(2), response.Details["line"])
	assert.Equal(t, "qty", response.Details["field"])
}

func TestHandleServiceError_UpstreamPassThrough(t *testing.T) {
	err := &services.UpstreamError{
		Status: http.StatusUnprocessableEntity,
		Body:   json.RawMessage(`{"code":422,"msg":"Password should be at least 6 characters"}`),
	}

	w := httptest.NewRecorder()
	HandleServiceError(w, err, zap.NewNop())

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"code":422,"msg":"Password should be at least 6 characters"}`, w.Body.String())
}

func TestHandleServiceErrorNil(t *testing.T) {
	logger := zap.NewNop()
	w := httptest.NewRecorder()

	HandleServiceError(w, nil, logger)

	// Should not write anything
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestHandleValidationError(t *testing.T) {
	logger := zap.NewNop()

	t.Run("custom validation error", func(t *testing.T) {
		fields := map[string]string{
			"siret": "siret must be exactly 14 digits",
			"name":  "name is required",
		}
		err := &utils.ValidationError{
			Message: "Validation failed",
			Fields:  fields,
		}

		w := httptest.NewRecorder()
		HandleValidationError(w, err, logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response utils.ErrorResponse
		err2 := json.NewDecoder(w.Body).Decode(&response)
		require.NoError(t, err2)

		assert.Equal(t, "bad_request", response.Error)
		assert.Equal(t, "INVALID_INPUT", response.Code)
		assert.Equal(t, "Validation failed", response.Message)
		assert.Equal(t, "siret must be exactly 14 digits", response.Details["siret"])
		assert.Equal(t, "name is required", response.Details["name"])
	})

	t.Run("generic error", func(t *testing.T) {
		err := errors.New("request body is empty")

		w := httptest.NewRecorder()
		HandleValidationError(w, err, logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response utils.ErrorResponse
		err2 := json.NewDecoder(w.Body).Decode(&response)
		require.NoError(t, err2)

		assert.Equal(t, "bad_request", response.Error)
		assert.Equal(t, "request body is empty", response.Message)
	})
}
