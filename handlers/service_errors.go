package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/compta-pme/backend/services"
	"github.com/upb/compta-pme/backend/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	var upstream *services.UpstreamError
	if errors.As(err, &upstream) {
		if err := utils.WriteJSON(w, upstream.Status, upstream.Body); err != nil {
			logger.Error("failed to write upstream response", zap.Error(err))
		}
		return
	}

	code := services.GetErrorCode(err)
	message := services.GetErrorMessage(err)
	details := services.GetErrorDetails(err)

	var status int
	switch {
	case services.IsNotFoundError(err):
		status = http.StatusNotFound
	case services.IsValidationError(err):
		status = http.StatusBadRequest
	case services.IsUnauthorizedError(err):
		status = http.StatusUnauthorized
	case services.IsForbiddenError(err):
		status = http.StatusForbidden
	case services.IsConflictError(err):
		status = http.StatusConflict
	case services.IsExternalError(err):
		logger.Warn("identity provider error", zap.Error(err))
		status = http.StatusBadGateway
		details = nil
	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		status = http.StatusInternalServerError
		if code == "" {
			code = services.ErrInternal.Code
		}
		message = "An internal error occurred"
		details = nil
	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		status = http.StatusInternalServerError
		code = services.ErrInternal.Code
		message = "An unexpected error occurred"
		details = nil
	}

	if len(details) == 0 {
		details = nil
	}
	if err := utils.WriteError(w, status, code, message, details); err != nil {
		logger.Error("failed to write error response", zap.Error(err))
	}
}

// HandleValidationError handles errors from request decoding and validation
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

// decodeAndValidate reads the JSON body into dst and runs its validate tags
func decodeAndValidate(r *http.Request, dst interface{}) error {
	if err := utils.DecodeJSON(r, dst); err != nil {
		return err
	}
	return utils.ValidateStruct(dst)
}
