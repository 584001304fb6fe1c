package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/upb/compta-pme/backend/middleware"
	"github.com/upb/compta-pme/backend/services"
	"github.com/upb/compta-pme/backend/utils"
	"go.uber.org/zap"
)

// AuthProvider is the delegated identity provider behind the auth endpoints
type AuthProvider interface {
	SignUp(ctx context.Context, email, password string) (json.RawMessage, error)
	PasswordLogin(ctx context.Context, email, password string) (json.RawMessage, error)
	Refresh(ctx context.Context, refreshToken string) (json.RawMessage, error)
	Logout(ctx context.Context, authorization string) error
	VerificationStatus(ctx context.Context, authorization string) (*services.EmailVerification, error)
	ResendVerification(ctx context.Context, email string) error
	GoogleAuthURL(redirectTo string) (string, error)
}

// CredentialsRequest is the body of register and login
type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest is the body of the refresh endpoint
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ResendVerificationRequest is the body of resend-verification
type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// GoogleAuthResponse carries the provider authorize URL
type GoogleAuthResponse struct {
	URL     string `json:"url"`
	Message string `json:"message"`
}

// AuthHandler proxies account operations to the identity provider.
// Provider responses are relayed as-is, without the data envelope.
type AuthHandler struct {
	provider AuthProvider
	logger   *zap.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(provider AuthProvider, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		provider: provider,
		logger:   logger,
	}
}

// HandleRegister handles POST /api/v1/auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	body, err := h.provider.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("account registered",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())))

	_ = utils.WriteJSON(w, http.StatusCreated, body)
}

// HandleLogin handles POST /api/v1/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	body, err := h.provider.PasswordLogin(r.Context(), req.Email, req.Password)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, body)
}

// HandleRefresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	body, err := h.provider.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, body)
}

// HandleLogout handles POST /api/v1/auth/logout.
// The local session ends whatever the provider answers.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.provider.Logout(ctx, r.Header.Get("Authorization")); err != nil {
		if services.IsInternalError(err) {
			HandleServiceError(w, err, h.logger)
			return
		}
		h.logger.Warn("provider logout failed",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.Error(err))
	}

	_ = utils.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Logged out"})
}

// HandleVerifyEmailStatus handles GET /api/v1/auth/verify-email-status
func (h *AuthHandler) HandleVerifyEmailStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.provider.VerificationStatus(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, status)
}

// HandleResendVerification handles POST /api/v1/auth/resend-verification
func (h *AuthHandler) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req ResendVerificationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	if err := h.provider.ResendVerification(r.Context(), req.Email); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Verification email sent"})
}

// HandleGoogle handles GET /api/v1/auth/google
func (h *AuthHandler) HandleGoogle(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.provider.GoogleAuthURL(r.URL.Query().Get("redirect_to"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, GoogleAuthResponse{
		URL:     authURL,
		Message: "Redirect the user to this URL to sign in with Google",
	})
}
