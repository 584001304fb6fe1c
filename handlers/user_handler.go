package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/upb/compta-pme/backend/middleware"
	"github.com/upb/compta-pme/backend/models"
	"github.com/upb/compta-pme/backend/repositories"
	"github.com/upb/compta-pme/backend/services"
	"github.com/upb/compta-pme/backend/utils"
	"go.uber.org/zap"
)

// EntrepriseRef is the short form of a company embedded in other responses
type EntrepriseRef struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Siret string    `json:"siret"`
}

// CurrentUserResponse represents the authenticated user
type CurrentUserResponse struct {
	ID         uuid.UUID        `json:"id"`
	Username   string           `json:"username"`
	Email      string           `json:"email"`
	Role       *models.RoleCode `json:"role"`
	Entreprise *EntrepriseRef   `json:"entreprise"`
	CreatedAt  string           `json:"created_at"`
}

// UserHandler serves the authenticated user's profile
type UserHandler struct {
	roles       repositories.RoleRepository
	entreprises repositories.EntrepriseRepository
	logger      *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(roles repositories.RoleRepository, entreprises repositories.EntrepriseRepository, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		roles:       roles,
		entreprises: entreprises,
		logger:      logger,
	}
}

// HandleMe handles GET /api/v1/users/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	user := middleware.GetUserFromContext(ctx)
	if user == nil {
		_ = utils.WriteUnauthorized(w, services.ErrUnauthorized.Code, "")
		return
	}

	resp := CurrentUserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt.UTC().Format(time.RFC3339),
	}

	if user.RoleID != nil {
		role, err := h.roles.GetByID(ctx, *user.RoleID)
		switch {
		case err == nil:
			resp.Role = &role.Code
		case !errors.Is(err, repositories.ErrNotFound):
			HandleServiceError(w, services.WrapInternal("failed to load role", err), h.logger)
			return
		}
	}

	if user.HasActiveTenant() {
		e, err := h.entreprises.GetByID(ctx, *user.EntrepriseID)
		switch {
		case err == nil:
			resp.Entreprise = &EntrepriseRef{ID: e.ID, Name: e.Name, Siret: e.Siret}
		case !errors.Is(err, repositories.ErrNotFound):
			HandleServiceError(w, services.WrapInternal("failed to load entreprise", err), h.logger)
			return
		}
	}

	h.logger.Debug("current user served",
		zap.String("request_id", requestID),
		zap.String("user_id", user.ID.String()))

	_ = utils.WriteOK(w, resp)
}
