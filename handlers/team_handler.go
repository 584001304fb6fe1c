package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/upb/compta-pme/backend/middleware"
	"github.com/upb/compta-pme/backend/models"
	"github.com/upb/compta-pme/backend/utils"
	"go.uber.org/zap"
)

// TeamService defines the membership operations of a tenant
type TeamService interface {
	ListMembers(ctx context.Context, caller *models.User, tenantID uuid.UUID) ([]*models.MemberDetail, error)
	Invite(ctx context.Context, caller *models.User, tenantID uuid.UUID, email string, role models.MembershipRole) (*models.Membership, error)
	Remove(ctx context.Context, caller *models.User, tenantID, membershipID uuid.UUID) error
	UpdateRole(ctx context.Context, caller *models.User, tenantID, membershipID uuid.UUID, role models.MembershipRole) (*models.Membership, error)
}

// InviteMemberRequest represents a request to add a user to the tenant
type InviteMemberRequest struct {
	Email string                `json:"email" validate:"required,email"`
	Role  models.MembershipRole `json:"role" validate:"required,oneof=ADMIN_CABINET GERANT_PME COMPTABLE_PME COLLABORATEUR"`
}

// UpdateRoleRequest represents a request to change a member's role
type UpdateRoleRequest struct {
	Role models.MembershipRole `json:"role" validate:"required,oneof=ADMIN_CABINET GERANT_PME COMPTABLE_PME COLLABORATEUR"`
}

// TeamHandler handles team management requests on the active tenant
type TeamHandler struct {
	team   TeamService
	logger *zap.Logger
}

// NewTeamHandler creates a new TeamHandler
func NewTeamHandler(team TeamService, logger *zap.Logger) *TeamHandler {
	return &TeamHandler{
		team:   team,
		logger: logger,
	}
}

// scope returns the caller and the active tenant set by RequireTenant
func scope(w http.ResponseWriter, r *http.Request) (*models.User, uuid.UUID, bool) {
	user, ok := currentUser(w, r)
	if !ok {
		return nil, uuid.Nil, false
	}
	active := middleware.GetTenantFromContext(r.Context())
	if active == nil {
		_ = utils.WriteError(w, http.StatusBadRequest, "NO_ACTIVE_TENANT", "No active entreprise selected", nil)
		return nil, uuid.Nil, false
	}
	return user, active.Entreprise.ID, true
}

// HandleListMembers handles GET /api/v1/team/members
func (h *TeamHandler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	user, tenantID, ok := scope(w, r)
	if !ok {
		return
	}

	members, err := h.team.ListMembers(r.Context(), user, tenantID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, members)
}

// HandleInvite handles POST /api/v1/team/invite
func (h *TeamHandler) HandleInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	user, tenantID, ok := scope(w, r)
	if !ok {
		return
	}

	var req InviteMemberRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	m, err := h.team.Invite(ctx, user, tenantID, req.Email, req.Role)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Debug("member invited",
		zap.String("request_id", requestID),
		zap.String("membership_id", m.ID.String()))

	_ = utils.WriteCreated(w, m)
}

// HandleRemove handles DELETE /api/v1/team/members/{id}
func (h *TeamHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	user, tenantID, ok := scope(w, r)
	if !ok {
		return
	}

	membershipID, err := utils.URLParamUUID(r, "id")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	if err := h.team.Remove(r.Context(), user, tenantID, membershipID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}

// HandleUpdateRole handles PATCH /api/v1/team/members/{id}/role
func (h *TeamHandler) HandleUpdateRole(w http.ResponseWriter, r *http.Request) {
	user, tenantID, ok := scope(w, r)
	if !ok {
		return
	}

	membershipID, err := utils.URLParamUUID(r, "id")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	var req UpdateRoleRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	m, err := h.team.UpdateRole(r.Context(), user, tenantID, membershipID, req.Role)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, m)
}
