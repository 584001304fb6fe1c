package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/upb/compta-pme/backend/middleware"
	"github.com/upb/compta-pme/backend/models"
	"github.com/upb/compta-pme/backend/services"
	"github.com/upb/compta-pme/backend/services/tenant"
	"github.com/upb/compta-pme/backend/utils"
	"go.uber.org/zap"
)

// TenantService defines the company and active-tenant operations
type TenantService interface {
	ListCompanies(ctx context.Context, user *models.User) ([]*models.Entreprise, error)
	CreateCompany(ctx context.Context, user *models.User, name, siret string) (*models.TenantMembership, error)
	GetCompany(ctx context.Context, user *models.User, id uuid.UUID) (*models.Entreprise, error)
	ListTenants(ctx context.Context, user *models.User) ([]*models.TenantMembership, error)
	Switch(ctx context.Context, user *models.User, tenantID uuid.UUID) (*tenant.Context, error)
	Current(ctx context.Context, user *models.User) (*tenant.Context, error)
}

// CreateCompanyRequest represents a request to create a company
type CreateCompanyRequest struct {
	Name  string `json:"name" validate:"required,max=255"`
	Siret string `json:"siret" validate:"required,siret"`
}

// SwitchTenantRequest represents a request to change the active tenant
type SwitchTenantRequest struct {
	TenantID string `json:"tenant_id" validate:"required,uuid"`
}

// TenantResponse is a tenant with the caller's role in it
type TenantResponse struct {
	ID       uuid.UUID              `json:"id"`
	Name     string                 `json:"name"`
	Siret    string                 `json:"siret"`
	Role     *models.MembershipRole `json:"role"`
	IsActive bool                   `json:"is_active"`
}

// SwitchTenantResponse acknowledges a tenant switch
type SwitchTenantResponse struct {
	Message string         `json:"message"`
	Tenant  TenantResponse `json:"tenant"`
}

func toTenantResponse(tc *tenant.Context) TenantResponse {
	return TenantResponse{
		ID:       tc.Entreprise.ID,
		Name:     tc.Entreprise.Name,
		Siret:    tc.Entreprise.Siret,
		Role:     tc.Role,
		IsActive: tc.Entreprise.IsActive,
	}
}

// CompanyHandler handles company and tenant selection requests
type CompanyHandler struct {
	tenants TenantService
	logger  *zap.Logger
}

// NewCompanyHandler creates a new CompanyHandler
func NewCompanyHandler(tenants TenantService, logger *zap.Logger) *CompanyHandler {
	return &CompanyHandler{
		tenants: tenants,
		logger:  logger,
	}
}

// currentUser fetches the authenticated user or writes a 401
func currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		_ = utils.WriteUnauthorized(w, services.ErrUnauthorized.Code, "")
		return nil, false
	}
	return user, true
}

// HandleListCompanies handles GET /api/v1/companies
func (h *CompanyHandler) HandleListCompanies(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	companies, err := h.tenants.ListCompanies(r.Context(), user)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, companies)
}

// HandleCreateCompany handles POST /api/v1/companies
func (h *CompanyHandler) HandleCreateCompany(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req CreateCompanyRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	created, err := h.tenants.CreateCompany(ctx, user, req.Name, req.Siret)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Debug("company created",
		zap.String("request_id", requestID),
		zap.String("entreprise_id", created.Entreprise.ID.String()))

	_ = utils.WriteCreated(w, created)
}

// HandleGetCompany handles GET /api/v1/companies/{id}
func (h *CompanyHandler) HandleGetCompany(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	id, err := utils.URLParamUUID(r, "id")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	company, err := h.tenants.GetCompany(r.Context(), user, id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, company)
}

// HandleListTenants handles GET /api/v1/tenants
func (h *CompanyHandler) HandleListTenants(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	tenants, err := h.tenants.ListTenants(r.Context(), user)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, tenants)
}

// HandleSwitchTenant handles POST /api/v1/tenants/switch
func (h *CompanyHandler) HandleSwitchTenant(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req SwitchTenantRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid tenant_id format", nil)
		return
	}

	tc, err := h.tenants.Switch(r.Context(), user, tenantID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, SwitchTenantResponse{
		Message: "Active tenant changed",
		Tenant:  toTenantResponse(tc),
	})
}

// HandleCurrentTenant handles GET /api/v1/tenants/current
func (h *CompanyHandler) HandleCurrentTenant(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	tc, err := h.tenants.Current(r.Context(), user)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, toTenantResponse(tc))
}
