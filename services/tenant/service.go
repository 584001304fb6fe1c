package tenant

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/compta-pme/backend/models"
	"github.com/upb/compta-pme/backend/repositories"
	"github.com/upb/compta-pme/backend/services"
	"go.uber.org/zap"
)

// Context is a tenant seen by one user. Role is nil when the user's active
// tenant pointer no longer matches an active membership.
type Context struct {
	Entreprise *models.Entreprise
	Role       *models.MembershipRole
}

// Active is a tenant whose membership and active flag were both checked
type Active struct {
	Entreprise *models.Entreprise
	Membership *models.Membership
}

// Service manages companies and each user's active tenant
type Service struct {
	entreprises repositories.EntrepriseRepository
	memberships repositories.MembershipRepository
	users       repositories.UserRepository
	txManager   repositories.TransactionManager
	logger      *zap.Logger
}

// NewService creates a new tenant Service
func NewService(repos *repositories.Repositories, txManager repositories.TransactionManager, logger *zap.Logger) *Service {
	return &Service{
		entreprises: repos.Entreprises,
		memberships: repos.Memberships,
		users:       repos.Users,
		txManager:   txManager,
		logger:      logger,
	}
}

// Switch makes tenantID the user's active tenant
func (s *Service) Switch(ctx context.Context, user *models.User, tenantID uuid.UUID) (*Context, error) {
	m, err := s.memberships.GetActive(ctx, user.ID, tenantID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrTenantAccessDenied
		}
		return nil, services.WrapInternal("failed to load membership", err)
	}

	e, err := s.loadEntreprise(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !e.IsActive {
		return nil, services.ErrTenantInactive
	}

	if err := s.users.SetActiveTenant(ctx, user.ID, &e.ID); err != nil {
		return nil, services.WrapInternal("failed to set active tenant", err)
	}
	user.EntrepriseID = &e.ID

	s.logger.Info("active tenant switched",
		zap.String("user_id", user.ID.String()),
		zap.String("entreprise_id", e.ID.String()))

	role := m.Role
	return &Context{Entreprise: e, Role: &role}, nil
}

// Current returns the user's active tenant. The membership is looked up on
// every call, so a revoked membership shows as a nil role.
func (s *Service) Current(ctx context.Context, user *models.User) (*Context, error) {
	if !user.HasActiveTenant() {
		return nil, services.ErrNoActiveTenant
	}

	e, err := s.entreprises.GetByID(ctx, *user.EntrepriseID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrNoActiveTenant
		}
		return nil, services.WrapInternal("failed to load entreprise", err)
	}

	tc := &Context{Entreprise: e}
	m, err := s.memberships.GetActive(ctx, user.ID, e.ID)
	switch {
	case err == nil:
		role := m.Role
		tc.Role = &role
	case errors.Is(err, repositories.ErrNotFound):
		s.logger.Debug("active tenant without membership",
			zap.String("user_id", user.ID.String()),
			zap.String("entreprise_id", e.ID.String()))
	default:
		return nil, services.WrapInternal("failed to load membership", err)
	}

	return tc, nil
}

// ResolveActive is the strict form of Current used to scope data access:
// the pointer must be set, backed by an active membership, and the tenant
// must be active.
func (s *Service) ResolveActive(ctx context.Context, user *models.User) (*Active, error) {
	if !user.HasActiveTenant() {
		return nil, services.ErrNoActiveTenant
	}

	m, err := s.memberships.GetActive(ctx, user.ID, *user.EntrepriseID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrTenantAccessDenied
		}
		return nil, services.WrapInternal("failed to load membership", err)
	}

	e, err := s.loadEntreprise(ctx, m.EntrepriseID)
	if err != nil {
		return nil, err
	}
	if !e.IsActive {
		return nil, services.ErrTenantInactive
	}

	return &Active{Entreprise: e, Membership: m}, nil
}

// ListTenants returns the active companies the user belongs to
func (s *Service) ListTenants(ctx context.Context, user *models.User) ([]*models.TenantMembership, error) {
	tenants, err := s.entreprises.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, services.WrapInternal("failed to list tenants", err)
	}
	if tenants == nil {
		tenants = []*models.TenantMembership{}
	}
	return tenants, nil
}

// CreateCompany creates a company owned by user and makes it the active tenant
func (s *Service) CreateCompany(ctx context.Context, user *models.User, name, siret string) (*models.TenantMembership, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, services.NewCodedError(services.ErrorTypeValidation, "INVALID_INPUT", "name is required")
	}
	if !models.IsValidSiret(siret) {
		return nil, services.ErrInvalidSiret
	}

	e := models.NewEntreprise(name, siret)
	owner := models.NewMembership(user.ID, e.ID, models.MembershipTenantOwner)

	err := services.WithTransaction(ctx, s.txManager, func(ctx context.Context, _ repositories.Transaction) error {
		if err := s.entreprises.Create(ctx, e); err != nil {
			if errors.Is(err, repositories.ErrConflict) {
				return services.ErrDuplicateSiret
			}
			return services.WrapInternal("failed to create entreprise", err)
		}
		if err := s.memberships.Create(ctx, owner); err != nil {
			return services.WrapInternal("failed to create owner membership", err)
		}
		if err := s.users.SetActiveTenant(ctx, user.ID, &e.ID); err != nil {
			return services.WrapInternal("failed to set active tenant", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	user.EntrepriseID = &e.ID

	s.logger.Info("entreprise created",
		zap.String("entreprise_id", e.ID.String()),
		zap.String("owner_id", user.ID.String()))

	return &models.TenantMembership{
		Entreprise:   *e,
		MembershipID: owner.ID,
		Role:         owner.Role,
		JoinedAt:     owner.CreatedAt,
	}, nil
}

// ListCompanies returns the companies the user belongs to
func (s *Service) ListCompanies(ctx context.Context, user *models.User) ([]*models.Entreprise, error) {
	tenants, err := s.ListTenants(ctx, user)
	if err != nil {
		return nil, err
	}

	companies := make([]*models.Entreprise, 0, len(tenants))
	for _, t := range tenants {
		e := t.Entreprise
		companies = append(companies, &e)
	}
	return companies, nil
}

// GetCompany returns a company the user is an active member of. Other
// companies are reported as not found.
func (s *Service) GetCompany(ctx context.Context, user *models.User, id uuid.UUID) (*models.Entreprise, error) {
	if _, err := s.memberships.GetActive(ctx, user.ID, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrEntrepriseNotFound
		}
		return nil, services.WrapInternal("failed to load membership", err)
	}
	return s.loadEntreprise(ctx, id)
}

func (s *Service) loadEntreprise(ctx context.Context, id uuid.UUID) (*models.Entreprise, error) {
	e, err := s.entreprises.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrEntrepriseNotFound
		}
		return nil, services.WrapInternal("failed to load entreprise", err)
	}
	return e, nil
}
