package team

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/compta-pme/backend/models"
	"github.com/upb/compta-pme/backend/repositories"
	"github.com/upb/compta-pme/backend/services"
	"github.com/upb/compta-pme/backend/services/access"
	"go.uber.org/zap"
)

// Service manages the members of a tenant
type Service struct {
	users       repositories.UserRepository
	memberships repositories.MembershipRepository
	policy      *access.Policy
	txManager   repositories.TransactionManager
	logger      *zap.Logger
}

// NewService creates a new team Service
func NewService(repos *repositories.Repositories, policy *access.Policy, txManager repositories.TransactionManager, logger *zap.Logger) *Service {
	return &Service{
		users:       repos.Users,
		memberships: repos.Memberships,
		policy:      policy,
		txManager:   txManager,
		logger:      logger,
	}
}

// ListMembers returns the tenant's active members. Any member may list.
func (s *Service) ListMembers(ctx context.Context, caller *models.User, tenantID uuid.UUID) ([]*models.MemberDetail, error) {
	if _, err := s.policy.RequireRole(ctx, caller.ID, tenantID); err != nil {
		return nil, err
	}

	members, err := s.memberships.ListActiveMembers(ctx, tenantID)
	if err != nil {
		return nil, services.WrapInternal("failed to list members", err)
	}
	if members == nil {
		members = []*models.MemberDetail{}
	}
	return members, nil
}

// Invite adds an existing user to the tenant with role
func (s *Service) Invite(ctx context.Context, caller *models.User, tenantID uuid.UUID, email string, role models.MembershipRole) (*models.Membership, error) {
	if !role.IsAssignable() {
		return nil, services.ErrInvalidRole
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, services.ErrInvalidInput
	}

	if _, err := s.policy.RequireRole(ctx, caller.ID, tenantID, models.TeamManagerRoles...); err != nil {
		return nil, err
	}

	invitee, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrUserNotFound
		}
		return nil, services.WrapInternal("failed to load invited user", err)
	}

	m := models.NewMembership(invitee.ID, tenantID, role)
	if err := s.memberships.Create(ctx, m); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, services.ErrAlreadyMember
		}
		return nil, services.WrapInternal("failed to create membership", err)
	}

	s.logger.Info("member invited",
		zap.String("entreprise_id", tenantID.String()),
		zap.String("user_id", invitee.ID.String()),
		zap.String("role", string(role)),
		zap.String("invited_by", caller.ID.String()))

	return m, nil
}

// Remove soft-deletes a membership and clears the removed user's active
// tenant when it pointed here
func (s *Service) Remove(ctx context.Context, caller *models.User, tenantID, membershipID uuid.UUID) error {
	callerMembership, target, err := s.loadTarget(ctx, caller, tenantID, membershipID)
	if err != nil {
		return err
	}
	if err := access.CheckTarget(callerMembership, target, true); err != nil {
		return err
	}

	err = services.WithTransaction(ctx, s.txManager, func(ctx context.Context, _ repositories.Transaction) error {
		if err := s.memberships.Deactivate(ctx, target.ID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return services.ErrMembershipNotFound
			}
			return services.WrapInternal("failed to deactivate membership", err)
		}
		if err := s.users.ClearActiveTenantIf(ctx, target.UserID, tenantID); err != nil {
			return services.WrapInternal("failed to clear active tenant", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("member removed",
		zap.String("entreprise_id", tenantID.String()),
		zap.String("membership_id", membershipID.String()),
		zap.String("removed_by", caller.ID.String()))
	return nil
}

// UpdateRole changes a member's role
func (s *Service) UpdateRole(ctx context.Context, caller *models.User, tenantID, membershipID uuid.UUID, role models.MembershipRole) (*models.Membership, error) {
	callerMembership, target, err := s.loadTarget(ctx, caller, tenantID, membershipID)
	if err != nil {
		return nil, err
	}
	if err := access.CheckTarget(callerMembership, target, false); err != nil {
		return nil, err
	}
	if !role.IsAssignable() {
		return nil, services.ErrInvalidRole
	}

	if err := s.memberships.UpdateRole(ctx, target.ID, role); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrMembershipNotFound
		}
		return nil, services.WrapInternal("failed to update membership role", err)
	}
	target.Role = role

	s.logger.Info("member role updated",
		zap.String("entreprise_id", tenantID.String()),
		zap.String("membership_id", membershipID.String()),
		zap.String("role", string(role)))
	return target, nil
}

// loadTarget loads the target membership, then checks the caller manages the
// team. The owner is refused before any role check, whoever the caller is.
func (s *Service) loadTarget(ctx context.Context, caller *models.User, tenantID, membershipID uuid.UUID) (*models.Membership, *models.Membership, error) {
	target, err := s.memberships.GetByID(ctx, tenantID, membershipID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, services.ErrMembershipNotFound
		}
		return nil, nil, services.WrapInternal("failed to load membership", err)
	}
	if target.IsOwner() {
		return nil, nil, services.ErrOwnerProtected
	}

	callerMembership, err := s.policy.RequireRole(ctx, caller.ID, tenantID, models.TeamManagerRoles...)
	if err != nil {
		return nil, nil, err
	}
	return callerMembership, target, nil
}
