package access

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/upb/compta-pme/backend/models"
	"github.com/upb/compta-pme/backend/repositories"
	"github.com/upb/compta-pme/backend/services"
	"go.uber.org/zap"
)

// Policy gates tenant-scoped operations on the caller's membership role
type Policy struct {
	memberships repositories.MembershipRepository
	logger      *zap.Logger
}

// NewPolicy creates a new access Policy
func NewPolicy(memberships repositories.MembershipRepository, logger *zap.Logger) *Policy {
	return &Policy{
		memberships: memberships,
		logger:      logger,
	}
}

// RequireRole returns the caller's active membership in the tenant when its
// role is one of allowed. With no allowed roles, any active membership passes.
func (p *Policy) RequireRole(ctx context.Context, userID, tenantID uuid.UUID, allowed ...models.MembershipRole) (*models.Membership, error) {
	m, err := p.memberships.GetActive(ctx, userID, tenantID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrAccessDenied
		}
		return nil, services.WrapInternal("failed to load membership", err)
	}

	if len(allowed) > 0 && !m.HasAnyRole(allowed...) {
		p.logger.Debug("role not allowed",
			zap.String("user_id", userID.String()),
			zap.String("entreprise_id", tenantID.String()),
			zap.String("role", string(m.Role)))
		return nil, services.ErrAccessDenied
	}

	return m, nil
}

// CheckTarget enforces the invariants on a membership being removed or
// re-roled by caller: the owner is never touched, and callers never act on
// their own membership when remove is set.
func CheckTarget(caller *models.Membership, target *models.Membership, remove bool) error {
	if target.IsOwner() {
		return services.ErrOwnerProtected
	}
	if remove && target.UserID == caller.UserID {
		return services.ErrSelfRemovalDenied
	}
	return nil
}
