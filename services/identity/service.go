package identity

import (
	"context"
	"errors"

	"github.com/upb/compta-pme/backend/models"
	"github.com/upb/compta-pme/backend/repositories"
	"github.com/upb/compta-pme/backend/services"
	"go.uber.org/zap"
)

// Service maps verified token subjects to local users
type Service struct {
	users  repositories.UserRepository
	roles  repositories.RoleRepository
	logger *zap.Logger
}

// NewService creates a new identity Service
func NewService(users repositories.UserRepository, roles repositories.RoleRepository, logger *zap.Logger) *Service {
	return &Service{
		users:  users,
		roles:  roles,
		logger: logger,
	}
}

// ResolveOrCreate returns the user whose username is subject, creating it
// with the default role on first sight. A non-empty email that differs from
// the stored one replaces it.
//
// Concurrent first-sight calls for one subject end with a single row: the
// losing insert is a no-op and the existing row is fetched instead.
func (s *Service) ResolveOrCreate(ctx context.Context, subject, email string) (*models.User, error) {
	if subject == "" {
		return nil, services.ErrInvalidInput
	}

	user, err := s.users.GetByUsername(ctx, subject)
	if err == nil {
		return s.syncEmail(ctx, user, email)
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, services.WrapInternal("failed to load user", err)
	}

	role, err := s.roles.GetByCode(ctx, models.DefaultRoleCode)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.logger.Error("default role missing from roles table", zap.String("code", string(models.DefaultRoleCode)))
			return nil, services.ErrRoleSeedMissing
		}
		return nil, services.WrapInternal("failed to load default role", err)
	}

	user = models.NewUser(subject, email, &role.ID)
	inserted, err := s.users.InsertIfAbsent(ctx, user)
	if err != nil {
		return nil, services.WrapInternal("failed to create user", err)
	}
	if inserted {
		s.logger.Info("user created on first authentication",
			zap.String("user_id", user.ID.String()),
			zap.String("username", subject))
		return user, nil
	}

	// Lost the race to a concurrent request for the same subject
	user, err = s.users.GetByUsername(ctx, subject)
	if err != nil {
		return nil, services.WrapInternal("failed to load user after concurrent insert", err)
	}
	return s.syncEmail(ctx, user, email)
}

func (s *Service) syncEmail(ctx context.Context, user *models.User, email string) (*models.User, error) {
	if email == "" || email == user.Email {
		return user, nil
	}

	if err := s.users.UpdateEmail(ctx, user.ID, email); err != nil {
		return nil, services.WrapInternal("failed to update user email", err)
	}

	s.logger.Debug("user email synchronized", zap.String("user_id", user.ID.String()))
	user.Email = email
	return user, nil
}
