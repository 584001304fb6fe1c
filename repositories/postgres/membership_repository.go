package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/upb/compta-pme/backend/models"
	"github.com/upb/compta-pme/backend/repositories"
	"go.uber.org/zap"
)

// MembershipRepository implements the repositories.MembershipRepository interface.
// Reads only ever see active rows; removal is a soft delete.
type MembershipRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db *DB, logger *zap.Logger) repositories.MembershipRepository {
	return &MembershipRepository{
		db:     db,
		logger: logger,
	}
}

const membershipColumns = `id, user_id, entreprise_id, role, is_active, created_at, updated_at`

// Create inserts an active membership. The partial unique index on active
// rows turns a second active link into a no-op, reported as ErrConflict.
func (r *MembershipRepository) Create(ctx context.Context, m *models.Membership) error {
	query := `
		INSERT INTO memberships (id, user_id, entreprise_id, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, entreprise_id) WHERE is_active DO NOTHING
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		m.ID,
		m.UserID,
		m.EntrepriseID,
		m.Role,
		m.IsActive,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return repositories.ErrConflict
	}

	r.logger.Debug("membership created",
		zap.String("id", m.ID.String()),
		zap.String("entreprise_id", m.EntrepriseID.String()),
		zap.String("role", string(m.Role)))
	return nil
}

func (r *MembershipRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.Membership, error) {
	executor := GetExecutor(ctx, r.db)
	m := &models.Membership{}

	err := executor.QueryRowContext(ctx, query, args...).Scan(
		&m.ID,
		&m.UserID,
		&m.EntrepriseID,
		&m.Role,
		&m.IsActive,
		&m.CreatedAt,
		&m.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	return m, nil
}

// GetByID retrieves an active membership by ID within an entreprise
func (r *MembershipRepository) GetByID(ctx context.Context, entrepriseID, id uuid.UUID) (*models.Membership, error) {
	query := `SELECT ` + membershipColumns + `
		FROM memberships
		WHERE id = $1 AND entreprise_id = $2 AND is_active`
	return r.getOne(ctx, query, id, entrepriseID)
}

// GetActive retrieves the active membership linking a user and an entreprise
func (r *MembershipRepository) GetActive(ctx context.Context, userID, entrepriseID uuid.UUID) (*models.Membership, error) {
	query := `SELECT ` + membershipColumns + `
		FROM memberships
		WHERE user_id = $1 AND entreprise_id = $2 AND is_active`
	return r.getOne(ctx, query, userID, entrepriseID)
}

// ListActiveMembers lists active memberships of an entreprise with their users
func (r *MembershipRepository) ListActiveMembers(ctx context.Context, entrepriseID uuid.UUID) ([]*models.MemberDetail, error) {
	query := `
		SELECT m.id, u.id, u.username, u.email, m.role, m.created_at
		FROM memberships m
		JOIN users u ON u.id = m.user_id
		WHERE m.entreprise_id = $1 AND m.is_active
		ORDER BY m.created_at
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, entrepriseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []*models.MemberDetail
	for rows.Next() {
		d := &models.MemberDetail{}
		if err := rows.Scan(&d.MembershipID, &d.UserID, &d.Username, &d.Email, &d.Role, &d.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}

	return members, nil
}

// UpdateRole changes the role of an active membership
func (r *MembershipRepository) UpdateRole(ctx context.Context, id uuid.UUID, role models.MembershipRole) error {
	query := `
		UPDATE memberships
		SET role = $2,
		    updated_at = $3
		WHERE id = $1 AND is_active
	`
	if err := r.execOne(ctx, query, id, role, time.Now()); err != nil {
		return err
	}

	r.logger.Debug("membership role updated", zap.String("id", id.String()), zap.String("role", string(role)))
	return nil
}

// Deactivate soft-deletes a membership. The row is kept.
func (r *MembershipRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE memberships
		SET is_active = false,
		    updated_at = $2
		WHERE id = $1 AND is_active
	`
	if err := r.execOne(ctx, query, id, time.Now()); err != nil {
		return err
	}

	r.logger.Debug("membership deactivated", zap.String("id", id.String()))
	return nil
}

func (r *MembershipRepository) execOne(ctx context.Context, query string, args ...interface{}) error {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
