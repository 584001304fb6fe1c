package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/compta-pme/backend/models"
	"github.com/upb/compta-pme/backend/repositories"
	"go.uber.org/zap"
)

// RoleRepository reads the seeded roles table
type RoleRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB, logger *zap.Logger) repositories.RoleRepository {
	return &RoleRepository{
		db:     db,
		logger: logger,
	}
}

const roleColumns = `id, code, label, description, created_at`

func scanRole(row interface{ Scan(...interface{}) error }) (*models.Role, error) {
	role := &models.Role{}
	err := row.Scan(&role.ID, &role.Code, &role.Label, &role.Description, &role.CreatedAt)
	return role, err
}

// GetByCode retrieves a role by its code
func (r *RoleRepository) GetByCode(ctx context.Context, code models.RoleCode) (*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE code = $1`

	role, err := scanRole(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// GetByID retrieves a role by ID
func (r *RoleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1`

	role, err := scanRole(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// List returns every seeded role
func (r *RoleRepository) List(ctx context.Context) ([]*models.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles ORDER BY code`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*models.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}

	return roles, nil
}
