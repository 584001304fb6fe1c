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

// EntrepriseRepository implements the repositories.EntrepriseRepository interface
type EntrepriseRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewEntrepriseRepository creates a new entreprise repository
func NewEntrepriseRepository(db *DB, logger *zap.Logger) repositories.EntrepriseRepository {
	return &EntrepriseRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a company
func (r *EntrepriseRepository) Create(ctx context.Context, e *models.Entreprise) error {
	query := `
		INSERT INTO entreprises (id, name, siret, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query, e.ID, e.Name, e.Siret, e.IsActive, e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "entreprises_siret_key") {
			return repositories.ErrConflict
		}
		return fmt.Errorf("failed to create entreprise: %w", err)
	}

	r.logger.Debug("entreprise created", zap.String("id", e.ID.String()), zap.String("siret", e.Siret))
	return nil
}

// GetByID retrieves a company by ID
func (r *EntrepriseRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Entreprise, error) {
	query := `
		SELECT id, name, siret, is_active, created_at
		FROM entreprises
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	e := &models.Entreprise{}

	err := executor.QueryRowContext(ctx, query, id).Scan(
		&e.ID,
		&e.Name,
		&e.Siret,
		&e.IsActive,
		&e.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get entreprise: %w", err)
	}

	return e, nil
}

// ListForUser returns active companies where the user has an active membership
func (r *EntrepriseRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.TenantMembership, error) {
	query := `
		SELECT e.id, e.name, e.siret, e.is_active, e.created_at,
		       m.id, m.role, m.created_at
		FROM memberships m
		JOIN entreprises e ON e.id = m.entreprise_id
		WHERE m.user_id = $1 AND m.is_active AND e.is_active
		ORDER BY e.name
	`

	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entreprises: %w", err)
	}
	defer rows.Close()

	var tenants []*models.TenantMembership
	for rows.Next() {
		t := &models.TenantMembership{}
		err := rows.Scan(
			&t.Entreprise.ID,
			&t.Entreprise.Name,
			&t.Entreprise.Siret,
			&t.Entreprise.IsActive,
			&t.Entreprise.CreatedAt,
			&t.MembershipID,
			&t.Role,
			&t.JoinedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entreprise: %w", err)
		}
		tenants = append(tenants, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entreprise rows: %w", err)
	}

	return tenants, nil
}
