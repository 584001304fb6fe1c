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

// UserRepository implements the repositories.UserRepository interface
type UserRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) repositories.UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

const userColumns = `id, username, email, role_id, entreprise_id, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.RoleID,
		&user.EntrepriseID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

// InsertIfAbsent inserts the user unless the username is taken. A concurrent
// insert of the same username loses silently and reports false.
func (r *UserRepository) InsertIfAbsent(ctx context.Context, user *models.User) (bool, error) {
	query := `
		INSERT INTO users (id, username, email, role_id, entreprise_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (username) DO NOTHING
		RETURNING id
	`

	executor := GetExecutor(ctx, r.db)
	var id uuid.UUID
	err := executor.QueryRowContext(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.RoleID,
		user.EntrepriseID,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug("user already exists", zap.String("username", user.Username))
			return false, nil
		}
		return false, fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Debug("user created", zap.String("id", id.String()), zap.String("username", user.Username))
	return true, nil
}

func (r *UserRepository) getOne(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where

	user, err := scanUser(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetByUsername retrieves a user by identity-provider subject
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, "username = $1", username)
}

// GetByEmail retrieves a user by email, case-insensitively
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, "lower(email) = lower($1) ORDER BY created_at LIMIT 1", email)
}

// UpdateEmail sets the user's email
func (r *UserRepository) UpdateEmail(ctx context.Context, id uuid.UUID, email string) error {
	query := `UPDATE users SET email = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, "update user email", query, id, email, time.Now())
}

// SetActiveTenant sets or clears the user's active tenant
func (r *UserRepository) SetActiveTenant(ctx context.Context, id uuid.UUID, entrepriseID *uuid.UUID) error {
	query := `UPDATE users SET entreprise_id = $2, updated_at = $3 WHERE id = $1`
	return r.execOne(ctx, "set active tenant", query, id, entrepriseID, time.Now())
}

// ClearActiveTenantIf clears the active tenant only when it still points at entrepriseID.
// Matching nothing is not an error.
func (r *UserRepository) ClearActiveTenantIf(ctx context.Context, id, entrepriseID uuid.UUID) error {
	query := `
		UPDATE users
		SET entreprise_id = NULL,
		    updated_at = $3
		WHERE id = $1 AND entreprise_id = $2
	`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, id, entrepriseID, time.Now()); err != nil {
		return fmt.Errorf("failed to clear active tenant: %w", err)
	}
	return nil
}

func (r *UserRepository) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return repositories.ErrNotFound
	}

	r.logger.Debug(op, zap.Any("id", args[0]))
	return nil
}
