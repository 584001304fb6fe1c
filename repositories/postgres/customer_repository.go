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

// CustomerRepository implements the repositories.CustomerRepository interface
type CustomerRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *DB, logger *zap.Logger) repositories.CustomerRepository {
	return &CustomerRepository{
		db:     db,
		logger: logger,
	}
}

const customerColumns = `id, entreprise_id, name, email, phone, address, vat_number, created_at`

func scanCustomer(row interface{ Scan(...interface{}) error }) (*models.Customer, error) {
	c := &models.Customer{}
	err := row.Scan(
		&c.ID,
		&c.EntrepriseID,
		&c.Name,
		&c.Email,
		&c.Phone,
		&c.Address,
		&c.VATNumber,
		&c.CreatedAt,
	)
	return c, err
}

// Create inserts a customer
func (r *CustomerRepository) Create(ctx context.Context, c *models.Customer) error {
	query := `
		INSERT INTO customers (` + customerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		c.ID,
		c.EntrepriseID,
		c.Name,
		c.Email,
		c.Phone,
		c.Address,
		c.VATNumber,
		c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}

	r.logger.Debug("customer created", zap.String("id", c.ID.String()))
	return nil
}

// GetByID retrieves a customer of the entreprise
func (r *CustomerRepository) GetByID(ctx context.Context, entrepriseID, id uuid.UUID) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1 AND entreprise_id = $2`

	c, err := scanCustomer(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id, entrepriseID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

// List returns the entreprise's customers ordered by name
func (r *CustomerRepository) List(ctx context.Context, entrepriseID uuid.UUID) ([]*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE entreprise_id = $1 ORDER BY name`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, entrepriseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating customer rows: %w", err)
	}

	return customers, nil
}
