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

// InvoiceRepository implements the repositories.InvoiceRepository interface
type InvoiceRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *DB, logger *zap.Logger) repositories.InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts an invoice and its lines. Callers run it inside a
// transaction so a failed line insert leaves no partial invoice.
func (r *InvoiceRepository) Create(ctx context.Context, inv *models.Invoice) error {
	query := `
		INSERT INTO invoices (id, entreprise_id, customer_id, number, status, issue_date, due_date,
		                      total_ht, total_tva, total_ttc, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		inv.ID,
		inv.EntrepriseID,
		inv.CustomerID,
		inv.Number,
		inv.Status,
		inv.IssueDate,
		inv.DueDate,
		inv.TotalHT,
		inv.TotalTVA,
		inv.TotalTTC,
		inv.CreatedAt,
		inv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "invoices_entreprise_number_key") {
			return repositories.ErrConflict
		}
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	lineQuery := `
		INSERT INTO invoice_lines (id, entreprise_id, invoice_id, label, qty, unit_price, vat_rate,
		                           total_ht, total_tva, total_ttc)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for _, l := range inv.Lines {
		_, err := executor.ExecContext(ctx, lineQuery,
			l.ID,
			l.EntrepriseID,
			l.InvoiceID,
			l.Label,
			l.Qty,
			l.UnitPrice,
			l.VATRate,
			l.TotalHT,
			l.TotalTVA,
			l.TotalTTC,
		)
		if err != nil {
			return fmt.Errorf("failed to create invoice line: %w", err)
		}
	}

	r.logger.Debug("invoice created",
		zap.String("id", inv.ID.String()),
		zap.String("number", inv.Number),
		zap.Int("lines", len(inv.Lines)))
	return nil
}

// GetByID retrieves an invoice with its customer and lines
func (r *InvoiceRepository) GetByID(ctx context.Context, entrepriseID, id uuid.UUID) (*models.Invoice, error) {
	query := `
		SELECT i.id, i.entreprise_id, i.customer_id, i.number, i.status, i.issue_date, i.due_date,
		       i.total_ht, i.total_tva, i.total_ttc, i.hash_prev, i.hash_curr, i.locked_at,
		       i.created_at, i.updated_at,
		       c.id, c.entreprise_id, c.name, c.email, c.phone, c.address, c.vat_number, c.created_at
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		WHERE i.id = $1 AND i.entreprise_id = $2
	`

	executor := GetExecutor(ctx, r.db)
	inv := &models.Invoice{Customer: &models.Customer{}}
	c := inv.Customer

	err := executor.QueryRowContext(ctx, query, id, entrepriseID).Scan(
		&inv.ID,
		&inv.EntrepriseID,
		&inv.CustomerID,
		&inv.Number,
		&inv.Status,
		&inv.IssueDate,
		&inv.DueDate,
		&inv.TotalHT,
		&inv.TotalTVA,
		&inv.TotalTTC,
		&inv.HashPrev,
		&inv.HashCurr,
		&inv.LockedAt,
		&inv.CreatedAt,
		&inv.UpdatedAt,
		&c.ID,
		&c.EntrepriseID,
		&c.Name,
		&c.Email,
		&c.Phone,
		&c.Address,
		&c.VATNumber,
		&c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	lines, err := r.lines(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines

	return inv, nil
}

func (r *InvoiceRepository) lines(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceLine, error) {
	query := `
		SELECT id, entreprise_id, invoice_id, label, qty, unit_price, vat_rate, total_ht, total_tva, total_ttc
		FROM invoice_lines
		WHERE invoice_id = $1
		ORDER BY label
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoice lines: %w", err)
	}
	defer rows.Close()

	var lines []models.InvoiceLine
	for rows.Next() {
		var l models.InvoiceLine
		err := rows.Scan(
			&l.ID,
			&l.EntrepriseID,
			&l.InvoiceID,
			&l.Label,
			&l.Qty,
			&l.UnitPrice,
			&l.VATRate,
			&l.TotalHT,
			&l.TotalTVA,
			&l.TotalTTC,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice line: %w", err)
		}
		lines = append(lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoice line rows: %w", err)
	}

	return lines, nil
}

// LastNumber returns the highest invoice number of the entreprise, or "".
// Numbers are compared by length first so FAC-100000 sorts after FAC-99999.
func (r *InvoiceRepository) LastNumber(ctx context.Context, entrepriseID uuid.UUID) (string, error) {
	query := `
		SELECT number
		FROM invoices
		WHERE entreprise_id = $1
		ORDER BY length(number) DESC, number DESC
		LIMIT 1
	`

	var number string
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, entrepriseID).Scan(&number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get last invoice number: %w", err)
	}
	return number, nil
}

// LastIssuedHash returns hash_curr of the most recently locked invoice, or nil
func (r *InvoiceRepository) LastIssuedHash(ctx context.Context, entrepriseID uuid.UUID) (*string, error) {
	query := `
		SELECT hash_curr
		FROM invoices
		WHERE entreprise_id = $1 AND hash_curr IS NOT NULL
		ORDER BY locked_at DESC
		LIMIT 1
	`

	var hash string
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, entrepriseID).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last invoice hash: %w", err)
	}
	return &hash, nil
}

// List returns invoice summaries, newest first. Zero-valued filter fields are ignored.
func (r *InvoiceRepository) List(ctx context.Context, entrepriseID uuid.UUID, filter repositories.InvoiceFilter) ([]*models.InvoiceSummary, error) {
	query := `
		SELECT i.id, i.number, i.status, c.name, i.issue_date, i.due_date, i.total_ttc, i.created_at
		FROM invoices i
		JOIN customers c ON c.id = i.customer_id
		WHERE i.entreprise_id = $1
		  AND ($2 = '' OR i.status = $2)
		  AND ($3::date IS NULL OR i.issue_date >= $3)
		  AND ($4::date IS NULL OR i.issue_date <= $4)
		ORDER BY i.created_at DESC
		LIMIT $5
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query,
		entrepriseID,
		string(filter.Status),
		filter.FromDate,
		filter.ToDate,
		limitOrDefault(filter.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*models.InvoiceSummary
	for rows.Next() {
		s := &models.InvoiceSummary{}
		err := rows.Scan(
			&s.ID,
			&s.Number,
			&s.Status,
			&s.CustomerName,
			&s.IssueDate,
			&s.DueDate,
			&s.TotalTTC,
			&s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoice rows: %w", err)
	}

	return invoices, nil
}

// UpdateStatus persists status, hash chain and lock fields
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, inv *models.Invoice) error {
	query := `
		UPDATE invoices
		SET status = $3,
		    hash_prev = $4,
		    hash_curr = $5,
		    locked_at = $6,
		    updated_at = $7
		WHERE id = $1 AND entreprise_id = $2
	`

	inv.UpdatedAt = time.Now()
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		inv.ID,
		inv.EntrepriseID,
		inv.Status,
		inv.HashPrev,
		inv.HashCurr,
		inv.LockedAt,
		inv.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return repositories.ErrNotFound
	}

	r.logger.Debug("invoice status updated", zap.String("id", inv.ID.String()), zap.String("status", string(inv.Status)))
	return nil
}

// Stats aggregates invoice counts and amounts for the dashboard
func (r *InvoiceRepository) Stats(ctx context.Context, entrepriseID uuid.UUID) (*repositories.InvoiceStats, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(total_ttc), 0),
		       COUNT(*) FILTER (WHERE status IN ('DRAFT', 'ISSUED')),
		       COALESCE(SUM(total_ttc) FILTER (WHERE status IN ('DRAFT', 'ISSUED')), 0)
		FROM invoices
		WHERE entreprise_id = $1
	`

	stats := &repositories.InvoiceStats{}
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, entrepriseID).Scan(
		&stats.Count,
		&stats.TotalTTC,
		&stats.PendingCount,
		&stats.PendingAmount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate invoices: %w", err)
	}
	return stats, nil
}

// defaultListLimit caps list endpoints
const defaultListLimit = 25

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > defaultListLimit {
		return defaultListLimit
	}
	return limit
}
