package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/upb/compta-pme/backend/models"
	"github.com/upb/compta-pme/backend/repositories"
	"go.uber.org/zap"
)

// BankTransactionRepository implements the repositories.BankTransactionRepository interface
type BankTransactionRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewBankTransactionRepository creates a new bank transaction repository
func NewBankTransactionRepository(db *DB, logger *zap.Logger) repositories.BankTransactionRepository {
	return &BankTransactionRepository{
		db:     db,
		logger: logger,
	}
}

const bankTransactionColumns = `id, entreprise_id, date, label, amount, created_at`

// Create inserts a bank transaction
func (r *BankTransactionRepository) Create(ctx context.Context, t *models.BankTransaction) error {
	query := `
		INSERT INTO bank_transactions (` + bankTransactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query, t.ID, t.EntrepriseID, t.Date, t.Label, t.Amount, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create bank transaction: %w", err)
	}

	r.logger.Debug("bank transaction created", zap.String("id", t.ID.String()), zap.String("amount", t.Amount.String()))
	return nil
}

// GetByID retrieves a bank transaction of the entreprise
func (r *BankTransactionRepository) GetByID(ctx context.Context, entrepriseID, id uuid.UUID) (*models.BankTransaction, error) {
	query := `SELECT ` + bankTransactionColumns + ` FROM bank_transactions WHERE id = $1 AND entreprise_id = $2`

	t := &models.BankTransaction{}
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id, entrepriseID).Scan(
		&t.ID,
		&t.EntrepriseID,
		&t.Date,
		&t.Label,
		&t.Amount,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get bank transaction: %w", err)
	}
	return t, nil
}

// List returns transactions newest first. Zero-valued filter fields are ignored.
func (r *BankTransactionRepository) List(ctx context.Context, entrepriseID uuid.UUID, filter repositories.TransactionFilter) ([]*models.BankTransaction, error) {
	query := `
		SELECT ` + bankTransactionColumns + `, false
		FROM bank_transactions
		WHERE entreprise_id = $1
		  AND ($2::date IS NULL OR date >= $2)
		  AND ($3::date IS NULL OR date <= $3)
		ORDER BY date DESC, created_at DESC
		LIMIT $4
	`
	return r.query(ctx, query, entrepriseID, filter.FromDate, filter.ToDate, limitOrDefault(filter.Limit))
}

// Recent returns the latest transactions with their reconciliation flag
func (r *BankTransactionRepository) Recent(ctx context.Context, entrepriseID uuid.UUID, limit int) ([]*models.BankTransaction, error) {
	query := `
		SELECT t.id, t.entreprise_id, t.date, t.label, t.amount, t.created_at,
		       EXISTS (SELECT 1 FROM reconciliations rc WHERE rc.bank_transaction_id = t.id)
		FROM bank_transactions t
		WHERE t.entreprise_id = $1
		ORDER BY t.date DESC, t.created_at DESC
		LIMIT $2
	`
	return r.query(ctx, query, entrepriseID, limitOrDefault(limit))
}

func (r *BankTransactionRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.BankTransaction, error) {
	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bank transactions: %w", err)
	}
	defer rows.Close()

	var txs []*models.BankTransaction
	for rows.Next() {
		t := &models.BankTransaction{}
		err := rows.Scan(
			&t.ID,
			&t.EntrepriseID,
			&t.Date,
			&t.Label,
			&t.Amount,
			&t.CreatedAt,
			&t.IsReconciled,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bank transaction: %w", err)
		}
		txs = append(txs, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bank transaction rows: %w", err)
	}

	return txs, nil
}

// Totals returns the sum of credits and the sum of debits. Debits keep their
// sign, so out is zero or negative.
func (r *BankTransactionRepository) Totals(ctx context.Context, entrepriseID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount) FILTER (WHERE amount > 0), 0),
		       COALESCE(SUM(amount) FILTER (WHERE amount < 0), 0)
		FROM bank_transactions
		WHERE entreprise_id = $1
	`

	var in, out decimal.Decimal
	if err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, entrepriseID).Scan(&in, &out); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to aggregate bank transactions: %w", err)
	}
	return in, out, nil
}

// ReconciliationRepository implements the repositories.ReconciliationRepository interface
type ReconciliationRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewReconciliationRepository creates a new reconciliation repository
func NewReconciliationRepository(db *DB, logger *zap.Logger) repositories.ReconciliationRepository {
	return &ReconciliationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a reconciliation
func (r *ReconciliationRepository) Create(ctx context.Context, rc *models.Reconciliation) error {
	query := `
		INSERT INTO reconciliations (id, entreprise_id, invoice_id, bank_transaction_id,
		                             matched_amount, matched_by, matched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		rc.ID,
		rc.EntrepriseID,
		rc.InvoiceID,
		rc.BankTransactionID,
		rc.MatchedAmount,
		rc.MatchedByID,
		rc.MatchedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "reconciliations_match_key") {
			return repositories.ErrConflict
		}
		return fmt.Errorf("failed to create reconciliation: %w", err)
	}

	r.logger.Debug("reconciliation created",
		zap.String("id", rc.ID.String()),
		zap.String("invoice_id", rc.InvoiceID.String()),
		zap.String("bank_transaction_id", rc.BankTransactionID.String()))
	return nil
}

// List returns reconciliations newest first with the invoice number and transaction label
func (r *ReconciliationRepository) List(ctx context.Context, entrepriseID uuid.UUID, limit int) ([]*models.Reconciliation, error) {
	query := `
		SELECT rc.id, rc.entreprise_id, rc.invoice_id, rc.bank_transaction_id,
		       rc.matched_amount, rc.matched_by, rc.matched_at,
		       i.number, t.label
		FROM reconciliations rc
		JOIN invoices i ON i.id = rc.invoice_id
		JOIN bank_transactions t ON t.id = rc.bank_transaction_id
		WHERE rc.entreprise_id = $1
		ORDER BY rc.matched_at DESC
		LIMIT $2
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, entrepriseID, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query reconciliations: %w", err)
	}
	defer rows.Close()

	var out []*models.Reconciliation
	for rows.Next() {
		rc := &models.Reconciliation{}
		var matchedBy uuid.NullUUID
		err := rows.Scan(
			&rc.ID,
			&rc.EntrepriseID,
			&rc.InvoiceID,
			&rc.BankTransactionID,
			&rc.MatchedAmount,
			&matchedBy,
			&rc.MatchedAt,
			&rc.InvoiceNumber,
			&rc.TransactionLabel,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation: %w", err)
		}
		rc.MatchedByID = matchedBy.UUID
		out = append(out, rc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reconciliation rows: %w", err)
	}

	return out, nil
}

// Delete removes a reconciliation of the entreprise
func (r *ReconciliationRepository) Delete(ctx context.Context, entrepriseID, id uuid.UUID) error {
	query := `DELETE FROM reconciliations WHERE id = $1 AND entreprise_id = $2`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, id, entrepriseID)
	if err != nil {
		return fmt.Errorf("failed to delete reconciliation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return repositories.ErrNotFound
	}

	r.logger.Debug("reconciliation deleted", zap.String("id", id.String()))
	return nil
}
