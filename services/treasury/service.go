package treasury

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/upb/compta-pme/backend/models"
	"github.com/upb/compta-pme/backend/repositories"
	"github.com/upb/compta-pme/backend/services"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultListLimit caps transaction and reconciliation listings
	DefaultListLimit = 25

	// RecentLimit is the number of rows shown in each dashboard list
	RecentLimit = 10
)

// TransactionInput holds the fields of a new bank transaction. A zero Date means today.
type TransactionInput struct {
	Date   time.Time
	Label  string
	Amount *decimal.Decimal
}

// ReconciliationInput matches an invoice against a bank transaction
type ReconciliationInput struct {
	InvoiceID         uuid.UUID
	BankTransactionID uuid.UUID
	MatchedAmount     decimal.Decimal
}

// Service manages bank transactions and reconciliations, and builds the
// treasury dashboard
type Service struct {
	transactions    repositories.BankTransactionRepository
	reconciliations repositories.ReconciliationRepository
	invoices        repositories.InvoiceRepository
	logger          *zap.Logger
	now             func() time.Time
}

// NewService creates a new treasury Service
func NewService(repos *repositories.Repositories, logger *zap.Logger) *Service {
	return &Service{
		transactions:    repos.BankTransactions,
		reconciliations: repos.Reconciliations,
		invoices:        repos.Invoices,
		logger:          logger,
		now:             time.Now,
	}
}

// ListTransactions returns bank transactions, newest first
func (s *Service) ListTransactions(ctx context.Context, tenantID uuid.UUID, filter repositories.TransactionFilter) ([]*models.BankTransaction, error) {
	if filter.Limit <= 0 || filter.Limit > DefaultListLimit {
		filter.Limit = DefaultListLimit
	}

	txs, err := s.transactions.List(ctx, tenantID, filter)
	if err != nil {
		return nil, services.WrapInternal("failed to list bank transactions", err)
	}
	if txs == nil {
		txs = []*models.BankTransaction{}
	}
	return txs, nil
}

// CreateTransaction records a bank statement line
func (s *Service) CreateTransaction(ctx context.Context, tenantID uuid.UUID, in TransactionInput) (*models.BankTransaction, error) {
	label := strings.TrimSpace(in.Label)
	if label == "" || in.Amount == nil {
		return nil, services.NewCodedError(services.ErrorTypeValidation, "INVALID_INPUT", "label and amount are required")
	}

	date := in.Date
	if date.IsZero() {
		y, m, d := s.now().Date()
		date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	t := models.NewBankTransaction(tenantID, date, label, *in.Amount)
	if err := s.transactions.Create(ctx, t); err != nil {
		return nil, services.WrapInternal("failed to create bank transaction", err)
	}

	s.logger.Info("bank transaction recorded",
		zap.String("entreprise_id", tenantID.String()),
		zap.String("transaction_id", t.ID.String()),
		zap.String("amount", t.Amount.String()))
	return t, nil
}

// ListReconciliations returns the latest reconciliations
func (s *Service) ListReconciliations(ctx context.Context, tenantID uuid.UUID) ([]*models.Reconciliation, error) {
	recs, err := s.reconciliations.List(ctx, tenantID, DefaultListLimit)
	if err != nil {
		return nil, services.WrapInternal("failed to list reconciliations", err)
	}
	if recs == nil {
		recs = []*models.Reconciliation{}
	}
	return recs, nil
}

// Reconcile matches an invoice with a bank transaction of the same tenant
func (s *Service) Reconcile(ctx context.Context, tenantID, userID uuid.UUID, in ReconciliationInput) (*models.Reconciliation, error) {
	if !in.MatchedAmount.IsPositive() {
		return nil, services.NewCodedError(services.ErrorTypeValidation, "INVALID_INPUT", "matched_amount must be positive")
	}

	if _, err := s.invoices.GetByID(ctx, tenantID, in.InvoiceID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrInvoiceNotFound
		}
		return nil, services.WrapInternal("failed to load invoice", err)
	}
	if _, err := s.transactions.GetByID(ctx, tenantID, in.BankTransactionID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrTransactionNotFound
		}
		return nil, services.WrapInternal("failed to load bank transaction", err)
	}

	rc := models.NewReconciliation(tenantID, in.InvoiceID, in.BankTransactionID, userID, in.MatchedAmount)
	if err := s.reconciliations.Create(ctx, rc); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, services.ErrDuplicateReconciliation
		}
		return nil, services.WrapInternal("failed to create reconciliation", err)
	}

	s.logger.Info("transaction reconciled",
		zap.String("entreprise_id", tenantID.String()),
		zap.String("invoice_id", in.InvoiceID.String()),
		zap.String("transaction_id", in.BankTransactionID.String()))
	return rc, nil
}

// DeleteReconciliation removes a reconciliation
func (s *Service) DeleteReconciliation(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := s.reconciliations.Delete(ctx, tenantID, id); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return services.ErrReconciliationNotFound
		}
		return services.WrapInternal("failed to delete reconciliation", err)
	}
	return nil
}

// Dashboard aggregates the tenant's cash position and invoicing activity.
// The four reads are independent and run concurrently.
func (s *Service) Dashboard(ctx context.Context, tenantID uuid.UUID) (*models.TreasuryDashboard, error) {
	var (
		in, out decimal.Decimal
		stats   *repositories.InvoiceStats
		recent  []*models.BankTransaction
		latest  []*models.InvoiceSummary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		in, out, err = s.transactions.Totals(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = s.invoices.Stats(gctx, tenantID)
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = s.transactions.Recent(gctx, tenantID, RecentLimit)
		return err
	})
	g.Go(func() error {
		var err error
		latest, err = s.invoices.List(gctx, tenantID, repositories.InvoiceFilter{Limit: RecentLimit})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, services.WrapInternal("failed to build treasury dashboard", err)
	}

	d := &models.TreasuryDashboard{
		TreasuryBalance:    in.Add(out),
		TotalIn:            in,
		TotalOut:           out,
		TotalInvoices:      stats.Count,
		TotalAmountTTC:     stats.TotalTTC,
		PendingInvoices:    stats.PendingCount,
		PendingAmount:      stats.PendingAmount,
		RecentTransactions: make([]models.BankTransaction, 0, len(recent)),
		RecentInvoices:     make([]models.InvoiceSummary, 0, len(latest)),
	}
	for _, t := range recent {
		d.RecentTransactions = append(d.RecentTransactions, *t)
	}
	for _, inv := range latest {
		d.RecentInvoices = append(d.RecentInvoices, *inv)
	}
	return d, nil
}
