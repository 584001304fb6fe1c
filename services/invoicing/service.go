package invoicing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/upb/compta-pme/backend/models"
	"github.com/upb/compta-pme/backend/repositories"
	"github.com/upb/compta-pme/backend/services"
	"go.uber.org/zap"
)

const (
	// DefaultListLimit caps invoice listings
	DefaultListLimit = 25

	// numberAttempts bounds retries when two creations race for a number
	numberAttempts = 5
)

// CustomerInput holds the fields of a new customer
type CustomerInput struct {
	Name      string
	Email     string
	Phone     string
	Address   string
	VATNumber string
}

// LineInput is one invoice line as submitted. A nil VATRate uses the default rate.
type LineInput struct {
	Label     string
	Qty       decimal.Decimal
	UnitPrice decimal.Decimal
	VATRate   *decimal.Decimal
}

// InvoiceInput holds the fields of a new invoice
type InvoiceInput struct {
	CustomerID uuid.UUID
	IssueDate  time.Time
	DueDate    *time.Time
	Lines      []LineInput
}

// Service manages customers and invoices of a tenant. Every method takes
// the tenant ID resolved by the tenant middleware.
type Service struct {
	customers repositories.CustomerRepository
	invoices  repositories.InvoiceRepository
	txManager repositories.TransactionManager
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a new invoicing Service
func NewService(repos *repositories.Repositories, txManager repositories.TransactionManager, logger *zap.Logger) *Service {
	return &Service{
		customers: repos.Customers,
		invoices:  repos.Invoices,
		txManager: txManager,
		logger:    logger,
		now:       time.Now,
	}
}

// ListCustomers returns the tenant's customers ordered by name
func (s *Service) ListCustomers(ctx context.Context, tenantID uuid.UUID) ([]*models.Customer, error) {
	customers, err := s.customers.List(ctx, tenantID)
	if err != nil {
		return nil, services.WrapInternal("failed to list customers", err)
	}
	if customers == nil {
		customers = []*models.Customer{}
	}
	return customers, nil
}

// CreateCustomer adds a customer to the tenant
func (s *Service) CreateCustomer(ctx context.Context, tenantID uuid.UUID, in CustomerInput) (*models.Customer, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, services.NewCodedError(services.ErrorTypeValidation, "INVALID_INPUT", "name is required")
	}

	c := models.NewCustomer(tenantID, name)
	c.Email = strings.TrimSpace(in.Email)
	c.Phone = in.Phone
	c.Address = in.Address
	c.VATNumber = in.VATNumber

	if err := s.customers.Create(ctx, c); err != nil {
		return nil, services.WrapInternal("failed to create customer", err)
	}
	return c, nil
}

// ListInvoices returns invoice summaries, newest first
func (s *Service) ListInvoices(ctx context.Context, tenantID uuid.UUID, filter repositories.InvoiceFilter) ([]*models.InvoiceSummary, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, services.NewCodedError(services.ErrorTypeValidation, "INVALID_INPUT", "unknown invoice status")
	}
	if filter.Limit <= 0 || filter.Limit > DefaultListLimit {
		filter.Limit = DefaultListLimit
	}

	invoices, err := s.invoices.List(ctx, tenantID, filter)
	if err != nil {
		return nil, services.WrapInternal("failed to list invoices", err)
	}
	if invoices == nil {
		invoices = []*models.InvoiceSummary{}
	}
	return invoices, nil
}

// CreateInvoice creates a draft invoice numbered after the tenant's last one
func (s *Service) CreateInvoice(ctx context.Context, tenantID uuid.UUID, in InvoiceInput) (*models.Invoice, error) {
	customer, err := s.customers.GetByID(ctx, tenantID, in.CustomerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrCustomerNotFound
		}
		return nil, services.WrapInternal("failed to load customer", err)
	}

	issueDate := in.IssueDate
	if issueDate.IsZero() {
		issueDate = s.now()
	}
	if in.DueDate != nil && in.DueDate.Before(issueDate) {
		return nil, services.NewCodedError(services.ErrorTypeValidation, "INVALID_INPUT", "due_date is before issue_date")
	}

	inv := models.NewInvoice(tenantID, customer.ID, issueDate, in.DueDate)
	for _, l := range in.Lines {
		if strings.TrimSpace(l.Label) == "" || !l.Qty.IsPositive() || l.UnitPrice.IsNegative() {
			return nil, services.NewCodedError(services.ErrorTypeValidation, "INVALID_INPUT", "invalid invoice line")
		}
		rate := models.DefaultVATRate()
		if l.VATRate != nil {
			if l.VATRate.IsNegative() {
				return nil, services.NewCodedError(services.ErrorTypeValidation, "INVALID_INPUT", "invalid vat rate")
			}
			rate = *l.VATRate
		}
		inv.AddLine(strings.TrimSpace(l.Label), l.Qty, l.UnitPrice, rate)
	}

	for attempt := 1; attempt <= numberAttempts; attempt++ {
		err = services.WithTransaction(ctx, s.txManager, func(ctx context.Context, _ repositories.Transaction) error {
			last, err := s.invoices.LastNumber(ctx, tenantID)
			if err != nil {
				return err
			}
			inv.Number = models.NextInvoiceNumber(last)
			return s.invoices.Create(ctx, inv)
		})
		if !errors.Is(err, repositories.ErrConflict) {
			break
		}
		s.logger.Debug("invoice number taken, retrying",
			zap.String("entreprise_id", tenantID.String()),
			zap.String("number", inv.Number),
			zap.Int("attempt", attempt))
	}
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, services.ErrConcurrentUpdate
		}
		return nil, services.WrapInternal("failed to create invoice", err)
	}

	inv.Customer = customer
	s.logger.Info("invoice created",
		zap.String("entreprise_id", tenantID.String()),
		zap.String("invoice_id", inv.ID.String()),
		zap.String("number", inv.Number))
	return inv, nil
}

// GetInvoice returns an invoice with its customer and lines
func (s *Service) GetInvoice(ctx context.Context, tenantID, id uuid.UUID) (*models.Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrInvoiceNotFound
		}
		return nil, services.WrapInternal("failed to load invoice", err)
	}
	return inv, nil
}

// ValidateInvoice issues a draft invoice. The invoice is chained to the
// previously issued one and locked.
func (s *Service) ValidateInvoice(ctx context.Context, tenantID, id uuid.UUID) (*models.Invoice, error) {
	inv, err := services.WithTransactionResult(ctx, s.txManager, func(ctx context.Context, _ repositories.Transaction) (*models.Invoice, error) {
		inv, err := s.GetInvoice(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		if inv.Status != models.InvoiceStatusDraft {
			return nil, services.ErrInvalidInvoiceState
		}

		prev, err := s.invoices.LastIssuedHash(ctx, tenantID)
		if err != nil {
			return nil, services.WrapInternal("failed to load previous invoice hash", err)
		}

		curr := ChainHash(prev, inv)
		lockedAt := s.now()
		inv.Status = models.InvoiceStatusIssued
		inv.HashPrev = prev
		inv.HashCurr = &curr
		inv.LockedAt = &lockedAt

		if err := s.invoices.UpdateStatus(ctx, inv); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return nil, services.ErrInvoiceNotFound
			}
			return nil, services.WrapInternal("failed to issue invoice", err)
		}
		return inv, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invoice issued",
		zap.String("entreprise_id", tenantID.String()),
		zap.String("invoice_id", inv.ID.String()),
		zap.String("hash", *inv.HashCurr))
	return inv, nil
}

// CancelInvoice cancels an invoice. Invoices are never deleted.
func (s *Service) CancelInvoice(ctx context.Context, tenantID, id uuid.UUID) (*models.Invoice, error) {
	inv, err := s.GetInvoice(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == models.InvoiceStatusCanceled {
		return nil, services.ErrInvalidInvoiceState
	}

	inv.Status = models.InvoiceStatusCanceled
	if err := s.invoices.UpdateStatus(ctx, inv); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, services.ErrInvoiceNotFound
		}
		return nil, services.WrapInternal("failed to cancel invoice", err)
	}

	s.logger.Info("invoice canceled",
		zap.String("entreprise_id", tenantID.String()),
		zap.String("invoice_id", inv.ID.String()))
	return inv, nil
}

// ChainHash returns the hex SHA-256 of "prev|number|issue_date|total_ttc".
// A nil prev hashes as the empty string.
func ChainHash(prev *string, inv *models.Invoice) string {
	var p string
	if prev != nil {
		p = *prev
	}
	payload := strings.Join([]string{
		p,
		inv.Number,
		inv.IssueDate.Format(time.DateOnly),
		inv.TotalTTC.StringFixed(2),
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
