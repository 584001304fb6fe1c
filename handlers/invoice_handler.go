package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/upb/compta-pme/backend/middleware"
	"github.com/upb/compta-pme/backend/models"
	"github.com/upb/compta-pme/backend/repositories"
	"github.com/upb/compta-pme/backend/services/invoicing"
	"github.com/upb/compta-pme/backend/utils"
	"go.uber.org/zap"
)

// dateLayout is the wire format of calendar dates
const dateLayout = "2006-01-02"

// InvoicingService defines customer and invoice operations
type InvoicingService interface {
	ListCustomers(ctx context.Context, tenantID uuid.UUID) ([]*models.Customer, error)
	CreateCustomer(ctx context.Context, tenantID uuid.UUID, in invoicing.CustomerInput) (*models.Customer, error)
	ListInvoices(ctx context.Context, tenantID uuid.UUID, filter repositories.InvoiceFilter) ([]*models.InvoiceSummary, error)
	CreateInvoice(ctx context.Context, tenantID uuid.UUID, in invoicing.InvoiceInput) (*models.Invoice, error)
	GetInvoice(ctx context.Context, tenantID, id uuid.UUID) (*models.Invoice, error)
	ValidateInvoice(ctx context.Context, tenantID, id uuid.UUID) (*models.Invoice, error)
	CancelInvoice(ctx context.Context, tenantID, id uuid.UUID) (*models.Invoice, error)
}

// CreateCustomerRequest represents a request to create a customer
type CreateCustomerRequest struct {
	Name      string `json:"name" validate:"required,max=255"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string `json:"phone,omitempty" validate:"max=50"`
	Address   string `json:"address,omitempty"`
	VATNumber string `json:"vat_number,omitempty" validate:"max=50"`
}

// InvoiceLineRequest is one line of a new invoice
type InvoiceLineRequest struct {
	Label     string           `json:"label" validate:"required"`
	Qty       decimal.Decimal  `json:"qty" validate:"gt=0"`
	UnitPrice decimal.Decimal  `json:"unit_price" validate:"gte=0"`
	VATRate   *decimal.Decimal `json:"vat_rate,omitempty" validate:"omitempty,gte=0"`
}

// CreateInvoiceRequest represents a request to create a draft invoice
type CreateInvoiceRequest struct {
	CustomerID string               `json:"customer_id" validate:"required,uuid"`
	IssueDate  string               `json:"issue_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DueDate    string               `json:"due_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Lines      []InvoiceLineRequest `json:"lines,omitempty" validate:"dive"`
}

// toInput converts the request into service input. It assumes the request
// passed validation.
func (req *CreateInvoiceRequest) toInput() (invoicing.InvoiceInput, error) {
	var in invoicing.InvoiceInput

	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return in, fmt.Errorf("invalid customer_id: %w", err)
	}
	in.CustomerID = customerID

	if req.IssueDate != "" {
		if in.IssueDate, err = time.Parse(dateLayout, req.IssueDate); err != nil {
			return in, fmt.Errorf("invalid issue_date: %w", err)
		}
	}
	if in.DueDate, err = parseDate(req.DueDate); err != nil {
		return in, fmt.Errorf("invalid due_date: %w", err)
	}

	in.Lines = make([]invoicing.LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, invoicing.LineInput{
			Label:     l.Label,
			Qty:       l.Qty,
			UnitPrice: l.UnitPrice,
			VATRate:   l.VATRate,
		})
	}
	return in, nil
}

// parseDate parses an optional YYYY-MM-DD value
func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseDateRange reads the from_date and to_date query parameters
func parseDateRange(r *http.Request) (from, to *time.Time, err error) {
	q := r.URL.Query()
	if from, err = parseDate(q.Get("from_date")); err != nil {
		return nil, nil, fmt.Errorf("invalid from_date, expected YYYY-MM-DD")
	}
	if to, err = parseDate(q.Get("to_date")); err != nil {
		return nil, nil, fmt.Errorf("invalid to_date, expected YYYY-MM-DD")
	}
	return from, to, nil
}

// parseLimit reads the optional limit query parameter
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	return n, nil
}

// InvoiceHandler handles customer and invoice requests on the active tenant
type InvoiceHandler struct {
	invoicing InvoicingService
	logger    *zap.Logger
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(svc InvoicingService, logger *zap.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		invoicing: svc,
		logger:    logger,
	}
}

// HandleListCustomers handles GET /api/v1/customers
func (h *InvoiceHandler) HandleListCustomers(w http.ResponseWriter, r *http.Request) {
	_, tenantID, ok := scope(w, r)
	if !ok {
		return
	}

	customers, err := h.invoicing.ListCustomers(r.Context(), tenantID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, customers)
}

// HandleCreateCustomer handles POST /api/v1/customers
func (h *InvoiceHandler) HandleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	_, tenantID, ok := scope(w, r)
	if !ok {
		return
	}

	var req CreateCustomerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	customer, err := h.invoicing.CreateCustomer(r.Context(), tenantID, invoicing.CustomerInput{
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		Address:   req.Address,
		VATNumber: req.VATNumber,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, customer)
}

// HandleListInvoices handles GET /api/v1/invoices
func (h *InvoiceHandler) HandleListInvoices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	_, tenantID, ok := scope(w, r)
	if !ok {
		return
	}

	from, to, err := parseDateRange(r)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	filter := repositories.InvoiceFilter{
		Status:   models.InvoiceStatus(r.URL.Query().Get("status")),
		FromDate: from,
		ToDate:   to,
		Limit:    limit,
	}

	h.logger.Debug("listing invoices",
		zap.String("request_id", requestID),
		zap.String("entreprise_id", tenantID.String()),
		zap.String("status", string(filter.Status)))

	invoices, err := h.invoicing.ListInvoices(ctx, tenantID, filter)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, invoices)
}

// HandleCreateInvoice handles POST /api/v1/invoices
func (h *InvoiceHandler) HandleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	_, tenantID, ok := scope(w, r)
	if !ok {
		return
	}

	var req CreateInvoiceRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	in, err := req.toInput()
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	inv, err := h.invoicing.CreateInvoice(r.Context(), tenantID, in)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, inv)
}

// HandleGetInvoice handles GET /api/v1/invoices/{id}
func (h *InvoiceHandler) HandleGetInvoice(w http.ResponseWriter, r *http.Request) {
	h.withInvoice(w, r, h.invoicing.GetInvoice)
}

// HandleValidateInvoice handles POST /api/v1/invoices/{id}/validate
func (h *InvoiceHandler) HandleValidateInvoice(w http.ResponseWriter, r *http.Request) {
	h.withInvoice(w, r, h.invoicing.ValidateInvoice)
}

// HandleCancelInvoice handles POST /api/v1/invoices/{id}/cancel
func (h *InvoiceHandler) HandleCancelInvoice(w http.ResponseWriter, r *http.Request) {
	h.withInvoice(w, r, h.invoicing.CancelInvoice)
}

// withInvoice runs op on the invoice named by the id URL parameter and writes the result
func (h *InvoiceHandler) withInvoice(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, tenantID, id uuid.UUID) (*models.Invoice, error)) {
	_, tenantID, ok := scope(w, r)
	if !ok {
		return
	}

	id, err := utils.URLParamUUID(r, "id")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	inv, err := op(r.Context(), tenantID, id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, inv)
}
