package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/upb/compta-pme/backend/middleware"
	"github.com/upb/compta-pme/backend/models"
	"github.com/upb/compta-pme/backend/repositories"
	"github.com/upb/compta-pme/backend/services/treasury"
	"github.com/upb/compta-pme/backend/utils"
	"go.uber.org/zap"
)

// TreasuryService defines bank transaction, reconciliation and dashboard operations
type TreasuryService interface {
	ListTransactions(ctx context.Context, tenantID uuid.UUID, filter repositories.TransactionFilter) ([]*models.BankTransaction, error)
	CreateTransaction(ctx context.Context, tenantID uuid.UUID, in treasury.TransactionInput) (*models.BankTransaction, error)
	ListReconciliations(ctx context.Context, tenantID uuid.UUID) ([]*models.Reconciliation, error)
	Reconcile(ctx context.Context, tenantID, userID uuid.UUID, in treasury.ReconciliationInput) (*models.Reconciliation, error)
	DeleteReconciliation(ctx context.Context, tenantID, id uuid.UUID) error
	Dashboard(ctx context.Context, tenantID uuid.UUID) (*models.TreasuryDashboard, error)
}

// CreateTransactionRequest represents a bank statement line to record.
// Amount is signed: credits are positive, debits negative.
type CreateTransactionRequest struct {
	Date   string           `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Label  string           `json:"label" validate:"required,max=255"`
	Amount *decimal.Decimal `json:"amount"`
}

// CreateReconciliationRequest represents a match between an invoice and a transaction
type CreateReconciliationRequest struct {
	InvoiceID         string          `json:"invoice_id" validate:"required,uuid"`
	BankTransactionID string          `json:"bank_transaction_id" validate:"required,uuid"`
	MatchedAmount     decimal.Decimal `json:"matched_amount" validate:"gt=0"`
}

// TreasuryHandler handles treasury requests on the active tenant
type TreasuryHandler struct {
	treasury TreasuryService
	logger   *zap.Logger
}

// NewTreasuryHandler creates a new TreasuryHandler
func NewTreasuryHandler(svc TreasuryService, logger *zap.Logger) *TreasuryHandler {
	return &TreasuryHandler{
		treasury: svc,
		logger:   logger,
	}
}

// HandleListTransactions handles GET /api/v1/bank-transactions
func (h *TreasuryHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
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

	txs, err := h.treasury.ListTransactions(r.Context(), tenantID, repositories.TransactionFilter{
		FromDate: from,
		ToDate:   to,
		Limit:    limit,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, txs)
}

// HandleCreateTransaction handles POST /api/v1/bank-transactions
func (h *TreasuryHandler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	_, tenantID, ok := scope(w, r)
	if !ok {
		return
	}

	var req CreateTransactionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	in := treasury.TransactionInput{Label: req.Label, Amount: req.Amount}
	if req.Date != "" {
		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			_ = utils.WriteBadRequest(w, fmt.Sprintf("invalid date: %v", err), nil)
			return
		}
		in.Date = date
	}

	t, err := h.treasury.CreateTransaction(r.Context(), tenantID, in)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, t)
}

// HandleDashboard handles GET /api/v1/treasury/dashboard
func (h *TreasuryHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	_, tenantID, ok := scope(w, r)
	if !ok {
		return
	}

	h.logger.Debug("building treasury dashboard",
		zap.String("request_id", requestID),
		zap.String("entreprise_id", tenantID.String()))

	d, err := h.treasury.Dashboard(ctx, tenantID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, d)
}

// HandleListReconciliations handles GET /api/v1/reconciliations
func (h *TreasuryHandler) HandleListReconciliations(w http.ResponseWriter, r *http.Request) {
	_, tenantID, ok := scope(w, r)
	if !ok {
		return
	}

	recs, err := h.treasury.ListReconciliations(r.Context(), tenantID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, recs)
}

// HandleCreateReconciliation handles POST /api/v1/reconciliations
func (h *TreasuryHandler) HandleCreateReconciliation(w http.ResponseWriter, r *http.Request) {
	user, tenantID, ok := scope(w, r)
	if !ok {
		return
	}

	var req CreateReconciliationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	invoiceID, err := uuid.Parse(req.InvoiceID)
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid invoice_id format", nil)
		return
	}
	txID, err := uuid.Parse(req.BankTransactionID)
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid bank_transaction_id format", nil)
		return
	}

	rc, err := h.treasury.Reconcile(r.Context(), tenantID, user.ID, treasury.ReconciliationInput{
		InvoiceID:         invoiceID,
		BankTransactionID: txID,
		MatchedAmount:     req.MatchedAmount,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, rc)
}

// HandleDeleteReconciliation handles DELETE /api/v1/reconciliations/{id}
func (h *TreasuryHandler) HandleDeleteReconciliation(w http.ResponseWriter, r *http.Request) {
	_, tenantID, ok := scope(w, r)
	if !ok {
		return
	}

	id, err := utils.URLParamUUID(r, "id")
	if err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	if err := h.treasury.DeleteReconciliation(r.Context(), tenantID, id); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}
