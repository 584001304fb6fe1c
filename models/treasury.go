package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BankTransaction is a bank statement line. Credits are positive, debits negative.
type BankTransaction struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	EntrepriseID uuid.UUID       `json:"entreprise_id" db:"entreprise_id"`
	Date         time.Time       `json:"date" db:"date"`
	Label        string          `json:"label" db:"label"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`

	// Derived on dashboard reads
	IsReconciled bool `json:"is_reconciled,omitempty" db:"-"`
}

// TableName returns the table name for the BankTransaction model
func (BankTransaction) TableName() string {
	return "bank_transactions"
}

// NewBankTransaction creates a new BankTransaction
func NewBankTransaction(entrepriseID uuid.UUID, date time.Time, label string, amount decimal.Decimal) *BankTransaction {
	return &BankTransaction{
		ID:           uuid.New(),
		EntrepriseID: entrepriseID,
		Date:         date,
		Label:        label,
		Amount:       amount,
		CreatedAt:    time.Now(),
	}
}

// Reconciliation matches a bank transaction against an invoice
type Reconciliation struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	EntrepriseID      uuid.UUID       `json:"entreprise_id" db:"entreprise_id"`
	InvoiceID         uuid.UUID       `json:"invoice_id" db:"invoice_id"`
	BankTransactionID uuid.UUID       `json:"bank_transaction_id" db:"bank_transaction_id"`
	MatchedAmount     decimal.Decimal `json:"matched_amount" db:"matched_amount"`
	MatchedByID       uuid.UUID       `json:"matched_by_id" db:"matched_by"`
	MatchedAt         time.Time       `json:"matched_at" db:"matched_at"`

	// Joined on list reads
	InvoiceNumber    string `json:"invoice_number,omitempty" db:"-"`
	TransactionLabel string `json:"transaction_label,omitempty" db:"-"`
}

// TableName returns the table name for the Reconciliation model
func (Reconciliation) TableName() string {
	return "reconciliations"
}

// NewReconciliation creates a new Reconciliation
func NewReconciliation(entrepriseID, invoiceID, txID, matchedBy uuid.UUID, amount decimal.Decimal) *Reconciliation {
	return &Reconciliation{
		ID:                uuid.New(),
		EntrepriseID:      entrepriseID,
		InvoiceID:         invoiceID,
		BankTransactionID: txID,
		MatchedAmount:     amount,
		MatchedByID:       matchedBy,
		MatchedAt:         time.Now(),
	}
}

// TreasuryDashboard aggregates a tenant's cash and invoicing position
type TreasuryDashboard struct {
	TreasuryBalance    decimal.Decimal   `json:"treasury_balance"`
	TotalIn            decimal.Decimal   `json:"total_in"`
	TotalOut           decimal.Decimal   `json:"total_out"`
	TotalInvoices      int               `json:"total_invoices"`
	TotalAmountTTC     decimal.Decimal   `json:"total_amount_ttc"`
	PendingInvoices    int               `json:"pending_invoices"`
	PendingAmount      decimal.Decimal   `json:"pending_amount"`
	RecentTransactions []BankTransaction `json:"recent_transactions"`
	RecentInvoices     []InvoiceSummary  `json:"recent_invoices"`
}

// InvoiceSummary is an invoice row joined with its customer name
type InvoiceSummary struct {
	ID           uuid.UUID       `json:"id"`
	Number       string          `json:"number"`
	Status       InvoiceStatus   `json:"status"`
	CustomerName string          `json:"customer_name"`
	IssueDate    time.Time       `json:"issue_date"`
	DueDate      *time.Time      `json:"due_date,omitempty"`
	TotalTTC     decimal.Decimal `json:"total_ttc"`
	CreatedAt    time.Time       `json:"created_at"`
}
