package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft    InvoiceStatus = "DRAFT"
	InvoiceStatusIssued   InvoiceStatus = "ISSUED"
	InvoiceStatusPaid     InvoiceStatus = "PAID"
	InvoiceStatusCanceled InvoiceStatus = "CANCELED"
)

// IsValid returns true for a known status
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusIssued, InvoiceStatusPaid, InvoiceStatusCanceled:
		return true
	}
	return false
}

// IsPending returns true while the invoice still awaits payment
func (s InvoiceStatus) IsPending() bool {
	return s == InvoiceStatusDraft || s == InvoiceStatusIssued
}

const invoiceNumberPrefix = "FAC-"

// FirstInvoiceNumber is used when a tenant has no usable previous number
const FirstInvoiceNumber = "FAC-00001"

// French standard VAT rate, in percent
const defaultVATRate = 20

// DefaultVATRate returns the rate applied to lines without an explicit one
func DefaultVATRate() decimal.Decimal {
	return decimal.NewFromInt(defaultVATRate)
}

// NextInvoiceNumber derives the number following last.
// "FAC-00041" gives "FAC-00042"; an empty or unparsable value restarts at FAC-00001.
func NextInvoiceNumber(last string) string {
	if last == "" {
		return FirstInvoiceNumber
	}
	idx := strings.LastIndex(last, "-")
	n, err := strconv.Atoi(last[idx+1:])
	if err != nil || n < 0 {
		return FirstInvoiceNumber
	}
	return fmt.Sprintf("%s%05d", invoiceNumberPrefix, n+1)
}

// Invoice is a sales invoice issued by an entreprise
type Invoice struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	EntrepriseID uuid.UUID       `json:"entreprise_id" db:"entreprise_id"`
	CustomerID   uuid.UUID       `json:"customer_id" db:"customer_id"`
	Number       string          `json:"number" db:"number"`
	Status       InvoiceStatus   `json:"status" db:"status"`
	IssueDate    time.Time       `json:"issue_date" db:"issue_date"`
	DueDate      *time.Time      `json:"due_date,omitempty" db:"due_date"`
	TotalHT      decimal.Decimal `json:"total_ht" db:"total_ht"`
	TotalTVA     decimal.Decimal `json:"total_tva" db:"total_tva"`
	TotalTTC     decimal.Decimal `json:"total_ttc" db:"total_ttc"`
	HashPrev     *string         `json:"hash_prev,omitempty" db:"hash_prev"`
	HashCurr     *string         `json:"hash_curr,omitempty" db:"hash_curr"`
	LockedAt     *time.Time      `json:"locked_at,omitempty" db:"locked_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`

	// Populated on detail reads only
	Customer *Customer     `json:"customer,omitempty" db:"-"`
	Lines    []InvoiceLine `json:"lines,omitempty" db:"-"`
}

// TableName returns the table name for the Invoice model
func (Invoice) TableName() string {
	return "invoices"
}

// NewInvoice creates a draft invoice with zero totals
func NewInvoice(entrepriseID, customerID uuid.UUID, issueDate time.Time, dueDate *time.Time) *Invoice {
	now := time.Now()
	return &Invoice{
		ID:           uuid.New(),
		EntrepriseID: entrepriseID,
		CustomerID:   customerID,
		Status:       InvoiceStatusDraft,
		IssueDate:    issueDate,
		DueDate:      dueDate,
		TotalHT:      decimal.Zero,
		TotalTVA:     decimal.Zero,
		TotalTTC:     decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// AddLine appends a line and refreshes the invoice totals
func (inv *Invoice) AddLine(label string, qty, unitPrice, vatRate decimal.Decimal) *InvoiceLine {
	line := NewInvoiceLine(inv.EntrepriseID, inv.ID, label, qty, unitPrice, vatRate)
	inv.Lines = append(inv.Lines, *line)
	inv.TotalHT = inv.TotalHT.Add(line.TotalHT)
	inv.TotalTVA = inv.TotalTVA.Add(line.TotalTVA)
	inv.TotalTTC = inv.TotalTTC.Add(line.TotalTTC)
	return line
}

// InvoiceLine is one priced line of an invoice
type InvoiceLine struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	EntrepriseID uuid.UUID       `json:"entreprise_id" db:"entreprise_id"`
	InvoiceID    uuid.UUID       `json:"invoice_id" db:"invoice_id"`
	Label        string          `json:"label" db:"label"`
	Qty          decimal.Decimal `json:"qty" db:"qty"`
	UnitPrice    decimal.Decimal `json:"unit_price" db:"unit_price"`
	VATRate      decimal.Decimal `json:"vat_rate" db:"vat_rate"`
	TotalHT      decimal.Decimal `json:"total_ht" db:"total_ht"`
	TotalTVA     decimal.Decimal `json:"total_tva" db:"total_tva"`
	TotalTTC     decimal.Decimal `json:"total_ttc" db:"total_ttc"`
}

// TableName returns the table name for the InvoiceLine model
func (InvoiceLine) TableName() string {
	return "invoice_lines"
}

// NewInvoiceLine computes the line totals, each rounded to cents
func NewInvoiceLine(entrepriseID, invoiceID uuid.UUID, label string, qty, unitPrice, vatRate decimal.Decimal) *InvoiceLine {
	ht := qty.Mul(unitPrice).Round(2)
	tva := ht.Mul(vatRate).Div(decimal.NewFromInt(100)).Round(2)
	return &InvoiceLine{
		ID:           uuid.New(),
		EntrepriseID: entrepriseID,
		InvoiceID:    invoiceID,
		Label:        label,
		Qty:          qty,
		UnitPrice:    unitPrice,
		VATRate:      vatRate,
		TotalHT:      ht,
		TotalTVA:     tva,
		TotalTTC:     ht.Add(tva),
	}
}
