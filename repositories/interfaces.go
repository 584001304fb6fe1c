package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/upb/compta-pme/backend/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a write hits a unique constraint
	ErrConflict = errors.New("record conflicts with an existing row")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction.
	// The context passed to fn carries the transaction, so repositories
	// called with it join the transaction.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

// RoleRepository reads the seeded roles. It has no write methods.
type RoleRepository interface {
	// GetByCode retrieves a role by its code
	GetByCode(ctx context.Context, code models.RoleCode) (*models.Role, error)

	// GetByID retrieves a role by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Role, error)

	// List returns every seeded role
	List(ctx context.Context) ([]*models.Role, error)
}

// UserRepository handles user data operations
type UserRepository interface {
	// InsertIfAbsent inserts the user unless the username already exists.
	// It reports whether the row was inserted.
	InsertIfAbsent(ctx context.Context, user *models.User) (bool, error)

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByUsername retrieves a user by identity-provider subject
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// GetByEmail retrieves a user by email
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// UpdateEmail sets the user's email
	UpdateEmail(ctx context.Context, id uuid.UUID, email string) error

	// SetActiveTenant sets or clears (nil) the user's active tenant
	SetActiveTenant(ctx context.Context, id uuid.UUID, entrepriseID *uuid.UUID) error

	// ClearActiveTenantIf clears the active tenant only if it equals entrepriseID
	ClearActiveTenantIf(ctx context.Context, id, entrepriseID uuid.UUID) error
}

// EntrepriseRepository handles company data operations
type EntrepriseRepository interface {
	// Create inserts a company. Returns ErrConflict on a duplicate SIRET.
	Create(ctx context.Context, e *models.Entreprise) error

	// GetByID retrieves a company by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.Entreprise, error)

	// ListForUser returns active companies where the user has an active membership
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.TenantMembership, error)
}

// MembershipRepository handles tenant membership data operations
type MembershipRepository interface {
	// Create inserts an active membership. Returns ErrConflict when an
	// active membership already links the user and the entreprise.
	Create(ctx context.Context, m *models.Membership) error

	// GetByID retrieves an active membership by ID within an entreprise
	GetByID(ctx context.Context, entrepriseID, id uuid.UUID) (*models.Membership, error)

	// GetActive retrieves the active membership linking a user and an entreprise
	GetActive(ctx context.Context, userID, entrepriseID uuid.UUID) (*models.Membership, error)

	// ListActiveMembers lists active memberships of an entreprise with their users
	ListActiveMembers(ctx context.Context, entrepriseID uuid.UUID) ([]*models.MemberDetail, error)

	// UpdateRole changes the role of an active membership
	UpdateRole(ctx context.Context, id uuid.UUID, role models.MembershipRole) error

	// Deactivate soft-deletes a membership
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// CustomerRepository handles customer data operations, scoped by entreprise
type CustomerRepository interface {
	Create(ctx context.Context, c *models.Customer) error
	GetByID(ctx context.Context, entrepriseID, id uuid.UUID) (*models.Customer, error)
	List(ctx context.Context, entrepriseID uuid.UUID) ([]*models.Customer, error)
}

// InvoiceFilter narrows invoice listings
type InvoiceFilter struct {
	Status   models.InvoiceStatus
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
}

// InvoiceRepository handles invoice data operations, scoped by entreprise
type InvoiceRepository interface {
	// Create inserts an invoice and its lines. Returns ErrConflict when
	// the number is already used in the entreprise.
	Create(ctx context.Context, inv *models.Invoice) error

	// GetByID retrieves an invoice with its customer and lines
	GetByID(ctx context.Context, entrepriseID, id uuid.UUID) (*models.Invoice, error)

	// LastNumber returns the highest invoice number of the entreprise, or ""
	LastNumber(ctx context.Context, entrepriseID uuid.UUID) (string, error)

	// LastIssuedHash returns hash_curr of the most recently locked invoice, or nil
	LastIssuedHash(ctx context.Context, entrepriseID uuid.UUID) (*string, error)

	// List returns invoice summaries, newest first
	List(ctx context.Context, entrepriseID uuid.UUID, filter InvoiceFilter) ([]*models.InvoiceSummary, error)

	// UpdateStatus persists status, hash chain and lock fields
	UpdateStatus(ctx context.Context, inv *models.Invoice) error

	// Stats aggregates invoice counts and amounts for the dashboard
	Stats(ctx context.Context, entrepriseID uuid.UUID) (*InvoiceStats, error)
}

// InvoiceStats holds invoice aggregates
type InvoiceStats struct {
	Count         int
	TotalTTC      decimal.Decimal
	PendingCount  int
	PendingAmount decimal.Decimal
}

// TransactionFilter narrows bank transaction listings
type TransactionFilter struct {
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
}

// BankTransactionRepository handles bank transaction data operations
type BankTransactionRepository interface {
	Create(ctx context.Context, t *models.BankTransaction) error
	GetByID(ctx context.Context, entrepriseID, id uuid.UUID) (*models.BankTransaction, error)
	List(ctx context.Context, entrepriseID uuid.UUID, filter TransactionFilter) ([]*models.BankTransaction, error)

	// Recent returns the latest transactions with their reconciliation flag
	Recent(ctx context.Context, entrepriseID uuid.UUID, limit int) ([]*models.BankTransaction, error)

	// Totals returns the sum of credits and the signed (non-positive) sum of debits
	Totals(ctx context.Context, entrepriseID uuid.UUID) (in, out decimal.Decimal, err error)
}

// ReconciliationRepository handles reconciliation data operations
type ReconciliationRepository interface {
	// Create inserts a reconciliation. Returns ErrConflict on a duplicate match.
	Create(ctx context.Context, r *models.Reconciliation) error
	List(ctx context.Context, entrepriseID uuid.UUID, limit int) ([]*models.Reconciliation, error)
	Delete(ctx context.Context, entrepriseID, id uuid.UUID) error
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Roles            RoleRepository
	Users            UserRepository
	Entreprises      EntrepriseRepository
	Memberships      MembershipRepository
	Customers        CustomerRepository
	Invoices         InvoiceRepository
	BankTransactions BankTransactionRepository
	Reconciliations  ReconciliationRepository
}
