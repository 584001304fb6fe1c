package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL driver
	"github.com/upb/compta-pme/backend/config"
	"go.uber.org/zap"
)

// pgUniqueViolation is the SQLSTATE for unique_violation
const pgUniqueViolation = "23505"

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return NewDBFromConn(db, logger), nil
}

// NewDBFromConn wraps an already opened pool
func NewDBFromConn(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{
		DB:     db,
		logger: logger,
	}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	// Check if we can query
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation,
// optionally restricted to one constraint name.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// InitSchema creates the tables, seeds the roles and installs the roles guard.
// Every statement is idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}

const schema = `
	-- Global roles, seeded once and never modified
	CREATE TABLE IF NOT EXISTS roles (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		code VARCHAR(50) NOT NULL UNIQUE,
		label VARCHAR(100) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	INSERT INTO roles (code, label, description) VALUES
		('ADMIN_CABINET', 'Administrateur cabinet', 'Accounting firm administrator'),
		('GERANT_PME', 'Gérant PME', 'Small business manager'),
		('COMPTABLE_PME', 'Comptable PME', 'Small business accountant'),
		('COLLABORATEUR', 'Collaborateur', 'Team member')
	ON CONFLICT (code) DO NOTHING;

	CREATE OR REPLACE FUNCTION roles_immutable() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'roles are immutable';
	END;
	$$ LANGUAGE plpgsql;

	DROP TRIGGER IF EXISTS roles_no_update_delete ON roles;
	CREATE TRIGGER roles_no_update_delete
		BEFORE UPDATE OR DELETE ON roles
		FOR EACH ROW EXECUTE FUNCTION roles_immutable();

	CREATE TABLE IF NOT EXISTS entreprises (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		siret CHAR(14) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT entreprises_siret_key UNIQUE (siret),
		CONSTRAINT entreprises_siret_digits CHECK (siret ~ '^[0-9]{14}$')
	);

	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL DEFAULT '',
		role_id UUID REFERENCES roles(id) ON DELETE RESTRICT,
		entreprise_id UUID REFERENCES entreprises(id) ON DELETE SET NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT users_username_key UNIQUE (username)
	);

	CREATE TABLE IF NOT EXISTS memberships (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE RESTRICT,
		entreprise_id UUID NOT NULL REFERENCES entreprises(id) ON DELETE CASCADE,
		role VARCHAR(50) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	-- At most one active membership per (user, entreprise); inactive rows are history
	CREATE UNIQUE INDEX IF NOT EXISTS memberships_active_user_entreprise
		ON memberships (user_id, entreprise_id) WHERE is_active;

	CREATE TABLE IF NOT EXISTS customers (
		id UUID PRIMARY KEY,
		entreprise_id UUID NOT NULL REFERENCES entreprises(id) ON DELETE CASCADE,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL DEFAULT '',
		phone VARCHAR(50) NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		vat_number VARCHAR(50) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS invoices (
		id UUID PRIMARY KEY,
		entreprise_id UUID NOT NULL REFERENCES entreprises(id) ON DELETE CASCADE,
		customer_id UUID NOT NULL REFERENCES customers(id) ON DELETE RESTRICT,
		number VARCHAR(50) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'DRAFT',
		issue_date DATE NOT NULL,
		due_date DATE,
		total_ht NUMERIC(12, 2) NOT NULL DEFAULT 0,
		total_tva NUMERIC(12, 2) NOT NULL DEFAULT 0,
		total_ttc NUMERIC(12, 2) NOT NULL DEFAULT 0,
		hash_prev VARCHAR(64),
		hash_curr VARCHAR(64),
		locked_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT invoices_entreprise_number_key UNIQUE (entreprise_id, number)
	);

	CREATE TABLE IF NOT EXISTS invoice_lines (
		id UUID PRIMARY KEY,
		entreprise_id UUID NOT NULL REFERENCES entreprises(id) ON DELETE CASCADE,
		invoice_id UUID NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
		label VARCHAR(255) NOT NULL,
		qty NUMERIC(12, 2) NOT NULL DEFAULT 1,
		unit_price NUMERIC(12, 2) NOT NULL DEFAULT 0,
		vat_rate NUMERIC(5, 2) NOT NULL DEFAULT 20,
		total_ht NUMERIC(12, 2) NOT NULL DEFAULT 0,
		total_tva NUMERIC(12, 2) NOT NULL DEFAULT 0,
		total_ttc NUMERIC(12, 2) NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS bank_transactions (
		id UUID PRIMARY KEY,
		entreprise_id UUID NOT NULL REFERENCES entreprises(id) ON DELETE CASCADE,
		date DATE NOT NULL,
		label VARCHAR(255) NOT NULL,
		amount NUMERIC(12, 2) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS reconciliations (
		id UUID PRIMARY KEY,
		entreprise_id UUID NOT NULL REFERENCES entreprises(id) ON DELETE CASCADE,
		invoice_id UUID NOT NULL REFERENCES invoices(id) ON DELETE RESTRICT,
		bank_transaction_id UUID NOT NULL REFERENCES bank_transactions(id) ON DELETE RESTRICT,
		matched_amount NUMERIC(12, 2) NOT NULL,
		matched_by UUID REFERENCES users(id) ON DELETE RESTRICT,
		matched_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT reconciliations_match_key UNIQUE (entreprise_id, invoice_id, bank_transaction_id)
	);

	-- Indexes for performance
	CREATE INDEX IF NOT EXISTS idx_users_entreprise_id ON users(entreprise_id);
	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	CREATE INDEX IF NOT EXISTS idx_memberships_entreprise_id ON memberships(entreprise_id);
	CREATE INDEX IF NOT EXISTS idx_customers_entreprise_name ON customers(entreprise_id, name);
	CREATE INDEX IF NOT EXISTS idx_invoices_entreprise_status ON invoices(entreprise_id, status);
	CREATE INDEX IF NOT EXISTS idx_invoices_entreprise_created ON invoices(entreprise_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_invoice_lines_invoice_id ON invoice_lines(invoice_id);
	CREATE INDEX IF NOT EXISTS idx_bank_transactions_entreprise_date ON bank_transactions(entreprise_id, date DESC);
	CREATE INDEX IF NOT EXISTS idx_reconciliations_entreprise_id ON reconciliations(entreprise_id);
`
