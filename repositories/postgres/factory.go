package postgres

import (
	"github.com/upb/compta-pme/backend/config"
	"github.com/upb/compta-pme/backend/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory opens the database and creates a repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	return NewRepositoryFactoryFromDB(db, logger), nil
}

// NewRepositoryFactoryFromDB creates a factory over an existing pool
func NewRepositoryFactoryFromDB(db *DB, logger *zap.Logger) *RepositoryFactory {
	return &RepositoryFactory{db: db, logger: logger}
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Roles:            NewRoleRepository(f.db, f.logger),
		Users:            NewUserRepository(f.db, f.logger),
		Entreprises:      NewEntrepriseRepository(f.db, f.logger),
		Memberships:      NewMembershipRepository(f.db, f.logger),
		Customers:        NewCustomerRepository(f.db, f.logger),
		Invoices:         NewInvoiceRepository(f.db, f.logger),
		BankTransactions: NewBankTransactionRepository(f.db, f.logger),
		Reconciliations:  NewReconciliationRepository(f.db, f.logger),
	}
}

// GetTransactionManager returns a transaction manager
func (f *RepositoryFactory) GetTransactionManager() repositories.TransactionManager {
	return NewTransactionManager(f.db, f.logger)
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}
