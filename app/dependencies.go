package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/upb/compta-pme/backend/config"
	"github.com/upb/compta-pme/backend/handlers"
	"github.com/upb/compta-pme/backend/middleware"
	"github.com/upb/compta-pme/backend/repositories"
	"github.com/upb/compta-pme/backend/repositories/postgres"
	"github.com/upb/compta-pme/backend/services"
	"github.com/upb/compta-pme/backend/services/access"
	"github.com/upb/compta-pme/backend/services/identity"
	"github.com/upb/compta-pme/backend/services/invoicing"
	"github.com/upb/compta-pme/backend/services/team"
	"github.com/upb/compta-pme/backend/services/tenant"
	"github.com/upb/compta-pme/backend/services/treasury"
	"github.com/upb/compta-pme/backend/supabase"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Repos     *repositories.Repositories
	TxManager repositories.TransactionManager

	// Token verification
	Keys     *supabase.KeyResolver
	Verifier *supabase.Verifier

	// Services
	Identities *identity.Service
	Tenants    *tenant.Service
	Policy     *access.Policy
	Team       *team.Service
	Invoicing  *invoicing.Service
	Treasury   *treasury.Service
	AuthClient *services.SupabaseAuthClient

	AuthMiddleware *middleware.AuthMiddleware

	// Handlers
	Health   *handlers.HealthHandler
	Auth     *handlers.AuthHandler
	Users    *handlers.UserHandler
	Company  *handlers.CompanyHandler
	Members  *handlers.TeamHandler
	Invoices *handlers.InvoiceHandler
	Bank     *handlers.TreasuryHandler
}

// NewDependencies opens the database and wires every component on top of it.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize PostgreSQL
	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps.wire(deps.RepoFactory.NewRepositories(), deps.RepoFactory.GetTransactionManager(), deps.DB.DB)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// NewDependenciesWithRepositories wires the application over an existing
// storage backend. db may be nil when the backend is not SQL.
func NewDependenciesWithRepositories(cfg *config.Config, logger *zap.Logger, repos *repositories.Repositories, txManager repositories.TransactionManager, db *sql.DB) *Dependencies {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}
	deps.wire(repos, txManager, db)
	return deps
}

// initDatabase initializes the PostgreSQL database connection and factory
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.PingContext(ctx); err != nil {
		_ = factory.Close()
		return fmt.Errorf("database ping failed: %w", err)
	}

	if cfg.Database.InitSchema {
		if err := d.DB.InitSchema(ctx); err != nil {
			_ = factory.Close()
			return err
		}
	}

	return nil
}

func (d *Dependencies) wire(repos *repositories.Repositories, txManager repositories.TransactionManager, db *sql.DB) {
	d.Repos = repos
	d.TxManager = txManager

	d.initAuth()

	d.Identities = identity.NewService(repos.Users, repos.Roles, d.Logger)
	d.Tenants = tenant.NewService(repos, txManager, d.Logger)
	d.Policy = access.NewPolicy(repos.Memberships, d.Logger)
	d.Team = team.NewService(repos, d.Policy, txManager, d.Logger)
	d.Invoicing = invoicing.NewService(repos, txManager, d.Logger)
	d.Treasury = treasury.NewService(repos, d.Logger)
	d.AuthClient = services.NewSupabaseAuthClient(d.Config.Supabase, d.Logger)

	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Verifier, d.Identities, d.Tenants, d.Logger)

	d.Health = handlers.NewHealthHandler(db, repos.Roles, d.Logger)
	d.Auth = handlers.NewAuthHandler(d.AuthClient, d.Logger)
	d.Users = handlers.NewUserHandler(repos.Roles, repos.Entreprises, d.Logger)
	d.Company = handlers.NewCompanyHandler(d.Tenants, d.Logger)
	d.Members = handlers.NewTeamHandler(d.Team, d.Logger)
	d.Invoices = handlers.NewInvoiceHandler(d.Invoicing, d.Logger)
	d.Bank = handlers.NewTreasuryHandler(d.Treasury, d.Logger)

	d.Logger.Info("services and handlers initialized")
}

func (d *Dependencies) initAuth() {
	cfg := d.Config

	jwksURL := cfg.Supabase.JWKSURL()
	d.Keys = supabase.NewKeyResolver(supabase.KeyResolverConfig{
		JWKSURL:  jwksURL,
		Timeout:  cfg.Supabase.JWKSTimeout,
		CacheTTL: cfg.Supabase.JWKSCacheTTL,
	}, d.Logger)

	d.Verifier = supabase.NewVerifier(supabase.VerifierConfig{
		JWTSecret:             cfg.Supabase.JWTSecret,
		AllowAudienceFallback: cfg.Auth.AllowAudienceFallback,
	}, d.Keys, d.Logger)

	if cfg.Supabase.JWTSecret == "" {
		d.Logger.Warn("SUPABASE_JWT_SECRET not set, HS256 tokens will be rejected")
	}
	if jwksURL == "" {
		d.Logger.Warn("SUPABASE_URL not set, ES256 tokens will be rejected")
	}
	if cfg.Auth.AllowAudienceFallback {
		d.Logger.Warn("audience fallback enabled, tokens are accepted without audience check on mismatch")
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
