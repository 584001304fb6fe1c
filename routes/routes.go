package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/compta-pme/backend/app"
	"github.com/upb/compta-pme/backend/middleware"
	"github.com/upb/compta-pme/backend/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.Health.HandleHealth)
	r.Get("/readyz", deps.Health.HandleReadiness)

	auth := deps.AuthMiddleware

	r.Route("/api/v1", func(r chi.Router) {
		// Auth proxy; register and login are public
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", deps.Auth.HandleRegister)
			r.Post("/login", deps.Auth.HandleLogin)
			r.Post("/refresh", deps.Auth.HandleRefresh)
			r.Post("/resend-verification", deps.Auth.HandleResendVerification)
			r.Get("/google", deps.Auth.HandleGoogle)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAuth)
				r.Post("/logout", deps.Auth.HandleLogout)
				r.Get("/verify-email-status", deps.Auth.HandleVerifyEmailStatus)
			})
		})

		// Authenticated, tenant optional
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)

			r.Get("/users/me", deps.Users.HandleMe)

			r.Route("/companies", func(r chi.Router) {
				r.Get("/", deps.Company.HandleListCompanies)
				r.Post("/", deps.Company.HandleCreateCompany)
				r.Get("/{id}", deps.Company.HandleGetCompany)
			})

			r.Route("/tenants", func(r chi.Router) {
				r.Get("/", deps.Company.HandleListTenants)
				r.Post("/switch", deps.Company.HandleSwitchTenant)
				r.Get("/current", deps.Company.HandleCurrentTenant)
			})
		})

		// Authenticated and scoped to the active tenant
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)
			r.Use(auth.RequireTenant)

			r.Route("/team", func(r chi.Router) {
				r.Get("/members", deps.Members.HandleListMembers)
				r.Post("/invite", deps.Members.HandleInvite)
				r.Delete("/members/{id}", deps.Members.HandleRemove)
				r.Patch("/members/{id}/role", deps.Members.HandleUpdateRole)
			})

			r.Route("/customers", func(r chi.Router) {
				r.Get("/", deps.Invoices.HandleListCustomers)
				r.Post("/", deps.Invoices.HandleCreateCustomer)
			})

			r.Route("/invoices", func(r chi.Router) {
				r.Get("/", deps.Invoices.HandleListInvoices)
				r.Post("/", deps.Invoices.HandleCreateInvoice)
				r.Get("/{id}", deps.Invoices.HandleGetInvoice)
				r.Post("/{id}/validate", deps.Invoices.HandleValidateInvoice)
				r.Post("/{id}/cancel", deps.Invoices.HandleCancelInvoice)
			})

			r.Route("/bank-transactions", func(r chi.Router) {
				r.Get("/", deps.Bank.HandleListTransactions)
				r.Post("/", deps.Bank.HandleCreateTransaction)
			})
			r.Get("/treasury/dashboard", deps.Bank.HandleDashboard)

			r.Route("/reconciliations", func(r chi.Router) {
				r.Get("/", deps.Bank.HandleListReconciliations)
				r.Post("/", deps.Bank.HandleCreateReconciliation)
				r.Delete("/{id}", deps.Bank.HandleDeleteReconciliation)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
