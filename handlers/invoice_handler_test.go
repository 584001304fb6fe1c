package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/compta-pme/backend/middleware"
	"github.com/upb/compta-pme/backend/models"
	"github.com/upb/compta-pme/backend/repositories"
	"github.com/upb/compta-pme/backend/services"
	"github.com/upb/compta-pme/backend/services/invoicing"
	"github.com/upb/compta-pme/backend/services/tenant"
	"go.uber.org/zap"
)

// MockInvoicingService is a mock implementation of InvoicingService
type MockInvoicingService struct {
	mock.Mock
}

func (m *MockInvoicingService) ListCustomers(ctx context.Context, tenantID uuid.UUID) ([]*models.Customer, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Customer), args.Error(1)
}

func (m *MockInvoicingService) CreateCustomer(ctx context.Context, tenantID uuid.UUID, in invoicing.CustomerInput) (*models.Customer, error) {
	args := m.Called(ctx, tenantID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Customer), args.Error(1)
}

func (m *MockInvoicingService) ListInvoices(ctx context.Context, tenantID uuid.UUID, filter repositories.InvoiceFilter) ([]*models.InvoiceSummary, error) {
	args := m.Called(ctx, tenantID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.InvoiceSummary), args.Error(1)
}

func (m *MockInvoicingService) CreateInvoice(ctx context.Context, tenantID uuid.UUID, in invoicing.InvoiceInput) (*models.Invoice, error) {
	args := m.Called(ctx, tenantID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoicingService) GetInvoice(ctx context.Context, tenantID, id uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoicingService) ValidateInvoice(ctx context.Context, tenantID, id uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

func (m *MockInvoicingService) CancelInvoice(ctx context.Context, tenantID, id uuid.UUID) (*models.Invoice, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Invoice), args.Error(1)
}

// inTenant scopes every request to a fixed user and tenant
func inTenant(user *models.User, tenantID uuid.UUID) func(http.Handler) http.Handler {
	active := &tenant.Active{
		Entreprise: &models.Entreprise{ID: tenantID, Name: "Acme", IsActive: true},
		Membership: models.NewMembership(user.ID, tenantID, models.MembershipGerantPME),
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := middleware.WithUser(r.Context(), user)
			ctx = middleware.WithTenant(ctx, active)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func invoiceRouter(svc InvoicingService, tenantID uuid.UUID) http.Handler {
	h := NewInvoiceHandler(svc, zap.NewNop())
	r := chi.NewRouter()
	r.Use(inTenant(models.NewUser("sub", "a@x.com", nil), tenantID))
	r.Get("/customers", h.HandleListCustomers)
	r.Post("/customers", h.HandleCreateCustomer)
	r.Get("/invoices", h.HandleListInvoices)
	r.Post("/invoices", h.HandleCreateInvoice)
	r.Get("/invoices/{id}", h.HandleGetInvoice)
	r.Post("/invoices/{id}/validate", h.HandleValidateInvoice)
	r.Post("/invoices/{id}/cancel", h.HandleCancelInvoice)
	return r
}

func TestInvoiceHandler_Customers(t *testing.T) {
	tenantID := uuid.New()

	t.Run("list", func(t *testing.T) {
		svc := new(MockInvoicingService)
		svc.On("ListCustomers", mock.Anything, tenantID).Return([]*models.Customer{
			models.NewCustomer(tenantID, "Bob SARL"),
		}, nil)

		rec := serve(invoiceRouter(svc, tenantID), http.MethodGet, "/customers", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var customers []models.Customer
		decodeData(t, rec, &customers)
		require.Len(t, customers, 1)
		assert.Equal(t, "Bob SARL", customers[0].Name)
	})

	t.Run("create", func(t *testing.T) {
		svc := new(MockInvoicingService)
		in := invoicing.CustomerInput{Name: "Bob SARL", Email: "bob@x.com", VATNumber: "FR123"}
		svc.On("CreateCustomer", mock.Anything, tenantID, in).Return(models.NewCustomer(tenantID, "Bob SARL"), nil)

		rec := serve(invoiceRouter(svc, tenantID), http.MethodPost, "/customers", `{"name":"Bob SARL","email":"bob@x.com","vat_number":"FR123"}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("create requires name", func(t *testing.T) {
		svc := new(MockInvoicingService)
		rec := serve(invoiceRouter(svc, tenantID), http.MethodPost, "/customers", `{"email":"bob@x.com"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		svc.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestInvoiceHandler_List(t *testing.T) {
	tenantID := uuid.New()

	t.Run("filters are forwarded", func(t *testing.T) {
		svc := new(MockInvoicingService)
		from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
		svc.On("ListInvoices", mock.Anything, tenantID, repositories.InvoiceFilter{
			Status:   models.InvoiceStatusIssued,
			FromDate: &from,
			ToDate:   &to,
		}).Return([]*models.InvoiceSummary{}, nil)

		rec := serve(invoiceRouter(svc, tenantID), http.MethodGet, "/invoices?status=ISSUED&from_date=2026-01-01&to_date=2026-03-31", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
		svc.AssertExpectations(t)
	})

	t.Run("bad date", func(t *testing.T) {
		svc := new(MockInvoicingService)
		rec := serve(invoiceRouter(svc, tenantID), http.MethodGet, "/invoices?from_date=01/01/2026", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown status", func(t *testing.T) {
		svc := new(MockInvoicingService)
		svc.On("ListInvoices", mock.Anything, tenantID, mock.Anything).
			Return(nil, services.NewCodedError(services.ErrorTypeValidation, "INVALID_INPUT", "unknown invoice status"))

		rec := serve(invoiceRouter(svc, tenantID), http.MethodGet, "/invoices?status=LATE", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestInvoiceHandler_Create(t *testing.T) {
	tenantID := uuid.New()
	customerID := uuid.New()

	t.Run("success", func(t *testing.T) {
		svc := new(MockInvoicingService)
		rate := decimal.RequireFromString("5.5")
		due := time.Date(2026, 4, 14, 0, 0, 0, 0, time.UTC)
		expected := invoicing.InvoiceInput{
			CustomerID: customerID,
			IssueDate:  time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
			DueDate:    &due,
			Lines: []invoicing.LineInput{
				{Label: "Consulting", Qty: decimal.NewFromInt(2), UnitPrice: decimal.RequireFromString("150")},
				{Label: "Books", Qty: decimal.NewFromInt(3), UnitPrice: decimal.RequireFromString("19.99"), VATRate: &rate},
			},
		}
		inv := models.NewInvoice(tenantID, customerID, expected.IssueDate, &due)
		inv.Number = "FAC-00001"
		svc.On("CreateInvoice", mock.Anything, tenantID, mock.MatchedBy(func(in invoicing.InvoiceInput) bool {
			if in.CustomerID != expected.CustomerID || !in.IssueDate.Equal(expected.IssueDate) || len(in.Lines) != 2 {
				return false
			}
			return in.DueDate != nil && in.DueDate.Equal(due) &&
				in.Lines[0].VATRate == nil && in.Lines[0].Qty.Equal(decimal.NewFromInt(2)) &&
				in.Lines[1].VATRate != nil && in.Lines[1].VATRate.Equal(rate) &&
				in.Lines[1].UnitPrice.Equal(decimal.RequireFromString("19.99"))
		})).Return(inv, nil)

		body := `{"customer_id":"` + customerID.String() + `","issue_date":"2026-03-14","due_date":"2026-04-14",
			"lines":[{"label":"Consulting","qty":2,"unit_price":"150"},{"label":"Books","qty":"3","unit_price":19.99,"vat_rate":"5.5"}]}`
		rec := serve(invoiceRouter(svc, tenantID), http.MethodPost, "/invoices", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var created models.Invoice
		decodeData(t, rec, &created)
		assert.Equal(t, "FAC-00001", created.Number)
		assert.Equal(t, models.InvoiceStatusDraft, created.Status)
		svc.AssertExpectations(t)
	})

	tests := []struct {
		name string
		body string
	}{
		{"missing customer", `{"lines":[]}`},
		{"malformed customer", `{"customer_id":"abc"}`},
		{"bad issue date", `{"customer_id":"` + customerID.String() + `","issue_date":"14/03/2026"}`},
		{"zero quantity", `{"customer_id":"` + customerID.String() + `","lines":[{"label":"x","qty":0,"unit_price":1}]}`},
		{"negative price", `{"customer_id":"` + customerID.String() + `","lines":[{"label":"x","qty":1,"unit_price":-1}]}`},
		{"missing label", `{"customer_id":"` + customerID.String() + `","lines":[{"qty":1,"unit_price":1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockInvoicingService)
			rec := serve(invoiceRouter(svc, tenantID), http.MethodPost, "/invoices", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			svc.AssertNotCalled(t, "CreateInvoice", mock.Anything, mock.Anything, mock.Anything)
		})
	}

	t.Run("customer of another tenant", func(t *testing.T) {
		svc := new(MockInvoicingService)
		svc.On("CreateInvoice", mock.Anything, tenantID, mock.Anything).Return(nil, services.ErrCustomerNotFound)

		rec := serve(invoiceRouter(svc, tenantID), http.MethodPost, "/invoices", `{"customer_id":"`+customerID.String()+`"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "CUSTOMER_NOT_FOUND", errorCode(t, rec))
	})
}

func TestInvoiceHandler_Lifecycle(t *testing.T) {
	tenantID := uuid.New()
	id := uuid.New()

	issued := models.NewInvoice(tenantID, uuid.New(), time.Now(), nil)
	issued.ID = id
	issued.Status = models.InvoiceStatusIssued

	tests := []struct {
		name           string
		method         string
		path           string
		op             string
		ret            *models.Invoice
		err            error
		expectedStatus int
	}{
		{"get", http.MethodGet, "/invoices/" + id.String(), "GetInvoice", issued, nil, http.StatusOK},
		{"get missing", http.MethodGet, "/invoices/" + id.String(), "GetInvoice", nil, services.ErrInvoiceNotFound, http.StatusNotFound},
		{"validate", http.MethodPost, "/invoices/" + id.String() + "/validate", "ValidateInvoice", issued, nil, http.StatusOK},
		{"validate issued", http.MethodPost, "/invoices/" + id.String() + "/validate", "ValidateInvoice", nil, services.ErrInvalidInvoiceState, http.StatusBadRequest},
		{"cancel", http.MethodPost, "/invoices/" + id.String() + "/cancel", "CancelInvoice", issued, nil, http.StatusOK},
		{"cancel failure", http.MethodPost, "/invoices/" + id.String() + "/cancel", "CancelInvoice", nil, services.WrapInternal("failed", errors.New("db down")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockInvoicingService)
			if tt.ret != nil {
				svc.On(tt.op, mock.Anything, tenantID, id).Return(tt.ret, nil)
			} else {
				svc.On(tt.op, mock.Anything, tenantID, id).Return(nil, tt.err)
			}

			rec := serve(invoiceRouter(svc, tenantID), tt.method, tt.path, "")
			assert.Equal(t, tt.expectedStatus, rec.Code)
			svc.AssertExpectations(t)
		})
	}

	t.Run("malformed id", func(t *testing.T) {
		rec := serve(invoiceRouter(new(MockInvoicingService), tenantID), http.MethodGet, "/invoices/xyz", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
