package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/compta-pme/backend/services"
	"go.uber.org/zap"
)

// MockAuthProvider is a mock implementation of AuthProvider
type MockAuthProvider struct {
	mock.Mock
}

func (m *MockAuthProvider) SignUp(ctx context.Context, email, password string) (json.RawMessage, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockAuthProvider) PasswordLogin(ctx context.Context, email, password string) (json.RawMessage, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockAuthProvider) Refresh(ctx context.Context, refreshToken string) (json.RawMessage, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockAuthProvider) Logout(ctx context.Context, authorization string) error {
	args := m.Called(ctx, authorization)
	return args.Error(0)
}

func (m *MockAuthProvider) VerificationStatus(ctx context.Context, authorization string) (*services.EmailVerification, error) {
	args := m.Called(ctx, authorization)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.EmailVerification), args.Error(1)
}

func (m *MockAuthProvider) ResendVerification(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockAuthProvider) GoogleAuthURL(redirectTo string) (string, error) {
	args := m.Called(redirectTo)
	return args.String(0), args.Error(1)
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAuthHandler_Register(t *testing.T) {
	t.Run("relays provider body with 201", func(t *testing.T) {
		provider := new(MockAuthProvider)
		provider.On("SignUp", mock.Anything, "a@x.com", "secret123").
			Return(json.RawMessage(`{"id":"u1","email":"a@x.com"}`), nil)
		h := NewAuthHandler(provider, zap.NewNop())

		w := httptest.NewRecorder()
		h.HandleRegister(w, jsonRequest(http.MethodPost, "/api/v1/auth/register", `{"email":"a@x.com","password":"secret123"}`))

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.JSONEq(t, `{"id":"u1","email":"a@x.com"}`, w.Body.String())
		provider.AssertExpectations(t)
	})

	t.Run("missing password", func(t *testing.T) {
		provider := new(MockAuthProvider)
		h := NewAuthHandler(provider, zap.NewNop())

		w := httptest.NewRecorder()
		h.HandleRegister(w, jsonRequest(http.MethodPost, "/api/v1/auth/register", `{"email":"a@x.com"}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "password is required")
		provider.AssertNotCalled(t, "SignUp", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("provider rejection passes through", func(t *testing.T) {
		provider := new(MockAuthProvider)
		provider.On("SignUp", mock.Anything, "a@x.com", "x").Return(nil, &services.UpstreamError{
			Status: http.StatusUnprocessableEntity,
			Body:   json.RawMessage(`{"msg":"Password should be at least 6 characters"}`),
		})
		h := NewAuthHandler(provider, zap.NewNop())

		w := httptest.NewRecorder()
		h.HandleRegister(w, jsonRequest(http.MethodPost, "/api/v1/auth/register", `{"email":"a@x.com","password":"x"}`))

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.JSONEq(t, `{"msg":"Password should be at least 6 characters"}`, w.Body.String())
	})
}

func TestAuthHandler_Login(t *testing.T) {
	provider := new(MockAuthProvider)
	provider.On("PasswordLogin", mock.Anything, "a@x.com", "secret123").
		Return(json.RawMessage(`{"access_token":"at","refresh_token":"rt"}`), nil)
	h := NewAuthHandler(provider, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleLogin(w, jsonRequest(http.MethodPost, "/api/v1/auth/login", `{"email":"a@x.com","password":"secret123"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"access_token":"at","refresh_token":"rt"}`, w.Body.String())
}

func TestAuthHandler_Refresh(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		provider := new(MockAuthProvider)
		provider.On("Refresh", mock.Anything, "rt").Return(json.RawMessage(`{"access_token":"at2"}`), nil)
		h := NewAuthHandler(provider, zap.NewNop())

		w := httptest.NewRecorder()
		h.HandleRefresh(w, jsonRequest(http.MethodPost, "/api/v1/auth/refresh", `{"refresh_token":"rt"}`))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"access_token":"at2"}`, w.Body.String())
	})

	t.Run("empty body", func(t *testing.T) {
		h := NewAuthHandler(new(MockAuthProvider), zap.NewNop())

		w := httptest.NewRecorder()
		h.HandleRefresh(w, jsonRequest(http.MethodPost, "/api/v1/auth/refresh", ``))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthHandler_Logout(t *testing.T) {
	tests := []struct {
		name           string
		providerErr    error
		expectedStatus int
	}{
		{"provider accepts", nil, http.StatusOK},
		{"provider rejects", &services.UpstreamError{Status: http.StatusUnauthorized, Body: json.RawMessage(`{}`)}, http.StatusOK},
		{"provider unreachable", fmt.Errorf("%w: timeout", services.ErrAuthProviderUnavailable), http.StatusOK},
		{"not configured", services.ErrAuthProviderNotConfigured, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := new(MockAuthProvider)
			provider.On("Logout", mock.Anything, "Bearer tok").Return(tt.providerErr)
			h := NewAuthHandler(provider, zap.NewNop())

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
			req.Header.Set("Authorization", "Bearer tok")
			w := httptest.NewRecorder()
			h.HandleLogout(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.JSONEq(t, `{"message":"Logged out"}`, w.Body.String())
			}
			provider.AssertExpectations(t)
		})
	}
}

func TestAuthHandler_VerifyEmailStatus(t *testing.T) {
	confirmed := "2026-01-02T10:00:00Z"
	provider := new(MockAuthProvider)
	provider.On("VerificationStatus", mock.Anything, "Bearer tok").Return(&services.EmailVerification{
		EmailVerified: true,
		Email:         "a@x.com",
		ConfirmedAt:   &confirmed,
	}, nil)
	h := NewAuthHandler(provider, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/verify-email-status", nil)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	h.HandleVerifyEmailStatus(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"email_verified":true,"email":"a@x.com","confirmed_at":"2026-01-02T10:00:00Z"}`, w.Body.String())
}

func TestAuthHandler_ResendVerification(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		provider := new(MockAuthProvider)
		provider.On("ResendVerification", mock.Anything, "a@x.com").Return(nil)
		h := NewAuthHandler(provider, zap.NewNop())

		w := httptest.NewRecorder()
		h.HandleResendVerification(w, jsonRequest(http.MethodPost, "/api/v1/auth/resend-verification", `{"email":"a@x.com"}`))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"message":"Verification email sent"}`, w.Body.String())
	})

	t.Run("invalid email", func(t *testing.T) {
		h := NewAuthHandler(new(MockAuthProvider), zap.NewNop())

		w := httptest.NewRecorder()
		h.HandleResendVerification(w, jsonRequest(http.MethodPost, "/api/v1/auth/resend-verification", `{"email":"nope"}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unreachable provider", func(t *testing.T) {
		provider := new(MockAuthProvider)
		provider.On("ResendVerification", mock.Anything, "a@x.com").
			Return(fmt.Errorf("%w: %v", services.ErrAuthProviderUnavailable, errors.New("dial tcp")))
		h := NewAuthHandler(provider, zap.NewNop())

		w := httptest.NewRecorder()
		h.HandleResendVerification(w, jsonRequest(http.MethodPost, "/api/v1/auth/resend-verification", `{"email":"a@x.com"}`))

		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestAuthHandler_Google(t *testing.T) {
	provider := new(MockAuthProvider)
	provider.On("GoogleAuthURL", "https://app.example.com/cb").
		Return("https://abc.supabase.co/auth/v1/authorize?provider=google", nil)
	h := NewAuthHandler(provider, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/google?redirect_to=https%3A%2F%2Fapp.example.com%2Fcb", nil)
	w := httptest.NewRecorder()
	h.HandleGoogle(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body GoogleAuthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "https://abc.supabase.co/auth/v1/authorize?provider=google", body.URL)
	assert.NotEmpty(t, body.Message)
}
