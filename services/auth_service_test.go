package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/compta-pme/backend/config"
	"go.uber.org/zap"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	apiKey string
	authz  string
	body   map[string]string
}

// fakeSupabase answers every request with status and body and records the last request
func fakeSupabase(t *testing.T, status int, body string) (*httptest.Server, *recordedRequest) {
	t.Helper()
	rec := &recordedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.query = r.URL.RawQuery
		rec.apiKey = r.Header.Get("apikey")
		rec.authz = r.Header.Get("Authorization")
		rec.body = nil
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			require.NoError(t, json.Unmarshal(raw, &rec.body))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func newAuthClient(baseURL string) *SupabaseAuthClient {
	return NewSupabaseAuthClient(config.SupabaseConfig{
		URL:         baseURL,
		AnonKey:     "anon-key",
		HTTPTimeout: 2 * time.Second,
	}, zap.NewNop())
}

func TestSupabaseAuthClient_Calls(t *testing.T) {
	ctx := context.Background()

	t.Run("sign up", func(t *testing.T) {
		srv, rec := fakeSupabase(t, http.StatusOK, `{"id":"u1"}`)
		body, err := newAuthClient(srv.URL).SignUp(ctx, "a@x.com", "secret123")
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"u1"}`, string(body))
		assert.Equal(t, http.MethodPost, rec.method)
		assert.Equal(t, "/auth/v1/signup", rec.path)
		assert.Equal(t, "anon-key", rec.apiKey)
		assert.Equal(t, map[string]string{"email": "a@x.com", "password": "secret123"}, rec.body)
	})

	t.Run("password login", func(t *testing.T) {
		srv, rec := fakeSupabase(t, http.StatusOK, `{"access_token":"at","refresh_token":"rt"}`)
		body, err := newAuthClient(srv.URL).PasswordLogin(ctx, "a@x.com", "secret123")
		require.NoError(t, err)
		assert.Contains(t, string(body), "access_token")
		assert.Equal(t, "/auth/v1/token", rec.path)
		assert.Equal(t, "grant_type=password", rec.query)
	})

	t.Run("refresh", func(t *testing.T) {
		srv, rec := fakeSupabase(t, http.StatusOK, `{"access_token":"at2"}`)
		_, err := newAuthClient(srv.URL).Refresh(ctx, "rt")
		require.NoError(t, err)
		assert.Equal(t, "grant_type=refresh_token", rec.query)
		assert.Equal(t, "rt", rec.body["refresh_token"])
	})

	t.Run("logout forwards authorization", func(t *testing.T) {
		srv, rec := fakeSupabase(t, http.StatusNoContent, ``)
		require.NoError(t, newAuthClient(srv.URL).Logout(ctx, "Bearer tok"))
		assert.Equal(t, "/auth/v1/logout", rec.path)
		assert.Equal(t, "Bearer tok", rec.authz)
	})

	t.Run("resend verification", func(t *testing.T) {
		srv, rec := fakeSupabase(t, http.StatusOK, `{}`)
		require.NoError(t, newAuthClient(srv.URL).ResendVerification(ctx, "a@x.com"))
		assert.Equal(t, "/auth/v1/resend", rec.path)
		assert.Equal(t, map[string]string{"type": "signup", "email": "a@x.com"}, rec.body)
	})
}

func TestSupabaseAuthClient_VerificationStatus(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		body     string
		verified bool
	}{
		{"confirmed", `{"email":"a@x.com","email_confirmed_at":"2026-01-02T10:00:00Z"}`, true},
		{"pending", `{"email":"a@x.com","email_confirmed_at":null}`, false},
		{"field absent", `{"email":"a@x.com"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, rec := fakeSupabase(t, http.StatusOK, tt.body)
			status, err := newAuthClient(srv.URL).VerificationStatus(ctx, "Bearer tok")
			require.NoError(t, err)
			assert.Equal(t, tt.verified, status.EmailVerified)
			assert.Equal(t, "a@x.com", status.Email)
			assert.Equal(t, http.MethodGet, rec.method)
			assert.Equal(t, "/auth/v1/user", rec.path)
			assert.Equal(t, "Bearer tok", rec.authz)
		})
	}
}

func TestSupabaseAuthClient_UpstreamErrorPassesThrough(t *testing.T) {
	srv, _ := fakeSupabase(t, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`)

	_, err := newAuthClient(srv.URL).PasswordLogin(context.Background(), "a@x.com", "wrong")
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusBadRequest, upstream.Status)
	assert.JSONEq(t, `{"error":"invalid_grant","error_description":"Invalid login credentials"}`, string(upstream.Body))
}

func TestSupabaseAuthClient_NonJSONErrorIsWrapped(t *testing.T) {
	srv, _ := fakeSupabase(t, http.StatusBadGateway, `upstream down`)

	_, err := newAuthClient(srv.URL).SignUp(context.Background(), "a@x.com", "secret123")
	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.JSONEq(t, `{"error":"upstream down"}`, string(upstream.Body))
}

func TestSupabaseAuthClient_NotConfigured(t *testing.T) {
	ctx := context.Background()
	clients := map[string]*SupabaseAuthClient{
		"no url": NewSupabaseAuthClient(config.SupabaseConfig{AnonKey: "k"}, zap.NewNop()),
		"no key": NewSupabaseAuthClient(config.SupabaseConfig{URL: "http://127.0.0.1:1"}, zap.NewNop()),
	}

	for name, c := range clients {
		t.Run(name, func(t *testing.T) {
			_, err := c.SignUp(ctx, "a@x.com", "p")
			assert.ErrorIs(t, err, ErrAuthProviderNotConfigured)
			assert.True(t, IsInternalError(err))

			_, err = c.GoogleAuthURL("")
			assert.ErrorIs(t, err, ErrAuthProviderNotConfigured)
		})
	}
}

func TestSupabaseAuthClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	err := newAuthClient(base).Logout(context.Background(), "Bearer tok")
	assert.ErrorIs(t, err, ErrAuthProviderUnavailable)
	assert.True(t, IsExternalError(err))
}

func TestSupabaseAuthClient_GoogleAuthURL(t *testing.T) {
	c := newAuthClient("https://abc.supabase.co/")

	raw, err := c.GoogleAuthURL("https://app.example.com/auth/callback?next=/home")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "abc.supabase.co", u.Host)
	assert.Equal(t, "/auth/v1/authorize", u.Path)
	assert.Equal(t, "google", u.Query().Get("provider"))
	assert.Equal(t, "anon-key", u.Query().Get("apikey"))
	assert.Equal(t, "https://app.example.com/auth/callback?next=/home", u.Query().Get("redirect_to"))

	raw, err = c.GoogleAuthURL("")
	require.NoError(t, err)
	assert.NotContains(t, raw, "redirect_to")
}
