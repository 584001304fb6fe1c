package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/upb/compta-pme/backend/config"
	"go.uber.org/zap"
)

// maxUpstreamBody bounds how much of an identity provider response is read
const maxUpstreamBody = 1 << 20

// UpstreamError is a non-2xx answer from the identity provider. Handlers
// relay Status and Body to the client unchanged.
type UpstreamError struct {
	Status int
	Body   json.RawMessage
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("identity provider returned status %d", e.Status)
}

// EmailVerification reports whether the signed-in user confirmed their email
type EmailVerification struct {
	EmailVerified bool    `json:"email_verified"`
	Email         string  `json:"email"`
	ConfirmedAt   *string `json:"confirmed_at"`
}

// SupabaseAuthClient relays sign-up, sign-in and session calls to the
// Supabase auth API. Every call carries the project's apikey header.
type SupabaseAuthClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewSupabaseAuthClient creates a client from the Supabase settings
func NewSupabaseAuthClient(cfg config.SupabaseConfig, logger *zap.Logger) *SupabaseAuthClient {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SupabaseAuthClient{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.AnonKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{},
		},
		logger: logger,
	}
}

// SignUp registers an email/password account
func (c *SupabaseAuthClient) SignUp(ctx context.Context, email, password string) (json.RawMessage, error) {
	return c.call(ctx, http.MethodPost, "/auth/v1/signup", "", map[string]string{
		"email":    email,
		"password": password,
	})
}

// PasswordLogin exchanges credentials for a session
func (c *SupabaseAuthClient) PasswordLogin(ctx context.Context, email, password string) (json.RawMessage, error) {
	return c.call(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Refresh exchanges a refresh token for a new session
func (c *SupabaseAuthClient) Refresh(ctx context.Context, refreshToken string) (json.RawMessage, error) {
	return c.call(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", map[string]string{
		"refresh_token": refreshToken,
	})
}

// Logout revokes the session behind authorization, the caller's
// "Bearer <token>" header value
func (c *SupabaseAuthClient) Logout(ctx context.Context, authorization string) error {
	_, err := c.call(ctx, http.MethodPost, "/auth/v1/logout", authorization, nil)
	return err
}

// VerificationStatus reads the caller's profile and reports whether the
// email is confirmed
func (c *SupabaseAuthClient) VerificationStatus(ctx context.Context, authorization string) (*EmailVerification, error) {
	body, err := c.call(ctx, http.MethodGet, "/auth/v1/user", authorization, nil)
	if err != nil {
		return nil, err
	}

	var profile struct {
		Email            string  `json:"email"`
		EmailConfirmedAt *string `json:"email_confirmed_at"`
	}
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("%w: decode user: %v", ErrAuthProviderUnavailable, err)
	}

	return &EmailVerification{
		EmailVerified: profile.EmailConfirmedAt != nil,
		Email:         profile.Email,
		ConfirmedAt:   profile.EmailConfirmedAt,
	}, nil
}

// ResendVerification sends the sign-up confirmation email again
func (c *SupabaseAuthClient) ResendVerification(ctx context.Context, email string) error {
	_, err := c.call(ctx, http.MethodPost, "/auth/v1/resend", "", map[string]string{
		"type":  "signup",
		"email": email,
	})
	return err
}

// GoogleAuthURL returns the provider's Google sign-in URL. An empty
// redirectTo leaves the provider's default redirect in place.
func (c *SupabaseAuthClient) GoogleAuthURL(redirectTo string) (string, error) {
	if err := c.configured(); err != nil {
		return "", err
	}

	params := url.Values{
		"provider": {"google"},
		"apikey":   {c.apiKey},
	}
	if redirectTo != "" {
		params.Set("redirect_to", redirectTo)
	}
	return c.baseURL + "/auth/v1/authorize?" + params.Encode(), nil
}

func (c *SupabaseAuthClient) configured() error {
	if c.baseURL == "" || c.apiKey == "" {
		return ErrAuthProviderNotConfigured
	}
	return nil
}

// call sends one request and returns the response body on a 2xx status.
// Other statuses come back as *UpstreamError.
func (c *SupabaseAuthClient) call(ctx context.Context, method, path, authorization string, payload interface{}) (json.RawMessage, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("identity provider request failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrAuthProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrAuthProviderUnavailable, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.Debug("identity provider rejected request",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		if !json.Valid(body) {
			body, _ = json.Marshal(map[string]string{"error": strings.TrimSpace(string(body))})
		}
		return nil, &UpstreamError{Status: resp.StatusCode, Body: body}
	}

	if len(body) == 0 || !json.Valid(body) {
		body = json.RawMessage(`{}`)
	}
	return body, nil
}
