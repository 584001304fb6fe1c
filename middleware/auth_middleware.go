package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/upb/compta-pme/backend/models"
	"github.com/upb/compta-pme/backend/services"
	"github.com/upb/compta-pme/backend/services/tenant"
	"github.com/upb/compta-pme/backend/supabase"
	"github.com/upb/compta-pme/backend/utils"
	"go.uber.org/zap"
)

// TokenVerifier verifies a bearer token
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*supabase.VerifiedClaims, error)
}

// IdentityResolver maps a verified subject to a local user
type IdentityResolver interface {
	ResolveOrCreate(ctx context.Context, subject, email string) (*models.User, error)
}

// TenantResolver checks the user's active tenant
type TenantResolver interface {
	ResolveActive(ctx context.Context, user *models.User) (*tenant.Active, error)
}

// AuthMiddleware authenticates requests and scopes them to a tenant
type AuthMiddleware struct {
	verifier   TokenVerifier
	identities IdentityResolver
	tenants    TenantResolver
	logger     *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(verifier TokenVerifier, identities IdentityResolver, tenants TenantResolver, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier:   verifier,
		identities: identities,
		tenants:    tenants,
		logger:     logger,
	}
}

// RequireAuth verifies the bearer token and attaches the claims and the
// local user to the request context
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := extractBearerToken(r)
		if token == "" {
			_ = utils.WriteUnauthorized(w, "MISSING_TOKEN", "Missing or invalid authorization header")
			return
		}

		claims, err := m.verifier.Verify(ctx, token)
		if err != nil {
			if errors.Is(err, supabase.ErrKeySetUnreachable) {
				m.logger.Warn("signing keys unavailable",
					zap.String("request_id", requestID),
					zap.Error(err))
				_ = utils.WriteError(w, http.StatusServiceUnavailable, services.ErrAuthProviderUnavailable.Code, "Identity provider unavailable, retry later", nil)
				return
			}
			if supabase.IsConfigurationError(err) {
				m.logger.Error("token verification not configured",
					zap.String("request_id", requestID),
					zap.Error(err))
				_ = utils.WriteError(w, http.StatusInternalServerError, "AUTH_NOT_CONFIGURED", "Authentication is not configured", nil)
				return
			}
			m.logger.Debug("token rejected",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, tokenErrorCode(err), "Invalid or expired token")
			return
		}

		user, err := m.identities.ResolveOrCreate(ctx, claims.Subject, claims.Email)
		if err != nil {
			m.writeServiceError(w, requestID, err)
			return
		}

		ctx = WithClaims(ctx, claims)
		ctx = WithUser(ctx, user)

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("user_id", user.ID.String()),
			zap.String("alg", claims.Algorithm))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireTenant resolves the user's active tenant. It must run after RequireAuth.
func (m *AuthMiddleware) RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		user := GetUserFromContext(ctx)
		if user == nil {
			m.logger.Error("user not found in context",
				zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, services.ErrUnauthorized.Code, "Authentication required")
			return
		}

		active, err := m.tenants.ResolveActive(ctx, user)
		if err != nil {
			m.writeServiceError(w, requestID, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithTenant(ctx, active)))
	})
}

// writeServiceError maps the errors the identity and tenant services return
func (m *AuthMiddleware) writeServiceError(w http.ResponseWriter, requestID string, err error) {
	var domainErr *services.DomainError
	if !errors.As(err, &domainErr) || domainErr.Code == "" || services.IsInternalError(err) {
		m.logger.Error("request scoping failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		code := services.ErrInternal.Code
		if errors.Is(err, services.ErrRoleSeedMissing) {
			code = services.ErrRoleSeedMissing.Code
		}
		_ = utils.WriteError(w, http.StatusInternalServerError, code, "An internal error occurred", nil)
		return
	}

	status := http.StatusBadRequest
	switch domainErr.Type {
	case services.ErrorTypeUnauthorized:
		status = http.StatusUnauthorized
	case services.ErrorTypeForbidden:
		status = http.StatusForbidden
	case services.ErrorTypeNotFound:
		status = http.StatusNotFound
	}
	_ = utils.WriteError(w, status, domainErr.Code, domainErr.Message, nil)
}

// tokenErrorCode names the reason a token was rejected
func tokenErrorCode(err error) string {
	switch {
	case errors.Is(err, supabase.ErrTokenExpired):
		return "TOKEN_EXPIRED"
	case errors.Is(err, supabase.ErrTokenMalformed):
		return "TOKEN_MALFORMED"
	case errors.Is(err, supabase.ErrUnsupportedAlgorithm):
		return "UNSUPPORTED_ALGORITHM"
	case errors.Is(err, supabase.ErrKeyNotFound):
		return "KEY_NOT_FOUND"
	default:
		return "INVALID_TOKEN"
	}
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
