package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/compta-pme/backend/models"
	"github.com/upb/compta-pme/backend/services/tenant"
	"github.com/upb/compta-pme/backend/supabase"
)

// Context key type to avoid collisions
type contextKey string

const (
	// ClaimsKey is the context key for verified token claims
	ClaimsKey contextKey = "claims"

	// UserKey is the context key for the resolved local user
	UserKey contextKey = "user"

	// TenantKey is the context key for the checked active tenant
	TenantKey contextKey = "tenant"
)

// GetRequestIDFromContext returns the ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// GetClaimsFromContext retrieves verified claims from context
func GetClaimsFromContext(ctx context.Context) *supabase.VerifiedClaims {
	if claims, ok := ctx.Value(ClaimsKey).(*supabase.VerifiedClaims); ok {
		return claims
	}
	return nil
}

// WithClaims adds verified claims to the context
func WithClaims(ctx context.Context, claims *supabase.VerifiedClaims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetUserFromContext retrieves the authenticated user from context
func GetUserFromContext(ctx context.Context) *models.User {
	if user, ok := ctx.Value(UserKey).(*models.User); ok {
		return user
	}
	return nil
}

// WithUser adds the authenticated user to the context
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// GetTenantFromContext retrieves the active tenant from context
func GetTenantFromContext(ctx context.Context) *tenant.Active {
	if active, ok := ctx.Value(TenantKey).(*tenant.Active); ok {
		return active
	}
	return nil
}

// WithTenant adds the active tenant to the context
func WithTenant(ctx context.Context, active *tenant.Active) context.Context {
	return context.WithValue(ctx, TenantKey, active)
}
