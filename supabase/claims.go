// Package supabase verifies access tokens issued by a Supabase-compatible
// identity provider.
package supabase

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Audience carried by end-user access tokens
const Audience = "authenticated"

const (
	AlgHS256 = "HS256"
	AlgES256 = "ES256"
)

var (
	// ErrTokenMalformed is returned when the token cannot be decoded
	ErrTokenMalformed = errors.New("malformed token")

	// ErrUnsupportedAlgorithm is returned for any alg outside HS256 and ES256
	ErrUnsupportedAlgorithm = errors.New("unsupported signing algorithm")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid is returned for every other verification failure
	ErrTokenInvalid = errors.New("invalid token")

	// ErrSigningSecretNotConfigured is returned for HS256 tokens when no shared secret is set
	ErrSigningSecretNotConfigured = errors.New("jwt signing secret not configured")

	// ErrKeyDiscoveryUnavailable is returned when no key discovery URL is configured
	ErrKeyDiscoveryUnavailable = errors.New("key discovery unavailable")

	// ErrKeySetUnreachable is returned when the key set endpoint fails or answers garbage
	ErrKeySetUnreachable = errors.New("key set unreachable")

	// ErrKeyNotFound is returned when no key matches the token kid
	ErrKeyNotFound = errors.New("signing key not found")
)

// Claims are the token claims read by the backend
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// VerifiedClaims is the outcome of a successful verification
type VerifiedClaims struct {
	Subject   string
	Email     string
	Algorithm string
	ExpiresAt time.Time

	// False only when the audience fallback accepted the token
	AudienceChecked bool
}

// IsConfigurationError reports whether err comes from missing server-side
// configuration rather than from the token itself.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrSigningSecretNotConfigured) || errors.Is(err, ErrKeyDiscoveryUnavailable)
}
