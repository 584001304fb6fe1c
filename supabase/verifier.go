package supabase

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// KeyLookup resolves ES256 verification keys by kid
type KeyLookup interface {
	Resolve(ctx context.Context, kid string) (*ecdsa.PublicKey, error)
}

// VerifierConfig holds configuration for Verifier
type VerifierConfig struct {
	JWTSecret             string
	AllowAudienceFallback bool
}

// Verifier validates bearer tokens and returns their claims
type Verifier struct {
	secret        []byte
	keys          KeyLookup
	allowFallback bool
	logger        *zap.Logger
}

// NewVerifier creates a token verifier
func NewVerifier(cfg VerifierConfig, keys KeyLookup, logger *zap.Logger) *Verifier {
	return &Verifier{
		secret:        []byte(cfg.JWTSecret),
		keys:          keys,
		allowFallback: cfg.AllowAudienceFallback,
		logger:        logger,
	}
}

// Verify checks the signature, expiry and audience of raw
func (v *Verifier) Verify(ctx context.Context, raw string) (*VerifiedClaims, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(raw, &Claims{})
	if err != nil {
		// The header decoded but names no algorithm jwt knows, or none at all
		if unverified != nil && errors.Is(err, jwt.ErrTokenUnverifiable) {
			alg, _ := unverified.Header["alg"].(string)
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	alg, _ := unverified.Header["alg"].(string)
	kid, _ := unverified.Header["kid"].(string)

	var key interface{}
	switch alg {
	case AlgHS256:
		if len(v.secret) == 0 {
			return nil, ErrSigningSecretNotConfigured
		}
		key = v.secret
	case AlgES256:
		if v.keys == nil {
			return nil, ErrKeyDiscoveryUnavailable
		}
		pub, err := v.keys.Resolve(ctx, kid)
		if err != nil {
			return nil, err
		}
		key = pub
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}

	claims, err := v.parse(raw, alg, key, true)
	audienceChecked := true
	if err != nil && isAudienceOnlyFailure(err) {
		if !v.allowFallback {
			return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
		}
		v.logger.Warn("token audience mismatch accepted by fallback",
			zap.String("alg", alg),
			zap.Strings("expected", []string{Audience}))
		claims, err = v.parse(raw, alg, key, false)
		audienceChecked = false
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrTokenInvalid)
	}

	verified := &VerifiedClaims{
		Subject:         claims.Subject,
		Email:           claims.Email,
		Algorithm:       alg,
		AudienceChecked: audienceChecked,
	}
	if claims.ExpiresAt != nil {
		verified.ExpiresAt = claims.ExpiresAt.Time
	}
	return verified, nil
}

func (v *Verifier) parse(raw, alg string, key interface{}, checkAudience bool) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{alg}),
		jwt.WithExpirationRequired(),
	}
	if checkAudience {
		opts = append(opts, jwt.WithAudience(Audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// isAudienceOnlyFailure is true when the signature was good and the
// audience was the only claim rejected
func isAudienceOnlyFailure(err error) bool {
	return errors.Is(err, jwt.ErrTokenInvalidAudience) &&
		!errors.Is(err, jwt.ErrTokenExpired) &&
		!errors.Is(err, jwt.ErrTokenSignatureInvalid) &&
		!errors.Is(err, jwt.ErrTokenNotValidYet)
}
