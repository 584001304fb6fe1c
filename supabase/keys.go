package supabase

import (
	"context"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// JWKS represents the JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// KeyResolverConfig holds configuration for KeyResolver
type KeyResolverConfig struct {
	JWKSURL  string
	Timeout  time.Duration
	CacheTTL time.Duration

	// MinRefreshInterval spaces out refreshes forced by unknown kids
	MinRefreshInterval time.Duration
}

// KeyResolver resolves ES256 verification keys from the provider's JWKS
// endpoint. It is safe for concurrent use.
type KeyResolver struct {
	jwksURL    string
	timeout    time.Duration
	cacheTTL   time.Duration
	minRefresh time.Duration
	logger     *zap.Logger

	clientOnce sync.Once
	httpClient *http.Client

	fetches singleflight.Group

	cacheMu    sync.RWMutex
	keys       map[string]*ecdsa.PublicKey
	cacheExp   time.Time
	generation uint64
	lastForced time.Time

	now func() time.Time
}

// NewKeyResolver creates a key resolver. No network call is made until the
// first Resolve.
func NewKeyResolver(cfg KeyResolverConfig, logger *zap.Logger) *KeyResolver {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.MinRefreshInterval <= 0 {
		cfg.MinRefreshInterval = 30 * time.Second
	}

	return &KeyResolver{
		jwksURL:    cfg.JWKSURL,
		timeout:    cfg.Timeout,
		cacheTTL:   cfg.CacheTTL,
		minRefresh: cfg.MinRefreshInterval,
		logger:     logger,
		now:        time.Now,
	}
}

// Resolve returns the public key for kid. A stale cache or an unknown kid
// triggers a single refresh before giving up. Refreshes forced by unknown
// kids happen at most once per MinRefreshInterval.
func (r *KeyResolver) Resolve(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	if r.jwksURL == "" {
		return nil, ErrKeyDiscoveryUnavailable
	}

	key, fresh, gen := r.lookup(kid)
	if key != nil {
		return key, nil
	}
	if fresh {
		if r.forcedRecently() {
			return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
		}
		r.logger.Debug("unknown kid, refreshing key set", zap.String("kid", kid))
	}

	if err := r.refresh(ctx, gen, fresh); err != nil {
		return nil, err
	}

	if key, _, _ := r.lookup(kid); key != nil {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

// lookup returns the cached key, if any, whether the cache is still fresh
// and the generation of the key set that was consulted
func (r *KeyResolver) lookup(kid string) (*ecdsa.PublicKey, bool, uint64) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	fresh := r.keys != nil && r.now().Before(r.cacheExp)
	if !fresh {
		return nil, false, r.generation
	}
	return r.keys[kid], true, r.generation
}

func (r *KeyResolver) forcedRecently() bool {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return !r.lastForced.IsZero() && r.now().Before(r.lastForced.Add(r.minRefresh))
}

// refresh replaces the key set seen at generation seen. Callers that saw the
// same generation share one fetch; a caller whose generation was already
// replaced does not fetch again. forced marks a refresh caused by an
// unknown kid on a fresh cache.
func (r *KeyResolver) refresh(ctx context.Context, seen uint64, forced bool) error {
	_, err, _ := r.fetches.Do(strconv.FormatUint(seen, 10), func() (interface{}, error) {
		r.cacheMu.RLock()
		current := r.generation
		r.cacheMu.RUnlock()
		if current != seen {
			return nil, nil
		}

		keys, err := r.fetch(ctx)
		if err != nil {
			return nil, err
		}

		r.cacheMu.Lock()
		r.keys = keys
		r.cacheExp = r.now().Add(r.cacheTTL)
		r.generation++
		if forced {
			r.lastForced = r.now()
		}
		r.cacheMu.Unlock()

		return nil, nil
	})
	return err
}

func (r *KeyResolver) client() *http.Client {
	r.clientOnce.Do(func() {
		r.httpClient = &http.Client{Timeout: r.timeout}
	})
	return r.httpClient
}

func (r *KeyResolver) fetch(ctx context.Context) (map[string]*ecdsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySetUnreachable, err)
	}

	resp, err := r.client().Do(req)
	if err != nil {
		r.logger.Warn("jwks fetch failed", zap.String("url", r.jwksURL), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrKeySetUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Warn("jwks fetch returned unexpected status",
			zap.String("url", r.jwksURL),
			zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: status code %d", ErrKeySetUnreachable, resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		r.logger.Warn("jwks decode failed", zap.Error(err))
		return nil, fmt.Errorf("%w: failed to decode JWKS: %v", ErrKeySetUnreachable, err)
	}

	keys := make(map[string]*ecdsa.PublicKey, len(jwks.Keys))
	for i := range jwks.Keys {
		jwk := &jwks.Keys[i]
		if jwk.Kty != "EC" {
			continue
		}
		key, err := jwkToECDSAPublicKey(jwk)
		if err != nil {
			r.logger.Warn("skipping unusable jwk", zap.String("kid", jwk.Kid), zap.Error(err))
			continue
		}
		keys[jwk.Kid] = key
	}

	r.logger.Debug("jwks refreshed", zap.Int("keys", len(keys)))
	return keys, nil
}

// jwkToECDSAPublicKey converts a P-256 JWK to an ECDSA public key
func jwkToECDSAPublicKey(jwk *JWK) (*ecdsa.PublicKey, error) {
	if jwk.Crv != "P-256" {
		return nil, fmt.Errorf("unsupported curve %q", jwk.Crv)
	}

	xBytes, err := decodeCoordinate(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("failed to decode x: %w", err)
	}
	yBytes, err := decodeCoordinate(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("failed to decode y: %w", err)
	}

	// Uncompressed SEC 1 point, rejected by ecdh when not on the curve
	point := append([]byte{0x04}, append(xBytes, yBytes...)...)
	if _, err := ecdh.P256().NewPublicKey(point); err != nil {
		return nil, fmt.Errorf("invalid P-256 point: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

func decodeCoordinate(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) > 32 {
		return nil, fmt.Errorf("coordinate too long: %d bytes", len(b))
	}
	// left-pad to the field size
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded, nil
}
