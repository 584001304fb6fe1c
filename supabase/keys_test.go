package supabase

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const jwksPath = "/auth/v1/.well-known/jwks.json"

func ecJWK(kid string, pub *ecdsa.PublicKey) JWK {
	x := make([]byte, 32)
	y := make([]byte, 32)
	pub.X.FillBytes(x)
	pub.Y.FillBytes(y)
	return JWK{
		Kid: kid,
		Kty: "EC",
		Alg: "ES256",
		Use: "sig",
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(x),
		Y:   base64.RawURLEncoding.EncodeToString(y),
	}
}

// jwksServer serves whatever key set is currently stored and counts requests
type jwksServer struct {
	*httptest.Server
	hits   atomic.Int32
	mu     sync.Mutex
	keys   []JWK
	status int
}

func newJWKSServer(t *testing.T, keys ...JWK) *jwksServer {
	s := &jwksServer{keys: keys, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		if r.URL.Path != jwksPath {
			http.NotFound(w, r)
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.status != http.StatusOK {
			w.WriteHeader(s.status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(JWKS{Keys: s.keys})
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) setKeys(keys ...JWK) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = keys
}

func newTestResolver(url string) *KeyResolver {
	return NewKeyResolver(KeyResolverConfig{
		JWKSURL:  url,
		Timeout:  time.Second,
		CacheTTL: time.Minute,
	}, zap.NewNop())
}

func generateKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func TestKeyResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	key := generateKey(t)

	t.Run("fetches once then serves from cache", func(t *testing.T) {
		srv := newJWKSServer(t, ecJWK("key-1", &key.PublicKey))
		r := newTestResolver(srv.URL + jwksPath)

		for i := 0; i < 3; i++ {
			pub, err := r.Resolve(ctx, "key-1")
			require.NoError(t, err)
			assert.True(t, pub.Equal(&key.PublicKey))
		}
		assert.Equal(t, int32(1), srv.hits.Load())
	})

	t.Run("unknown kid forces exactly one refresh", func(t *testing.T) {
		srv := newJWKSServer(t, ecJWK("key-1", &key.PublicKey))
		r := newTestResolver(srv.URL + jwksPath)

		_, err := r.Resolve(ctx, "key-1")
		require.NoError(t, err)

		_, err = r.Resolve(ctx, "rotated")
		assert.ErrorIs(t, err, ErrKeyNotFound)
		assert.Equal(t, int32(2), srv.hits.Load())
	})

	t.Run("rotated key is picked up by the forced refresh", func(t *testing.T) {
		rotated := generateKey(t)
		srv := newJWKSServer(t, ecJWK("key-1", &key.PublicKey))
		r := newTestResolver(srv.URL + jwksPath)

		_, err := r.Resolve(ctx, "key-1")
		require.NoError(t, err)

		srv.setKeys(ecJWK("key-1", &key.PublicKey), ecJWK("key-2", &rotated.PublicKey))
		pub, err := r.Resolve(ctx, "key-2")
		require.NoError(t, err)
		assert.True(t, pub.Equal(&rotated.PublicKey))
	})

	t.Run("unknown kids do not refetch within the minimum interval", func(t *testing.T) {
		srv := newJWKSServer(t, ecJWK("key-1", &key.PublicKey))
		r := newTestResolver(srv.URL + jwksPath)
		now := time.Now()
		r.now = func() time.Time { return now }

		_, err := r.Resolve(ctx, "key-1")
		require.NoError(t, err)

		for i := 0; i < 20; i++ {
			_, err = r.Resolve(ctx, "bogus")
			assert.ErrorIs(t, err, ErrKeyNotFound)
		}
		_, err = r.Resolve(ctx, "")
		assert.ErrorIs(t, err, ErrKeyNotFound)
		assert.Equal(t, int32(2), srv.hits.Load())

		now = now.Add(31 * time.Second)
		_, err = r.Resolve(ctx, "bogus")
		assert.ErrorIs(t, err, ErrKeyNotFound)
		assert.Equal(t, int32(3), srv.hits.Load())

		pub, err := r.Resolve(ctx, "key-1")
		require.NoError(t, err)
		assert.True(t, pub.Equal(&key.PublicKey))
		assert.Equal(t, int32(3), srv.hits.Load())
	})

	t.Run("expired cache is refreshed", func(t *testing.T) {
		srv := newJWKSServer(t, ecJWK("key-1", &key.PublicKey))
		r := newTestResolver(srv.URL + jwksPath)
		now := time.Now()
		r.now = func() time.Time { return now }

		_, err := r.Resolve(ctx, "key-1")
		require.NoError(t, err)

		now = now.Add(2 * time.Minute)
		_, err = r.Resolve(ctx, "key-1")
		require.NoError(t, err)
		assert.Equal(t, int32(2), srv.hits.Load())
	})

	t.Run("missing base url", func(t *testing.T) {
		r := newTestResolver("")
		_, err := r.Resolve(ctx, "key-1")
		assert.ErrorIs(t, err, ErrKeyDiscoveryUnavailable)
	})

	t.Run("upstream error", func(t *testing.T) {
		srv := newJWKSServer(t)
		srv.status = http.StatusInternalServerError
		r := newTestResolver(srv.URL + jwksPath)

		_, err := r.Resolve(ctx, "key-1")
		assert.ErrorIs(t, err, ErrKeySetUnreachable)
		assert.False(t, IsConfigurationError(err))
	})

	t.Run("non EC keys are ignored", func(t *testing.T) {
		srv := newJWKSServer(t, JWK{Kid: "rsa-1", Kty: "RSA"})
		r := newTestResolver(srv.URL + jwksPath)

		_, err := r.Resolve(ctx, "rsa-1")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})
}

func TestKeyResolver_ConcurrentResolveFetchesOnce(t *testing.T) {
	key := generateKey(t)
	srv := newJWKSServer(t, ecJWK("key-1", &key.PublicKey))
	r := newTestResolver(srv.URL + jwksPath)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Resolve(context.Background(), "key-1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), srv.hits.Load())
}

func TestJWKToECDSAPublicKey(t *testing.T) {
	key := generateKey(t)

	t.Run("valid", func(t *testing.T) {
		jwk := ecJWK("k", &key.PublicKey)
		pub, err := jwkToECDSAPublicKey(&jwk)
		require.NoError(t, err)
		assert.True(t, pub.Equal(&key.PublicKey))
	})

	t.Run("wrong curve", func(t *testing.T) {
		jwk := ecJWK("k", &key.PublicKey)
		jwk.Crv = "P-384"
		_, err := jwkToECDSAPublicKey(&jwk)
		assert.Error(t, err)
	})

	t.Run("point not on curve", func(t *testing.T) {
		jwk := ecJWK("k", &key.PublicKey)
		jwk.Y = jwk.X
		_, err := jwkToECDSAPublicKey(&jwk)
		assert.Error(t, err)
	})
}

func TestVerifierWithKeyResolver(t *testing.T) {
	key := generateKey(t)
	srv := newJWKSServer(t, ecJWK("key-1", &key.PublicKey))
	v := NewVerifier(VerifierConfig{}, newTestResolver(srv.URL+jwksPath), zap.NewNop())

	token := jwt.NewWithClaims(jwt.SigningMethodES256, testClaims("user-es", Audience, time.Now().Add(time.Hour)))
	token.Header["kid"] = "key-1"
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	claims, err := v.Verify(context.Background(), signed)
	require.NoError(t, err)
	assert.Equal(t, "user-es", claims.Subject)
}
