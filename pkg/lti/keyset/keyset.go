// pkg/lti/keyset/keyset.go
package keyset

/*
Platform key sets (JWKS) for LTI 1.3 launch verification.

A platform publishes its public signing keys at a JWKS URL. Tools fetch that
document to verify the id_token of every launch. This package provides:

  - SigningKeySet: an immutable snapshot of one issuer's keys
  - HTTPFetcher:   downloads and parses a JWKS for an issuer
  - Cache:         per-issuer TTL cache with copy-on-write publication

Typical wiring:

	fetcher := &keyset.HTTPFetcher{HTTP: hc, Resolver: registry}
	cache := keyset.NewCache(fetcher, keyset.WithTTL(10*time.Minute))
	set, err := cache.Get(ctx, "https://lms.example.edu")
*/

import (
	"context"
	"crypto"
	"time"
)

// SigningKey is one public verification key published by a platform.
type SigningKey struct {
	KeyID     string
	Algorithm string // "RS256" for LTI; may be empty when the JWK omits "alg"
	Use       string
	Key       crypto.PublicKey
}

// SigningKeySet is the complete key set of one issuer at FetchedAt.
// A published set is never modified; refetches replace it wholesale.
type SigningKeySet struct {
	Issuer    string
	URL       string
	Keys      []SigningKey
	FetchedAt time.Time
}

// Lookup returns the key with the given kid.
func (s *SigningKeySet) Lookup(kid string) (SigningKey, bool) {
	if s == nil || kid == "" {
		return SigningKey{}, false
	}
	for _, k := range s.Keys {
		if k.KeyID == kid {
			return k, true
		}
	}
	return SigningKey{}, false
}

// KeySource returns the current key set for an issuer.
type KeySource interface {
	Get(ctx context.Context, issuer string) (*SigningKeySet, error)
}

// Fetcher retrieves a fresh key set for an issuer, bypassing any cache.
type Fetcher interface {
	Fetch(ctx context.Context, issuer string) (*SigningKeySet, error)
}

// URLResolver maps an issuer to the URL of its JWKS document.
type URLResolver interface {
	JWKSURL(ctx context.Context, issuer string) (string, error)
}

// URLResolverFunc adapts a function to URLResolver.
type URLResolverFunc func(ctx context.Context, issuer string) (string, error)

func (f URLResolverFunc) JWKSURL(ctx context.Context, issuer string) (string, error) {
	return f(ctx, issuer)
}
