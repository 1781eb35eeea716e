// Package assertion builds the signed JWT a tool presents as its client
// credential at a platform's OAuth2 token endpoint.
package assertion

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultKeyID = "lti-service-key"
	DefaultTTL   = 5 * time.Minute
)

// Assertion is a signed client assertion. It is meant for a single exchange.
type Assertion struct {
	Token     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SigningError reports a missing or unusable private key or incomplete input.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string { return "assertion: " + e.Err.Error() }
func (e *SigningError) Unwrap() error { return e.Err }

// Builder holds the settings shared by every assertion a tool signs.
// The zero value uses DefaultKeyID, DefaultTTL, time.Now and random UUIDs.
type Builder struct {
	KeyID string
	TTL   time.Duration
	Now   func() time.Time
	NewID func() string
}

// Sign returns an RS256 assertion with iss=sub=clientID and
// aud=[tokenEndpoint, platformIssuer].
func (b Builder) Sign(clientID, tokenEndpoint, platformIssuer string, key *rsa.PrivateKey) (Assertion, error) {
	if key == nil {
		return Assertion{}, &SigningError{Err: errors.New("private key is not configured")}
	}
	if err := key.Validate(); err != nil {
		return Assertion{}, &SigningError{Err: fmt.Errorf("invalid private key: %w", err)}
	}
	if clientID == "" {
		return Assertion{}, &SigningError{Err: errors.New("client id is empty")}
	}
	if tokenEndpoint == "" {
		return Assertion{}, &SigningError{Err: errors.New("token endpoint is empty")}
	}

	iat := b.now().UTC().Truncate(time.Second)
	exp := iat.Add(b.ttl())
	id := b.newID()

	aud := jwt.ClaimStrings{tokenEndpoint}
	if platformIssuer != "" && platformIssuer != tokenEndpoint {
		aud = append(aud, platformIssuer)
	}
	claims := jwt.RegisteredClaims{
		Issuer:    clientID,
		Subject:   clientID,
		Audience:  aud,
		IssuedAt:  jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        id,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = b.keyID()

	signed, err := tok.SignedString(key)
	if err != nil {
		return Assertion{}, &SigningError{Err: err}
	}
	return Assertion{Token: signed, ID: id, IssuedAt: iat, ExpiresAt: exp}, nil
}

func (b Builder) keyID() string {
	if b.KeyID != "" {
		return b.KeyID
	}
	return DefaultKeyID
}

func (b Builder) ttl() time.Duration {
	if b.TTL > 0 {
		return b.TTL
	}
	return DefaultTTL
}

func (b Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

func (b Builder) newID() string {
	if b.NewID != nil {
		return b.NewID()
	}
	return uuid.NewString()
}

// Signer produces assertions for a given client and platform.
type Signer interface {
	SignAssertion(clientID, tokenEndpoint, platformIssuer string) (Assertion, error)
}

// KeySigner signs with a fixed tool private key.
type KeySigner struct {
	Builder
	Key *rsa.PrivateKey
}

func (s *KeySigner) SignAssertion(clientID, tokenEndpoint, platformIssuer string) (Assertion, error) {
	return s.Sign(clientID, tokenEndpoint, platformIssuer, s.Key)
}
