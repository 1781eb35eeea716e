package keys

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

// PublicJWK returns the public half of k as a signing JWK.
func PublicJWK(k *rsa.PrivateKey, kid string) jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       &k.PublicKey,
		KeyID:     kid,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}
}

// PublicJWKS returns a key set holding only k's public key.
func PublicJWKS(k *rsa.PrivateKey, kid string) jose.JSONWebKeySet {
	return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{PublicJWK(k, kid)}}
}

// SelfTest signs a short-lived token with k and verifies it with the public
// key.
func SelfTest(k *rsa.PrivateKey, kid string) error {
	if k == nil {
		return errors.New("no private key")
	}
	claims := jwt.RegisteredClaims{
		Subject:   "key-self-test",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(k)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	_, err = jwt.Parse(signed, func(t *jwt.Token) (any, error) { return &k.PublicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	return nil
}
