package launch

import (
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mind-engage/mindengage-lti/pkg/lti/keyset"
)

// unverifiedHeader holds the fields read before the signature is checked.
// They only select a key; nothing in it is trusted.
type unverifiedHeader struct {
	KeyID     string
	Algorithm string
	Issuer    string
}

func peekUnverifiedHeader(raw string) (unverifiedHeader, error) {
	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return unverifiedHeader{}, err
	}
	var h unverifiedHeader
	h.KeyID, _ = tok.Header["kid"].(string)
	h.Algorithm, _ = tok.Header["alg"].(string)
	if mc, ok := tok.Claims.(jwt.MapClaims); ok {
		iss, err := mc.GetIssuer()
		if err != nil {
			return unverifiedHeader{}, err
		}
		h.Issuer = iss
	}
	if h.Issuer == "" {
		return unverifiedHeader{}, errors.New("missing iss claim")
	}
	return h, nil
}

// verifyAndDecode checks the RS256 signature against key and returns the
// payload. Time and audience claims are checked by the caller.
func verifyAndDecode(raw string, key keyset.SigningKey) (jwt.MapClaims, error) {
	pub, ok := key.Key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key %q is not an RSA public key", key.KeyID)
	}
	if key.Algorithm != "" && key.Algorithm != jwt.SigningMethodRS256.Alg() {
		return nil, fmt.Errorf("key %q is published for %s", key.KeyID, key.Algorithm)
	}
	mc := jwt.MapClaims{}
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := p.ParseWithClaims(raw, mc, func(*jwt.Token) (any, error) { return pub, nil }); err != nil {
		return nil, err
	}
	return mc, nil
}
