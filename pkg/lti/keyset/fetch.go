package keyset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
)

const (
	maxKeySetBytes = 1 << 20
	maxErrorBody   = 4 << 10
)

// HTTPFetcher downloads a platform JWKS over HTTP(S).
type HTTPFetcher struct {
	// HTTP must carry a timeout; a nil HTTP uses a 15s client.
	HTTP     *http.Client
	Resolver URLResolver
}

func (f *HTTPFetcher) Fetch(ctx context.Context, issuer string) (*SigningKeySet, error) {
	if f.Resolver == nil {
		return nil, &FetchError{Issuer: issuer, Err: errors.New("no JWKS URL resolver configured")}
	}
	u, err := f.Resolver.JWKSURL(ctx, issuer)
	if err != nil {
		return nil, &FetchError{Issuer: issuer, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &FetchError{Issuer: issuer, URL: u, Err: err}
	}
	req.Header.Set("Accept", "application/jwk-set+json, application/json")

	resp, err := f.client().Do(req)
	if err != nil {
		return nil, &FetchError{Issuer: issuer, URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &FetchError{Issuer: issuer, URL: u, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetBytes))
	if err != nil {
		return nil, &FetchError{Issuer: issuer, URL: u, StatusCode: resp.StatusCode, Err: err}
	}
	keys, err := ParseKeySet(body)
	if err != nil {
		return nil, &ParseError{Issuer: issuer, URL: u, Err: err}
	}
	return &SigningKeySet{Issuer: issuer, URL: u, Keys: keys}, nil
}

func (f *HTTPFetcher) client() *http.Client {
	if f.HTTP != nil {
		return f.HTTP
	}
	return &http.Client{Timeout: 15 * time.Second}
}

// ParseKeySet decodes a JWKS document ({"keys":[...]}) into public signing keys.
// Individual keys that cannot be decoded (unknown kty, private-only material
// that fails validation) are skipped; a document without a "keys" array is an error.
func ParseKeySet(data []byte) ([]SigningKey, error) {
	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid JWKS JSON: %w", err)
	}
	if doc.Keys == nil {
		return nil, errors.New(`missing "keys" array`)
	}

	out := make([]SigningKey, 0, len(doc.Keys))
	for _, raw := range doc.Keys {
		var jwk jose.JSONWebKey
		if err := jwk.UnmarshalJSON(raw); err != nil {
			continue
		}
		if !jwk.IsPublic() {
			jwk = jwk.Public()
		}
		if !jwk.Valid() {
			continue
		}
		if jwk.Use != "" && jwk.Use != "sig" {
			continue
		}
		out = append(out, SigningKey{
			KeyID:     jwk.KeyID,
			Algorithm: jwk.Algorithm,
			Use:       jwk.Use,
			Key:       jwk.Key,
		})
	}
	return out, nil
}
