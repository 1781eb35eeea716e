// Package platform keeps the LMS platforms this tool is registered with.
package platform

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-lti/pkg/lti/token"
)

var (
	ErrNotFound = errors.New("platform: not found")
	ErrReadOnly = errors.New("platform: store is read-only")
)

// Platform is one LMS registration: the tool's client id there and the
// platform's OIDC, token and key-set endpoints.
type Platform struct {
	Issuer       string    `json:"issuer"`
	ClientID     string    `json:"client_id"`
	DeploymentID string    `json:"deployment_id,omitempty"`
	AuthURL      string    `json:"auth_url,omitempty"`
	TokenURL     string    `json:"token_url"`
	JWKSURL      string    `json:"jwks_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Registration returns the token-exchange coordinates of p.
func (p Platform) Registration() token.Registration {
	return token.Registration{ClientID: p.ClientID, Issuer: p.Issuer, TokenEndpoint: p.TokenURL}
}

// Validate checks required fields and that every endpoint is an absolute
// http(s) URL.
func (p Platform) Validate() error {
	if strings.TrimSpace(p.Issuer) == "" {
		return errors.New("issuer is required")
	}
	if strings.TrimSpace(p.ClientID) == "" {
		return errors.New("client_id is required")
	}
	if p.TokenURL == "" {
		return errors.New("token_url is required")
	}
	for name, v := range map[string]string{
		"issuer": p.Issuer, "auth_url": p.AuthURL, "token_url": p.TokenURL, "jwks_url": p.JWKSURL,
	} {
		if v != "" && !isHTTPURL(v) {
			return fmt.Errorf("%s must be an absolute http(s) URL", name)
		}
	}
	return nil
}

type Store interface {
	Get(ctx context.Context, issuer string) (Platform, error)
	Upsert(ctx context.Context, p Platform) (Platform, error)
	List(ctx context.Context) ([]Platform, error)
	Delete(ctx context.Context, issuer string) error
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
