package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mind-engage/mindengage-lti/pkg/lti/keyset"
)

var _ keyset.URLResolver = (*Registry)(nil)

// Registry looks platforms up in each store in turn. Only registered
// issuers resolve, so a launch token cannot point the tool at an arbitrary
// key-set URL.
type Registry struct {
	stores   []Store
	template string
}

// NewRegistry builds a registry. template derives a JWKS URL for platforms
// registered without one; "{issuer}" is replaced by the issuer.
func NewRegistry(template string, stores ...Store) *Registry {
	return &Registry{stores: stores, template: template}
}

func (r *Registry) Lookup(ctx context.Context, issuer string) (Platform, error) {
	for _, s := range r.stores {
		p, err := s.Get(ctx, issuer)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Platform{}, err
		}
	}
	return Platform{}, ErrNotFound
}

func (r *Registry) JWKSURL(ctx context.Context, issuer string) (string, error) {
	p, err := r.Lookup(ctx, issuer)
	if err != nil {
		return "", fmt.Errorf("issuer %q: %w", issuer, err)
	}
	if p.JWKSURL != "" {
		return p.JWKSURL, nil
	}
	if r.template == "" {
		return "", fmt.Errorf("issuer %q has no jwks url", issuer)
	}
	return strings.ReplaceAll(r.template, "{issuer}", strings.TrimRight(issuer, "/")), nil
}

