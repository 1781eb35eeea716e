// Package launch validates LTI 1.3 launch id_tokens against the issuing
// platform's published key set.
package launch

import (
	"context"
	"slices"
	"time"

	"github.com/mind-engage/mindengage-lti/pkg/lti/keyset"
)

// Verifier validates a raw launch token.
type Verifier interface {
	Validate(ctx context.Context, raw, expectedNonce string) Result
}

type Config struct {
	// ClientID must appear in the token audience.
	ClientID string
	// ClientIDFor, when set, returns the client id registered for an
	// issuer. An empty result falls back to ClientID.
	ClientIDFor func(ctx context.Context, issuer string) string
	// DeploymentID is compared to the deployment_id claim when
	// RequireLTIClaims is set and it is non-empty.
	DeploymentID     string
	RequireLTIClaims bool
	// Leeway is added to exp before comparing with the clock.
	Leeway time.Duration
	Now    func() time.Time
}

// refresher is implemented by key sources that can force a refetch,
// such as *keyset.Cache.
type refresher interface {
	Refresh(ctx context.Context, issuer string) (*keyset.SigningKeySet, bool, error)
}

type Validator struct {
	keys keyset.KeySource
	cfg  Config
}

var _ Verifier = (*Validator)(nil)

func New(keys keyset.KeySource, cfg Config) *Validator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Validator{keys: keys, cfg: cfg}
}

// Validate runs the checks in order and stops at the first failure.
// Claims are returned only after the signature has been verified.
func (v *Validator) Validate(ctx context.Context, raw, expectedNonce string) Result {
	hdr, err := peekUnverifiedHeader(raw)
	if err != nil {
		return invalid(MalformedToken, "%v", err)
	}

	set, err := v.keys.Get(ctx, hdr.Issuer)
	if err != nil {
		return invalid(KeySetUnavailable, "%v", err)
	}

	key, ok := set.Lookup(hdr.KeyID)
	if !ok && hdr.KeyID != "" {
		// the platform may have rotated keys since the set was cached
		if r, can := v.keys.(refresher); can {
			if fresh, fetched, err := r.Refresh(ctx, hdr.Issuer); err == nil && fetched {
				set = fresh
				key, ok = set.Lookup(hdr.KeyID)
			}
		}
	}
	if !ok {
		return invalid(KeyNotFound, "kid %q not in key set of %s", hdr.KeyID, hdr.Issuer)
	}

	mc, err := verifyAndDecode(raw, key)
	if err != nil {
		return invalid(SignatureInvalid, "%v", err)
	}

	exp, err := mc.GetExpirationTime()
	if err != nil {
		return invalid(MalformedToken, "exp: %v", err)
	}
	if exp == nil {
		return invalid(Expired, "missing exp claim")
	}
	if !v.cfg.Now().Before(exp.Time.Add(v.cfg.Leeway)) {
		return invalid(Expired, "expired at %s", exp.Time.UTC().Format(time.RFC3339))
	}

	aud, err := mc.GetAudience()
	if err != nil {
		return invalid(MalformedToken, "aud: %v", err)
	}
	clientID := v.cfg.ClientID
	if v.cfg.ClientIDFor != nil {
		if id := v.cfg.ClientIDFor(ctx, set.Issuer); id != "" {
			clientID = id
		}
	}
	if clientID == "" || !slices.Contains([]string(aud), clientID) {
		return invalid(AudienceMismatch, "audience %v does not contain client id", []string(aud))
	}

	if iss, _ := mc.GetIssuer(); iss != set.Issuer {
		return invalid(IssuerMismatch, "issuer %q, key set issuer %q", iss, set.Issuer)
	}

	claims := identityFrom(mc, hdr.KeyID)
	if expectedNonce != "" && claims.Nonce != expectedNonce {
		return invalid(NonceMismatch, "nonce does not match")
	}

	if v.cfg.RequireLTIClaims {
		if claims.MessageType != MessageResourceLink && claims.MessageType != MessageDeepLinking {
			return invalid(UnsupportedMessage, "message_type %q", claims.MessageType)
		}
		if claims.Version != Version13 {
			return invalid(UnsupportedMessage, "version %q", claims.Version)
		}
		if v.cfg.DeploymentID != "" && claims.DeploymentID != v.cfg.DeploymentID {
			return invalid(DeploymentMismatch, "deployment_id %q", claims.DeploymentID)
		}
	}

	return Valid{Claims: claims}
}
