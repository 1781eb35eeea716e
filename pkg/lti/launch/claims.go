package launch

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LTI 1.3 claim names.
const (
	ClaimDeploymentID = "https://purl.imsglobal.org/spec/lti/claim/deployment_id"
	ClaimMessageType  = "https://purl.imsglobal.org/spec/lti/claim/message_type"
	ClaimVersion      = "https://purl.imsglobal.org/spec/lti/claim/version"
	ClaimRoles        = "https://purl.imsglobal.org/spec/lti/claim/roles"
	ClaimAGSEndpoint  = "https://purl.imsglobal.org/spec/lti-ags/claim/endpoint"
)

const (
	MessageResourceLink = "LtiResourceLinkRequest"
	MessageDeepLinking  = "LtiDeepLinkingRequest"
	Version13           = "1.3.0"
)

// IdentityClaims is the verified claim set of a launch token.
type IdentityClaims struct {
	Issuer    string
	Audience  []string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Nonce     string
	KeyID     string

	DeploymentID string
	MessageType  string
	Version      string
	Name         string
	Email        string
	Roles        []string
	AGS          *AGSEndpoint

	// Payload is the full decoded payload.
	Payload map[string]any
}

// AGSEndpoint is the Assignment and Grade Services claim.
type AGSEndpoint struct {
	LineItem  string   `json:"lineitem,omitempty"`
	LineItems string   `json:"lineitems,omitempty"`
	Scope     []string `json:"scope,omitempty"`
}

// identityFrom builds IdentityClaims from a payload whose signature has
// already been checked.
func identityFrom(mc jwt.MapClaims, kid string) *IdentityClaims {
	c := &IdentityClaims{
		KeyID:        kid,
		Nonce:        str(mc["nonce"]),
		DeploymentID: str(mc[ClaimDeploymentID]),
		MessageType:  str(mc[ClaimMessageType]),
		Version:      str(mc[ClaimVersion]),
		Name:         str(mc["name"]),
		Email:        str(mc["email"]),
		Roles:        strs(mc[ClaimRoles]),
		Payload:      map[string]any(mc),
	}
	c.Issuer, _ = mc.GetIssuer()
	c.Subject, _ = mc.GetSubject()
	if aud, err := mc.GetAudience(); err == nil {
		c.Audience = []string(aud)
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if m, ok := mc[ClaimAGSEndpoint].(map[string]any); ok {
		c.AGS = &AGSEndpoint{
			LineItem:  str(m["lineitem"]),
			LineItems: str(m["lineitems"]),
			Scope:     strs(m["scope"]),
		}
	}
	return c
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func strs(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
