package launch

import "fmt"

// Reason names why a launch token was rejected.
type Reason string

const (
	MalformedToken     Reason = "malformed_token"
	KeySetUnavailable  Reason = "keyset_unavailable"
	KeyNotFound        Reason = "key_not_found"
	SignatureInvalid   Reason = "signature_invalid"
	Expired            Reason = "expired"
	AudienceMismatch   Reason = "audience_mismatch"
	IssuerMismatch     Reason = "issuer_mismatch"
	NonceMismatch      Reason = "nonce_mismatch"
	DeploymentMismatch Reason = "deployment_mismatch"
	UnsupportedMessage Reason = "unsupported_message"
)

// Result is either Valid or Invalid.
type Result interface {
	isResult()
}

// Valid carries claims whose signature and standard claims were verified.
type Valid struct {
	Claims *IdentityClaims
}

// Invalid carries the first failed check. Detail is diagnostic text only.
type Invalid struct {
	Reason Reason
	Detail string
}

func (Valid) isResult()   {}
func (Invalid) isResult() {}

func (i Invalid) Error() string {
	if i.Detail == "" {
		return fmt.Sprintf("launch: %s", i.Reason)
	}
	return fmt.Sprintf("launch: %s: %s", i.Reason, i.Detail)
}

func invalid(r Reason, format string, args ...any) Invalid {
	return Invalid{Reason: r, Detail: fmt.Sprintf(format, args...)}
}
