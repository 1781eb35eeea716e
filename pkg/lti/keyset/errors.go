package keyset

import "fmt"

// FetchError reports a network failure or a non-2xx answer from the JWKS endpoint.
type FetchError struct {
	Issuer     string
	URL        string
	StatusCode int    // 0 when no HTTP response was received
	Body       string // truncated response body, if any
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("keyset: fetch %s for issuer %q: status %d: %s", e.URL, e.Issuer, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("keyset: fetch %s for issuer %q: %v", e.URL, e.Issuer, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a JWKS payload that is not a well-formed key collection.
type ParseError struct {
	Issuer string
	URL    string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("keyset: parse %s for issuer %q: %v", e.URL, e.Issuer, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
