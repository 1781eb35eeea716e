package token

import "fmt"

// RequestError reports a failed call to the token endpoint: either no HTTP
// response or a non-2xx one. Body is the platform's raw answer.
type RequestError struct {
	Endpoint    string
	StatusCode  int
	Body        string
	Code        string // OAuth2 "error", when the body carries one
	Description string // OAuth2 "error_description"
	Err         error
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("token: request to %s: %v", e.Endpoint, e.Err)
	}
	if e.Code != "" {
		return fmt.Sprintf("token: %s returned %d %s: %s", e.Endpoint, e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("token: %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *RequestError) Unwrap() error { return e.Err }

// ResponseError reports a 2xx answer without a usable access token.
type ResponseError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("token: bad response from %s: %v", e.Endpoint, e.Err)
}

func (e *ResponseError) Unwrap() error { return e.Err }
