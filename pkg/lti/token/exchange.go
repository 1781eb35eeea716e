// Package token obtains OAuth2 access tokens from an LTI platform using the
// client_credentials grant with a signed JWT client assertion.
package token

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/mind-engage/mindengage-lti/pkg/lti/assertion"
)

const (
	GrantType     = "client_credentials"
	AssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

	ScopeScore            = "https://purl.imsglobal.org/spec/lti-ags/scope/score"
	ScopeLineItem         = "https://purl.imsglobal.org/spec/lti-ags/scope/lineitem"
	ScopeLineItemReadOnly = "https://purl.imsglobal.org/spec/lti-ags/scope/lineitem.readonly"
	ScopeResultReadOnly   = "https://purl.imsglobal.org/spec/lti-ags/scope/result.readonly"
)

const maxBody = 64 << 10

// Exchanger posts client assertions to a token endpoint.
type Exchanger struct {
	// HTTP must carry a timeout; a nil HTTP uses a 15s client.
	HTTP *http.Client
	Now  func() time.Time
}

type tokenResp struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type,omitempty"`
	ExpiresIn   json.Number `json:"expires_in,omitempty"`
	Scope       string      `json:"scope,omitempty"`
}

type errorResp struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// Exchange trades a for an access token with the requested scope. The
// returned token carries the granted scope under the "scope" extra.
func (x *Exchanger) Exchange(ctx context.Context, a assertion.Assertion, tokenEndpoint, scope string) (*oauth2.Token, error) {
	form := url.Values{}
	form.Set("grant_type", GrantType)
	form.Set("client_assertion_type", AssertionType)
	form.Set("client_assertion", a.Token)
	if scope != "" {
		form.Set("scope", scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &RequestError{Endpoint: tokenEndpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := x.client().Do(req)
	if err != nil {
		return nil, &RequestError{Endpoint: tokenEndpoint, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &RequestError{Endpoint: tokenEndpoint, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode/100 != 2 {
		re := &RequestError{Endpoint: tokenEndpoint, StatusCode: resp.StatusCode, Body: string(body)}
		var er errorResp
		if json.Unmarshal(body, &er) == nil {
			re.Code, re.Description = er.Error, er.Description
		}
		return nil, re
	}

	var tr tokenResp
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &ResponseError{Endpoint: tokenEndpoint, StatusCode: resp.StatusCode, Body: string(body), Err: err}
	}
	if tr.AccessToken == "" {
		return nil, &ResponseError{Endpoint: tokenEndpoint, StatusCode: resp.StatusCode, Body: string(body), Err: errors.New("missing access_token")}
	}

	tok := &oauth2.Token{AccessToken: tr.AccessToken, TokenType: tr.TokenType}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	if secs, err := tr.ExpiresIn.Int64(); err == nil && secs > 0 {
		tok.ExpiresIn = secs
		tok.Expiry = x.now().Add(time.Duration(secs) * time.Second)
	}
	granted := tr.Scope
	if granted == "" {
		granted = scope
	}
	return tok.WithExtra(map[string]any{"scope": granted}), nil
}

func (x *Exchanger) client() *http.Client {
	if x.HTTP != nil {
		return x.HTTP
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (x *Exchanger) now() time.Time {
	if x.Now != nil {
		return x.Now()
	}
	return time.Now()
}

// Scope returns the granted scope recorded on a token from Exchange.
func Scope(t *oauth2.Token) string {
	s, _ := t.Extra("scope").(string)
	return s
}
