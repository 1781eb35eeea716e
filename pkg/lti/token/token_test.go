package token_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-lti/pkg/lti/assertion"
	"github.com/mind-engage/mindengage-lti/pkg/lti/token"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func tokenServer(t *testing.T, status int, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostFormValue("grant_type"))
		assert.Equal(t, token.AssertionType, r.PostFormValue("client_assertion_type"))
		assert.Equal(t, "signed.jwt.value", r.PostFormValue("client_assertion"))
		assert.Equal(t, token.ScopeScore, r.PostFormValue("scope"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExchange(t *testing.T) {
	a := assertion.Assertion{Token: "signed.jwt.value"}
	x := &token.Exchanger{Now: func() time.Time { return now }}

	t.Run("success", func(t *testing.T) {
		srv := tokenServer(t, 200, `{"access_token":"at-1","token_type":"Bearer","expires_in":3600,"scope":"`+token.ScopeScore+`"}`, nil)
		tok, err := x.Exchange(context.Background(), a, srv.URL, token.ScopeScore)
		require.NoError(t, err)
		assert.Equal(t, "at-1", tok.AccessToken)
		assert.Equal(t, now.Add(time.Hour), tok.Expiry)
		assert.Equal(t, token.ScopeScore, token.Scope(tok))
	})

	t.Run("expires_in as string", func(t *testing.T) {
		srv := tokenServer(t, 200, `{"access_token":"at-1","expires_in":"60"}`, nil)
		tok, err := x.Exchange(context.Background(), a, srv.URL, token.ScopeScore)
		require.NoError(t, err)
		assert.Equal(t, now.Add(time.Minute), tok.Expiry)
		assert.Equal(t, "Bearer", tok.TokenType)
		assert.Equal(t, token.ScopeScore, token.Scope(tok))
	})

	t.Run("non-2xx carries platform body", func(t *testing.T) {
		srv := tokenServer(t, 401, `{"error":"invalid_client","error_description":"bad assertion"}`, nil)
		_, err := x.Exchange(context.Background(), a, srv.URL, token.ScopeScore)
		var re *token.RequestError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, 401, re.StatusCode)
		assert.Equal(t, "invalid_client", re.Code)
		assert.Equal(t, "bad assertion", re.Description)
		assert.Contains(t, re.Body, "bad assertion")
	})

	t.Run("missing access token", func(t *testing.T) {
		srv := tokenServer(t, 200, `{"token_type":"Bearer"}`, nil)
		_, err := x.Exchange(context.Background(), a, srv.URL, token.ScopeScore)
		var re *token.ResponseError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, 200, re.StatusCode)
	})

	t.Run("not json", func(t *testing.T) {
		srv := tokenServer(t, 200, `<html>`, nil)
		_, err := x.Exchange(context.Background(), a, srv.URL, token.ScopeScore)
		var re *token.ResponseError
		require.ErrorAs(t, err, &re)
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		u := srv.URL
		srv.Close()
		_, err := (&token.Exchanger{HTTP: &http.Client{Timeout: time.Second}}).Exchange(context.Background(), a, u, token.ScopeScore)
		var re *token.RequestError
		require.ErrorAs(t, err, &re)
		assert.Zero(t, re.StatusCode)
	})
}

type fakeSigner struct {
	calls atomic.Int32
	err   error
}

func (s *fakeSigner) SignAssertion(clientID, tokenEndpoint, platformIssuer string) (assertion.Assertion, error) {
	s.calls.Add(1)
	if s.err != nil {
		return assertion.Assertion{}, s.err
	}
	return assertion.Assertion{Token: "signed.jwt.value"}, nil
}

func TestProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("reuses token until skew before expiry", func(t *testing.T) {
		var hits atomic.Int32
		srv := tokenServer(t, 200, `{"access_token":"at","expires_in":120}`, &hits)
		clock := now
		clk := func() time.Time { return clock }
		reg := token.Registration{ClientID: "c", Issuer: "https://lms.example", TokenEndpoint: srv.URL}
		signer := &fakeSigner{}
		p := token.NewProvider(signer, &token.Exchanger{Now: clk}, token.WithClock(clk), token.WithSkew(30*time.Second))

		_, err := p.Token(ctx, reg, token.ScopeScore)
		require.NoError(t, err)
		clock = now.Add(80 * time.Second)
		_, err = p.Token(ctx, reg, token.ScopeScore)
		require.NoError(t, err)
		assert.EqualValues(t, 1, hits.Load())

		clock = now.Add(95 * time.Second)
		_, err = p.Token(ctx, reg, token.ScopeScore)
		require.NoError(t, err)
		assert.EqualValues(t, 2, hits.Load())
		assert.EqualValues(t, 2, signer.calls.Load())
	})

	t.Run("tokens without expiry are not cached", func(t *testing.T) {
		var hits atomic.Int32
		srv := tokenServer(t, 200, `{"access_token":"at"}`, &hits)
		reg := token.Registration{ClientID: "c", Issuer: "i", TokenEndpoint: srv.URL}
		p := token.NewProvider(&fakeSigner{}, &token.Exchanger{})

		for i := 0; i < 2; i++ {
			_, err := p.Token(ctx, reg, token.ScopeScore)
			require.NoError(t, err)
		}
		assert.EqualValues(t, 2, hits.Load())
	})

	t.Run("forget and token source", func(t *testing.T) {
		var hits atomic.Int32
		srv := tokenServer(t, 200, `{"access_token":"at","expires_in":3600}`, &hits)
		reg := token.Registration{ClientID: "c", Issuer: "i", TokenEndpoint: srv.URL}
		p := token.NewProvider(&fakeSigner{}, &token.Exchanger{})

		ts := p.TokenSource(ctx, reg, token.ScopeScore)
		tok, err := ts.Token()
		require.NoError(t, err)
		assert.Equal(t, "at", tok.AccessToken)
		_, err = ts.Token()
		require.NoError(t, err)
		assert.EqualValues(t, 1, hits.Load())

		p.Forget(reg, token.ScopeScore)
		_, err = ts.Token()
		require.NoError(t, err)
		assert.EqualValues(t, 2, hits.Load())
	})

	t.Run("signing error stops before exchange", func(t *testing.T) {
		var hits atomic.Int32
		srv := tokenServer(t, 200, `{"access_token":"at"}`, &hits)
		reg := token.Registration{ClientID: "c", Issuer: "i", TokenEndpoint: srv.URL}
		p := token.NewProvider(&fakeSigner{err: &assertion.SigningError{Err: errors.New("no key")}}, &token.Exchanger{})

		_, err := p.Token(ctx, reg, token.ScopeScore)
		var se *assertion.SigningError
		require.ErrorAs(t, err, &se)
		assert.Zero(t, hits.Load())
	})

	t.Run("cancelled caller does not fail a concurrent caller", func(t *testing.T) {
		var hits atomic.Int32
		started, release := make(chan struct{}), make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) == 1 {
				close(started)
			}
			<-release
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"at","expires_in":3600}`))
		}))
		t.Cleanup(srv.Close)
		reg := token.Registration{ClientID: "c", Issuer: "i", TokenEndpoint: srv.URL}
		p := token.NewProvider(&fakeSigner{}, &token.Exchanger{})

		first, cancel := context.WithCancel(ctx)
		firstErr := make(chan error, 1)
		go func() {
			_, err := p.Token(first, reg, token.ScopeScore)
			firstErr <- err
		}()
		<-started

		type result struct {
			tok string
			err error
		}
		second := make(chan result, 1)
		go func() {
			tok, err := p.Token(ctx, reg, token.ScopeScore)
			if err != nil {
				second <- result{err: err}
				return
			}
			second <- result{tok: tok.AccessToken}
		}()

		cancel()
		require.ErrorIs(t, <-firstErr, context.Canceled)
		close(release)

		got := <-second
		require.NoError(t, got.err)
		assert.Equal(t, "at", got.tok)
		assert.EqualValues(t, 1, hits.Load())
	})
}
