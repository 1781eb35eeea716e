package token

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/mind-engage/mindengage-lti/pkg/lti/assertion"
)

const DefaultSkew = 30 * time.Second

// Registration identifies the tool at one platform.
type Registration struct {
	ClientID      string
	Issuer        string
	TokenEndpoint string
}

type cacheKey struct {
	clientID, issuer, scope string
}

// Provider hands out access tokens, signing and exchanging a new assertion
// only when no cached token is valid for at least the skew.
//
// Tokens are stored in an immutable map that is replaced wholesale on every
// update. Concurrent refreshes of the same key share one exchange.
type Provider struct {
	signer    assertion.Signer
	exchanger *Exchanger
	skew      time.Duration
	now       func() time.Time
	log       *zap.Logger

	tokens atomic.Pointer[map[cacheKey]*oauth2.Token]
	mu     sync.Mutex
	group  singleflight.Group
}

type ProviderOption func(*Provider)

func WithSkew(d time.Duration) ProviderOption {
	return func(p *Provider) {
		if d >= 0 {
			p.skew = d
		}
	}
}

func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

func WithLogger(l *zap.Logger) ProviderOption {
	return func(p *Provider) {
		if l != nil {
			p.log = l
		}
	}
}

func NewProvider(s assertion.Signer, x *Exchanger, opts ...ProviderOption) *Provider {
	p := &Provider{
		signer:    s,
		exchanger: x,
		skew:      DefaultSkew,
		now:       time.Now,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	empty := map[cacheKey]*oauth2.Token{}
	p.tokens.Store(&empty)
	return p
}

// Token returns a valid access token for reg and scope.
func (p *Provider) Token(ctx context.Context, reg Registration, scope string) (*oauth2.Token, error) {
	k := cacheKey{reg.ClientID, reg.Issuer, scope}
	if t := (*p.tokens.Load())[k]; t != nil && p.fresh(t) {
		return t, nil
	}

	// the exchange is shared with concurrent callers, so one caller's
	// cancellation must not fail the others; the HTTP client timeout bounds it
	shared := context.WithoutCancel(ctx)
	ch := p.group.DoChan(k.clientID+"\x00"+k.issuer+"\x00"+k.scope, func() (any, error) {
		a, err := p.signer.SignAssertion(reg.ClientID, reg.TokenEndpoint, reg.Issuer)
		if err != nil {
			return nil, err
		}
		t, err := p.exchanger.Exchange(shared, a, reg.TokenEndpoint, scope)
		if err != nil {
			p.log.Warn("token exchange failed",
				zap.String("issuer", reg.Issuer),
				zap.String("client_id", reg.ClientID),
				zap.Error(err))
			return nil, err
		}
		if !t.Expiry.IsZero() {
			p.store(k, t)
		}
		p.log.Debug("access token obtained",
			zap.String("issuer", reg.Issuer),
			zap.String("scope", Scope(t)),
			zap.Time("expiry", t.Expiry))
		return t, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oauth2.Token), nil
	}
}

// Forget drops any cached token for reg and scope.
func (p *Provider) Forget(reg Registration, scope string) {
	k := cacheKey{reg.ClientID, reg.Issuer, scope}
	p.mu.Lock()
	defer p.mu.Unlock()
	cur := *p.tokens.Load()
	if _, ok := cur[k]; !ok {
		return
	}
	next := make(map[cacheKey]*oauth2.Token, len(cur))
	for kk, v := range cur {
		if kk != k {
			next[kk] = v
		}
	}
	p.tokens.Store(&next)
}

// TokenSource adapts the provider to oauth2.TokenSource for a fixed
// registration and scope.
func (p *Provider) TokenSource(ctx context.Context, reg Registration, scope string) oauth2.TokenSource {
	return &source{ctx: ctx, p: p, reg: reg, scope: scope}
}

func (p *Provider) fresh(t *oauth2.Token) bool {
	return p.now().Add(p.skew).Before(t.Expiry)
}

func (p *Provider) store(k cacheKey, t *oauth2.Token) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur := *p.tokens.Load()
	next := make(map[cacheKey]*oauth2.Token, len(cur)+1)
	for kk, v := range cur {
		next[kk] = v
	}
	next[k] = t
	p.tokens.Store(&next)
}

type source struct {
	ctx   context.Context
	p     *Provider
	reg   Registration
	scope string
}

func (s *source) Token() (*oauth2.Token, error) {
	return s.p.Token(s.ctx, s.reg, s.scope)
}
