package keyset

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL                = 10 * time.Minute
	DefaultMinRefreshInterval = time.Minute
)

var _ KeySource = (*Cache)(nil)

// Cache keeps one key set per issuer for a TTL.
//
// Readers load an immutable map snapshot without locking. A refetch builds a
// new map containing the new set and swaps it in atomically, so concurrent
// readers see either the old or the new set, never a partial one. Concurrent
// misses for the same issuer share a single fetch.
type Cache struct {
	fetcher    Fetcher
	ttl        time.Duration
	minRefresh time.Duration
	now        func() time.Time
	log        *zap.Logger

	sets  atomic.Pointer[map[string]*SigningKeySet]
	mu    sync.Mutex // serializes publishers
	group singleflight.Group
}

type Option func(*Cache)

func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithMinRefreshInterval bounds how often Refresh may refetch a set that is
// still within its TTL.
func WithMinRefreshInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d >= 0 {
			c.minRefresh = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.log = l
		}
	}
}

func NewCache(f Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher:    f,
		ttl:        DefaultTTL,
		minRefresh: DefaultMinRefreshInterval,
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	empty := map[string]*SigningKeySet{}
	c.sets.Store(&empty)
	return c
}

// Get returns the cached set for issuer while it is within the TTL, and
// otherwise fetches and publishes a new one.
func (c *Cache) Get(ctx context.Context, issuer string) (*SigningKeySet, error) {
	if set := c.lookup(issuer); set != nil && c.now().Sub(set.FetchedAt) < c.ttl {
		return set, nil
	}
	return c.load(ctx, issuer)
}

// Refresh refetches the set for issuer unless the cached one is younger than
// the minimum refresh interval. The boolean reports whether a fetch happened.
func (c *Cache) Refresh(ctx context.Context, issuer string) (*SigningKeySet, bool, error) {
	if set := c.lookup(issuer); set != nil && c.now().Sub(set.FetchedAt) < c.minRefresh {
		return set, false, nil
	}
	set, err := c.load(ctx, issuer)
	return set, err == nil, err
}

// Invalidate drops the cached set for issuer.
func (c *Cache) Invalidate(issuer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := *c.sets.Load()
	if _, ok := cur[issuer]; !ok {
		return
	}
	next := make(map[string]*SigningKeySet, len(cur))
	for k, v := range cur {
		if k != issuer {
			next[k] = v
		}
	}
	c.sets.Store(&next)
}

func (c *Cache) lookup(issuer string) *SigningKeySet {
	return (*c.sets.Load())[issuer]
}

// load fetches under a context detached from the caller's cancellation:
// the fetch is shared with other callers, and the HTTP client timeout still
// bounds it. Each caller stops waiting when its own ctx is done.
func (c *Cache) load(ctx context.Context, issuer string) (*SigningKeySet, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(issuer, func() (any, error) {
		fetched, err := c.fetcher.Fetch(shared, issuer)
		if err != nil {
			c.log.Warn("jwks fetch failed", zap.String("issuer", issuer), zap.Error(err))
			return nil, err
		}
		set := *fetched
		set.Issuer = issuer
		set.Keys = append([]SigningKey(nil), fetched.Keys...)
		set.FetchedAt = c.now()
		c.publish(issuer, &set)
		c.log.Debug("jwks fetched",
			zap.String("issuer", issuer),
			zap.String("url", set.URL),
			zap.Int("keys", len(set.Keys)))
		return &set, nil
	})
	select {
	case <-ctx.Done():
		return nil, &FetchError{Issuer: issuer, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*SigningKeySet), nil
	}
}

func (c *Cache) publish(issuer string, set *SigningKeySet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := *c.sets.Load()
	next := make(map[string]*SigningKeySet, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[issuer] = set
	c.sets.Store(&next)
}
