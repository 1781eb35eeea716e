package keyset_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-lti/pkg/lti/keyset"
)

func jwksJSON(t *testing.T, pub *rsa.PublicKey, kid string) []byte {
	t.Helper()
	set := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{Key: pub, KeyID: kid, Algorithm: "RS256", Use: "sig"}}}
	b, err := json.Marshal(set)
	require.NoError(t, err)
	return b
}

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return k
}

func staticURL(u string) keyset.URLResolver {
	return keyset.URLResolverFunc(func(context.Context, string) (string, error) { return u, nil })
}

func TestParseKeySet(t *testing.T) {
	priv := newKey(t)

	t.Run("valid set", func(t *testing.T) {
		keys, err := keyset.ParseKeySet(jwksJSON(t, &priv.PublicKey, "k1"))
		require.NoError(t, err)
		require.Len(t, keys, 1)
		assert.Equal(t, "k1", keys[0].KeyID)
		assert.Equal(t, "RS256", keys[0].Algorithm)
		pub, ok := keys[0].Key.(*rsa.PublicKey)
		require.True(t, ok)
		assert.True(t, pub.Equal(&priv.PublicKey))
	})

	t.Run("skips undecodable and encryption keys", func(t *testing.T) {
		good := jwksJSON(t, &priv.PublicKey, "k1")
		var doc struct {
			Keys []map[string]any `json:"keys"`
		}
		require.NoError(t, json.Unmarshal(good, &doc))
		enc := map[string]any{}
		for k, v := range doc.Keys[0] {
			enc[k] = v
		}
		enc["kid"] = "k-enc"
		enc["use"] = "enc"
		doc.Keys = append(doc.Keys, map[string]any{"kty": "bogus", "kid": "k2"}, enc)
		b, err := json.Marshal(doc)
		require.NoError(t, err)

		keys, err := keyset.ParseKeySet(b)
		require.NoError(t, err)
		require.Len(t, keys, 1)
		assert.Equal(t, "k1", keys[0].KeyID)
	})

	t.Run("empty keys array is well formed", func(t *testing.T) {
		keys, err := keyset.ParseKeySet([]byte(`{"keys":[]}`))
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("missing keys array", func(t *testing.T) {
		_, err := keyset.ParseKeySet([]byte(`{"foo":1}`))
		require.Error(t, err)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := keyset.ParseKeySet([]byte(`<html>`))
		require.Error(t, err)
	})
}

func TestHTTPFetcher(t *testing.T) {
	priv := newKey(t)

	t.Run("fetches and parses", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(jwksJSON(t, &priv.PublicKey, "k1"))
		}))
		defer srv.Close()

		f := &keyset.HTTPFetcher{HTTP: srv.Client(), Resolver: staticURL(srv.URL)}
		set, err := f.Fetch(context.Background(), "https://lms.example")
		require.NoError(t, err)
		assert.Equal(t, "https://lms.example", set.Issuer)
		assert.Equal(t, srv.URL, set.URL)
		_, ok := set.Lookup("k1")
		assert.True(t, ok)
	})

	t.Run("non-2xx is a fetch error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		f := &keyset.HTTPFetcher{HTTP: srv.Client(), Resolver: staticURL(srv.URL)}
		_, err := f.Fetch(context.Background(), "iss")
		var fe *keyset.FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, http.StatusServiceUnavailable, fe.StatusCode)
		assert.Equal(t, "nope", fe.Body)
	})

	t.Run("network failure is a fetch error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		u := srv.URL
		srv.Close()

		f := &keyset.HTTPFetcher{HTTP: &http.Client{Timeout: time.Second}, Resolver: staticURL(u)}
		_, err := f.Fetch(context.Background(), "iss")
		var fe *keyset.FetchError
		require.ErrorAs(t, err, &fe)
		assert.Zero(t, fe.StatusCode)
	})

	t.Run("bad payload is a parse error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"not":"a key set"}`))
		}))
		defer srv.Close()

		f := &keyset.HTTPFetcher{HTTP: srv.Client(), Resolver: staticURL(srv.URL)}
		_, err := f.Fetch(context.Background(), "iss")
		var pe *keyset.ParseError
		require.ErrorAs(t, err, &pe)
	})
}

type countingFetcher struct {
	calls atomic.Int32
	err   error
	kid   atomic.Value // string
}

func (f *countingFetcher) Fetch(_ context.Context, issuer string) (*keyset.SigningKeySet, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	kid, _ := f.kid.Load().(string)
	return &keyset.SigningKeySet{Issuer: issuer, URL: "https://lms.example/certs", Keys: []keyset.SigningKey{{KeyID: kid}}}, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCache(t *testing.T) {
	ctx := context.Background()

	t.Run("hit within ttl does not refetch", func(t *testing.T) {
		f := &countingFetcher{}
		f.kid.Store("k1")
		clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
		c := keyset.NewCache(f, keyset.WithTTL(time.Minute), keyset.WithClock(clk.Now))

		first, err := c.Get(ctx, "iss")
		require.NoError(t, err)
		clk.Advance(30 * time.Second)
		second, err := c.Get(ctx, "iss")
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.EqualValues(t, 1, f.calls.Load())
		assert.Equal(t, clk.Now().Add(-30*time.Second), first.FetchedAt)
	})

	t.Run("expiry replaces the set wholesale", func(t *testing.T) {
		f := &countingFetcher{}
		f.kid.Store("k1")
		clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
		c := keyset.NewCache(f, keyset.WithTTL(time.Minute), keyset.WithClock(clk.Now))

		old, err := c.Get(ctx, "iss")
		require.NoError(t, err)

		f.kid.Store("k2")
		clk.Advance(2 * time.Minute)
		fresh, err := c.Get(ctx, "iss")
		require.NoError(t, err)

		assert.NotSame(t, old, fresh)
		assert.EqualValues(t, 2, f.calls.Load())
		_, ok := old.Lookup("k1")
		assert.True(t, ok, "published set must not be mutated")
		_, ok = fresh.Lookup("k2")
		assert.True(t, ok)
	})

	t.Run("issuers are cached independently", func(t *testing.T) {
		f := &countingFetcher{}
		f.kid.Store("k1")
		c := keyset.NewCache(f)

		a, err := c.Get(ctx, "iss-a")
		require.NoError(t, err)
		b, err := c.Get(ctx, "iss-b")
		require.NoError(t, err)
		assert.Equal(t, "iss-a", a.Issuer)
		assert.Equal(t, "iss-b", b.Issuer)
		assert.EqualValues(t, 2, f.calls.Load())
	})

	t.Run("fetch error propagates and is not cached", func(t *testing.T) {
		f := &countingFetcher{err: &keyset.FetchError{Issuer: "iss", StatusCode: 500}}
		c := keyset.NewCache(f)

		_, err := c.Get(ctx, "iss")
		var fe *keyset.FetchError
		require.True(t, errors.As(err, &fe))
		_, err = c.Get(ctx, "iss")
		require.Error(t, err)
		assert.EqualValues(t, 2, f.calls.Load())
	})

	t.Run("refresh honours the minimum interval", func(t *testing.T) {
		f := &countingFetcher{}
		f.kid.Store("k1")
		clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
		c := keyset.NewCache(f, keyset.WithMinRefreshInterval(time.Minute), keyset.WithClock(clk.Now))

		_, err := c.Get(ctx, "iss")
		require.NoError(t, err)

		_, fetched, err := c.Refresh(ctx, "iss")
		require.NoError(t, err)
		assert.False(t, fetched)

		clk.Advance(2 * time.Minute)
		_, fetched, err = c.Refresh(ctx, "iss")
		require.NoError(t, err)
		assert.True(t, fetched)
		assert.EqualValues(t, 2, f.calls.Load())
	})

	t.Run("invalidate forces a refetch", func(t *testing.T) {
		f := &countingFetcher{}
		f.kid.Store("k1")
		c := keyset.NewCache(f)

		_, err := c.Get(ctx, "iss")
		require.NoError(t, err)
		c.Invalidate("iss")
		_, err = c.Get(ctx, "iss")
		require.NoError(t, err)
		assert.EqualValues(t, 2, f.calls.Load())
	})

	t.Run("concurrent readers", func(t *testing.T) {
		f := &countingFetcher{}
		f.kid.Store("k1")
		c := keyset.NewCache(f)

		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				set, err := c.Get(ctx, "iss")
				assert.NoError(t, err)
				_, ok := set.Lookup("k1")
				assert.True(t, ok)
			}()
		}
		wg.Wait()
		assert.GreaterOrEqual(t, f.calls.Load(), int32(1))
	})

	t.Run("cancelled caller does not fail a concurrent caller", func(t *testing.T) {
		f := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
		c := keyset.NewCache(f)

		first, cancel := context.WithCancel(ctx)
		firstErr := make(chan error, 1)
		go func() {
			_, err := c.Get(first, "iss")
			firstErr <- err
		}()
		<-f.started

		type result struct {
			set *keyset.SigningKeySet
			err error
		}
		second := make(chan result, 1)
		go func() {
			set, err := c.Get(ctx, "iss")
			second <- result{set, err}
		}()

		cancel()
		err := <-firstErr
		require.ErrorIs(t, err, context.Canceled)
		var fe *keyset.FetchError
		assert.ErrorAs(t, err, &fe)
		close(f.release)

		got := <-second
		require.NoError(t, got.err)
		assert.Equal(t, "iss", got.set.Issuer)
		assert.EqualValues(t, 1, f.calls.Load())
		assert.NoError(t, f.ctxErr.Load().(errBox).err, "shared fetch must not see the caller's cancellation")
	})
}

type errBox struct{ err error }

// blockingFetcher holds its first fetch until release is closed.
type blockingFetcher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	ctxErr  atomic.Value // errBox
}

func (f *blockingFetcher) Fetch(ctx context.Context, issuer string) (*keyset.SigningKeySet, error) {
	if f.calls.Add(1) == 1 {
		close(f.started)
	}
	<-f.release
	f.ctxErr.Store(errBox{ctx.Err()})
	return &keyset.SigningKeySet{Issuer: issuer, Keys: []keyset.SigningKey{{KeyID: "k1"}}}, nil
}

