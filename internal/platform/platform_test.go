package platform_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-lti/internal/db"
	"github.com/mind-engage/mindengage-lti/internal/platform"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, "file:"+t.Name()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func moodle() platform.Platform {
	return platform.Platform{
		Issuer:       "https://moodle.example",
		ClientID:     "client-1",
		DeploymentID: "1",
		AuthURL:      "https://moodle.example/mod/lti/auth.php",
		TokenURL:     "https://moodle.example/mod/lti/token.php",
	}
}

func TestSQLStore(t *testing.T) {
	ctx := context.Background()
	clock := time.Unix(1_700_000_000, 0).UTC()
	s := &platform.SQLStore{DB: openSQLite(t), Now: func() time.Time { return clock }}

	_, err := s.Get(ctx, "https://moodle.example")
	require.ErrorIs(t, err, platform.ErrNotFound)

	p, err := s.Upsert(ctx, moodle())
	require.NoError(t, err)
	assert.Equal(t, clock, p.CreatedAt)

	clock = clock.Add(time.Hour)
	upd := moodle()
	upd.JWKSURL = "https://moodle.example/keys"
	p, err = s.Upsert(ctx, upd)
	require.NoError(t, err)
	assert.Equal(t, "https://moodle.example/keys", p.JWKSURL)
	assert.Equal(t, clock.Add(-time.Hour), p.CreatedAt)
	assert.Equal(t, clock, p.UpdatedAt)

	second := moodle()
	second.Issuer = "https://canvas.example"
	_, err = s.Upsert(ctx, second)
	require.NoError(t, err)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "https://canvas.example", all[0].Issuer)

	require.NoError(t, s.Delete(ctx, "https://canvas.example"))
	require.ErrorIs(t, s.Delete(ctx, "https://canvas.example"), platform.ErrNotFound)
}

func TestSQLStore_RejectsInvalid(t *testing.T) {
	s := &platform.SQLStore{DB: openSQLite(t)}
	bad := moodle()
	bad.TokenURL = "ftp://moodle.example/token"
	_, err := s.Upsert(context.Background(), bad)
	require.Error(t, err)

	bad = moodle()
	bad.ClientID = ""
	_, err = s.Upsert(context.Background(), bad)
	require.Error(t, err)
}

type failingStore struct{ platform.StaticStore }

func (failingStore) Get(context.Context, string) (platform.Platform, error) {
	return platform.Platform{}, errors.New("db down")
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	withJWKS := moodle()
	withJWKS.Issuer = "https://canvas.example"
	withJWKS.JWKSURL = "https://canvas.example/api/lti/security/jwks"

	reg := platform.NewRegistry("{issuer}/mod/lti/certs.php",
		platform.NewStaticStore(moodle()),
		platform.NewStaticStore(withJWKS))

	u, err := reg.JWKSURL(ctx, "https://moodle.example")
	require.NoError(t, err)
	assert.Equal(t, "https://moodle.example/mod/lti/certs.php", u)

	u, err = reg.JWKSURL(ctx, "https://canvas.example")
	require.NoError(t, err)
	assert.Equal(t, "https://canvas.example/api/lti/security/jwks", u)

	_, err = reg.JWKSURL(ctx, "https://attacker.example")
	require.ErrorIs(t, err, platform.ErrNotFound)

	p, err := reg.Lookup(ctx, "https://moodle.example")
	require.NoError(t, err)
	r := p.Registration()
	assert.Equal(t, "client-1", r.ClientID)
	assert.Equal(t, "https://moodle.example", r.Issuer)
	assert.Equal(t, "https://moodle.example/mod/lti/token.php", r.TokenEndpoint)

	_, err = platform.NewRegistry("", failingStore{}).Lookup(ctx, "x")
	require.EqualError(t, err, "db down")

	_, err = platform.NewRegistry("", platform.NewStaticStore(moodle())).JWKSURL(ctx, "https://moodle.example")
	require.Error(t, err)
}

func TestStaticStoreIsReadOnly(t *testing.T) {
	s := platform.NewStaticStore(moodle())
	_, err := s.Upsert(context.Background(), moodle())
	require.ErrorIs(t, err, platform.ErrReadOnly)
	require.ErrorIs(t, s.Delete(context.Background(), "x"), platform.ErrReadOnly)
}
