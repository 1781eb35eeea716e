package platform

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLStore keeps platforms in the lti_platforms table. The $n placeholders
// are understood by both pgx and modernc sqlite.
type SQLStore struct {
	DB  *sql.DB
	Now func() time.Time
}

const platformCols = `issuer, client_id, deployment_id, auth_url, token_url, jwks_url, created_at, updated_at`

func (s *SQLStore) Get(ctx context.Context, issuer string) (Platform, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+platformCols+` FROM lti_platforms WHERE issuer=$1`, issuer)
	p, err := scanPlatform(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Platform{}, ErrNotFound
	}
	return p, err
}

func (s *SQLStore) Upsert(ctx context.Context, p Platform) (Platform, error) {
	if err := p.Validate(); err != nil {
		return Platform{}, err
	}
	now := s.now().UTC().Unix()
	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO lti_platforms (`+platformCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
		ON CONFLICT (issuer) DO UPDATE SET
			client_id=EXCLUDED.client_id,
			deployment_id=EXCLUDED.deployment_id,
			auth_url=EXCLUDED.auth_url,
			token_url=EXCLUDED.token_url,
			jwks_url=EXCLUDED.jwks_url,
			updated_at=EXCLUDED.updated_at
		RETURNING `+platformCols,
		p.Issuer, p.ClientID, p.DeploymentID, p.AuthURL, p.TokenURL, p.JWKSURL, now)
	return scanPlatform(row)
}

func (s *SQLStore) List(ctx context.Context) ([]Platform, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+platformCols+` FROM lti_platforms ORDER BY issuer`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Platform{}
	for rows.Next() {
		p, err := scanPlatform(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLStore) Delete(ctx context.Context, issuer string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM lti_platforms WHERE issuer=$1`, issuer)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlatform(sc scanner) (Platform, error) {
	var p Platform
	var created, updated int64
	if err := sc.Scan(&p.Issuer, &p.ClientID, &p.DeploymentID, &p.AuthURL, &p.TokenURL, &p.JWKSURL, &created, &updated); err != nil {
		return Platform{}, err
	}
	p.CreatedAt = time.Unix(created, 0).UTC()
	p.UpdatedAt = time.Unix(updated, 0).UTC()
	return p, nil
}
