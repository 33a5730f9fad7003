package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pitchvault.io/internal/authz"
)

// Upsert is a single atomic insert-or-merge keyed on the triple, so two
// concurrent grants for the same triple cannot lose updates. The merge
// keeps the higher access level, never lets another provenance displace an
// ownership row, and leaves granted_at untouched on conflict.
func (s *Store) Upsert(ctx context.Context, g authz.ContentAccessGrant) (authz.ContentAccessGrant, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into content_access (user_id, resource_type, resource_id, access_level, provenance, nda_id, granted_at, expires_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		on conflict (user_id, resource_type, resource_id) do update set
			access_level = greatest(content_access.access_level, excluded.access_level),
			provenance = case when content_access.provenance = 'ownership'
				then content_access.provenance else excluded.provenance end,
			nda_id = coalesce(excluded.nda_id, content_access.nda_id),
			expires_at = case when content_access.provenance = 'ownership'
				then content_access.expires_at else excluded.expires_at end
		returning user_id, resource_type, resource_id, access_level, provenance, nda_id, granted_at, expires_at
	`, g.UserID, g.ResourceType, g.ResourceID, int(g.Level), string(g.Provenance),
		nullIfEmpty(g.NdaID), g.GrantedAt, nullableTime(g.ExpiresAt))
	return scanGrant(row)
}

func (s *Store) Get(ctx context.Context, userID, resourceType, resourceID string) (authz.ContentAccessGrant, error) {
	row := s.db.QueryRowContext(ctx, `
		select user_id, resource_type, resource_id, access_level, provenance, nda_id, granted_at, expires_at
		from content_access
		where user_id = $1 and resource_type = $2 and resource_id = $3
	`, userID, resourceType, resourceID)
	g, err := scanGrant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.ContentAccessGrant{}, authz.ErrNotFound
	}
	return g, err
}

func (s *Store) Revoke(ctx context.Context, userID, resourceType, resourceID string, provenance authz.Provenance) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from content_access
		where user_id = $1 and resource_type = $2 and resource_id = $3
		  and ($4 = '' or provenance = $4)
	`, userID, resourceType, resourceID, string(provenance))
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff > 0, nil
}

func (s *Store) RevokeResource(ctx context.Context, resourceType, resourceID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from content_access
		where resource_type = $1 and resource_id = $2
	`, resourceType, resourceID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (authz.ContentAccessGrant, error) {
	var (
		g         authz.ContentAccessGrant
		level     int
		prov      string
		ndaID     sql.NullString
		expiresAt sql.NullTime
	)
	if err := row.Scan(&g.UserID, &g.ResourceType, &g.ResourceID, &level, &prov, &ndaID, &g.GrantedAt, &expiresAt); err != nil {
		return authz.ContentAccessGrant{}, err
	}
	g.Level = authz.AccessLevel(level)
	g.Provenance = authz.Provenance(prov)
	if !g.Provenance.Valid() {
		return authz.ContentAccessGrant{}, fmt.Errorf("stored grant has unknown provenance %q", prov)
	}
	if ndaID.Valid {
		g.NdaID = ndaID.String
	}
	g.ExpiresAt = timePtr(expiresAt)
	return g, nil
}
