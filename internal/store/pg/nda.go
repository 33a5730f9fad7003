package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pitchvault.io/internal/authz"
)

func (s *Store) Create(ctx context.Context, req authz.NdaRequest) (authz.NdaRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		insert into nda_requests (id, requester_id, resource_id, status, requested_at)
		values ($1, $2, $3, $4, $5)
		returning id, requester_id, resource_id, status, requested_at, approved_at, rejected_at, revoked_at, expires_at
	`, req.ID, req.RequesterID, req.ResourceID, string(req.Status), req.RequestedAt)
	out, err := scanNdaRequest(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return authz.NdaRequest{}, authz.ErrConflict
		}
		return authz.NdaRequest{}, err
	}
	return out, nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (authz.NdaRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, requester_id, resource_id, status, requested_at, approved_at, rejected_at, revoked_at, expires_at
		from nda_requests
		where id = $1
	`, id)
	out, err := scanNdaRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.NdaRequest{}, authz.ErrNotFound
	}
	return out, err
}

// Transition is a conditional update keyed on the current status; under
// concurrent callers exactly one sees rows affected and wins.
func (s *Store) Transition(ctx context.Context, id string, from, to authz.NdaStatus, at time.Time, expiresAt *time.Time) (bool, error) {
	stamp := ""
	switch to {
	case authz.NdaApproved:
		stamp = "approved_at"
	case authz.NdaRejected:
		stamp = "rejected_at"
	case authz.NdaRevoked:
		stamp = "revoked_at"
	case authz.NdaExpired:
		// Expiry keeps the approval timestamps; expires_at already marks when.
	default:
		return false, fmt.Errorf("unsupported transition target %q", to)
	}

	query := `update nda_requests set status = $1`
	args := []any{string(to)}
	if stamp != "" {
		query += fmt.Sprintf(", %s = $%d", stamp, len(args)+1)
		args = append(args, at)
	}
	if expiresAt != nil {
		query += fmt.Sprintf(", expires_at = $%d", len(args)+1)
		args = append(args, *expiresAt)
	}
	query += fmt.Sprintf(" where id = $%d and status = $%d", len(args)+1, len(args)+2)
	args = append(args, id, string(from))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff > 0, nil
}

func (s *Store) DueForExpiry(ctx context.Context, now time.Time, limit int) ([]authz.NdaRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, requester_id, resource_id, status, requested_at, approved_at, rejected_at, revoked_at, expires_at
		from nda_requests
		where status = 'approved' and expires_at is not null and expires_at <= $1
		order by expires_at
		limit $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []authz.NdaRequest
	for rows.Next() {
		req, err := scanNdaRequest(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return due, nil
}

func scanNdaRequest(row rowScanner) (authz.NdaRequest, error) {
	var (
		req        authz.NdaRequest
		status     string
		approvedAt sql.NullTime
		rejectedAt sql.NullTime
		revokedAt  sql.NullTime
		expiresAt  sql.NullTime
	)
	if err := row.Scan(&req.ID, &req.RequesterID, &req.ResourceID, &status, &req.RequestedAt,
		&approvedAt, &rejectedAt, &revokedAt, &expiresAt); err != nil {
		return authz.NdaRequest{}, err
	}
	req.Status = authz.NdaStatus(status)
	req.ApprovedAt = timePtr(approvedAt)
	req.RejectedAt = timePtr(rejectedAt)
	req.RevokedAt = timePtr(revokedAt)
	req.ExpiresAt = timePtr(expiresAt)
	return req, nil
}
