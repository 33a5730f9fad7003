package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"pitchvault.io/internal/authz"
)

// Append inserts one audit row. The table carries no update or delete
// paths anywhere in this package; retention is an external concern.
func (s *Store) Append(ctx context.Context, rec authz.AuditRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_log (id, actor_id, action, resource_type, resource_id, permission, granted, at, metadata)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, nullIfEmpty(rec.ActorID), rec.Action, nullIfEmpty(rec.ResourceType), nullIfEmpty(rec.ResourceID),
		nullIfEmpty(rec.Permission), rec.Granted, rec.At, meta)
	return err
}

func (s *Store) Tail(ctx context.Context, limit int) ([]authz.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, coalesce(actor_id, ''), action, coalesce(resource_type, ''), coalesce(resource_id, ''),
			coalesce(permission, ''), granted, at, metadata
		from audit_log
		order by at desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []authz.AuditRecord
	for rows.Next() {
		var (
			rec authz.AuditRecord
			raw []byte
		)
		if err := rows.Scan(&rec.ID, &rec.ActorID, &rec.Action, &rec.ResourceType, &rec.ResourceID,
			&rec.Permission, &rec.Granted, &rec.At, &raw); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
