package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pitchvault.io/internal/authz"
)

func (s *Store) CreateRole(ctx context.Context, name string, isSystem bool) (authz.Role, error) {
	var role authz.Role
	row := s.db.QueryRowContext(ctx, `
		insert into roles (name, is_system)
		values ($1, $2)
		returning name, is_system, created_at
	`, name, isSystem)
	if err := row.Scan(&role.Name, &role.IsSystem, &role.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return authz.Role{}, authz.ErrConflict
		}
		return authz.Role{}, err
	}
	return role, nil
}

func (s *Store) GetRole(ctx context.Context, name string) (authz.Role, error) {
	var role authz.Role
	err := s.db.QueryRowContext(ctx, `
		select name, is_system, created_at
		from roles
		where name = $1
	`, name).Scan(&role.Name, &role.IsSystem, &role.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return authz.Role{}, authz.ErrNotFound
	}
	if err != nil {
		return authz.Role{}, err
	}
	return role, nil
}

func (s *Store) DeleteRole(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where name = $1 and not is_system`, name)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return authz.ErrNotFound
	}
	return nil
}

func (s *Store) ListRoles(ctx context.Context) ([]authz.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select name, is_system, created_at
		from roles
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []authz.Role
	for rows.Next() {
		var role authz.Role
		if err := rows.Scan(&role.Name, &role.IsSystem, &role.CreatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) SetRolePermissions(ctx context.Context, role string, perms []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from roles where name = $1`, role).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return authz.ErrNotFound
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role = $1`, role); err != nil {
		return err
	}
	for _, perm := range perms {
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role, permission)
			values ($1, $2)
		`, role, perm); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return fmt.Errorf("%w: permission %s not in catalog", authz.ErrConfiguration, perm)
			}
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) RolePermissions(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select role, permission
		from role_permissions
		order by role, permission
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := map[string][]string{}
	for rows.Next() {
		var role, perm string
		if err := rows.Scan(&role, &perm); err != nil {
			return nil, err
		}
		result[role] = append(result[role], perm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) Assign(ctx context.Context, a authz.RoleAssignment) (authz.RoleAssignment, error) {
	var (
		out       authz.RoleAssignment
		grantedBy sql.NullString
		expiresAt sql.NullTime
	)
	row := s.db.QueryRowContext(ctx, `
		insert into user_roles (user_id, role, granted_by, granted_at, expires_at)
		values ($1, $2, $3, $4, $5)
		on conflict (user_id, role) do update set
			granted_by = excluded.granted_by,
			granted_at = excluded.granted_at,
			expires_at = excluded.expires_at
		returning user_id, role, granted_by, granted_at, expires_at
	`, a.UserID, a.Role, nullIfEmpty(a.GrantedBy), a.GrantedAt, nullableTime(a.ExpiresAt))
	if err := row.Scan(&out.UserID, &out.Role, &grantedBy, &out.GrantedAt, &expiresAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return authz.RoleAssignment{}, authz.ErrNotFound
		}
		return authz.RoleAssignment{}, err
	}
	if grantedBy.Valid {
		out.GrantedBy = grantedBy.String
	}
	out.ExpiresAt = timePtr(expiresAt)
	return out, nil
}

func (s *Store) Unassign(ctx context.Context, userID, role string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from user_roles
		where user_id = $1 and role = $2
	`, userID, role)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return authz.ErrNotFound
	}
	return nil
}

// AssignmentsFor applies the expiry filter in SQL; expired rows stay put
// for audit history but never reach the resolver.
func (s *Store) AssignmentsFor(ctx context.Context, userID string, now time.Time) ([]authz.RoleAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user_id, role, granted_by, granted_at, expires_at
		from user_roles
		where user_id = $1 and (expires_at is null or expires_at > $2)
		order by role
	`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []authz.RoleAssignment
	for rows.Next() {
		var (
			a         authz.RoleAssignment
			grantedBy sql.NullString
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&a.UserID, &a.Role, &grantedBy, &a.GrantedAt, &expiresAt); err != nil {
			return nil, err
		}
		if grantedBy.Valid {
			a.GrantedBy = grantedBy.String
		}
		a.ExpiresAt = timePtr(expiresAt)
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assignments, nil
}
