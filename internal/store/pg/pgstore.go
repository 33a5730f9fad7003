package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pitchvault.io/internal/authz"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store implements every persistence interface the engine needs on top of
// a single PostgreSQL connection pool.
type Store struct {
	db *sql.DB
}

var (
	_ authz.RoleStore  = (*Store)(nil)
	_ authz.GrantStore = (*Store)(nil)
	_ authz.NdaStore   = (*Store)(nil)
	_ authz.AuditStore = (*Store)(nil)
)

// Open connects to PostgreSQL via the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing connection, used by tests with sqlmock.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// EnsureCatalog seeds the permission catalog, the system roles and their
// default permission sets. Idempotent; the Go catalog is the single source
// of truth.
func (s *Store) EnsureCatalog(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range authz.BuiltinPermissions {
		if _, err := tx.ExecContext(ctx, `
			insert into permissions (name, category)
			values ($1, $2)
			on conflict (name) do nothing
		`, p.Name, string(p.Category)); err != nil {
			return err
		}
	}
	for _, role := range authz.SystemRoles {
		if _, err := tx.ExecContext(ctx, `
			insert into roles (name, is_system)
			values ($1, true)
			on conflict (name) do nothing
		`, role); err != nil {
			return err
		}
		for _, perm := range authz.DefaultRolePermissions[role] {
			if _, err := tx.ExecContext(ctx, `
				insert into role_permissions (role, permission)
				values ($1, $2)
				on conflict (role, permission) do nothing
			`, role, perm); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
