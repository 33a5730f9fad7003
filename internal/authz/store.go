package authz

import (
	"context"
	"time"
)

// Resource types the engine currently guards. NDA workflow grants are
// always scoped to pitches.
const ResourceTypePitch = "pitch"

// RoleStore persists roles, role-permission links and user assignments.
type RoleStore interface {
	CreateRole(ctx context.Context, name string, isSystem bool) (Role, error)
	GetRole(ctx context.Context, name string) (Role, error)
	DeleteRole(ctx context.Context, name string) error
	ListRoles(ctx context.Context) ([]Role, error)

	SetRolePermissions(ctx context.Context, role string, perms []string) error
	// RolePermissions returns every role's permission names in one read;
	// the registry snapshots this map.
	RolePermissions(ctx context.Context) (map[string][]string, error)

	Assign(ctx context.Context, a RoleAssignment) (RoleAssignment, error)
	Unassign(ctx context.Context, userID, role string) error
	// AssignmentsFor returns only assignments live at now; expired rows
	// stay in storage for audit history but never surface here.
	AssignmentsFor(ctx context.Context, userID string, now time.Time) ([]RoleAssignment, error)
}

// GrantStore persists content-access grants, one row per
// (user, resource type, resource id).
type GrantStore interface {
	// Upsert atomically inserts or merges the grant. An existing row keeps
	// the higher access level, and an ownership row is never downgraded to
	// another provenance.
	Upsert(ctx context.Context, g ContentAccessGrant) (ContentAccessGrant, error)
	// Get returns the stored row regardless of expiry; callers apply
	// ContentAccessGrant.Live.
	Get(ctx context.Context, userID, resourceType, resourceID string) (ContentAccessGrant, error)
	// Revoke removes the row for the triple. A non-empty provenance only
	// removes a row of that provenance. Reports whether a row was removed.
	Revoke(ctx context.Context, userID, resourceType, resourceID string, provenance Provenance) (bool, error)
	// RevokeResource removes every grant on the resource and returns the
	// number of rows removed. Used for resource deletion cascade.
	RevokeResource(ctx context.Context, resourceType, resourceID string) (int64, error)
}

// NdaStore persists NDA requests and their lifecycle transitions.
type NdaStore interface {
	// Create inserts a pending request. Returns ErrConflict when a
	// non-terminal request already exists for the requester/resource pair.
	Create(ctx context.Context, req NdaRequest) (NdaRequest, error)
	GetRequest(ctx context.Context, id string) (NdaRequest, error)
	// Transition conditionally moves the request from one status to
	// another, stamping the matching timestamp column. Returns false when
	// the request was not in the expected status; concurrent callers race
	// on this condition and exactly one wins.
	Transition(ctx context.Context, id string, from, to NdaStatus, at time.Time, expiresAt *time.Time) (bool, error)
	// DueForExpiry lists approved requests whose expiry has passed.
	DueForExpiry(ctx context.Context, now time.Time, limit int) ([]NdaRequest, error)
}

// AuditStore appends immutable audit rows.
type AuditStore interface {
	Append(ctx context.Context, rec AuditRecord) error
	Tail(ctx context.Context, limit int) ([]AuditRecord, error)
}

// Auditor records engine events; satisfied by audit.Recorder.
type Auditor interface {
	Record(ctx context.Context, rec AuditRecord) error
}
