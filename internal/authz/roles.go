package authz

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
)

// RoleService handles role administration: custom roles, permission sets
// and user assignments. System roles cannot be deleted.
type RoleService struct {
	store    RoleStore
	registry *Registry
	audit    Auditor
	now      func() time.Time
}

// NewRoleService constructs a RoleService.
func NewRoleService(store RoleStore, registry *Registry, audit Auditor) *RoleService {
	return &RoleService{
		store:    store,
		registry: registry,
		audit:    audit,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateRole adds a custom role.
func (s *RoleService) CreateRole(ctx context.Context, actorID, name string) (Role, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role, err := s.store.CreateRole(ctx, name, false)
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, actorID, "role_create", map[string]any{"role": name})
	return role, nil
}

// DeleteRole removes a custom role. System roles are refused.
func (s *RoleService) DeleteRole(ctx context.Context, actorID, name string) error {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if slices.Contains(SystemRoles, name) {
		return fmt.Errorf("%w: system role %q cannot be deleted", ErrForbidden, name)
	}
	if err := s.store.DeleteRole(ctx, name); err != nil {
		return err
	}
	s.registry.Invalidate()
	s.record(ctx, actorID, "role_delete", map[string]any{"role": name})
	return nil
}

// ListRoles returns all roles.
func (s *RoleService) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// SetPermissions replaces the role's permission set. Every name must exist
// in the catalog; an unknown name is a configuration error.
func (s *RoleService) SetPermissions(ctx context.Context, actorID, role string, perms []string) error {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	deduped := dedupe(perms)
	for _, p := range deduped {
		if !KnownPermission(p) {
			return fmt.Errorf("%w: unknown permission %q", ErrConfiguration, p)
		}
	}
	if err := s.store.SetRolePermissions(ctx, role, deduped); err != nil {
		return err
	}
	s.registry.Invalidate()
	s.record(ctx, actorID, "role_permissions_set", map[string]any{"role": role, "count": len(deduped)})
	return nil
}

// Assign gives a user a role, optionally until expiresAt. The same user may
// hold any number of roles concurrently; their permissions are unioned.
func (s *RoleService) Assign(ctx context.Context, actorID, userID, role string, expiresAt *time.Time) (RoleAssignment, error) {
	userID = strings.TrimSpace(userID)
	role = strings.TrimSpace(strings.ToLower(role))
	if userID == "" || role == "" {
		return RoleAssignment{}, fmt.Errorf("%w: user id and role are required", ErrInvalidInput)
	}
	if _, err := s.store.GetRole(ctx, role); err != nil {
		return RoleAssignment{}, err
	}
	assignment, err := s.store.Assign(ctx, RoleAssignment{
		UserID:    userID,
		Role:      role,
		GrantedBy: actorID,
		GrantedAt: s.now(),
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return RoleAssignment{}, err
	}
	s.record(ctx, actorID, "role_assign", map[string]any{"role": role, "user": userID})
	return assignment, nil
}

// Unassign removes a user's role.
func (s *RoleService) Unassign(ctx context.Context, actorID, userID, role string) error {
	userID = strings.TrimSpace(userID)
	role = strings.TrimSpace(strings.ToLower(role))
	if userID == "" || role == "" {
		return fmt.Errorf("%w: user id and role are required", ErrInvalidInput)
	}
	if err := s.store.Unassign(ctx, userID, role); err != nil {
		return err
	}
	s.record(ctx, actorID, "role_unassign", map[string]any{"role": role, "user": userID})
	return nil
}

// PermissionsForUser returns the union of the user's live roles'
// permissions, sorted.
func (s *RoleService) PermissionsForUser(ctx context.Context, userID string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	assignments, err := s.store.AssignmentsFor(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	roles := make([]string, 0, len(assignments))
	for _, a := range assignments {
		roles = append(roles, a.Role)
	}
	return s.registry.PermissionsFor(ctx, roles)
}

func (s *RoleService) record(ctx context.Context, actorID, action string, extra map[string]any) {
	if err := s.audit.Record(ctx, AuditRecord{
		ActorID:  actorID,
		Action:   action,
		Granted:  true,
		At:       s.now(),
		Metadata: AuditMetadata{Kind: AuditKindGrantMutation, Extra: extra},
	}); err != nil {
		logSideEffectFailure("audit_"+action, err)
	}
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
