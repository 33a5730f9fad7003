package httpapi

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"pitchvault.io/internal/authz"
)

// stubStore backs the handler tests with in-memory state implementing every
// persistence interface the engine consumes.
type stubStore struct {
	mu          sync.Mutex
	roles       map[string]authz.Role
	perms       map[string][]string
	assignments map[string]authz.RoleAssignment
	grants      map[string]authz.ContentAccessGrant
	ndas        map[string]authz.NdaRequest
	audit       []authz.AuditRecord
}

func newStubStore() *stubStore {
	return &stubStore{
		roles:       map[string]authz.Role{},
		perms:       map[string][]string{},
		assignments: map[string]authz.RoleAssignment{},
		grants:      map[string]authz.ContentAccessGrant{},
		ndas:        map[string]authz.NdaRequest{},
	}
}

func (s *stubStore) CreateRole(_ context.Context, name string, isSystem bool) (authz.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[name]; ok {
		return authz.Role{}, authz.ErrConflict
	}
	role := authz.Role{Name: name, IsSystem: isSystem, CreatedAt: time.Now().UTC()}
	s.roles[name] = role
	return role, nil
}

func (s *stubStore) GetRole(_ context.Context, name string) (authz.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[name]
	if !ok {
		return authz.Role{}, authz.ErrNotFound
	}
	return role, nil
}

func (s *stubStore) DeleteRole(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[name]
	if !ok || role.IsSystem {
		return authz.ErrNotFound
	}
	delete(s.roles, name)
	return nil
}

func (s *stubStore) ListRoles(_ context.Context) ([]authz.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]authz.Role, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *stubStore) SetRolePermissions(_ context.Context, role string, perms []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[role]; !ok {
		return authz.ErrNotFound
	}
	s.perms[role] = append([]string(nil), perms...)
	return nil
}

func (s *stubStore) RolePermissions(_ context.Context) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string, len(s.perms))
	for role, perms := range s.perms {
		out[role] = append([]string(nil), perms...)
	}
	return out, nil
}

func (s *stubStore) Assign(_ context.Context, a authz.RoleAssignment) (authz.RoleAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[a.Role]; !ok {
		return authz.RoleAssignment{}, authz.ErrNotFound
	}
	s.assignments[a.UserID+"|"+a.Role] = a
	return a, nil
}

func (s *stubStore) Unassign(_ context.Context, userID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "|" + role
	if _, ok := s.assignments[key]; !ok {
		return authz.ErrNotFound
	}
	delete(s.assignments, key)
	return nil
}

func (s *stubStore) AssignmentsFor(_ context.Context, userID string, now time.Time) ([]authz.RoleAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []authz.RoleAssignment
	for key, a := range s.assignments {
		if strings.HasPrefix(key, userID+"|") && a.Live(now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out, nil
}

func (s *stubStore) Upsert(_ context.Context, g authz.ContentAccessGrant) (authz.ContentAccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := g.UserID + "|" + g.ResourceType + "|" + g.ResourceID
	if existing, ok := s.grants[key]; ok {
		if existing.Level > g.Level {
			g.Level = existing.Level
		}
		if existing.Provenance == authz.ProvenanceOwnership {
			g.Provenance = existing.Provenance
			g.ExpiresAt = existing.ExpiresAt
		}
		g.GrantedAt = existing.GrantedAt
	}
	s.grants[key] = g
	return g, nil
}

func (s *stubStore) Get(_ context.Context, userID, resourceType, resourceID string) (authz.ContentAccessGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[userID+"|"+resourceType+"|"+resourceID]
	if !ok {
		return authz.ContentAccessGrant{}, authz.ErrNotFound
	}
	return g, nil
}

func (s *stubStore) Revoke(_ context.Context, userID, resourceType, resourceID string, provenance authz.Provenance) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "|" + resourceType + "|" + resourceID
	g, ok := s.grants[key]
	if !ok || (provenance != "" && g.Provenance != provenance) {
		return false, nil
	}
	delete(s.grants, key)
	return true, nil
}

func (s *stubStore) RevokeResource(_ context.Context, resourceType, resourceID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, g := range s.grants {
		if g.ResourceType == resourceType && g.ResourceID == resourceID {
			delete(s.grants, key)
			n++
		}
	}
	return n, nil
}

func (s *stubStore) Create(_ context.Context, req authz.NdaRequest) (authz.NdaRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.ndas {
		if existing.RequesterID == req.RequesterID && existing.ResourceID == req.ResourceID &&
			!existing.Status.Terminal() {
			return authz.NdaRequest{}, authz.ErrConflict
		}
	}
	s.ndas[req.ID] = req
	return req, nil
}

func (s *stubStore) GetRequest(_ context.Context, id string) (authz.NdaRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.ndas[id]
	if !ok {
		return authz.NdaRequest{}, authz.ErrNotFound
	}
	return req, nil
}

func (s *stubStore) Transition(_ context.Context, id string, from, to authz.NdaStatus, at time.Time, expiresAt *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.ndas[id]
	if !ok || req.Status != from {
		return false, nil
	}
	req.Status = to
	switch to {
	case authz.NdaApproved:
		req.ApprovedAt = &at
	case authz.NdaRejected:
		req.RejectedAt = &at
	case authz.NdaRevoked:
		req.RevokedAt = &at
	}
	if expiresAt != nil {
		req.ExpiresAt = expiresAt
	}
	s.ndas[id] = req
	return true, nil
}

func (s *stubStore) DueForExpiry(_ context.Context, now time.Time, limit int) ([]authz.NdaRequest, error) {
	return nil, nil
}

func (s *stubStore) Append(_ context.Context, rec authz.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, rec)
	return nil
}

func (s *stubStore) Tail(_ context.Context, limit int) ([]authz.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]authz.AuditRecord(nil), s.audit...)
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
