package authz

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// In-memory stores mirroring the postgres semantics, shared by the service
// tests in this package.

type memAudit struct {
	mu      sync.Mutex
	records []AuditRecord
	err     error
}

func (m *memAudit) Record(_ context.Context, rec AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memAudit) last() (AuditRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.records) == 0 {
		return AuditRecord{}, false
	}
	return m.records[len(m.records)-1], true
}

func (m *memAudit) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type memRoleStore struct {
	mu          sync.Mutex
	roles       map[string]Role
	perms       map[string][]string
	assignments map[string]RoleAssignment // key userID|role
	err         error
}

func newMemRoleStore() *memRoleStore {
	return &memRoleStore{
		roles:       map[string]Role{},
		perms:       map[string][]string{},
		assignments: map[string]RoleAssignment{},
	}
}

func (m *memRoleStore) CreateRole(_ context.Context, name string, isSystem bool) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Role{}, m.err
	}
	if _, ok := m.roles[name]; ok {
		return Role{}, ErrConflict
	}
	role := Role{Name: name, IsSystem: isSystem, CreatedAt: time.Now().UTC()}
	m.roles[name] = role
	return role, nil
}

func (m *memRoleStore) GetRole(_ context.Context, name string) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Role{}, m.err
	}
	role, ok := m.roles[name]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (m *memRoleStore) DeleteRole(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[name]
	if !ok || role.IsSystem {
		return ErrNotFound
	}
	delete(m.roles, name)
	delete(m.perms, name)
	return nil
}

func (m *memRoleStore) ListRoles(_ context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.roles))
	for name := range m.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	roles := make([]Role, 0, len(names))
	for _, name := range names {
		roles = append(roles, m.roles[name])
	}
	return roles, nil
}

func (m *memRoleStore) SetRolePermissions(_ context.Context, role string, perms []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[role]; !ok {
		return ErrNotFound
	}
	m.perms[role] = append([]string(nil), perms...)
	return nil
}

func (m *memRoleStore) RolePermissions(_ context.Context) (map[string][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string][]string, len(m.perms))
	for role, perms := range m.perms {
		out[role] = append([]string(nil), perms...)
	}
	return out, nil
}

func (m *memRoleStore) Assign(_ context.Context, a RoleAssignment) (RoleAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[a.Role]; !ok {
		return RoleAssignment{}, ErrNotFound
	}
	m.assignments[a.UserID+"|"+a.Role] = a
	return a, nil
}

func (m *memRoleStore) Unassign(_ context.Context, userID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := userID + "|" + role
	if _, ok := m.assignments[key]; !ok {
		return ErrNotFound
	}
	delete(m.assignments, key)
	return nil
}

func (m *memRoleStore) AssignmentsFor(_ context.Context, userID string, now time.Time) ([]RoleAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []RoleAssignment
	for key, a := range m.assignments {
		if !strings.HasPrefix(key, userID+"|") {
			continue
		}
		if a.Live(now) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out, nil
}

type memGrantStore struct {
	mu     sync.Mutex
	grants map[string]ContentAccessGrant
	err    error
	// Per-operation injections for partial-failure tests; err trips every
	// operation including reads.
	upsertErr error
	revokeErr error
}

func newMemGrantStore() *memGrantStore {
	return &memGrantStore{grants: map[string]ContentAccessGrant{}}
}

func grantKey(userID, resourceType, resourceID string) string {
	return fmt.Sprintf("%s|%s|%s", userID, resourceType, resourceID)
}

func (m *memGrantStore) Upsert(_ context.Context, g ContentAccessGrant) (ContentAccessGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return ContentAccessGrant{}, m.err
	}
	if m.upsertErr != nil {
		return ContentAccessGrant{}, m.upsertErr
	}
	key := grantKey(g.UserID, g.ResourceType, g.ResourceID)
	if existing, ok := m.grants[key]; ok {
		if existing.Level > g.Level {
			g.Level = existing.Level
		}
		if existing.Provenance == ProvenanceOwnership {
			g.Provenance = existing.Provenance
			g.ExpiresAt = existing.ExpiresAt
		}
		if g.NdaID == "" {
			g.NdaID = existing.NdaID
		}
		g.GrantedAt = existing.GrantedAt
	}
	m.grants[key] = g
	return g, nil
}

func (m *memGrantStore) Get(_ context.Context, userID, resourceType, resourceID string) (ContentAccessGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return ContentAccessGrant{}, m.err
	}
	g, ok := m.grants[grantKey(userID, resourceType, resourceID)]
	if !ok {
		return ContentAccessGrant{}, ErrNotFound
	}
	return g, nil
}

func (m *memGrantStore) Revoke(_ context.Context, userID, resourceType, resourceID string, provenance Provenance) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.revokeErr != nil {
		return false, m.revokeErr
	}
	key := grantKey(userID, resourceType, resourceID)
	g, ok := m.grants[key]
	if !ok {
		return false, nil
	}
	if provenance != "" && g.Provenance != provenance {
		return false, nil
	}
	delete(m.grants, key)
	return true, nil
}

func (m *memGrantStore) RevokeResource(_ context.Context, resourceType, resourceID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, g := range m.grants {
		if g.ResourceType == resourceType && g.ResourceID == resourceID {
			delete(m.grants, key)
			n++
		}
	}
	return n, nil
}

type memNdaStore struct {
	mu   sync.Mutex
	reqs map[string]NdaRequest
	// transitionOK forces Transition to report a lost race when false.
	transitionOK *bool
}

func newMemNdaStore() *memNdaStore {
	return &memNdaStore{reqs: map[string]NdaRequest{}}
}

func (m *memNdaStore) Create(_ context.Context, req NdaRequest) (NdaRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reqs {
		if existing.RequesterID == req.RequesterID && existing.ResourceID == req.ResourceID &&
			!existing.Status.Terminal() {
			return NdaRequest{}, ErrConflict
		}
	}
	m.reqs[req.ID] = req
	return req, nil
}

func (m *memNdaStore) GetRequest(_ context.Context, id string) (NdaRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.reqs[id]
	if !ok {
		return NdaRequest{}, ErrNotFound
	}
	return req, nil
}

func (m *memNdaStore) Transition(_ context.Context, id string, from, to NdaStatus, at time.Time, expiresAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transitionOK != nil && !*m.transitionOK {
		return false, nil
	}
	req, ok := m.reqs[id]
	if !ok || req.Status != from {
		return false, nil
	}
	req.Status = to
	switch to {
	case NdaApproved:
		req.ApprovedAt = &at
	case NdaRejected:
		req.RejectedAt = &at
	case NdaRevoked:
		req.RevokedAt = &at
	}
	if expiresAt != nil {
		req.ExpiresAt = expiresAt
	}
	m.reqs[id] = req
	return true, nil
}

func (m *memNdaStore) DueForExpiry(_ context.Context, now time.Time, limit int) ([]NdaRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []NdaRequest
	for _, req := range m.reqs {
		if req.Status == NdaApproved && req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
			due = append(due, req)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}
