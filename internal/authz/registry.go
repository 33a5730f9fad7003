package authz

import (
	"context"
	"sort"
	"sync"
)

// Registry is an immutable-at-rest snapshot of role to permission-set
// mappings. It loads lazily on first use and is re-read only after an
// explicit Invalidate, keeping lookups cheap without ambient global state.
type Registry struct {
	store RoleStore

	mu     sync.RWMutex
	perms  map[string]map[string]struct{}
	loaded bool
}

// NewRegistry constructs a Registry over the role store.
func NewRegistry(store RoleStore) *Registry {
	return &Registry{store: store}
}

// Invalidate discards the snapshot; the next lookup re-reads storage.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.loaded = false
	r.perms = nil
	r.mu.Unlock()
}

// Match returns the first of the given roles whose permission set contains
// perm, in the order provided.
func (r *Registry) Match(ctx context.Context, roles []string, perm string) (string, bool, error) {
	snapshot, err := r.snapshot(ctx)
	if err != nil {
		return "", false, err
	}
	for _, role := range roles {
		if set, ok := snapshot[role]; ok {
			if _, ok := set[perm]; ok {
				return role, true, nil
			}
		}
	}
	return "", false, nil
}

// PermissionsFor unions the permission sets of the given roles. Roles
// unknown to the snapshot contribute nothing.
func (r *Registry) PermissionsFor(ctx context.Context, roles []string) ([]string, error) {
	snapshot, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	union := map[string]struct{}{}
	for _, role := range roles {
		for perm := range snapshot[role] {
			union[perm] = struct{}{}
		}
	}
	result := make([]string, 0, len(union))
	for perm := range union {
		result = append(result, perm)
	}
	sort.Strings(result)
	return result, nil
}

func (r *Registry) snapshot(ctx context.Context) (map[string]map[string]struct{}, error) {
	r.mu.RLock()
	if r.loaded {
		snap := r.perms
		r.mu.RUnlock()
		return snap, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return r.perms, nil
	}
	raw, err := r.store.RolePermissions(ctx)
	if err != nil {
		return nil, err
	}
	snap := make(map[string]map[string]struct{}, len(raw))
	for role, perms := range raw {
		set := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		snap[role] = set
	}
	r.perms = snap
	r.loaded = true
	return snap, nil
}
