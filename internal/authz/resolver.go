package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pitchvault.io/internal/obs"
)

// Resolver is the engine's decision function. It owns no mutable state;
// every resolution reads the current assignments and grants and appends
// exactly one audit record before returning, allow or deny.
//
// Multiple simultaneous roles are unioned with no precedence rule.
type Resolver struct {
	roles    RoleStore
	grants   GrantStore
	registry *Registry
	audit    Auditor
	now      func() time.Time
}

// NewResolver constructs a Resolver.
func NewResolver(roles RoleStore, grants GrantStore, registry *Registry, audit Auditor) *Resolver {
	return &Resolver{
		roles:    roles,
		grants:   grants,
		registry: registry,
		audit:    audit,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Resolve decides whether the actor may perform the permission. Deny is a
// verdict value, not an error; errors indicate the engine could not decide
// and always come with a deny verdict (fail-secure).
func (r *Resolver) Resolve(ctx context.Context, c Check) (Verdict, error) {
	now := r.now()

	if c.ActorID == "" || c.Permission == "" {
		v := Verdict{Reason: ReasonError}
		err := fmt.Errorf("%w: actor id and permission are required", ErrInvalidInput)
		return r.finish(ctx, c, v, now, err)
	}
	if !KnownPermission(c.Permission) {
		v := Verdict{Reason: ReasonError}
		err := fmt.Errorf("%w: unknown permission %q", ErrConfiguration, c.Permission)
		return r.finish(ctx, c, v, now, err)
	}

	if ResourceScoped(c.Permission) || c.ResourceID != "" {
		return r.resolveScoped(ctx, c, now)
	}
	return r.resolveRole(ctx, c, now)
}

func (r *Resolver) resolveRole(ctx context.Context, c Check, now time.Time) (Verdict, error) {
	assignments, err := r.roles.AssignmentsFor(ctx, c.ActorID, now)
	if err != nil {
		return r.finish(ctx, c, Verdict{Reason: ReasonError}, now, err)
	}
	roles := make([]string, 0, len(assignments))
	for _, a := range assignments {
		roles = append(roles, a.Role)
	}
	role, ok, err := r.registry.Match(ctx, roles, c.Permission)
	if err != nil {
		return r.finish(ctx, c, Verdict{Reason: ReasonError}, now, err)
	}
	if ok {
		return r.finish(ctx, c, Verdict{Granted: true, Reason: ReasonRole, Role: role}, now, nil)
	}
	return r.finish(ctx, c, Verdict{Reason: ReasonNoMatch}, now, nil)
}

func (r *Resolver) resolveScoped(ctx context.Context, c Check, now time.Time) (Verdict, error) {
	if c.ResourceType == "" || c.ResourceID == "" {
		// Scoped permission with no concrete resource: nothing to consult.
		return r.finish(ctx, c, Verdict{Reason: ReasonNoMatch}, now, nil)
	}
	g, err := r.grants.Get(ctx, c.ActorID, c.ResourceType, c.ResourceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return r.finish(ctx, c, Verdict{Reason: ReasonNoMatch}, now, nil)
		}
		return r.finish(ctx, c, Verdict{Reason: ReasonError}, now, err)
	}
	if !g.Live(now) || !g.Level.Covers(MinLevelFor(c.Permission)) {
		return r.finish(ctx, c, Verdict{Reason: ReasonNoMatch}, now, nil)
	}
	return r.finish(ctx, c, Verdict{Granted: true, Reason: ReasonGrant, Provenance: g.Provenance}, now, nil)
}

// finish appends the audit record and publishes metrics. A failed audit
// write turns an allow into a deny: an unrecorded decision never grants.
func (r *Resolver) finish(ctx context.Context, c Check, v Verdict, now time.Time, cause error) (Verdict, error) {
	meta := AuditMetadata{
		Kind:        AuditKindDecision,
		Reason:      string(v.Reason),
		MatchedRole: v.Role,
		Provenance:  string(v.Provenance),
	}
	if cause != nil {
		meta.Kind = AuditKindFailure
		meta.Error = cause.Error()
	}
	rec := AuditRecord{
		ActorID:      c.ActorID,
		Action:       "permission_check",
		ResourceType: c.ResourceType,
		ResourceID:   c.ResourceID,
		Permission:   c.Permission,
		Granted:      v.Granted,
		At:           now,
		Metadata:     meta,
	}
	if err := r.audit.Record(ctx, rec); err != nil {
		obs.ObserveDecision(false, string(ReasonError))
		if cause != nil {
			return Verdict{Reason: ReasonError}, errors.Join(cause, err)
		}
		return Verdict{Reason: ReasonError}, err
	}
	obs.ObserveDecision(v.Granted, string(v.Reason))
	return v, cause
}
