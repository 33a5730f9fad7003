package authz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pitchvault.io/internal/obs"
)

// GrantService mediates every grant-store mutation and emits an audit
// record for each one. The NDA workflow and the resource lifecycle hooks
// both go through it.
type GrantService struct {
	store GrantStore
	audit Auditor
	now   func() time.Time
}

// NewGrantService constructs a GrantService.
func NewGrantService(store GrantStore, audit Auditor) *GrantService {
	return &GrantService{
		store: store,
		audit: audit,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Upsert creates or merges a grant. actorID identifies who performed the
// mutation for the audit trail; empty means system-initiated.
func (s *GrantService) Upsert(ctx context.Context, actorID string, g ContentAccessGrant) (ContentAccessGrant, error) {
	g.UserID = strings.TrimSpace(g.UserID)
	g.ResourceType = strings.TrimSpace(g.ResourceType)
	g.ResourceID = strings.TrimSpace(g.ResourceID)
	if g.UserID == "" || g.ResourceType == "" || g.ResourceID == "" {
		return ContentAccessGrant{}, fmt.Errorf("%w: user, resource type and resource id are required", ErrInvalidInput)
	}
	if g.Level < LevelView || g.Level > LevelAdmin {
		return ContentAccessGrant{}, fmt.Errorf("%w: unsupported access level", ErrInvalidInput)
	}
	if !g.Provenance.Valid() {
		return ContentAccessGrant{}, fmt.Errorf("%w: unsupported provenance %q", ErrInvalidInput, g.Provenance)
	}
	if g.GrantedAt.IsZero() {
		g.GrantedAt = s.now()
	}
	out, err := s.store.Upsert(ctx, g)
	if err != nil {
		return ContentAccessGrant{}, err
	}
	s.record(ctx, actorID, out.ResourceType, out.ResourceID, AuditMetadata{
		Kind:        AuditKindGrantMutation,
		Provenance:  string(out.Provenance),
		AccessLevel: out.Level.String(),
		NdaID:       out.NdaID,
		Extra:       map[string]any{"op": "upsert", "subject": out.UserID},
	})
	return out, nil
}

// Get returns the stored grant for the triple, expired or not.
func (s *GrantService) Get(ctx context.Context, userID, resourceType, resourceID string) (ContentAccessGrant, error) {
	if userID == "" || resourceType == "" || resourceID == "" {
		return ContentAccessGrant{}, fmt.Errorf("%w: user, resource type and resource id are required", ErrInvalidInput)
	}
	return s.store.Get(ctx, userID, resourceType, resourceID)
}

// Revoke removes the grant for the triple. With a provenance filter only a
// row of that provenance is removed and a miss is a no-op, so revoking an
// nda grant can never touch an ownership row. Without a filter a miss is
// ErrNotFound.
func (s *GrantService) Revoke(ctx context.Context, actorID, userID, resourceType, resourceID string, provenance Provenance) error {
	if userID == "" || resourceType == "" || resourceID == "" {
		return fmt.Errorf("%w: user, resource type and resource id are required", ErrInvalidInput)
	}
	if provenance != "" && !provenance.Valid() {
		return fmt.Errorf("%w: unsupported provenance %q", ErrInvalidInput, provenance)
	}
	removed, err := s.store.Revoke(ctx, userID, resourceType, resourceID, provenance)
	if err != nil {
		return err
	}
	if !removed {
		if provenance == "" {
			return ErrNotFound
		}
		return nil
	}
	s.record(ctx, actorID, resourceType, resourceID, AuditMetadata{
		Kind:       AuditKindGrantMutation,
		Provenance: string(provenance),
		Extra:      map[string]any{"op": "revoke", "subject": userID},
	})
	return nil
}

// OnResourceCreated installs the owner's admin grant for a new resource.
func (s *GrantService) OnResourceCreated(ctx context.Context, resourceType, resourceID, ownerID string) (ContentAccessGrant, error) {
	return s.Upsert(ctx, "", ContentAccessGrant{
		UserID:       ownerID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Level:        LevelAdmin,
		Provenance:   ProvenanceOwnership,
	})
}

// OnResourceDeleted removes every grant on the resource. The cascade is an
// explicit operation here, not a storage-engine side effect, so deletion
// semantics stay testable.
func (s *GrantService) OnResourceDeleted(ctx context.Context, resourceType, resourceID string) (int64, error) {
	if resourceType == "" || resourceID == "" {
		return 0, fmt.Errorf("%w: resource type and resource id are required", ErrInvalidInput)
	}
	n, err := s.store.RevokeResource(ctx, resourceType, resourceID)
	if err != nil {
		return 0, err
	}
	s.record(ctx, "", resourceType, resourceID, AuditMetadata{
		Kind:  AuditKindGrantMutation,
		Extra: map[string]any{"op": "cascade_delete", "removed": n},
	})
	return n, nil
}

func (s *GrantService) record(ctx context.Context, actorID, resourceType, resourceID string, meta AuditMetadata) {
	if err := s.audit.Record(ctx, AuditRecord{
		ActorID:      actorID,
		Action:       "grant_mutation",
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Granted:      true,
		At:           s.now(),
		Metadata:     meta,
	}); err != nil {
		logSideEffectFailure("audit_grant_mutation", err)
	}
}

// logSideEffectFailure surfaces a failed best-effort step that runs after a
// mutation has already committed, an audit append or a compensation. The
// mutation itself stands; the line keeps the gap visible to operators.
func logSideEffectFailure(op string, err error) {
	obs.LogRequest(map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "engine_error",
		"op":    op,
		"error": err.Error(),
	})
}
