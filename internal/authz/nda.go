package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pitchvault.io/internal/ids"
	"pitchvault.io/internal/obs"
)

// NdaService drives the NDA approval workflow. It is the only writer of
// nda-provenance grants; everything it does to the grant store goes through
// GrantService so the one-row-per-triple invariants hold.
//
// Lifecycle: pending -> {approved, rejected}; approved -> {revoked, expired}.
type NdaService struct {
	store    NdaStore
	grants   *GrantService
	audit    Auditor
	grantTTL time.Duration
	now      func() time.Time
}

// NewNdaService constructs an NdaService. grantTTL bounds the lifetime of
// the view grant produced by an approval.
func NewNdaService(store NdaStore, grants *GrantService, audit Auditor, grantTTL time.Duration) *NdaService {
	return &NdaService{
		store:    store,
		grants:   grants,
		audit:    audit,
		grantTTL: grantTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Request opens a pending NDA request. At most one non-terminal request may
// exist per requester/resource pair; a duplicate returns ErrConflict.
func (s *NdaService) Request(ctx context.Context, requesterID, resourceID string) (NdaRequest, error) {
	requesterID = strings.TrimSpace(requesterID)
	resourceID = strings.TrimSpace(resourceID)
	if requesterID == "" || resourceID == "" {
		return NdaRequest{}, fmt.Errorf("%w: requester and resource are required", ErrInvalidInput)
	}
	req := NdaRequest{
		ID:          ids.New(),
		RequesterID: requesterID,
		ResourceID:  resourceID,
		Status:      NdaPending,
		RequestedAt: s.now(),
	}
	created, err := s.store.Create(ctx, req)
	if err != nil {
		return NdaRequest{}, err
	}
	s.record(ctx, requesterID, created, "request", true, nil)
	obs.ObserveNdaTransition("request")
	return created, nil
}

// Get returns the request by id.
func (s *NdaService) Get(ctx context.Context, id string) (NdaRequest, error) {
	if strings.TrimSpace(id) == "" {
		return NdaRequest{}, fmt.Errorf("%w: request id is required", ErrInvalidInput)
	}
	return s.store.GetRequest(ctx, id)
}

// Approve transitions a pending request to approved and installs the
// requester's view grant. Only the resource owner may approve.
func (s *NdaService) Approve(ctx context.Context, requestID, approverID string) (NdaRequest, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return NdaRequest{}, err
	}
	if req.Status != NdaPending {
		err := fmt.Errorf("%w: cannot approve request in status %q", ErrInvalidTransition, req.Status)
		s.record(ctx, approverID, req, "approve", false, err)
		return NdaRequest{}, err
	}
	if err := s.requireOwnership(ctx, approverID, req.ResourceID); err != nil {
		s.record(ctx, approverID, req, "approve", false, err)
		return NdaRequest{}, err
	}

	now := s.now()
	expires := now.Add(s.grantTTL)

	// The grant goes in before the terminal transition. If the upsert fails
	// the request is still pending and the approval can simply be retried;
	// the inverse order would leave an approved request with no grant and no
	// way back.
	if _, err := s.grants.Upsert(ctx, approverID, ContentAccessGrant{
		UserID:       req.RequesterID,
		ResourceType: ResourceTypePitch,
		ResourceID:   req.ResourceID,
		Level:        LevelView,
		Provenance:   ProvenanceNda,
		NdaID:        req.ID,
		GrantedAt:    now,
		ExpiresAt:    &expires,
	}); err != nil {
		return NdaRequest{}, err
	}

	ok, err := s.store.Transition(ctx, req.ID, NdaPending, NdaApproved, now, &expires)
	if err != nil {
		return NdaRequest{}, err
	}
	if !ok {
		// Lost the race against a concurrent transition.
		s.unwindApprovalGrant(ctx, approverID, req)
		err := fmt.Errorf("%w: request is no longer pending", ErrInvalidTransition)
		s.record(ctx, approverID, req, "approve", false, err)
		return NdaRequest{}, err
	}

	req.Status = NdaApproved
	req.ApprovedAt = &now
	req.ExpiresAt = &expires
	s.record(ctx, approverID, req, "approve", true, nil)
	obs.ObserveNdaTransition("approve")
	return req, nil
}

// Reject transitions a pending request to rejected. No grant side effect.
func (s *NdaService) Reject(ctx context.Context, requestID, approverID, reason string) (NdaRequest, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return NdaRequest{}, err
	}
	if req.Status != NdaPending {
		err := fmt.Errorf("%w: cannot reject request in status %q", ErrInvalidTransition, req.Status)
		s.record(ctx, approverID, req, "reject", false, err)
		return NdaRequest{}, err
	}
	if err := s.requireOwnership(ctx, approverID, req.ResourceID); err != nil {
		s.record(ctx, approverID, req, "reject", false, err)
		return NdaRequest{}, err
	}

	now := s.now()
	ok, err := s.store.Transition(ctx, req.ID, NdaPending, NdaRejected, now, nil)
	if err != nil {
		return NdaRequest{}, err
	}
	if !ok {
		err := fmt.Errorf("%w: request is no longer pending", ErrInvalidTransition)
		s.record(ctx, approverID, req, "reject", false, err)
		return NdaRequest{}, err
	}

	req.Status = NdaRejected
	req.RejectedAt = &now
	s.recordWithExtra(ctx, approverID, req, "reject", true, nil, map[string]any{"reason": reason})
	obs.ObserveNdaTransition("reject")
	return req, nil
}

// Revoke transitions an approved request to revoked and removes the
// requester's nda-provenance grant. Only the resource owner may revoke.
func (s *NdaService) Revoke(ctx context.Context, requestID, revokerID string) (NdaRequest, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return NdaRequest{}, err
	}
	if req.Status != NdaApproved {
		err := fmt.Errorf("%w: cannot revoke request in status %q", ErrInvalidTransition, req.Status)
		s.record(ctx, revokerID, req, "revoke", false, err)
		return NdaRequest{}, err
	}
	if err := s.requireOwnership(ctx, revokerID, req.ResourceID); err != nil {
		s.record(ctx, revokerID, req, "revoke", false, err)
		return NdaRequest{}, err
	}

	now := s.now()

	// Remove the grant before the terminal transition. If the removal fails
	// the request is still approved and the revocation can be retried;
	// transitioning first could strand a revoked request whose grant stays
	// live until its expiry. The provenance filter makes a retry's miss a
	// no-op and keeps ownership rows out of reach.
	if err := s.grants.Revoke(ctx, revokerID, req.RequesterID, ResourceTypePitch, req.ResourceID, ProvenanceNda); err != nil {
		return NdaRequest{}, err
	}

	ok, err := s.store.Transition(ctx, req.ID, NdaApproved, NdaRevoked, now, nil)
	if err != nil {
		return NdaRequest{}, err
	}
	if !ok {
		err := fmt.Errorf("%w: request is no longer approved", ErrInvalidTransition)
		s.record(ctx, revokerID, req, "revoke", false, err)
		return NdaRequest{}, err
	}

	req.Status = NdaRevoked
	req.RevokedAt = &now
	s.record(ctx, revokerID, req, "revoke", true, nil)
	obs.ObserveNdaTransition("revoke")
	return req, nil
}

// unwindApprovalGrant removes the grant installed by an approval that lost
// the pending race. If the winner was a concurrent approval the grant is
// theirs now and must stay; only a rejection (or a vanished request) means
// the grant has no backing approval.
func (s *NdaService) unwindApprovalGrant(ctx context.Context, actorID string, req NdaRequest) {
	current, err := s.store.GetRequest(ctx, req.ID)
	if err == nil && current.Status == NdaApproved {
		return
	}
	if err := s.grants.Revoke(ctx, actorID, req.RequesterID, ResourceTypePitch, req.ResourceID, ProvenanceNda); err != nil {
		logSideEffectFailure("nda_approve_unwind", err)
	}
}

// requireOwnership verifies the actor holds a live admin-level grant of
// ownership provenance on the resource.
func (s *NdaService) requireOwnership(ctx context.Context, actorID, resourceID string) error {
	g, err := s.grants.Get(ctx, actorID, ResourceTypePitch, resourceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: not the resource owner", ErrForbidden)
		}
		return err
	}
	if !g.Live(s.now()) || g.Provenance != ProvenanceOwnership || !g.Level.Covers(LevelAdmin) {
		return fmt.Errorf("%w: not the resource owner", ErrForbidden)
	}
	return nil
}

func (s *NdaService) record(ctx context.Context, actorID string, req NdaRequest, action string, ok bool, cause error) {
	s.recordWithExtra(ctx, actorID, req, action, ok, cause, nil)
}

func (s *NdaService) recordWithExtra(ctx context.Context, actorID string, req NdaRequest, action string, ok bool, cause error, extra map[string]any) {
	meta := AuditMetadata{
		Kind:  AuditKindNdaTransition,
		NdaID: req.ID,
		Extra: extra,
	}
	if cause != nil {
		meta.Error = cause.Error()
	}
	if err := s.audit.Record(ctx, AuditRecord{
		ActorID:      actorID,
		Action:       "nda_" + action,
		ResourceType: ResourceTypePitch,
		ResourceID:   req.ResourceID,
		Granted:      ok,
		At:           s.now(),
		Metadata:     meta,
	}); err != nil {
		logSideEffectFailure("audit_nda_"+action, err)
	}
}
