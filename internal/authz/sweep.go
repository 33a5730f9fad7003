package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pitchvault.io/internal/obs"
)

// Sweeper expires approved NDA requests whose grant lifetime has passed and
// removes the matching nda grants. Each request is handled independently so
// a mid-batch failure leaves already-processed requests correctly expired;
// the remainder is retried on the next scheduled run.
type Sweeper struct {
	store  NdaStore
	grants *GrantService
	batch  int
	now    func() time.Time
}

// NewSweeper constructs a Sweeper processing at most batch requests per run.
func NewSweeper(store NdaStore, grants *GrantService, batch int) *Sweeper {
	if batch <= 0 {
		batch = 500
	}
	return &Sweeper{
		store:  store,
		grants: grants,
		batch:  batch,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Sweep runs one pass and returns how many requests it expired. Re-running
// on already-expired requests is a no-op: the conditional transition from
// approved simply finds nothing to do.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.store.DueForExpiry(ctx, now, s.batch)
	if err != nil {
		return 0, fmt.Errorf("list due nda requests: %w", err)
	}

	var (
		expired int
		errs    []error
	)
	for _, req := range due {
		ok, err := s.store.Transition(ctx, req.ID, NdaApproved, NdaExpired, now, nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire %s: %w", req.ID, err))
			continue
		}
		if !ok {
			continue
		}
		if err := s.grants.Revoke(ctx, "", req.RequesterID, ResourceTypePitch, req.ResourceID, ProvenanceNda); err != nil {
			errs = append(errs, fmt.Errorf("revoke grant for %s: %w", req.ID, err))
			continue
		}
		expired++
	}
	obs.ObserveSweep(expired)
	return expired, errors.Join(errs...)
}
