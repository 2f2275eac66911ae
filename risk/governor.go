package risk

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// AdmissionPolicy selects what happens to a simulation request when the
// system-wide in-flight limit is reached.
type AdmissionPolicy string

const (
	// PolicyQueue blocks the request until a slot frees, FIFO.
	PolicyQueue AdmissionPolicy = "queue"
	// PolicyReject fails the request with ErrTooManyConcurrentSimulations.
	PolicyReject AdmissionPolicy = "reject"
)

// Governor is the admission gate in front of the simulation engine. It
// bounds the number of simulations in flight system-wide; per-run trial
// parallelism is capped separately by the engine.
//
// One configured policy applies to every request. Under PolicyQueue waiters
// are served in arrival order (the semaphore keeps a FIFO wait list), so no
// request starves.
type Governor struct {
	policy   AdmissionPolicy
	sem      *semaphore.Weighted
	limit    int64
	inflight atomic.Int64
}

// NewGovernor creates a Governor admitting at most limit concurrent runs.
func NewGovernor(limit int, policy AdmissionPolicy) (*Governor, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: concurrency limit=%d, want >= 1", ErrParameterOutOfRange, limit)
	}
	if policy != PolicyQueue && policy != PolicyReject {
		return nil, fmt.Errorf("unknown admission policy %q", policy)
	}
	return &Governor{
		policy: policy,
		sem:    semaphore.NewWeighted(int64(limit)),
		limit:  int64(limit),
	}, nil
}

// Acquire admits one simulation according to the configured policy and
// returns the release function for its slot. Release is idempotent and must
// be called exactly when the run finishes or is cancelled.
func (g *Governor) Acquire(ctx context.Context) (release func(), err error) {
	switch g.policy {
	case PolicyReject:
		if !g.sem.TryAcquire(1) {
			return nil, fmt.Errorf("%w: limit=%d", ErrTooManyConcurrentSimulations, g.limit)
		}
	default: // PolicyQueue
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	g.inflight.Add(1)
	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			g.inflight.Add(-1)
			g.sem.Release(1)
		}
	}, nil
}

// InFlight returns the number of currently admitted simulations.
func (g *Governor) InFlight() int64 { return g.inflight.Load() }

// Policy returns the configured admission policy.
func (g *Governor) Policy() AdmissionPolicy { return g.policy }
