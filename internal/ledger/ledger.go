// Package ledger records notification attempts and their outcomes.
//
// The ledger holds one row per (complaint, role). The dispatcher upserts the
// row on every state change, so the row always reflects the latest committed
// state of that notification. It is a pure store: no business rules live
// here.
package ledger

import (
	"context"

	"civicnotify/internal/complaint"
)

// Ledger is the delivery record used for idempotency and diagnostics.
type Ledger interface {
	// Record upserts the attempt for (attempt.ComplaintID, attempt.Role).
	Record(ctx context.Context, attempt complaint.DispatchAttempt) error
	// LastOutcome returns the current attempt for (complaintID, role).
	LastOutcome(ctx context.Context, complaintID string, role complaint.Role) (complaint.DispatchAttempt, bool, error)
	// List returns attempts matching filter, most recent first.
	List(ctx context.Context, filter Filter) ([]complaint.DispatchAttempt, error)
	// Stats counts attempts per outcome.
	Stats(ctx context.Context) (Stats, error)
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	ComplaintID string
	Outcome     complaint.Outcome
	Limit       int
}

func (f Filter) match(a complaint.DispatchAttempt) bool {
	if f.ComplaintID != "" && a.ComplaintID != f.ComplaintID {
		return false
	}
	if f.Outcome != "" && a.Outcome != f.Outcome {
		return false
	}
	return true
}

// Stats is a per-outcome count.
type Stats map[complaint.Outcome]int

// Total returns the number of rows.
func (s Stats) Total() int {
	n := 0
	for _, v := range s {
		n += v
	}
	return n
}
