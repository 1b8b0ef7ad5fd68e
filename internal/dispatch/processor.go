package dispatch

import (
	"context"
	"errors"
	"fmt"

	"civicnotify/internal/complaint"
	"civicnotify/internal/storage"
)

// Processor adapts the dispatcher to the worker pool. It keeps the
// complaint store in step with incoming snapshots and loads the snapshot
// when an event arrives without one.
type Processor struct {
	dispatcher *Dispatcher
	store      storage.Store
}

// NewProcessor creates a Processor.
func NewProcessor(d *Dispatcher, store storage.Store) *Processor {
	return &Processor{dispatcher: d, store: store}
}

var _ complaint.Handler = (*Processor)(nil)

// Process resolves the snapshot for ev and dispatches it.
func (p *Processor) Process(ctx context.Context, ev complaint.Event) complaint.ProcessResult {
	result := complaint.ProcessResult{EventID: ev.ID, ComplaintID: ev.ComplaintID}

	snapshot, err := p.snapshot(ctx, ev)
	if err != nil {
		result.Error = err
		return result
	}
	ev.Complaint = &snapshot
	result.ComplaintID = snapshot.ID

	outcomes, err := p.dispatcher.DispatchEvent(ctx, ev)
	result.Outcomes = make(map[complaint.Role]complaint.Outcome, len(outcomes))
	for role, out := range outcomes {
		result.Outcomes[role] = out.Outcome
	}
	result.Error = err
	return result
}

func (p *Processor) snapshot(ctx context.Context, ev complaint.Event) (complaint.Complaint, error) {
	if ev.Complaint != nil {
		c := *ev.Complaint
		if c.ID == "" {
			c.ID = ev.ComplaintID
		}
		if c.ID == "" {
			return complaint.Complaint{}, fmt.Errorf("event %s has no complaint identifier", ev.ID)
		}
		if err := p.store.Put(ctx, c); err != nil {
			return complaint.Complaint{}, fmt.Errorf("failed to store complaint %s: %w", c.ID, err)
		}
		// The store keeps whichever snapshot is newer; dispatch that one.
		ev.ComplaintID = c.ID
	}

	c, err := p.store.Get(ctx, ev.ComplaintID)
	if errors.Is(err, storage.ErrNotFound) {
		return complaint.Complaint{}, fmt.Errorf("event %s references unknown complaint %q", ev.ID, ev.ComplaintID)
	}
	if err != nil {
		return complaint.Complaint{}, fmt.Errorf("failed to load complaint %s: %w", ev.ComplaintID, err)
	}
	return c, nil
}
