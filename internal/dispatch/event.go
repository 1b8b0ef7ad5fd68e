package dispatch

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"civicnotify/internal/complaint"
)

// RolesFor returns the roles notified for an event kind.
//
//   - created: the department official and the citizen
//   - status_changed: the citizen only
func RolesFor(kind complaint.EventKind) ([]complaint.Role, error) {
	switch kind {
	case complaint.EventCreated:
		return []complaint.Role{complaint.RoleOfficial, complaint.RoleCitizen}, nil
	case complaint.EventStatusChanged:
		return []complaint.Role{complaint.RoleCitizen}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
}

// DispatchEvent dispatches every role an event calls for, concurrently.
// ev.Complaint must carry the complaint snapshot.
//
// One role failing does not cancel the other; the first error is returned
// after both finish, alongside every outcome that was reached.
func (d *Dispatcher) DispatchEvent(ctx context.Context, ev complaint.Event) (map[complaint.Role]Outcome, error) {
	if ev.Complaint == nil {
		return nil, fmt.Errorf("event %s carries no complaint snapshot", ev.ID)
	}
	roles, err := RolesFor(ev.Kind)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		outcomes = make(map[complaint.Role]Outcome, len(roles))
		g        errgroup.Group
	)

	for _, role := range roles {
		role := role
		g.Go(func() error {
			out, err := d.dispatch(ctx, *ev.Complaint, role, ev.Kind == complaint.EventCreated)
			if out.ComplaintID != "" {
				mu.Lock()
				outcomes[role] = out
				mu.Unlock()
			}
			if err != nil {
				return fmt.Errorf("%s notification: %w", role, err)
			}
			return nil
		})
	}

	err = g.Wait()
	return outcomes, err
}
