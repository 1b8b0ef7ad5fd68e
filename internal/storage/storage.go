// Package storage holds complaint snapshots.
//
// The notification service does not own complaints; it keeps the snapshot
// it was given so that action links and status changes can be resolved
// later. Two implementations share the Store interface:
//   - MemoryStore: in-process map, used when DATABASE_URL is unset
//   - PGStore: PostgreSQL table "complaints"
//
// Thread-safety:
//   - Both implementations are safe for concurrent use
package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"civicnotify/internal/complaint"
)

// ErrNotFound is returned when no complaint has the requested identifier.
var ErrNotFound = errors.New("complaint not found")

// Store persists complaint snapshots.
type Store interface {
	Get(ctx context.Context, id string) (complaint.Complaint, error)
	// Put stores c unless the stored snapshot supersedes it.
	Put(ctx context.Context, c complaint.Complaint) error
	// UpdateStatus sets the status and returns the updated snapshot.
	UpdateStatus(ctx context.Context, id string, status complaint.Status) (complaint.Complaint, error)
	// Recent returns up to limit complaints, newest first.
	Recent(ctx context.Context, limit int) ([]complaint.Complaint, error)
}

// MemoryStore is a map-backed Store.
type MemoryStore struct {
	mu         sync.RWMutex
	complaints map[string]complaint.Complaint
	now        func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		complaints: make(map[string]complaint.Complaint),
		now:        time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Get(_ context.Context, id string) (complaint.Complaint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.complaints[id]
	if !ok {
		return complaint.Complaint{}, ErrNotFound
	}
	return c, nil
}

// supersedes reports whether the stored snapshot is a later state of the
// complaint than incoming. A snapshot without UpdatedAt is only checked for
// status regression.
func supersedes(stored, incoming complaint.Complaint) bool {
	if !incoming.UpdatedAt.IsZero() && stored.UpdatedAt.After(incoming.UpdatedAt) {
		return true
	}
	return decided(stored.Status) && !decided(incoming.Status)
}

func decided(s complaint.Status) bool {
	return s != "" && s != complaint.StatusSubmitted
}

func (s *MemoryStore) Put(_ context.Context, c complaint.Complaint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.complaints[c.ID]; ok && supersedes(old, c) {
		return nil
	}
	s.complaints[c.ID] = c
	return nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status complaint.Status) (complaint.Complaint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.complaints[id]
	if !ok {
		return complaint.Complaint{}, ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = s.now()
	s.complaints[id] = c
	return c, nil
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]complaint.Complaint, error) {
	s.mu.RLock()
	out := make([]complaint.Complaint, 0, len(s.complaints))
	for _, c := range s.complaints {
		out = append(out, c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
