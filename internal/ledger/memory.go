package ledger

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"

	"civicnotify/internal/complaint"
)

const shardCount = 32

type rowKey struct {
	complaintID string
	role        complaint.Role
}

type shard struct {
	mu   sync.RWMutex
	rows map[rowKey]complaint.DispatchAttempt
}

// MemoryLedger is an in-process ledger partitioned by complaint identifier,
// so writes for different complaints rarely contend on the same lock.
type MemoryLedger struct {
	shards [shardCount]*shard
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	l := &MemoryLedger{}
	for i := range l.shards {
		l.shards[i] = &shard{rows: make(map[rowKey]complaint.DispatchAttempt)}
	}
	return l
}

var _ Ledger = (*MemoryLedger)(nil)

func (l *MemoryLedger) shardFor(complaintID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(complaintID))
	return l.shards[h.Sum32()%shardCount]
}

func (l *MemoryLedger) Record(_ context.Context, attempt complaint.DispatchAttempt) error {
	s := l.shardFor(attempt.ComplaintID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[rowKey{attempt.ComplaintID, attempt.Role}] = attempt
	return nil
}

func (l *MemoryLedger) LastOutcome(_ context.Context, complaintID string, role complaint.Role) (complaint.DispatchAttempt, bool, error) {
	s := l.shardFor(complaintID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.rows[rowKey{complaintID, role}]
	return a, ok, nil
}

func (l *MemoryLedger) List(_ context.Context, filter Filter) ([]complaint.DispatchAttempt, error) {
	var out []complaint.DispatchAttempt
	for _, s := range l.shards {
		s.mu.RLock()
		for _, a := range s.rows {
			if filter.match(a) {
				out = append(out, a)
			}
		}
		s.mu.RUnlock()
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastAttemptAt.Equal(out[j].LastAttemptAt) {
			return out[i].LastAttemptAt.After(out[j].LastAttemptAt)
		}
		if out[i].ComplaintID != out[j].ComplaintID {
			return out[i].ComplaintID < out[j].ComplaintID
		}
		return out[i].Role < out[j].Role
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (l *MemoryLedger) Stats(_ context.Context) (Stats, error) {
	stats := make(Stats)
	for _, s := range l.shards {
		s.mu.RLock()
		for _, a := range s.rows {
			stats[a.Outcome]++
		}
		s.mu.RUnlock()
	}
	return stats, nil
}
