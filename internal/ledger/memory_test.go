package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicnotify/internal/complaint"
)

func attempt(id string, role complaint.Role, outcome complaint.Outcome, at time.Time) complaint.DispatchAttempt {
	return complaint.DispatchAttempt{
		ID:            id + "-" + string(role),
		ComplaintID:   id,
		Role:          role,
		Address:       "+919800000000",
		BodyHash:      "h",
		Attempts:      1,
		LastAttemptAt: at,
		Outcome:       outcome,
	}
}

func TestMemoryLedger_RecordUpserts(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	now := time.Now()

	require.NoError(t, l.Record(ctx, attempt("c1", complaint.RoleOfficial, complaint.OutcomePending, now)))

	sent := attempt("c1", complaint.RoleOfficial, complaint.OutcomeSent, now.Add(time.Second))
	sent.ProviderID = "42"
	require.NoError(t, l.Record(ctx, sent))

	got, ok, err := l.LastOutcome(ctx, "c1", complaint.RoleOfficial)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, complaint.OutcomeSent, got.Outcome)
	assert.Equal(t, "42", got.ProviderID)

	rows, err := l.List(ctx, Filter{ComplaintID: "c1"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestMemoryLedger_RolesAreIndependent(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	now := time.Now()

	require.NoError(t, l.Record(ctx, attempt("c1", complaint.RoleOfficial, complaint.OutcomeSent, now)))

	_, ok, err := l.LastOutcome(ctx, "c1", complaint.RoleCitizen)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryLedger_ListFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		outcome := complaint.OutcomeSent
		if i%2 == 1 {
			outcome = complaint.OutcomeFailed
		}
		id := fmt.Sprintf("c%d", i)
		require.NoError(t, l.Record(ctx, attempt(id, complaint.RoleOfficial, outcome, base.Add(time.Duration(i)*time.Minute))))
	}

	all, err := l.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "c4", all[0].ComplaintID, "most recent first")
	assert.Equal(t, "c0", all[4].ComplaintID)

	failed, err := l.List(ctx, Filter{Outcome: complaint.OutcomeFailed})
	require.NoError(t, err)
	assert.Len(t, failed, 2)

	limited, err := l.List(ctx, Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMemoryLedger_Stats(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	now := time.Now()

	require.NoError(t, l.Record(ctx, attempt("c1", complaint.RoleOfficial, complaint.OutcomeSent, now)))
	require.NoError(t, l.Record(ctx, attempt("c1", complaint.RoleCitizen, complaint.OutcomeSent, now)))
	require.NoError(t, l.Record(ctx, attempt("c2", complaint.RoleOfficial, complaint.OutcomeGatewayError, now)))

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats[complaint.OutcomeSent])
	assert.Equal(t, 1, stats[complaint.OutcomeGatewayError])
	assert.Equal(t, 3, stats.Total())
}

func TestMemoryLedger_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			_ = l.Record(ctx, attempt(id, complaint.RoleOfficial, complaint.OutcomePending, time.Now()))
			_ = l.Record(ctx, attempt(id, complaint.RoleOfficial, complaint.OutcomeSent, time.Now()))
		}(i)
	}
	wg.Wait()

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, stats[complaint.OutcomeSent])
	assert.Equal(t, 50, stats.Total())
}
