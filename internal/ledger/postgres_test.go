package ledger

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicnotify/internal/complaint"
)

func newPGLedger(t *testing.T) *PGLedger {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	l := NewPGLedger(pool)
	require.NoError(t, l.Migrate(ctx))
	return l
}

func TestPGLedger_RecordAndLastOutcome(t *testing.T) {
	l := newPGLedger(t)
	ctx := context.Background()
	id := "PG-" + uuid.NewString()

	_, found, err := l.LastOutcome(ctx, id, complaint.RoleOfficial)
	require.NoError(t, err)
	assert.False(t, found)

	at := time.Now().UTC().Truncate(time.Microsecond)
	row := complaint.DispatchAttempt{
		ID: uuid.NewString(), ComplaintID: id, Role: complaint.RoleOfficial, Address: "+919886000201",
		BodyHash: "abc", Attempts: 1, LastAttemptAt: at, Outcome: complaint.OutcomePending,
	}
	require.NoError(t, l.Record(ctx, row))

	row.Outcome, row.ProviderID = complaint.OutcomeSent, "msg-1"
	require.NoError(t, l.Record(ctx, row))

	got, found, err := l.LastOutcome(ctx, id, complaint.RoleOfficial)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, complaint.OutcomeSent, got.Outcome)
	assert.Equal(t, "msg-1", got.ProviderID)
	assert.True(t, at.Equal(got.LastAttemptAt))

	rows, err := l.List(ctx, Filter{ComplaintID: id})
	require.NoError(t, err)
	assert.Len(t, rows, 1, "one row per (complaint, role)")

	stats, err := l.Stats(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats[complaint.OutcomeSent], 1)
}
