package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicnotify/internal/complaint"
	"civicnotify/internal/storage"
)

func TestProcessor_StoresSnapshotAndDispatches(t *testing.T) {
	f := newFixture(t, Options{})
	store := storage.NewMemoryStore()
	p := NewProcessor(f.d, store)
	ctx := context.Background()
	cmp := gunturRoads()

	res := p.Process(ctx, complaint.Event{ID: "ev-1", Kind: complaint.EventCreated, ComplaintID: cmp.ID, Complaint: &cmp})
	require.NoError(t, res.Error)
	assert.Equal(t, complaint.OutcomeSent, res.Outcomes[complaint.RoleOfficial])
	assert.Equal(t, complaint.OutcomeSent, res.Outcomes[complaint.RoleCitizen])

	stored, err := store.Get(ctx, cmp.ID)
	require.NoError(t, err)
	assert.Equal(t, cmp.City, stored.City)
}

func TestProcessor_LoadsSnapshotWhenAbsent(t *testing.T) {
	f := newFixture(t, Options{})
	store := storage.NewMemoryStore()
	p := NewProcessor(f.d, store)
	ctx := context.Background()

	cmp := gunturRoads()
	cmp.Status = complaint.StatusInProgress
	require.NoError(t, store.Put(ctx, cmp))

	res := p.Process(ctx, complaint.Event{ID: "ev-2", Kind: complaint.EventStatusChanged, ComplaintID: cmp.ID})
	require.NoError(t, res.Error)
	assert.Equal(t, map[complaint.Role]complaint.Outcome{complaint.RoleCitizen: complaint.OutcomeSent}, res.Outcomes)

	msgs := f.gw.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].body, "Work in progress")
}

func TestProcessor_UnknownComplaint(t *testing.T) {
	f := newFixture(t, Options{})
	p := NewProcessor(f.d, storage.NewMemoryStore())

	res := p.Process(context.Background(), complaint.Event{ID: "ev-3", Kind: complaint.EventStatusChanged, ComplaintID: "nope"})
	assert.Error(t, res.Error)
	assert.Empty(t, f.gw.messages())
}

func TestProcessor_CreatedReplayAfterDecision(t *testing.T) {
	f := newFixture(t, Options{})
	store := storage.NewMemoryStore()
	p := NewProcessor(f.d, store)
	ctx := context.Background()
	cmp := gunturRoads()
	created := complaint.Event{ID: "ev-1", Kind: complaint.EventCreated, ComplaintID: cmp.ID, Complaint: &cmp}

	res := p.Process(ctx, created)
	require.NoError(t, res.Error)
	require.Len(t, f.gw.messages(), 2)

	tok, err := f.tokens.Ensure(ctx, cmp.ID)
	require.NoError(t, err)
	require.NoError(t, f.tokens.Consume(ctx, cmp.ID, tok.Secret))
	_, err = store.UpdateStatus(ctx, cmp.ID, complaint.StatusAcknowledged)
	require.NoError(t, err)

	res = p.Process(ctx, created)
	require.NoError(t, res.Error)
	assert.Equal(t, complaint.OutcomeSent, res.Outcomes[complaint.RoleOfficial])
	assert.Len(t, f.gw.messages(), 2, "replay sends nothing")

	stored, err := store.Get(ctx, cmp.ID)
	require.NoError(t, err)
	assert.Equal(t, complaint.StatusAcknowledged, stored.Status)

	again, err := f.tokens.Ensure(ctx, cmp.ID)
	require.NoError(t, err)
	assert.Equal(t, tok.Secret, again.Secret, "no fresh action link")
	assert.True(t, again.Consumed)
}

func TestDispatchEvent_CreatedReplayAfterDecisionWithoutStore(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	cmp := gunturRoads()

	_, err := f.d.DispatchEvent(ctx, complaint.Event{ID: "ev-1", Kind: complaint.EventCreated, Complaint: &cmp})
	require.NoError(t, err)

	decided := cmp
	decided.Status = complaint.StatusRejected
	outcomes, err := f.d.DispatchEvent(ctx, complaint.Event{ID: "ev-1", Kind: complaint.EventCreated, Complaint: &decided})
	require.NoError(t, err)
	assert.True(t, outcomes[complaint.RoleOfficial].Duplicate)
	assert.True(t, outcomes[complaint.RoleCitizen].Duplicate)
	assert.Len(t, f.gw.messages(), 2)
}
