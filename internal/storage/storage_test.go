package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicnotify/internal/complaint"
)

func TestMemoryStore_GetPut(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	c := complaint.Complaint{ID: "c1", City: "Guntur", Category: "roads", Status: complaint.StatusSubmitted}
	require.NoError(t, s.Put(ctx, c))

	got, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, c, got)
}

func TestMemoryStore_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	fixed := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	_, err := s.UpdateStatus(ctx, "missing", complaint.StatusResolved)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, complaint.Complaint{ID: "c1", Status: complaint.StatusSubmitted}))

	updated, err := s.UpdateStatus(ctx, "c1", complaint.StatusAcknowledged)
	require.NoError(t, err)
	assert.Equal(t, complaint.StatusAcknowledged, updated.Status)
	assert.Equal(t, fixed, updated.UpdatedAt)

	got, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, complaint.StatusAcknowledged, got.Status)
}

func TestMemoryStore_Recent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Put(ctx, complaint.Complaint{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
}

func TestMemoryStore_PutKeepsNewerSnapshot(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	stored := complaint.Complaint{ID: "c1", Status: complaint.StatusAcknowledged, UpdatedAt: base.Add(time.Hour)}

	tests := []struct {
		name     string
		incoming complaint.Complaint
		want     complaint.Status
	}{
		{"older snapshot", complaint.Complaint{ID: "c1", Status: complaint.StatusResolved, UpdatedAt: base}, complaint.StatusAcknowledged},
		{"status regression", complaint.Complaint{ID: "c1", Status: complaint.StatusSubmitted, UpdatedAt: base.Add(2 * time.Hour)}, complaint.StatusAcknowledged},
		{"regression without timestamp", complaint.Complaint{ID: "c1", Status: complaint.StatusSubmitted}, complaint.StatusAcknowledged},
		{"newer snapshot", complaint.Complaint{ID: "c1", Status: complaint.StatusResolved, UpdatedAt: base.Add(2 * time.Hour)}, complaint.StatusResolved},
		{"undated progress", complaint.Complaint{ID: "c1", Status: complaint.StatusResolved}, complaint.StatusResolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			require.NoError(t, s.Put(ctx, stored))
			require.NoError(t, s.Put(ctx, tt.incoming))

			got, err := s.Get(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
		})
	}
}
