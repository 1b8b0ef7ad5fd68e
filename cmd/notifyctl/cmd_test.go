package main

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicnotify/internal/complaint"
	"civicnotify/internal/config"
	"civicnotify/internal/directory"
	"civicnotify/internal/gateway"
	"civicnotify/internal/ledger"
	"civicnotify/internal/storage"
)

func TestBuildDirectoryResult(t *testing.T) {
	dir, err := directory.LoadFile("", nil)
	require.NoError(t, err)

	cfg := &config.Config{
		GatewayInstanceID: "instance42",
		GatewayToken:      "tok",
		BackendURL:        "https://api.example.org",
		FrontendURL:       "https://example.org",
		DatabaseURL:       "postgres://localhost/civic",
		RedisAddr:         "localhost:6379",
		OperatorAddress:   "+919800000000",
	}

	r := buildDirectoryResult(cfg, dir)
	assert.True(t, r.Ready)
	assert.Empty(t, r.Errors)
	assert.Equal(t, "Municipal Grievance Cell", r.Default.Name)
	assert.True(t, r.Default.Placeholder)
	assert.Contains(t, r.Warnings, "the default contact is a test number")
	assert.Len(t, r.Departments, len(dir.Entries()))
	assert.Equal(t, len(dir.Placeholders()), r.PlaceholderCount)
	assert.Contains(t, r.Cities, "Guntur")
}

func TestBuildDirectoryResult_NotReady(t *testing.T) {
	dir, err := directory.LoadFile("", nil)
	require.NoError(t, err)

	r := buildDirectoryResult(&config.Config{BackendURL: "http://localhost:5000"}, dir)
	assert.False(t, r.Ready)
	require.NotEmpty(t, r.Errors)
	assert.Contains(t, r.Errors[0], "gateway credentials")

	var out bytes.Buffer
	require.NoError(t, outputResult(&out, r, "table"))
	assert.Contains(t, out.String(), "Not ready for production")
	assert.Contains(t, out.String(), "Guntur")
}

func TestBuildDeliveriesResult(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	now := time.Now()
	require.NoError(t, l.Record(ctx, complaint.DispatchAttempt{
		ComplaintID: "GNT-1", Role: complaint.RoleOfficial, Outcome: complaint.OutcomeSent, Attempts: 1, LastAttemptAt: now,
	}))
	require.NoError(t, l.Record(ctx, complaint.DispatchAttempt{
		ComplaintID: "GNT-2", Role: complaint.RoleCitizen, Outcome: complaint.OutcomeFailed, Attempts: 3,
		LastAttemptAt: now.Add(time.Minute), LastError: "connection refused",
	}))

	res, err := buildDeliveriesResult(ctx, l, ledger.Filter{ComplaintID: "GNT-2"})
	require.NoError(t, err)
	require.Len(t, res.Deliveries, 1)
	assert.Equal(t, "GNT-2", res.Deliveries[0].ComplaintID)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, map[string]int{"sent": 1, "failed": 1}, res.Outcomes)

	var out bytes.Buffer
	require.NoError(t, outputResult(&out, res, "table"))
	assert.Contains(t, out.String(), "connection refused")
	assert.Contains(t, out.String(), "FAILED")
}

func TestBuildComplaintsResult_TruncatesDescription(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Put(ctx, complaint.Complaint{
		ID: "GNT-1", City: "Guntur", Category: "roads", Description: strings.Repeat("pothole ", 30),
		Status: complaint.StatusSubmitted, CreatedAt: time.Now(),
	}))
	require.NoError(t, store.Put(ctx, complaint.Complaint{
		ID: "GNT-2", Description: "short", CreatedAt: time.Now().Add(-time.Hour),
	}))

	res, err := buildComplaintsResult(ctx, store, 10)
	require.NoError(t, err)
	require.Len(t, res.Complaints, 2)

	first := res.Complaints[0]
	assert.Equal(t, "GNT-1", first.ID)
	assert.Len(t, []rune(first.Description), descriptionPreview)
	assert.True(t, strings.HasSuffix(first.Description, "..."))
	assert.Equal(t, "short", res.Complaints[1].Description)
}

type fakeChecker struct {
	status   gateway.InstanceStatus
	queue    map[string]any
	queueErr error
}

func (f fakeChecker) InstanceStatus(context.Context) (gateway.InstanceStatus, error) {
	return f.status, nil
}

func (f fakeChecker) QueueStatus(context.Context) (map[string]any, error) {
	return f.queue, f.queueErr
}

func TestCheckGateway(t *testing.T) {
	res := checkGateway(context.Background(), "instance42", fakeChecker{
		status:   gateway.InstanceStatus{AccountStatus: "authenticated"},
		queueErr: errors.New("gateway rejected request: Wrong token"),
	})

	assert.Equal(t, "instance42", res.Instance)
	assert.True(t, res.Authenticated)
	assert.Nil(t, res.Queue)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "queue status")
}

func TestOutputResult_Formats(t *testing.T) {
	res := GatewayResult{Instance: "instance42", AccountStatus: "qr", Queue: map[string]any{"queue": 3}}

	tests := []struct {
		format string
		want   string
	}{
		{"json", `"accountStatus": "qr"`},
		{"yaml", "accountStatus: qr"},
		{"table", "QUEUE QUEUE"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, outputResult(&out, res, tt.format))
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestWriteSummary(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewMemoryLedger()
	require.NoError(t, l.Record(ctx, complaint.DispatchAttempt{
		ComplaintID: "GNT-1", Role: complaint.RoleOfficial, Address: "+919886000201",
		Outcome: complaint.OutcomeSent, Attempts: 1, LastAttemptAt: time.Now(),
	}))

	path := filepath.Join(t.TempDir(), "out.png")
	n, err := writeSummary(ctx, l, ledger.Filter{}, "Notification Deliveries", path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)

	_, err = writeSummary(ctx, l, ledger.Filter{Outcome: complaint.OutcomeFailed}, "Failed Deliveries", path)
	assert.Error(t, err)
}

func TestPluralize(t *testing.T) {
	assert.Equal(t, "1 department still uses", pluralize(1, "department still uses", "departments still use"))
	assert.Equal(t, "3 departments still use", pluralize(3, "department still uses", "departments still use"))
}
