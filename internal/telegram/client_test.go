package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicnotify/internal/complaint"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("bot-token", "-100200", false)
	c.apiBase = srv.URL
	c.http = srv.Client()
	c.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }
	return c
}

func failedAttempt() complaint.DispatchAttempt {
	return complaint.DispatchAttempt{
		ComplaintID: "GNT-1042",
		Role:        complaint.RoleOfficial,
		Address:     "+919886000201",
		Outcome:     complaint.OutcomeFailed,
		Attempts:    3,
		LastError:   "dial tcp: <timeout>",
	}
}

func TestNewClient_RequiresTokenAndChat(t *testing.T) {
	assert.Nil(t, NewClient("", "-100", false))
	assert.Nil(t, NewClient("tok", "", false))
	assert.NotNil(t, NewClient("tok", "-100", false))
}

func TestAlert(t *testing.T) {
	var got Message
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botbot-token/sendMessage", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true,"result":{"message_id":7}}`))
	})

	require.NoError(t, c.Alert(context.Background(), failedAttempt()))

	assert.Equal(t, "-100200", got.ChatID)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.Contains(t, got.Text, "GNT-1042")
	assert.Contains(t, got.Text, "failed after 3 attempt(s)")
	assert.Contains(t, got.Text, "&lt;timeout&gt;")
	assert.Contains(t, got.Text, "2026-03-01 08:00:00")
}

func TestAlert_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	})

	err := c.Alert(context.Background(), failedAttempt())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestAlert_DebugMode(t *testing.T) {
	c := NewClient("tok", "-100", true)
	c.apiBase = "http://127.0.0.1:1"
	assert.NoError(t, c.Alert(context.Background(), failedAttempt()))
}
