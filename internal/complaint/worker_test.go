package complaint

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(calls *int32) Handler {
	return HandlerFunc(func(_ context.Context, ev Event) ProcessResult {
		atomic.AddInt32(calls, 1)
		res := ProcessResult{EventID: ev.ID, ComplaintID: ev.ComplaintID}
		if ev.ComplaintID == "bad" {
			res.Error = errors.New("boom")
		}
		return res
	})
}

func TestWorkerPool_SubmitAndResults(t *testing.T) {
	var calls int32
	pool := NewWorkerPool(context.Background(), echoHandler(&calls), 3)

	ids := []string{"c1", "c2", "bad", "c4"}
	go func() {
		for _, id := range ids {
			assert.NoError(t, pool.Submit(context.Background(), Event{ID: "ev-" + id, ComplaintID: id}))
		}
		pool.Close()
	}()

	seen := map[string]bool{}
	failures := 0
	for res := range pool.Results() {
		seen[res.ComplaintID] = true
		if res.Error != nil {
			failures++
		}
	}

	assert.Len(t, seen, 4)
	assert.Equal(t, 1, failures)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestWorkerPool_Do(t *testing.T) {
	var calls int32
	pool := NewWorkerPool(context.Background(), echoHandler(&calls), 2)
	defer pool.Close()

	res, err := pool.Do(context.Background(), Event{ID: "ev-1", ComplaintID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, "ev-1", res.EventID)
	assert.NoError(t, res.Error)
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	var calls int32
	pool := NewWorkerPool(context.Background(), echoHandler(&calls), 1)
	pool.Close()
	pool.Close()

	err := pool.Submit(context.Background(), Event{ID: "ev-1"})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestWorkerPool_DoHonoursContext(t *testing.T) {
	block := make(chan struct{})
	pool := NewWorkerPool(context.Background(), HandlerFunc(func(context.Context, Event) ProcessResult {
		<-block
		return ProcessResult{}
	}), 1)
	defer pool.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := pool.Do(ctx, Event{ID: "ev-1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
