package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicnotify/internal/complaint"
	apperrors "civicnotify/internal/errors"
)

// fakeReader serves queued messages, then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeProcessor struct {
	mu     sync.Mutex
	calls  map[string]int
	result func(ev complaint.Event, call int) (complaint.ProcessResult, error)
}

func (p *fakeProcessor) Do(_ context.Context, ev complaint.Event) (complaint.ProcessResult, error) {
	p.mu.Lock()
	p.calls[ev.ComplaintID]++
	n := p.calls[ev.ComplaintID]
	p.mu.Unlock()
	return p.result(ev, n)
}

func newTestConsumer(msgs []kafka.Message, result func(complaint.Event, int) (complaint.ProcessResult, error)) (*Consumer, *fakeReader, *fakeWriter, *fakeProcessor) {
	r := &fakeReader{queue: msgs}
	w := &fakeWriter{}
	p := &fakeProcessor{calls: map[string]int{}, result: result}
	return &Consumer{reader: r, dlq: w, processor: p}, r, w, p
}

func msg(offset int64, value string) kafka.Message {
	return kafka.Message{Topic: Topic, Offset: offset, Key: []byte("k"), Value: []byte(value)}
}

func TestHandle_Success(t *testing.T) {
	c, _, w, p := newTestConsumer(nil, func(ev complaint.Event, _ int) (complaint.ProcessResult, error) {
		return complaint.ProcessResult{EventID: ev.ID}, nil
	})

	err := c.handle(context.Background(), msg(7, `{"id":"ev-1","kind":"created","complaint":{"id":"c1"}}`))
	require.NoError(t, err)
	assert.Equal(t, 1, p.calls["c1"], "complaint id is taken from the snapshot")
	assert.Empty(t, w.msgs)
}

func TestHandle_UndecodableGoesToDLQ(t *testing.T) {
	c, _, w, p := newTestConsumer(nil, nil)

	err := c.handle(context.Background(), msg(3, `not json`))
	require.Error(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte(`not json`), w.msgs[0].Value)
	assert.Equal(t, "dlq-reason", w.msgs[0].Headers[0].Key)
	assert.Empty(t, p.calls)
}

func TestHandle_RetriesThenDLQ(t *testing.T) {
	c, _, w, p := newTestConsumer(nil, func(ev complaint.Event, _ int) (complaint.ProcessResult, error) {
		return complaint.ProcessResult{Error: apperrors.NewLedgerWriteFailure(ev.ComplaintID, "citizen", errors.New("db down"))}, nil
	})

	err := c.handle(context.Background(), msg(1, `{"id":"ev-1","kind":"created","complaint_id":"c1"}`))
	require.Error(t, err)
	assert.True(t, apperrors.IsLedgerWriteFailure(err))
	assert.Equal(t, maxRetries, p.calls["c1"])
	assert.Len(t, w.msgs, 1)
}

func TestHandle_RecoversOnRetry(t *testing.T) {
	c, _, w, p := newTestConsumer(nil, func(_ complaint.Event, call int) (complaint.ProcessResult, error) {
		if call == 1 {
			return complaint.ProcessResult{Error: errors.New("transient")}, nil
		}
		return complaint.ProcessResult{}, nil
	})

	require.NoError(t, c.handle(context.Background(), msg(1, `{"kind":"created","complaint_id":"c1"}`)))
	assert.Equal(t, 2, p.calls["c1"])
	assert.Empty(t, w.msgs)
}

func TestRun_CommitsProcessedAndStopsOnShutdown(t *testing.T) {
	msgs := []kafka.Message{
		msg(10, `{"kind":"created","complaint_id":"c1"}`),
		msg(11, `garbage`),
		msg(12, `{"kind":"created","complaint_id":"c2"}`),
	}
	c, r, w, _ := newTestConsumer(msgs, func(ev complaint.Event, _ int) (complaint.ProcessResult, error) {
		if ev.ComplaintID == "c2" {
			return complaint.ProcessResult{}, apperrors.ErrShuttingDown
		}
		return complaint.ProcessResult{}, nil
	})

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, []int64{10, 11}, r.committed, "shutdown leaves the event uncommitted")
	assert.Len(t, w.msgs, 1)
}

func TestRun_ContextCancel(t *testing.T) {
	c, _, _, _ := newTestConsumer(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, c.Run(ctx))
}

func TestRun_DLQWriteFailureLeavesOffsetUncommitted(t *testing.T) {
	msgs := []kafka.Message{
		msg(20, `{"kind":"created","complaint_id":"c1"}`),
		msg(21, `garbage`),
		msg(22, `{"kind":"created","complaint_id":"c2"}`),
	}
	c, r, w, p := newTestConsumer(msgs, func(complaint.Event, int) (complaint.ProcessResult, error) {
		return complaint.ProcessResult{}, nil
	})
	w.err = errors.New("broker unreachable")

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeadLetter)

	assert.Equal(t, []int64{20}, r.committed)
	assert.Zero(t, p.calls["c2"], "consumer stops at the event it could not park")
}

func TestHandle_DLQWriteFailure(t *testing.T) {
	c, _, w, _ := newTestConsumer(nil, nil)
	w.err = errors.New("broker unreachable")

	err := c.handle(context.Background(), msg(3, `not json`))
	assert.ErrorIs(t, err, ErrDeadLetter)
	assert.ErrorContains(t, err, "unmarshal")
}
