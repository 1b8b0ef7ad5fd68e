package token

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "civicnotify/internal/errors"
)

// clock is a settable time source for issuers under test.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestIssuer(store Store) (*Issuer, *clock) {
	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	iss := NewIssuer(store, 7*24*time.Hour)
	iss.now = clk.Now
	return iss, clk
}

func TestIssue(t *testing.T) {
	iss, _ := newTestIssuer(NewMemoryStore())
	ctx := context.Background()

	a, err := iss.Issue(ctx, "c1")
	require.NoError(t, err)
	b, err := iss.Issue(ctx, "c2")
	require.NoError(t, err)

	assert.Len(t, a.Secret, secretBytes*2, "hex encoded 256-bit secret")
	assert.NotEqual(t, a.Secret, b.Secret)
	assert.Equal(t, 7*24*time.Hour, a.ExpiresAt.Sub(a.IssuedAt))
	assert.False(t, a.Consumed)
}

func TestValidate_SingleUse(t *testing.T) {
	iss, _ := newTestIssuer(NewMemoryStore())
	ctx := context.Background()

	tok, err := iss.Issue(ctx, "c1")
	require.NoError(t, err)

	res, err := iss.Validate(ctx, "c1", tok.Secret)
	require.NoError(t, err)
	assert.True(t, res.Valid)

	res, err = iss.Validate(ctx, "c1", tok.Secret)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, apperrors.TokenAlreadyUsed, res.Reason)
}

func TestValidate_Reasons(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		iss, _ := newTestIssuer(NewMemoryStore())
		res, err := iss.Validate(ctx, "missing", "whatever")
		require.NoError(t, err)
		assert.Equal(t, apperrors.TokenNotFound, res.Reason)
	})

	t.Run("expired even with the right secret", func(t *testing.T) {
		iss, clk := newTestIssuer(NewMemoryStore())
		tok, err := iss.Issue(ctx, "c1")
		require.NoError(t, err)

		clk.Advance(7*24*time.Hour + time.Second)

		res, err := iss.Validate(ctx, "c1", tok.Secret)
		require.NoError(t, err)
		assert.Equal(t, apperrors.TokenExpired, res.Reason)
	})

	t.Run("secret mismatch leaves token usable", func(t *testing.T) {
		iss, _ := newTestIssuer(NewMemoryStore())
		tok, err := iss.Issue(ctx, "c1")
		require.NoError(t, err)

		res, err := iss.Validate(ctx, "c1", "0000")
		require.NoError(t, err)
		assert.Equal(t, apperrors.TokenSecretMismatch, res.Reason)

		res, err = iss.Validate(ctx, "c1", tok.Secret)
		require.NoError(t, err)
		assert.True(t, res.Valid)
	})
}

func TestConsume_ReturnsTokenError(t *testing.T) {
	iss, _ := newTestIssuer(NewMemoryStore())
	ctx := context.Background()

	err := iss.Consume(ctx, "c9", "nope")
	reason, ok := apperrors.TokenReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.TokenNotFound, reason)
}

func TestEnsure(t *testing.T) {
	iss, clk := newTestIssuer(NewMemoryStore())
	ctx := context.Background()

	first, err := iss.Ensure(ctx, "c1")
	require.NoError(t, err)

	again, err := iss.Ensure(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, first.Secret, again.Secret, "live token is reused")

	clk.Advance(8 * 24 * time.Hour)
	renewed, err := iss.Ensure(ctx, "c1")
	require.NoError(t, err)
	assert.NotEqual(t, first.Secret, renewed.Secret, "expired token is replaced")

	require.NoError(t, iss.Consume(ctx, "c1", renewed.Secret))
	afterUse, err := iss.Ensure(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, renewed.Secret, afterUse.Secret, "consumed token is kept")
	assert.True(t, afterUse.Consumed)

	clk.Advance(8 * 24 * time.Hour)
	later, err := iss.Ensure(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, renewed.Secret, later.Secret, "consumed token is never reissued")
}

func TestRelease(t *testing.T) {
	iss, _ := newTestIssuer(NewMemoryStore())
	ctx := context.Background()

	tok, err := iss.Issue(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, iss.Consume(ctx, "c1", tok.Secret))

	require.NoError(t, iss.Release(ctx, "c1", "wrong"))
	res, err := iss.Validate(ctx, "c1", tok.Secret)
	require.NoError(t, err)
	assert.Equal(t, apperrors.TokenAlreadyUsed, res.Reason, "wrong secret releases nothing")

	require.NoError(t, iss.Release(ctx, "c1", tok.Secret))
	res, err = iss.Validate(ctx, "c1", tok.Secret)
	require.NoError(t, err)
	assert.True(t, res.Valid, "released token can be used again")

	require.NoError(t, iss.Release(ctx, "missing", "x"))
}

func TestValidate_ConcurrentReplay(t *testing.T) {
	iss, _ := newTestIssuer(NewMemoryStore())
	ctx := context.Background()

	tok, err := iss.Issue(ctx, "c1")
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res, err := iss.Validate(ctx, "c1", tok.Secret); err == nil && res.Valid {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()

	store, err := NewRedisStore(ctx, addr)
	require.NoError(t, err)
	defer store.Close()

	iss := NewIssuer(store, time.Hour)
	id := "redis-test-" + time.Now().Format("150405.000000")

	tok, err := iss.Issue(ctx, id)
	require.NoError(t, err)

	res, err := iss.Validate(ctx, id, "wrong")
	require.NoError(t, err)
	assert.Equal(t, apperrors.TokenSecretMismatch, res.Reason)

	res, err = iss.Validate(ctx, id, tok.Secret)
	require.NoError(t, err)
	assert.True(t, res.Valid)

	res, err = iss.Validate(ctx, id, tok.Secret)
	require.NoError(t, err)
	assert.Equal(t, apperrors.TokenAlreadyUsed, res.Reason)

	require.NoError(t, iss.Release(ctx, id, tok.Secret))
	res, err = iss.Validate(ctx, id, tok.Secret)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}
