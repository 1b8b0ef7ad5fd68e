package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "civicnotify/internal/errors"
)

const (
	keyPrefix = "civicnotify:token:"

	// expiredGrace keeps expired tokens around long enough to answer
	// "expired" rather than "not_found".
	expiredGrace = 24 * time.Hour

	// maxTxRetries bounds optimistic-lock retries when two validations race.
	maxTxRetries = 3
)

// RedisStore persists tokens in Redis so they survive restarts and are
// shared between replicas.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	log.Printf("✓ Token store connected to redis at %s", addr)
	return &RedisStore{client: client}, nil
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) Put(ctx context.Context, tok ActionToken) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	ttl := time.Until(tok.ExpiresAt) + expiredGrace
	return s.client.Set(ctx, keyPrefix+tok.ComplaintID, data, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, complaintID string) (ActionToken, bool, error) {
	raw, err := s.client.Get(ctx, keyPrefix+complaintID).Bytes()
	if errors.Is(err, redis.Nil) {
		return ActionToken{}, false, nil
	}
	if err != nil {
		return ActionToken{}, false, err
	}

	var tok ActionToken
	if err := json.Unmarshal(raw, &tok); err != nil {
		return ActionToken{}, false, fmt.Errorf("failed to parse token: %w", err)
	}
	return tok, true, nil
}

// Consume runs the check and the consumed flag update inside a WATCH/MULTI
// transaction. A concurrent writer aborts the transaction; the retry then
// observes the consumed token and answers already_used.
func (s *RedisStore) Consume(ctx context.Context, complaintID, secret string, now time.Time) (apperrors.TokenReason, error) {
	k := keyPrefix + complaintID

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		var reason apperrors.TokenReason

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			var tok ActionToken
			found := true

			raw, err := tx.Get(ctx, k).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
				found = false
			case err != nil:
				return err
			default:
				if err := json.Unmarshal(raw, &tok); err != nil {
					return fmt.Errorf("failed to parse token: %w", err)
				}
			}

			if reason = check(tok, found, secret, now); reason != "" {
				return nil
			}

			tok.Consumed = true
			data, err := json.Marshal(tok)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, k, data, redis.KeepTTL)
				return nil
			})
			return err
		}, k)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return "", err
		}
		return reason, nil
	}

	return "", fmt.Errorf("token for complaint %s is contended, gave up after %d attempts", complaintID, maxTxRetries)
}

// Release clears the consumed flag under the same WATCH/MULTI discipline as
// Consume.
func (s *RedisStore) Release(ctx context.Context, complaintID, secret string) error {
	k := keyPrefix + complaintID

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, k).Bytes()
			if errors.Is(err, redis.Nil) {
				return nil
			}
			if err != nil {
				return err
			}

			var tok ActionToken
			if err := json.Unmarshal(raw, &tok); err != nil {
				return fmt.Errorf("failed to parse token: %w", err)
			}
			if !releasable(tok, true, secret) {
				return nil
			}

			tok.Consumed = false
			data, err := json.Marshal(tok)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, k, data, redis.KeepTTL)
				return nil
			})
			return err
		}, k)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return fmt.Errorf("token for complaint %s is contended, gave up after %d attempts", complaintID, maxTxRetries)
}

// Close releases the redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
