// Package token issues and validates the single-use action tokens embedded
// in an official's notification link.
//
// One token exists per complaint. Validation and consumption happen in one
// atomic step inside the Store, so two concurrent presentations of the same
// secret cannot both succeed.
package token

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	apperrors "civicnotify/internal/errors"
)

// secretBytes is the amount of entropy per token (256 bits).
const secretBytes = 32

// ActionToken authorizes one status-changing action on one complaint.
type ActionToken struct {
	ComplaintID string    `json:"complaint_id"`
	Secret      string    `json:"secret"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Consumed    bool      `json:"consumed"`
}

// Live reports whether the token can still be consumed at now.
func (t ActionToken) Live(now time.Time) bool {
	return !t.Consumed && now.Before(t.ExpiresAt)
}

// Result is the outcome of a validation.
type Result struct {
	Valid  bool
	Reason apperrors.TokenReason
}

// Store persists tokens keyed by complaint identifier.
type Store interface {
	// Put stores tok, replacing any token for the same complaint.
	Put(ctx context.Context, tok ActionToken) error
	// Get returns the token for a complaint.
	Get(ctx context.Context, complaintID string) (ActionToken, bool, error)
	// Consume validates secret and marks the token consumed in one atomic
	// step. It returns an empty reason on success.
	Consume(ctx context.Context, complaintID, secret string, now time.Time) (apperrors.TokenReason, error)
	// Release clears the consumed flag of the token holding secret. It is a
	// no-op when the token is gone, unconsumed, or holds another secret.
	Release(ctx context.Context, complaintID, secret string) error
}

// check applies the validation rules in order: existence, expiry,
// consumption, secret. The secret comparison is constant time.
func check(tok ActionToken, found bool, secret string, now time.Time) apperrors.TokenReason {
	switch {
	case !found:
		return apperrors.TokenNotFound
	case !now.Before(tok.ExpiresAt):
		return apperrors.TokenExpired
	case tok.Consumed:
		return apperrors.TokenAlreadyUsed
	case subtle.ConstantTimeCompare([]byte(tok.Secret), []byte(secret)) != 1:
		return apperrors.TokenSecretMismatch
	}
	return ""
}

// Issuer creates and validates action tokens.
type Issuer struct {
	store    Store
	validity time.Duration
	now      func() time.Time
}

// NewIssuer creates an issuer whose tokens stay valid for validity.
func NewIssuer(store Store, validity time.Duration) *Issuer {
	return &Issuer{store: store, validity: validity, now: time.Now}
}

// Issue generates a fresh token for a complaint, replacing any previous one.
func (i *Issuer) Issue(ctx context.Context, complaintID string) (ActionToken, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return ActionToken{}, fmt.Errorf("failed to generate token secret: %w", err)
	}

	now := i.now().UTC()
	tok := ActionToken{
		ComplaintID: complaintID,
		Secret:      hex.EncodeToString(buf),
		IssuedAt:    now,
		ExpiresAt:   now.Add(i.validity),
	}

	if err := i.store.Put(ctx, tok); err != nil {
		return ActionToken{}, fmt.Errorf("failed to store token: %w", err)
	}
	return tok, nil
}

// Ensure returns the complaint's current token, issuing one only when there
// is none or the previous one expired unused.
//
// A consumed token is returned as is: the department already acted, and a
// replayed dispatch must compose the same message body rather than a fresh
// link. Callers serialize Ensure per complaint.
func (i *Issuer) Ensure(ctx context.Context, complaintID string) (ActionToken, error) {
	tok, found, err := i.store.Get(ctx, complaintID)
	if err != nil {
		return ActionToken{}, fmt.Errorf("failed to load token: %w", err)
	}
	if found && (tok.Consumed || tok.Live(i.now())) {
		return tok, nil
	}
	return i.Issue(ctx, complaintID)
}

// Validate checks a presented secret and consumes the token on success.
func (i *Issuer) Validate(ctx context.Context, complaintID, secret string) (Result, error) {
	reason, err := i.store.Consume(ctx, complaintID, secret, i.now())
	if err != nil {
		return Result{}, fmt.Errorf("failed to validate token: %w", err)
	}
	if reason != "" {
		return Result{Reason: reason}, nil
	}
	return Result{Valid: true}, nil
}

// Consume is Validate for callers that want a *TokenError on refusal.
func (i *Issuer) Consume(ctx context.Context, complaintID, secret string) error {
	res, err := i.Validate(ctx, complaintID, secret)
	if err != nil {
		return err
	}
	if !res.Valid {
		return apperrors.NewTokenError(complaintID, res.Reason)
	}
	return nil
}

// Release hands a consumed token back when the action it authorized could
// not be recorded, so the official can retry the same link.
func (i *Issuer) Release(ctx context.Context, complaintID, secret string) error {
	if err := i.store.Release(ctx, complaintID, secret); err != nil {
		return fmt.Errorf("failed to release token: %w", err)
	}
	return nil
}

// releasable reports whether tok is the consumed token holding secret.
func releasable(tok ActionToken, found bool, secret string) bool {
	return found && tok.Consumed && subtle.ConstantTimeCompare([]byte(tok.Secret), []byte(secret)) == 1
}
