package token

import (
	"context"
	"sync"
	"time"

	apperrors "civicnotify/internal/errors"
)

// MemoryStore keeps tokens in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]ActionToken
}

// NewMemoryStore creates an empty in-memory token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]ActionToken)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Put(_ context.Context, tok ActionToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tok.ComplaintID] = tok
	return nil
}

func (s *MemoryStore) Get(_ context.Context, complaintID string) (ActionToken, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[complaintID]
	return tok, ok, nil
}

func (s *MemoryStore) Consume(_ context.Context, complaintID, secret string, now time.Time) (apperrors.TokenReason, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, found := s.tokens[complaintID]
	if reason := check(tok, found, secret, now); reason != "" {
		return reason, nil
	}
	tok.Consumed = true
	s.tokens[complaintID] = tok
	return "", nil
}

func (s *MemoryStore) Release(_ context.Context, complaintID, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, found := s.tokens[complaintID]
	if !releasable(tok, found, secret) {
		return nil
	}
	tok.Consumed = false
	s.tokens[complaintID] = tok
	return nil
}
