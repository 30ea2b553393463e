package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/park285/chess-relay-bot/internal/domain"
)

var ErrInvalidEntry = errors.New("session entry without chat user id")

// Store maps chat users to backend players. Get returns nil, nil for unknown users.
// There is no delete: an entry lives until the process exits.
type Store interface {
	Put(ctx context.Context, entry domain.SessionEntry) error
	Get(ctx context.Context, chatUserID string) (*domain.SessionEntry, error)
}

type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]domain.SessionEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]domain.SessionEntry)}
}

func (s *MemoryStore) Put(_ context.Context, entry domain.SessionEntry) error {
	key := strings.TrimSpace(entry.ChatUserID)
	if key == "" {
		return ErrInvalidEntry
	}
	entry.ChatUserID = key
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, chatUserID string) (*domain.SessionEntry, error) {
	s.mu.RLock()
	entry, ok := s.entries[strings.TrimSpace(chatUserID)]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
