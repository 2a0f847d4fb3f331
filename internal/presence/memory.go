package presence

import (
	"context"
	"sync"
)

// MemoryStore 是进程内实现，语义与 RedisStore 一致，用于测试和无 Redis 的场景。
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[uint]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[uint]Entry)}
}

func (s *MemoryStore) Set(_ context.Context, userID uint, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userID] = entry
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID uint) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[userID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (s *MemoryStore) Remove(_ context.Context, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
	return nil
}

func (s *MemoryStore) ListAll(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out, nil
}

func (s *MemoryStore) ListByRole(ctx context.Context, role string) ([]Entry, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(all))
	for _, e := range all {
		if e.User.UserType == role {
			out = append(out, e)
		}
	}
	return out, nil
}
