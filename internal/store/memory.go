package store

import (
	"context"
	"sync"
)

// MemoryStore keeps values in a plain map. Used in tests and as the
// failover fallback; obviously not durable.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	hub    *watchHub
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string][]byte),
		hub:    newWatchHub(),
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.values[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	old := s.values[key]
	stored := make([]byte, len(value))
	copy(stored, value)
	s.values[key] = stored
	s.mu.Unlock()

	s.hub.dispatch(key, value, old)
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	old, ok := s.values[key]
	delete(s.values, key)
	s.mu.Unlock()

	if ok {
		s.hub.dispatch(key, nil, old)
	}
	return nil
}

func (s *MemoryStore) Watch(key string, fn func(newValue, oldValue []byte)) {
	s.hub.add(key, fn)
}

func (s *MemoryStore) Close() error {
	return nil
}
