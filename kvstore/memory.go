package kvstore

import "sync"

// MemoryStore keeps values in process memory. Used in tests and when
// persistence is disabled.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return cloneBytes(v), ok, nil
}

func (s *MemoryStore) Put(entries map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range entries {
		s.data[k] = cloneBytes(v)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
