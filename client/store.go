package client

import "sync"

// Storage keys. The values are JSON blobs; the keys are part of the contract
// with whatever persistence the embedding frontend provides.
const (
	keyIdentity    = "identity"
	keyJoinedRooms = "joinedRooms"
	keyLastViewed  = "lastViewed"
)

// Store is the key-value persistence the session reads and writes, the
// localStorage stand-in. Implementations must tolerate concurrent use.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// MemStore is an in-memory Store for tests and ephemeral sessions.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]string)}
}

func (s *MemStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *MemStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}
