package fingerprint

import (
	"maps"
	"sync"
)

// Store maps config-relative source paths to content hashes. It is safe for
// concurrent use; persistence is the caller's job via Snapshot.
type Store struct {
	mu     sync.RWMutex
	hashes map[string]string
}

func NewStore(hashes map[string]string) *Store {
	s := &Store{hashes: make(map[string]string, len(hashes))}
	maps.Copy(s.hashes, hashes)
	return s
}

func (s *Store) Get(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hashes[path]
	return h, ok
}

// Set stores hash and returns the previous value.
func (s *Store) Set(path, hash string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.hashes[path]
	s.hashes[path] = hash
	return prev, ok
}

func (s *Store) Delete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hashes, path)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hashes)
}

func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.hashes))
	for p := range s.hashes {
		paths = append(paths, p)
	}
	return paths
}

func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.hashes)
}
