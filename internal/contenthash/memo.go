package contenthash

import (
	"path/filepath"
	"sync"
)

// Memo caches digests by cleaned absolute path for the lifetime of one build.
// It is safe for concurrent use; concurrent misses on the same path may hash
// it more than once but always store the same digest.
type Memo struct {
	hasher *Hasher

	mu      sync.Mutex
	digests map[string]string
	hits    int
	misses  int
}

// NewMemo wraps hasher with a digest cache.
func NewMemo(hasher *Hasher) *Memo {
	return &Memo{hasher: hasher, digests: make(map[string]string)}
}

// Hash returns the digest of the file at path, hashing it on first use.
// Failures are not cached.
func (m *Memo) Hash(path string) (string, error) {
	key := filepath.Clean(path)

	m.mu.Lock()
	if digest, ok := m.digests[key]; ok {
		m.hits++
		m.mu.Unlock()
		return digest, nil
	}
	m.misses++
	m.mu.Unlock()

	digest, err := m.hasher.HashFile(key)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.digests[key] = digest
	m.mu.Unlock()
	return digest, nil
}

// Hasher returns the underlying hasher.
func (m *Memo) Hasher() *Hasher {
	return m.hasher
}

// Hits reports how many lookups were served from the cache.
func (m *Memo) Hits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits
}

// Misses reports how many lookups required reading the file.
func (m *Memo) Misses() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.misses
}
