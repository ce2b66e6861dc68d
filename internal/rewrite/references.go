package rewrite

import "sync"

// Reference ties a content address to the file it was computed from.
type Reference struct {
	Hash         string
	AbsolutePath string
	PackageRoot  string
}

// References accumulates the files referenced during one build. The first
// reference recorded for a hash wins; later ones are counted as aliases.
type References struct {
	mu      sync.Mutex
	index   map[string]int
	list    []Reference
	aliases int
}

// NewReferences returns an empty accumulator.
func NewReferences() *References {
	return &References{index: make(map[string]int)}
}

// Add records ref and reports whether its hash was new.
func (r *References) Add(ref Reference) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[ref.Hash]; ok {
		r.aliases++
		return false
	}
	r.index[ref.Hash] = len(r.list)
	r.list = append(r.list, ref)
	return true
}

// Lookup returns the reference that owns hash.
func (r *References) Lookup(hash string) (Reference, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[hash]
	if !ok {
		return Reference{}, false
	}
	return r.list[i], true
}

// List returns the distinct references in the order they were first seen.
func (r *References) List() []Reference {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Reference, len(r.list))
	copy(out, r.list)
	return out
}

// Len reports the number of distinct hashes.
func (r *References) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.list)
}

// Aliases reports how many additions repeated an already known hash.
func (r *References) Aliases() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aliases
}
