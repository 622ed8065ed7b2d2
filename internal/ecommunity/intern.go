package ecommunity

import "sync"

// Pool deduplicates community Sets by canonical byte content so that all
// routes carrying the same communities share one instance. Lookup is by
// full content (the map key is the content itself), so hash collisions
// cannot alias distinct Sets.
//
// The Pool is an explicit object rather than process-global state: each
// daemon owns one, and tests create their own without cross-test
// contamination. A single mutex covers lookup, insert and refcount
// updates; interned Sets themselves are read-only and need no locking.
type Pool struct {
	mu    sync.Mutex
	table map[string]*Set
	hits  uint64
}

// NewPool returns an empty intern pool.
func NewPool() *Pool {
	return &Pool{table: make(map[string]*Set)}
}

// Intern returns the pool's shared instance for s's content. If an entry
// with identical content exists its reference count is incremented and s
// is discarded; otherwise s itself becomes the pool entry with reference
// count one.
//
// s must already be in canonical form (UniqSort). Interning non-canonical
// content would break the dedup guarantee, so it is treated as a
// programming error and panics.
func (p *Pool) Intern(s *Set) *Set {
	if !s.isCanonical() {
		panic("ecommunity: intern of non-canonical set")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if found, ok := p.table[string(s.val)]; ok {
		found.refcnt++
		p.hits++
		return found
	}
	s.refcnt = 1
	p.table[string(s.val)] = s
	return s
}

// Release decrements a shared Set's reference count, removing the pool
// entry and dropping its storage when the count reaches zero. Releasing
// nil is a no-op. Callers must not use s after releasing their reference.
func (p *Pool) Release(s *Set) {
	if s == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	s.refcnt--
	if s.refcnt > 0 {
		return
	}
	// Only the pool's own instance may evict the entry. A content-equal
	// Set that was never interned must not drop the shared entry.
	if p.table[string(s.val)] == s {
		delete(p.table, string(s.val))
	}
	s.val = nil
	s.invalidate()
}

// Len returns the number of distinct Sets currently interned.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.table)
}

// Hits returns the number of Intern calls satisfied by an existing entry.
func (p *Pool) Hits() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits
}
