package ecommunity

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

var (
	// ErrMalformedLength is returned by Parse when the buffer length is
	// not a multiple of the 8-octet value size.
	ErrMalformedLength = errors.New("ecommunity: length not a multiple of 8")

	// ErrSharedSet is returned by in-place mutations attempted on a Set
	// whose reference count is greater than one.
	ErrSharedSet = errors.New("ecommunity: set is shared")
)

// Set is an ordered sequence of extended community values. The backing
// storage is the wire format itself: len(val) is always a multiple of 8.
//
// A freshly parsed or copied Set is exclusively owned by its creator.
// Once handed to a Pool it is shared and must not be mutated; all
// in-place operations refuse to touch a Set with refcnt > 1.
type Set struct {
	val    []byte
	refcnt int
	str    string // cached display rendering, valid when strOK
	strOK  bool
}

// New returns an empty, exclusively owned Set.
func New() *Set {
	return &Set{refcnt: 1}
}

// Parse decodes a raw extended communities attribute buffer into a fresh
// Set. The buffer length must be a non-negative multiple of 8; otherwise
// ErrMalformedLength is returned and no Set is produced. Values are kept
// verbatim and in their original order — unknown types are preserved
// opaquely so the attribute round-trips exactly.
func Parse(buf []byte) (*Set, error) {
	if len(buf)%ValSize != 0 {
		return nil, fmt.Errorf("%w (got %d bytes)", ErrMalformedLength, len(buf))
	}
	s := New()
	s.val = append([]byte(nil), buf...)
	return s, nil
}

// Size returns the number of values in the set.
func (s *Set) Size() int { return len(s.val) / ValSize }

// Bytes returns the set's wire-format octets. The returned slice aliases
// the backing storage and must not be modified.
func (s *Set) Bytes() []byte { return s.val }

// At returns the i-th value.
func (s *Set) At(i int) Val {
	var v Val
	copy(v[:], s.val[i*ValSize:])
	return v
}

// RefCount returns the current reference count.
func (s *Set) RefCount() int { return s.refcnt }

// Hash returns an xxhash-64 digest of the full byte content. Two Sets in
// canonical form hash equal iff their contents are equal.
func (s *Set) Hash() uint64 { return xxhash.Sum64(s.val) }

// Compare orders two Sets first by size, then by byte content. It is a
// total order consistent with the canonical value order used by UniqSort.
func Compare(a, b *Set) int {
	if d := len(a.val) - len(b.val); d != 0 {
		return d
	}
	return bytes.Compare(a.val, b.val)
}

// Dup returns a deep copy with a fresh reference count of one.
func (s *Set) Dup() *Set {
	n := New()
	n.val = append([]byte(nil), s.val...)
	return n
}

// Merge concatenates a's and b's value sequences (all of a, then all of b)
// into a new exclusively owned Set. Duplicates are not removed; callers
// canonicalize separately when needed.
func Merge(a, b *Set) *Set {
	n := New()
	n.val = make([]byte, 0, len(a.val)+len(b.val))
	n.val = append(n.val, a.val...)
	n.val = append(n.val, b.val...)
	return n
}

// AddVal appends one value in place. Mutation is only legal on an
// exclusively owned Set; ErrSharedSet is returned otherwise.
func (s *Set) AddVal(v Val) error {
	if s.refcnt > 1 {
		return ErrSharedSet
	}
	s.val = append(s.val, v[:]...)
	s.invalidate()
	return nil
}

// Strip removes every value matching the given type/sub-type pair in
// place and returns the number removed. Like AddVal it refuses to touch
// a shared Set.
func (s *Set) Strip(typ, subType uint8) (int, error) {
	if s.refcnt > 1 {
		return 0, ErrSharedSet
	}
	kept := s.val[:0]
	removed := 0
	for i := 0; i+ValSize <= len(s.val); i += ValSize {
		if s.val[i] == typ && s.val[i+1] == subType {
			removed++
			continue
		}
		kept = append(kept, s.val[i:i+ValSize]...)
	}
	s.val = kept
	if removed > 0 {
		s.invalidate()
	}
	return removed, nil
}

// Lookup returns the first value matching the given type/sub-type pair,
// or false when none is present.
func (s *Set) Lookup(typ, subType uint8) (Val, bool) {
	for i := 0; i+ValSize <= len(s.val); i += ValSize {
		if s.val[i] == typ && s.val[i+1] == subType {
			return s.At(i / ValSize), true
		}
	}
	return Val{}, false
}

// Match reports whether every value of other is present in s. This is a
// subset test, not equality: Match(s, empty) is always true and the
// relation is not symmetric. Route-map community matching builds on it.
func (s *Set) Match(other *Set) bool {
	for i := 0; i+ValSize <= len(other.val); i += ValSize {
		if !s.contains(other.val[i : i+ValSize]) {
			return false
		}
	}
	return true
}

func (s *Set) contains(v []byte) bool {
	for i := 0; i+ValSize <= len(s.val); i += ValSize {
		if bytes.Equal(s.val[i:i+ValSize], v) {
			return true
		}
	}
	return false
}

// UniqSort returns a new Set holding s's values sorted by byte-wise
// unsigned comparison over the full 8 octets (type octet first, then
// sub-type, then payload) with exact duplicates removed. The result is
// the canonical form: it is the only form a Pool accepts, and it is
// stable under permutation of the input. UniqSort is idempotent.
func (s *Set) UniqSort() *Set {
	n := s.Size()
	vals := make([][]byte, n)
	for i := 0; i < n; i++ {
		vals[i] = s.val[i*ValSize : (i+1)*ValSize]
	}
	sort.Slice(vals, func(i, j int) bool {
		return bytes.Compare(vals[i], vals[j]) < 0
	})

	out := New()
	out.val = make([]byte, 0, len(s.val))
	for i, v := range vals {
		if i > 0 && bytes.Equal(v, vals[i-1]) {
			continue
		}
		out.val = append(out.val, v...)
	}
	return out
}

// isCanonical reports whether the value sequence is strictly increasing,
// i.e. sorted with no duplicates.
func (s *Set) isCanonical() bool {
	for i := ValSize; i+ValSize <= len(s.val); i += ValSize {
		if bytes.Compare(s.val[i-ValSize:i], s.val[i:i+ValSize]) >= 0 {
			return false
		}
	}
	return true
}

func (s *Set) invalidate() {
	s.str = ""
	s.strOK = false
}
