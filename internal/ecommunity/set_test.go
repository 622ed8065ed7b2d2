package ecommunity

import (
	"bytes"
	"errors"
	"testing"
)

func mustParse(t *testing.T, buf []byte) *Set {
	t.Helper()
	s, err := Parse(buf)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	return s
}

func concatVals(vals ...Val) []byte {
	var buf []byte
	for _, v := range vals {
		buf = append(buf, v[:]...)
	}
	return buf
}

func TestParse_RoundTrip(t *testing.T) {
	buf := concatVals(
		EncodeRouteTargetAS(65000, 100),
		EncodeSiteOfOriginAS(65000, 200),
		EncodeRouteTargetAS(64500, 1),
	)
	s := mustParse(t, buf)

	if s.Size() != 3 {
		t.Fatalf("expected 3 values, got %d", s.Size())
	}
	if !bytes.Equal(s.Bytes(), buf) {
		t.Errorf("round trip mismatch: %x vs %x", s.Bytes(), buf)
	}
	if s.RefCount() != 1 {
		t.Errorf("expected refcount 1, got %d", s.RefCount())
	}
}

func TestParse_ConcreteExample(t *testing.T) {
	// RT 65000:100 in 2-octet AS specific form.
	s := mustParse(t, []byte{0x00, 0x02, 0xFD, 0xE8, 0x00, 0x00, 0x00, 0x64})
	if s.Size() != 1 {
		t.Fatalf("expected 1 value, got %d", s.Size())
	}
	v := s.At(0)
	if v.Type() != EncodeAS || v.SubType() != SubTypeRouteTarget {
		t.Errorf("expected AS-specific route target, got type=0x%02x sub=0x%02x", v.Type(), v.SubType())
	}
	if v != EncodeRouteTargetAS(65000, 100) {
		t.Errorf("decoded value does not match encoder output: %x", v[:])
	}
}

func TestParse_MalformedLength(t *testing.T) {
	s, err := Parse(make([]byte, 7))
	if !errors.Is(err, ErrMalformedLength) {
		t.Fatalf("expected ErrMalformedLength, got %v", err)
	}
	if s != nil {
		t.Error("expected no Set on malformed length")
	}
}

func TestParse_Empty(t *testing.T) {
	s := mustParse(t, nil)
	if s.Size() != 0 {
		t.Errorf("expected empty set, got size %d", s.Size())
	}
}

func TestParse_UnknownTypePreserved(t *testing.T) {
	raw := []byte{0x43, 0x99, 1, 2, 3, 4, 5, 6}
	s := mustParse(t, raw)
	if !bytes.Equal(s.Bytes(), raw) {
		t.Errorf("unknown type not preserved: %x", s.Bytes())
	}
}

func TestUniqSort_Idempotent(t *testing.T) {
	s := mustParse(t, concatVals(
		EncodeRouteTargetAS(65001, 2),
		EncodeRouteTargetAS(65000, 100),
		EncodeSiteOfOriginAS(65000, 1),
	))
	once := s.UniqSort()
	twice := once.UniqSort()
	if !bytes.Equal(once.Bytes(), twice.Bytes()) {
		t.Errorf("uniq_sort not idempotent: %x vs %x", once.Bytes(), twice.Bytes())
	}
}

func TestUniqSort_OrderIndependent(t *testing.T) {
	a := EncodeRouteTargetAS(65000, 100)
	b := EncodeSiteOfOriginAS(65000, 1)
	c := EncodeRouteTargetAS4(70000, 5)

	s1 := mustParse(t, concatVals(a, b, c)).UniqSort()
	s2 := mustParse(t, concatVals(c, a, b)).UniqSort()
	s3 := mustParse(t, concatVals(b, c, a)).UniqSort()

	if !bytes.Equal(s1.Bytes(), s2.Bytes()) || !bytes.Equal(s2.Bytes(), s3.Bytes()) {
		t.Errorf("uniq_sort depends on input order: %x %x %x", s1.Bytes(), s2.Bytes(), s3.Bytes())
	}
}

func TestUniqSort_RemovesDuplicates(t *testing.T) {
	a := EncodeRouteTargetAS(65000, 100)
	b := EncodeSiteOfOriginAS(65000, 1)
	s := mustParse(t, concatVals(a, b, a)).UniqSort()

	if s.Size() != 2 {
		t.Fatalf("expected 2 values after dedup, got %d", s.Size())
	}
	for i := 1; i < s.Size(); i++ {
		prev, cur := s.At(i-1), s.At(i)
		if bytes.Compare(prev[:], cur[:]) >= 0 {
			t.Errorf("values not strictly increasing at %d: %x >= %x", i, prev[:], cur[:])
		}
	}
}

func TestUniqSort_ByteWiseOrder(t *testing.T) {
	// Type octet sorts first: AS-specific (0x00) before IPv4 (0x01) before AS4 (0x02).
	s := mustParse(t, concatVals(
		EncodeRouteTargetAS4(70000, 1),
		EncodeRouteTargetAS(65000, 1),
	)).UniqSort()
	if s.At(0).Type() != EncodeAS || s.At(1).Type() != EncodeAS4 {
		t.Errorf("expected AS-specific before AS4, got %x then %x", s.At(0), s.At(1))
	}
}

func TestDup_IndependentCopy(t *testing.T) {
	s := mustParse(t, concatVals(EncodeRouteTargetAS(65000, 100)))
	d := s.Dup()

	if !bytes.Equal(d.Bytes(), s.Bytes()) {
		t.Fatal("dup content mismatch")
	}
	if d.RefCount() != 1 {
		t.Errorf("expected fresh refcount 1, got %d", d.RefCount())
	}

	if err := d.AddVal(EncodeRouteTargetAS(65001, 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Size() != 1 {
		t.Error("mutating the dup changed the original")
	}
}

func TestMerge_ConcatenatesWithoutDedup(t *testing.T) {
	a := mustParse(t, concatVals(EncodeRouteTargetAS(65000, 100)))
	b := mustParse(t, concatVals(EncodeRouteTargetAS(65000, 100), EncodeSiteOfOriginAS(65000, 1)))

	m := Merge(a, b)
	if m.Size() != 3 {
		t.Fatalf("expected 3 values (no dedup), got %d", m.Size())
	}
	if !bytes.Equal(m.Bytes()[:8], a.Bytes()) {
		t.Error("expected a's values first")
	}
}

func TestAddVal_SharedSetRejected(t *testing.T) {
	pool := NewPool()
	s := pool.Intern(mustParse(t, concatVals(EncodeRouteTargetAS(65000, 100))))
	shared := pool.Intern(s.Dup().UniqSort())

	if shared != s {
		t.Fatal("expected interning identical content to return the shared instance")
	}
	if s.RefCount() != 2 {
		t.Fatalf("expected refcount 2, got %d", s.RefCount())
	}

	before := append([]byte(nil), s.Bytes()...)
	if err := s.AddVal(EncodeRouteTargetAS(65001, 1)); !errors.Is(err, ErrSharedSet) {
		t.Fatalf("expected ErrSharedSet, got %v", err)
	}
	if !bytes.Equal(s.Bytes(), before) {
		t.Error("shared set was modified")
	}
}

func TestStrip_RemovesMatching(t *testing.T) {
	s := mustParse(t, concatVals(
		EncodeRouteTargetAS(65000, 100),
		EncodeSiteOfOriginAS(65000, 1),
		EncodeRouteTargetAS(65001, 2),
	))
	n, err := s.Strip(EncodeAS, SubTypeRouteTarget)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 removed, got %d", n)
	}
	if s.Size() != 1 || s.At(0).SubType() != SubTypeSiteOfOrigin {
		t.Errorf("expected only the site-of-origin left, got %x", s.Bytes())
	}
}

func TestStrip_SharedSetRejected(t *testing.T) {
	pool := NewPool()
	s := pool.Intern(mustParse(t, concatVals(EncodeRouteTargetAS(65000, 100))).UniqSort())
	pool.Intern(s.Dup().UniqSort())

	if _, err := s.Strip(EncodeAS, SubTypeRouteTarget); !errors.Is(err, ErrSharedSet) {
		t.Fatalf("expected ErrSharedSet, got %v", err)
	}
}

func TestLookup(t *testing.T) {
	s := mustParse(t, concatVals(
		EncodeRouteTargetAS(65000, 100),
		EncodeSiteOfOriginAS(65000, 1),
	))

	v, ok := s.Lookup(EncodeAS, SubTypeSiteOfOrigin)
	if !ok {
		t.Fatal("expected site-of-origin to be found")
	}
	if v != EncodeSiteOfOriginAS(65000, 1) {
		t.Errorf("wrong value: %x", v[:])
	}

	if _, ok := s.Lookup(EncodeIP, SubTypeRouteTarget); ok {
		t.Error("expected absent type/sub-type to report false")
	}
}

func TestMatch_SubsetSemantics(t *testing.T) {
	a := EncodeRouteTargetAS(65000, 100)
	b := EncodeSiteOfOriginAS(65000, 1)
	c := EncodeRouteTargetAS4(70000, 5)

	s := mustParse(t, concatVals(a, b, c))
	sub := mustParse(t, concatVals(c, a))
	other := mustParse(t, concatVals(a, EncodeRouteTargetAS(64999, 9)))
	empty := mustParse(t, nil)

	if !s.Match(sub) {
		t.Error("expected subset to match")
	}
	if !s.Match(s) {
		t.Error("expected a set to match itself")
	}
	if !s.Match(empty) {
		t.Error("expected the empty set to match anything")
	}
	if s.Match(other) {
		t.Error("expected non-subset to not match")
	}
	if sub.Match(s) {
		t.Error("match must not be symmetric")
	}
}

func TestCompare_SizeThenContent(t *testing.T) {
	small := mustParse(t, concatVals(EncodeRouteTargetAS(65000, 100)))
	big := mustParse(t, concatVals(EncodeRouteTargetAS(1, 1), EncodeRouteTargetAS(2, 2)))

	if Compare(small, big) >= 0 {
		t.Error("smaller set must order first")
	}

	a := mustParse(t, concatVals(EncodeRouteTargetAS(65000, 100)))
	b := mustParse(t, concatVals(EncodeRouteTargetAS(65000, 101)))
	if Compare(a, b) >= 0 {
		t.Error("expected byte-wise order on equal sizes")
	}
	if Compare(a, a.Dup()) != 0 {
		t.Error("expected identical content to compare equal")
	}
}

func TestHash_ConsistentWithContent(t *testing.T) {
	a := mustParse(t, concatVals(EncodeRouteTargetAS(65000, 100))).UniqSort()
	b := mustParse(t, concatVals(EncodeRouteTargetAS(65000, 100))).UniqSort()
	c := mustParse(t, concatVals(EncodeRouteTargetAS(65000, 101))).UniqSort()

	if a.Hash() != b.Hash() {
		t.Error("equal content must hash equal")
	}
	if a.Hash() == c.Hash() {
		t.Error("different content hashed equal (unexpected for these inputs)")
	}
}
