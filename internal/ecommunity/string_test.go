package ecommunity

import (
	"bytes"
	"errors"
	"net"
	"testing"
)

func mustIP(t *testing.T, s string) net.IP {
	t.Helper()
	ip := net.ParseIP(s)
	if ip == nil {
		t.Fatalf("bad test IP %q", s)
	}
	return ip
}

func TestParseString_RouteTargetAndSOO(t *testing.T) {
	s, err := ParseString("rt 65000:100 soo 10.0.0.1:5", FormatRouteMap, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Size() != 2 {
		t.Fatalf("expected 2 values, got %d", s.Size())
	}
	if s.At(0) != EncodeRouteTargetAS(65000, 100) {
		t.Errorf("wrong first value: %x", s.At(0))
	}
	if s.At(1) != EncodeSiteOfOriginIP(mustIP(t, "10.0.0.1"), 5) {
		t.Errorf("wrong second value: %x", s.At(1))
	}
}

func TestParseString_CaseInsensitiveKeyword(t *testing.T) {
	s, err := ParseString("RT 65000:100 SOO 65000:1", FormatRouteMap, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.At(0).SubType() != SubTypeRouteTarget || s.At(1).SubType() != SubTypeSiteOfOrigin {
		t.Errorf("keyword case not folded: %x", s.Bytes())
	}
}

func TestParseString_AS4Selection(t *testing.T) {
	// An ASN above 16 bits selects the 4-octet AS encoding.
	s, err := ParseString("rt 70000:5", FormatRouteMap, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.At(0) != EncodeRouteTargetAS4(70000, 5) {
		t.Errorf("expected AS4 encoding, got %x", s.At(0))
	}

	s, err = ParseString("rt 65535:100000", FormatRouteMap, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.At(0).Type() != EncodeAS {
		t.Errorf("expected 2-octet AS encoding for 16-bit ASN, got type 0x%02x", s.At(0).Type())
	}
}

func TestParseString_BareTargetsWithoutKeyword(t *testing.T) {
	s, err := ParseString("65000:100 70000:5", FormatCommunityList, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Size() != 2 {
		t.Fatalf("expected 2 values, got %d", s.Size())
	}
	if s.At(0).SubType() != SubTypeRouteTarget || s.At(1).SubType() != SubTypeRouteTarget {
		t.Error("bare targets must encode route targets")
	}
}

func TestParseString_DisplayFormat(t *testing.T) {
	s, err := ParseString("RT:65000:100 SOO:10.0.0.1:5", FormatDisplay, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Size() != 2 {
		t.Fatalf("expected 2 values, got %d", s.Size())
	}
	if s.At(0) != EncodeRouteTargetAS(65000, 100) {
		t.Errorf("wrong first value: %x", s.At(0))
	}
	if s.At(1) != EncodeSiteOfOriginIP(mustIP(t, "10.0.0.1"), 5) {
		t.Errorf("wrong second value: %x", s.At(1))
	}

	// Route-map and bare syntax are not valid display input.
	for _, in := range []string{"rt 65000:100", "65000:100"} {
		if _, err := ParseString(in, FormatDisplay, false); !errors.Is(err, ErrMalformedToken) {
			t.Errorf("%q: expected ErrMalformedToken, got %v", in, err)
		}
	}
}

func TestParseString_DisplayRoundTrip(t *testing.T) {
	s1, err := ParseString("rt 65000:100 soo 65000:1", FormatRouteMap, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s2, err := ParseString(s1.Render(FormatDisplay), FormatDisplay, false)
	if err != nil {
		t.Fatalf("re-parse of display form failed: %v", err)
	}
	if !bytes.Equal(s1.Bytes(), s2.Bytes()) {
		t.Error("display round trip changed content")
	}
}

func TestParseString_MalformedTokens(t *testing.T) {
	inputs := []string{
		"xx 65000:100",      // unknown keyword
		"rt",                // keyword without target
		"rt 65000",          // no colon
		"rt :100",           // empty target
		"rt 65000:",         // empty value
		"rt abc:100",        // bad ASN
		"rt 10.0.0.999:5",   // bad dotted-quad
		"rt 10.0.0.1:70000", // value out of range for IPv4 form
		"rt 70000:70000",    // value out of range for AS4 form
		"rt 65000:100 bad",  // trailing garbage fails the whole parse
	}
	for _, in := range inputs {
		s, err := ParseString(in, FormatRouteMap, true)
		if !errors.Is(err, ErrMalformedToken) {
			t.Errorf("%q: expected ErrMalformedToken, got %v", in, err)
		}
		if s != nil {
			t.Errorf("%q: expected no partial Set", in)
		}
	}
}

func TestRender_RouteMapForm(t *testing.T) {
	s, err := ParseString("rt 65000:100 soo 10.0.0.1:5", FormatRouteMap, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := s.Render(FormatRouteMap)
	if got != "rt 65000:100 soo 10.0.0.1:5" {
		t.Errorf("unexpected route-map rendering: %q", got)
	}
}

func TestRender_DisplayForm(t *testing.T) {
	s, err := ParseString("rt 65000:100 soo 65000:1", FormatRouteMap, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := s.Render(FormatDisplay)
	if got != "RT:65000:100 SOO:65000:1" {
		t.Errorf("unexpected display rendering: %q", got)
	}
}

func TestRender_NonTransitiveDecoration(t *testing.T) {
	v := EncodeRouteTargetAS(65000, 100)
	v[0] |= FlagNonTransitive
	s := mustParse(t, v[:])

	if got := s.Render(FormatDisplay); got != "RT:65000:100(nt)" {
		t.Errorf("unexpected rendering: %q", got)
	}
	// Machine-parseable forms carry no decoration.
	if got := s.Render(FormatRouteMap); got != "rt 65000:100" {
		t.Errorf("unexpected rendering: %q", got)
	}
}

func TestRender_UnknownFallsBackToHex(t *testing.T) {
	s := mustParse(t, []byte{0x43, 0x99, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06})
	if got := s.Render(FormatDisplay); got != "4399010203040506" {
		t.Errorf("expected hex fallback, got %q", got)
	}
	if got := s.Render(FormatRouteMap); got != "4399010203040506" {
		t.Errorf("expected hex fallback, got %q", got)
	}
}

func TestRender_PreservesValueOrder(t *testing.T) {
	// Rendering follows the set's current order, not canonical order.
	s := mustParse(t, concatVals(
		EncodeRouteTargetAS4(70000, 1),
		EncodeRouteTargetAS(65000, 1),
	))
	if got := s.Render(FormatRouteMap); got != "rt 70000:1 rt 65000:1" {
		t.Errorf("unexpected ordering: %q", got)
	}
}

func TestTextRoundTrip(t *testing.T) {
	in := "rt 65000:100 soo 10.0.0.1:5"
	s1, err := ParseString(in, FormatRouteMap, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s2, err := ParseString(s1.Render(FormatRouteMap), FormatRouteMap, true)
	if err != nil {
		t.Fatalf("re-parse failed: %v", err)
	}
	if !bytes.Equal(s1.UniqSort().Bytes(), s2.UniqSort().Bytes()) {
		t.Error("text round trip changed content")
	}
}

func TestString_CachedDisplay(t *testing.T) {
	s := mustParse(t, concatVals(EncodeRouteTargetAS(65000, 100)))
	first := s.String()
	if first != "RT:65000:100" {
		t.Fatalf("unexpected display string: %q", first)
	}
	if s.String() != first {
		t.Error("cached string changed between calls")
	}

	// Mutation on a private set invalidates the cache.
	if err := s.AddVal(EncodeSiteOfOriginAS(65000, 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.String() != "RT:65000:100 SOO:65000:1" {
		t.Errorf("expected recomputed string, got %q", s.String())
	}
}

func TestRender_EmptySet(t *testing.T) {
	s := mustParse(t, nil)
	if got := s.Render(FormatDisplay); got != "" {
		t.Errorf("expected empty rendering, got %q", got)
	}
}
