package ecommunity

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrMalformedToken is returned by ParseString for an unknown keyword, a
// malformed ASN or dotted-quad, or an out-of-range local value. The whole
// parse fails; no partial Set is ever returned.
var ErrMalformedToken = errors.New("ecommunity: malformed community token")

// Format selects a textual rendering / input syntax.
type Format int

const (
	// FormatRouteMap is the machine-parseable form used in route-map
	// configuration: "rt 65000:100 soo 10.0.0.1:5".
	FormatRouteMap Format = iota
	// FormatCommunityList is the form accepted by extcommunity-lists.
	FormatCommunityList
	// FormatDisplay is the human-readable form: "RT:65000:100".
	FormatDisplay
)

// ParseString parses whitespace-separated community specifiers into a
// fresh, uninterned Set. Under FormatRouteMap and FormatCommunityList
// each specifier is a case-insensitive "rt" or "soo" keyword followed by
// "<ASN>:<value>" or "<IPv4>:<value>"; when keyword is false, bare
// "<target>:<value>" tokens are accepted instead and encode route
// targets. FormatDisplay accepts the display rendering,
// "RT:<target>:<value>". An ASN above 16 bits selects the 4-octet AS
// encoding. Any malformed token fails the whole parse with
// ErrMalformedToken.
func ParseString(text string, format Format, keyword bool) (*Set, error) {
	fields := strings.Fields(text)
	set := New()

	i := 0
	for i < len(fields) {
		subType := SubTypeRouteTarget
		tok := fields[i]

		switch {
		case format == FormatDisplay:
			kw, rest, ok := strings.Cut(tok, ":")
			if !ok || rest == "" {
				return nil, fmt.Errorf("%w: %q", ErrMalformedToken, tok)
			}
			switch strings.ToLower(kw) {
			case "rt":
			case "soo":
				subType = SubTypeSiteOfOrigin
			default:
				return nil, fmt.Errorf("%w: unknown keyword in %q", ErrMalformedToken, tok)
			}
			tok = rest
		case keyword:
			switch strings.ToLower(tok) {
			case "rt":
			case "soo":
				subType = SubTypeSiteOfOrigin
			default:
				return nil, fmt.Errorf("%w: unknown keyword %q", ErrMalformedToken, tok)
			}
			i++
			if i >= len(fields) {
				return nil, fmt.Errorf("%w: keyword %q without a target", ErrMalformedToken, fields[i-1])
			}
			tok = fields[i]
		}

		v, err := parseTarget(tok, subType)
		if err != nil {
			return nil, err
		}
		if err := set.AddVal(v); err != nil {
			return nil, err
		}
		i++
	}

	return set, nil
}

// parseTarget parses "<ASN>:<value>" or "<IPv4>:<value>" into one value.
func parseTarget(tok string, subType uint8) (Val, error) {
	idx := strings.LastIndexByte(tok, ':')
	if idx <= 0 || idx == len(tok)-1 {
		return Val{}, fmt.Errorf("%w: %q", ErrMalformedToken, tok)
	}
	target, valStr := tok[:idx], tok[idx+1:]

	local, err := strconv.ParseUint(valStr, 10, 32)
	if err != nil {
		return Val{}, fmt.Errorf("%w: bad value in %q", ErrMalformedToken, tok)
	}

	if strings.Contains(target, ".") {
		ip := net.ParseIP(target)
		if ip == nil || ip.To4() == nil {
			return Val{}, fmt.Errorf("%w: bad IPv4 address in %q", ErrMalformedToken, tok)
		}
		if local > 0xFFFF {
			return Val{}, fmt.Errorf("%w: value %d out of range for IPv4 form", ErrMalformedToken, local)
		}
		return encodeIP(subType, ip, uint16(local)), nil
	}

	asn, err := strconv.ParseUint(target, 10, 32)
	if err != nil {
		return Val{}, fmt.Errorf("%w: bad ASN in %q", ErrMalformedToken, tok)
	}
	if asn > 0xFFFF {
		if local > 0xFFFF {
			return Val{}, fmt.Errorf("%w: value %d out of range for 4-octet AS form", ErrMalformedToken, local)
		}
		return encodeAS4(subType, uint32(asn), uint16(local)), nil
	}
	return encodeAS(subType, uint32(asn), uint32(local)), nil
}

// String returns the display rendering, computing it once and caching it
// on the Set. Safe to call repeatedly on interned Sets, whose content is
// immutable.
func (s *Set) String() string {
	if !s.strOK {
		s.str = s.Render(FormatDisplay)
		s.strOK = true
	}
	return s.str
}

// Render produces the textual form of the set in its current value order
// (no re-sorting), space-joined. Rendering never fails: unknown
// type/sub-type combinations fall back to raw hex.
func (s *Set) Render(format Format) string {
	if s.Size() == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < s.Size(); i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(renderVal(s.At(i), format))
	}
	return b.String()
}

func renderVal(v Val, format Format) string {
	keyword := ""
	switch v.SubType() {
	case SubTypeRouteTarget:
		keyword = "rt"
	case SubTypeSiteOfOrigin:
		keyword = "soo"
	}

	target := ""
	switch v.Type() {
	case EncodeAS:
		asn := binary.BigEndian.Uint16(v[2:4])
		local := binary.BigEndian.Uint32(v[4:8])
		target = fmt.Sprintf("%d:%d", asn, local)
	case EncodeIP:
		ip := net.IP(v[2:6])
		local := binary.BigEndian.Uint16(v[6:8])
		target = fmt.Sprintf("%s:%d", ip, local)
	case EncodeAS4:
		asn := binary.BigEndian.Uint32(v[2:6])
		local := binary.BigEndian.Uint16(v[6:8])
		target = fmt.Sprintf("%d:%d", asn, local)
	}

	// Unknown type or sub-type: raw hex, never an error.
	if keyword == "" || target == "" {
		return hex.EncodeToString(v[:])
	}

	switch format {
	case FormatDisplay:
		out := strings.ToUpper(keyword) + ":" + target
		if !v.Transitive() {
			out += "(nt)"
		}
		return out
	default:
		return keyword + " " + target
	}
}
