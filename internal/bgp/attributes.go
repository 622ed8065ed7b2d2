package bgp

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
)

// PathAttributes holds the attributes of a BGP UPDATE this service cares
// about: next-hop and AS path for context, the raw extended communities
// attribute, and MP_REACH/MP_UNREACH data for IPv6 routes.
type PathAttributes struct {
	ASPath         string
	Nexthop        string
	ExtCommunities []byte // raw EXTENDED_COMMUNITIES octets, nil when absent

	MPReachAFI     uint16
	MPReachNLRI    []PrefixInfo
	MPReachNexthop string
	MPUnreachAFI   uint16
	MPUnreachNLRI  []PrefixInfo
}

// PrefixInfo represents a single NLRI prefix with optional path_id.
type PrefixInfo struct {
	Prefix string
	PathID int64
}

// ParsePathAttributes parses the path attributes section of a BGP UPDATE.
// Attribute types outside this service's scope are skipped.
func ParsePathAttributes(data []byte, hasAddPath bool) (*PathAttributes, error) {
	attrs := &PathAttributes{}

	offset := 0
	for offset < len(data) {
		if offset+2 > len(data) {
			return attrs, fmt.Errorf("bgp: attr header truncated at offset %d", offset)
		}

		flags := data[offset]
		typeCode := data[offset+1]
		offset += 2

		// Attribute length: 1 byte or 2 bytes depending on Extended Length flag.
		var attrLen int
		if flags&0x10 != 0 { // Extended Length
			if offset+2 > len(data) {
				return attrs, fmt.Errorf("bgp: extended attr length truncated")
			}
			attrLen = int(binary.BigEndian.Uint16(data[offset : offset+2]))
			offset += 2
		} else {
			if offset+1 > len(data) {
				return attrs, fmt.Errorf("bgp: attr length truncated")
			}
			attrLen = int(data[offset])
			offset++
		}

		if offset+attrLen > len(data) {
			return attrs, fmt.Errorf("bgp: attr data truncated (type %d, need %d, have %d)", typeCode, attrLen, len(data)-offset)
		}

		attrData := data[offset : offset+attrLen]
		offset += attrLen

		switch typeCode {
		case AttrTypeASPath:
			parseASPath(attrData, attrs)
		case AttrTypeNextHop:
			if len(attrData) == 4 {
				attrs.Nexthop = net.IP(attrData).String()
			}
		case AttrTypeExtCommunity:
			// Copied verbatim; the ecommunity package validates the length.
			attrs.ExtCommunities = append([]byte(nil), attrData...)
		case AttrTypeMPReachNLRI:
			parseMPReachNLRI(attrData, attrs, hasAddPath)
		case AttrTypeMPUnreachNLRI:
			parseMPUnreachNLRI(attrData, attrs, hasAddPath)
		}
	}

	return attrs, nil
}

func parseASPath(data []byte, attrs *PathAttributes) {
	var segments []string
	offset := 0
	for offset+2 <= len(data) {
		segType := data[offset]
		segLen := int(data[offset+1])
		offset += 2

		if offset+segLen*4 > len(data) {
			break
		}

		asns := make([]string, segLen)
		for i := 0; i < segLen; i++ {
			asn := binary.BigEndian.Uint32(data[offset : offset+4])
			asns[i] = fmt.Sprintf("%d", asn)
			offset += 4
		}

		switch segType {
		case ASPathSegmentSequence:
			segments = append(segments, strings.Join(asns, " "))
		case ASPathSegmentSet:
			segments = append(segments, "{"+strings.Join(asns, ",")+"}")
		}
	}

	attrs.ASPath = strings.Join(segments, " ")
}

func parseMPReachNLRI(data []byte, attrs *PathAttributes, hasAddPath bool) {
	if len(data) < 5 {
		return
	}

	afi := binary.BigEndian.Uint16(data[0:2])
	safi := data[2]
	if safi != SAFIUnicast {
		return // skip non-unicast AFI/SAFI silently
	}
	nhLen := int(data[3])

	attrs.MPReachAFI = afi
	offset := 4

	if offset+nhLen > len(data) {
		return
	}

	nhData := data[offset : offset+nhLen]
	switch nhLen {
	case 4, 16:
		attrs.MPReachNexthop = net.IP(nhData).String()
	case 32:
		// Global + link-local; use global.
		attrs.MPReachNexthop = net.IP(nhData[:16]).String()
	}
	if attrs.Nexthop == "" {
		attrs.Nexthop = attrs.MPReachNexthop
	}
	offset += nhLen

	// Skip SNPA entries (RFC 4760: 1-byte count, then N x {1-byte len, len bytes}).
	if offset >= len(data) {
		return
	}
	snpaCount := int(data[offset])
	offset++
	for i := 0; i < snpaCount; i++ {
		if offset >= len(data) {
			return
		}
		snpaLen := int(data[offset])
		offset++
		// SNPA length is in semi-octets; byte length = (snpaLen + 1) / 2
		snpaByteLen := (snpaLen + 1) / 2
		if offset+snpaByteLen > len(data) {
			return
		}
		offset += snpaByteLen
	}

	if v := afiToVersion(afi); v != 0 {
		attrs.MPReachNLRI, _ = parsePrefixes(data[offset:], v, hasAddPath)
	}
}

func parseMPUnreachNLRI(data []byte, attrs *PathAttributes, hasAddPath bool) {
	if len(data) < 3 {
		return
	}

	afi := binary.BigEndian.Uint16(data[0:2])
	safi := data[2]
	if safi != SAFIUnicast {
		return // skip non-unicast AFI/SAFI silently
	}

	attrs.MPUnreachAFI = afi
	attrs.MPUnreachNLRI, _ = parsePrefixes(data[3:], afiToVersion(afi), hasAddPath)
}

func parsePrefixes(data []byte, ipVersion int, hasAddPath bool) ([]PrefixInfo, error) {
	var prefixes []PrefixInfo
	offset := 0

	for offset < len(data) {
		var pathID int64
		if hasAddPath {
			if offset+4 > len(data) {
				return prefixes, fmt.Errorf("bgp: prefix data truncated at offset %d", offset)
			}
			pathID = int64(binary.BigEndian.Uint32(data[offset : offset+4]))
			offset += 4
		}

		if offset >= len(data) {
			return prefixes, fmt.Errorf("bgp: prefix data truncated at offset %d", offset)
		}

		prefixLen := int(data[offset])
		offset++

		maxBits := maxIPLen(ipVersion) * 8
		if prefixLen > maxBits {
			return prefixes, fmt.Errorf("bgp: prefix length %d exceeds AFI maximum %d", prefixLen, maxBits)
		}

		byteLen := (prefixLen + 7) / 8
		if offset+byteLen > len(data) {
			return prefixes, fmt.Errorf("bgp: prefix data truncated at offset %d", offset)
		}

		prefixBytes := make([]byte, maxIPLen(ipVersion))
		copy(prefixBytes, data[offset:offset+byteLen])
		offset += byteLen

		ip := net.IP(prefixBytes)

		prefixes = append(prefixes, PrefixInfo{
			Prefix: fmt.Sprintf("%s/%d", ip.String(), prefixLen),
			PathID: pathID,
		})
	}

	return prefixes, nil
}

func afiToVersion(afi uint16) int {
	switch afi {
	case AFIIPv4:
		return 4
	case AFIIPv6:
		return 6
	default:
		return 0 // unsupported AFI
	}
}

func maxIPLen(version int) int {
	if version == 4 {
		return 4
	}
	return 16
}
