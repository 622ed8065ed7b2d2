package bgp

import (
	"encoding/binary"
	"fmt"
)

// ParseUpdate parses a complete BGP message (including the 19-byte header)
// and returns a list of route events, one per prefix found in the UPDATE.
// Non-UPDATE messages yield no events and no error.
func ParseUpdate(data []byte, hasAddPath bool) ([]*RouteEvent, error) {
	if len(data) < BGPHeaderSize {
		return nil, fmt.Errorf("bgp: update too short (%d bytes)", len(data))
	}

	msgType := data[18]
	if msgType != BGPMsgTypeUpdate {
		return nil, nil // Not an UPDATE message; skip.
	}

	payload := data[BGPHeaderSize:]
	return parseUpdatePayload(payload, hasAddPath)
}

func parseUpdatePayload(data []byte, hasAddPath bool) ([]*RouteEvent, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("bgp: update payload too short (%d bytes)", len(data))
	}

	offset := 0

	// Withdrawn routes length.
	withdrawnLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2

	if offset+withdrawnLen > len(data) {
		return nil, fmt.Errorf("bgp: withdrawn length %d exceeds data", withdrawnLen)
	}

	// IPv4 withdrawn routes → action 'D'.
	withdrawnPrefixes, _ := parsePrefixes(data[offset:offset+withdrawnLen], 4, hasAddPath)
	offset += withdrawnLen

	// Total path attribute length.
	if offset+2 > len(data) {
		return nil, fmt.Errorf("bgp: no room for path attr length")
	}
	totalPathAttrLen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2

	if offset+totalPathAttrLen > len(data) {
		return nil, fmt.Errorf("bgp: path attr length %d exceeds data", totalPathAttrLen)
	}

	attrs, err := ParsePathAttributes(data[offset:offset+totalPathAttrLen], hasAddPath)
	if err != nil {
		return nil, fmt.Errorf("bgp: parse path attrs: %w", err)
	}
	offset += totalPathAttrLen

	// IPv4 NLRI → action 'A'.
	nlriPrefixes, _ := parsePrefixes(data[offset:], 4, hasAddPath)

	var events []*RouteEvent

	for _, p := range withdrawnPrefixes {
		events = append(events, &RouteEvent{
			AFI:    4,
			Prefix: p.Prefix,
			PathID: p.PathID,
			Action: "D",
		})
	}

	for _, p := range nlriPrefixes {
		events = append(events, &RouteEvent{
			AFI:            4,
			Prefix:         p.Prefix,
			PathID:         p.PathID,
			Action:         "A",
			Nexthop:        attrs.Nexthop,
			ASPath:         attrs.ASPath,
			ExtCommunities: attrs.ExtCommunities,
		})
	}

	// MP_REACH_NLRI announcements (IPv4/IPv6).
	if afi := afiToVersion(attrs.MPReachAFI); afi != 0 {
		for _, p := range attrs.MPReachNLRI {
			events = append(events, &RouteEvent{
				AFI:            afi,
				Prefix:         p.Prefix,
				PathID:         p.PathID,
				Action:         "A",
				Nexthop:        attrs.MPReachNexthop,
				ASPath:         attrs.ASPath,
				ExtCommunities: attrs.ExtCommunities,
			})
		}
	}

	// MP_UNREACH_NLRI withdrawals (IPv4/IPv6).
	if afi := afiToVersion(attrs.MPUnreachAFI); afi != 0 {
		for _, p := range attrs.MPUnreachNLRI {
			events = append(events, &RouteEvent{
				AFI:    afi,
				Prefix: p.Prefix,
				PathID: p.PathID,
				Action: "D",
			})
		}
	}

	return events, nil
}
