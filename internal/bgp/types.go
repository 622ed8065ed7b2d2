package bgp

// BGP path attribute type codes.
const (
	AttrTypeASPath        uint8 = 2
	AttrTypeNextHop       uint8 = 3
	AttrTypeMPReachNLRI   uint8 = 14
	AttrTypeMPUnreachNLRI uint8 = 15
	AttrTypeExtCommunity  uint8 = 16
)

// AFI codes.
const (
	AFIIPv4 uint16 = 1
	AFIIPv6 uint16 = 2
)

// SAFI codes.
const (
	SAFIUnicast uint8 = 1
)

// AS_PATH segment types.
const (
	ASPathSegmentSet      uint8 = 1
	ASPathSegmentSequence uint8 = 2
)

// BGP message types.
const (
	BGPMsgTypeUpdate uint8 = 2
)

// BGP message header size: marker(16) + length(2) + type(1) = 19
const BGPHeaderSize = 19

// RouteEvent represents a single route event extracted from a BGP UPDATE.
// ExtCommunities carries the raw EXTENDED_COMMUNITIES attribute octets
// verbatim; decoding them is the ecommunity package's job.
type RouteEvent struct {
	AFI            int    // 4 or 6
	Prefix         string // CIDR notation
	PathID         int64  // 0 if no Add-Path
	Action         string // "A" or "D"
	Nexthop        string
	ASPath         string
	ExtCommunities []byte
}
