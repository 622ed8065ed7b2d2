package bmp

import (
	"encoding/binary"
	"fmt"
	"net"
)

// ParseAll parses all concatenated BMP messages from raw bytes.
// Collectors may bundle multiple BMP messages in a single raw Kafka record
// (one per TCP read). Returns all successfully parsed messages.
func ParseAll(data []byte) ([]*Message, error) {
	var results []*Message
	offset := 0
	for offset < len(data) {
		remaining := data[offset:]
		if len(remaining) < CommonHeaderSize {
			break
		}
		msgLength := binary.BigEndian.Uint32(remaining[1:5])
		if msgLength < uint32(CommonHeaderSize) || int(msgLength) > len(remaining) {
			break
		}
		parsed, err := Parse(remaining[:msgLength])
		if err != nil {
			// Skip this message and try the next.
			offset += int(msgLength)
			continue
		}
		// Store the offset of this BMP message within the raw payload
		// so callers can extract the per-peer header.
		parsed.Offset = offset
		results = append(results, parsed)
		offset += int(msgLength)
	}
	if len(results) == 0 && offset == 0 {
		return nil, fmt.Errorf("bmp: no valid messages found in %d bytes", len(data))
	}
	return results, nil
}

// Parse parses a complete BMP message from raw bytes.
func Parse(data []byte) (*Message, error) {
	if len(data) < CommonHeaderSize {
		return nil, fmt.Errorf("bmp: message too short for common header (%d bytes)", len(data))
	}

	version := data[0]
	if version != BMPVersion {
		return nil, fmt.Errorf("bmp: unsupported version %d (expected %d)", version, BMPVersion)
	}

	msgLength := binary.BigEndian.Uint32(data[1:5])
	msgType := data[5]

	if msgLength < uint32(CommonHeaderSize) {
		return nil, fmt.Errorf("bmp: declared msg_length %d smaller than common header size %d", msgLength, CommonHeaderSize)
	}
	if int(msgLength) > len(data) {
		return nil, fmt.Errorf("bmp: declared msg_length %d exceeds available data %d", msgLength, len(data))
	}

	result := &Message{
		MsgType:   msgType,
		TableName: "UNKNOWN",
	}

	switch msgType {
	case MsgTypeRouteMonitoring:
		return parseRouteMonitoring(data[CommonHeaderSize:msgLength], result)
	case MsgTypePeerDown:
		return parsePeerDown(data[CommonHeaderSize:msgLength], result)
	case MsgTypePeerUp:
		return parsePeerUp(data[CommonHeaderSize:msgLength], result)
	default:
		// Initiation (4), Termination (5), Statistics Report (1),
		// Route Mirroring (6) carry nothing the indexer needs.
		return result, nil
	}
}

func parseRouteMonitoring(data []byte, result *Message) (*Message, error) {
	if len(data) < PerPeerHeaderSize {
		return nil, fmt.Errorf("bmp: route monitoring too short for per-peer header (%d bytes)", len(data))
	}

	readPeerHeader(data, result)

	// After per-peer header (42 bytes), the BGP message follows.
	bgpData := data[PerPeerHeaderSize:]
	if len(bgpData) == 0 {
		return nil, fmt.Errorf("bmp: no data after per-peer header")
	}

	if result.IsLocRIB {
		// For Loc-RIB (RFC 9069), the structure is:
		// per-peer header (42) + BGP UPDATE + TLVs.
		// Read the BGP message length to split the two.
		bgpMsgLen, err := bgpMessageLength(bgpData)
		if err != nil || bgpMsgLen > len(bgpData) {
			// Can't split reliably; treat all remaining as BGP data.
			result.BGPData = bgpData
			return result, nil
		}

		result.BGPData = bgpData[:bgpMsgLen]
		parseTLVs(bgpData[bgpMsgLen:], result)
	} else {
		result.BGPData = bgpData
	}

	return result, nil
}

func parsePeerDown(data []byte, result *Message) (*Message, error) {
	if len(data) < PerPeerHeaderSize {
		return nil, fmt.Errorf("bmp: peer down too short for per-peer header (%d bytes)", len(data))
	}

	readPeerHeader(data, result)

	if len(data) > PerPeerHeaderSize {
		result.PeerDownReason = data[PerPeerHeaderSize]
	}

	if result.IsLocRIB && len(data) > PerPeerHeaderSize+1 {
		// RFC 9069 Section 5: Peer Down for Loc-RIB includes a reason code
		// byte after the per-peer header, followed by optional TLVs.
		parseTLVs(data[PerPeerHeaderSize+1:], result)
	}

	return result, nil
}

func parsePeerUp(data []byte, result *Message) (*Message, error) {
	if len(data) < PerPeerHeaderSize {
		return nil, fmt.Errorf("bmp: peer up too short for per-peer header (%d bytes)", len(data))
	}

	readPeerHeader(data, result)

	if result.IsLocRIB {
		// RFC 9069 Section 4.4: For Loc-RIB Peer Up, the Sent Open and
		// Received Open fields are empty (zero-length), so TLVs start
		// right after the per-peer header.
		parseTLVs(data[PerPeerHeaderSize:], result)
	}
	return result, nil
}

func readPeerHeader(data []byte, result *Message) {
	result.PeerType = data[0]
	result.PeerFlags = data[1]
	result.IsLocRIB = result.PeerType == PeerTypeLocRIB
	result.HasAddPath = (result.PeerFlags & PeerFlagAddPath) != 0
	result.RouterID = RouterIDFromPeerHeader(data)
}

// bgpMessageLength reads the length field from a BGP message header.
// BGP header: marker(16) + length(2) + type(1) = 19 bytes minimum.
func bgpMessageLength(data []byte) (int, error) {
	if len(data) < 19 {
		return 0, fmt.Errorf("bmp: bgp message too short (%d bytes)", len(data))
	}
	for i := 0; i < 16; i++ {
		if data[i] != 0xFF {
			return 0, fmt.Errorf("bmp: invalid bgp marker at byte %d", i)
		}
	}
	length := int(binary.BigEndian.Uint16(data[16:18]))
	if length < 19 {
		return 0, fmt.Errorf("bmp: invalid bgp message length %d", length)
	}
	if length > 4096 {
		return 0, fmt.Errorf("bmp: bgp message length %d exceeds maximum 4096", length)
	}
	return length, nil
}

// parseTLVs extracts the Table Name TLV from data following the BGP message.
func parseTLVs(data []byte, result *Message) {
	offset := 0
	for offset+4 <= len(data) {
		tlvType := binary.BigEndian.Uint16(data[offset : offset+2])
		tlvLen := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		offset += 4

		if offset+tlvLen > len(data) {
			break
		}

		if tlvType == TLVTypeTableName && tlvLen > 0 {
			result.TableName = string(data[offset : offset+tlvLen])
		}

		offset += tlvLen
	}
}

// RouterIDFromPeerHeader extracts the router identifier from a BMP per-peer header.
//
// Per-peer header layout (RFC 7854 Section 4.2):
//
//	Offset  0: Peer Type (1 byte)
//	Offset  1: Peer Flags (1 byte)
//	Offset  2: Peer Distinguisher (8 bytes)
//	Offset 10: Peer Address (16 bytes)
//	Offset 26: Peer AS (4 bytes)
//	Offset 30: Peer BGP ID (4 bytes)
//
// For Loc-RIB (peer type 3, RFC 9069 Section 4.1), Peer Address and Peer AS
// are set to zero, but Peer BGP ID contains the local router's BGP identifier.
// This function checks the Peer Address first; if it is all zeros, it falls
// back to the Peer BGP ID field.
func RouterIDFromPeerHeader(data []byte) string {
	if len(data) < PerPeerHeaderSize {
		return ""
	}

	// Peer address at offset 10, 16 bytes (IPv6-mapped).
	addr := data[10:26]

	allZero := true
	for _, b := range addr {
		if b != 0 {
			allZero = false
			break
		}
	}

	if allZero {
		// For Loc-RIB, Peer BGP ID at offset 30 (4 bytes) holds the
		// local BGP identifier (RFC 9069 Section 4.1).
		bgpID := data[30:34]
		bgpIDZero := true
		for _, b := range bgpID {
			if b != 0 {
				bgpIDZero = false
				break
			}
		}
		if !bgpIDZero {
			return net.IP(bgpID).String()
		}
		return ""
	}

	// BMP (RFC 7854 §4.2) encodes IPv4 as 12 zero bytes + 4 IPv4 bytes,
	// which differs from the ::ffff: IPv4-mapped format that net.IP.To4()
	// recognizes. Check for the BMP convention explicitly.
	isV4 := true
	for _, b := range addr[:12] {
		if b != 0 {
			isV4 = false
			break
		}
	}
	if isV4 {
		return net.IP(addr[12:16]).String()
	}
	return net.IP(addr).String()
}
