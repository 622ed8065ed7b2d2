// Package ecommunity implements the BGP Extended Communities attribute
// (RFC 4360): the 8-octet value encoding, the variable-length community
// set with its canonical sort order, the text forms used by route-maps
// and community-lists, and a reference-counted intern pool that shares
// one Set instance across all routes carrying identical communities.
package ecommunity

import (
	"encoding/binary"
	"net"
)

// ValSize is the wire size of a single extended community value.
const ValSize = 8

// High-order octet of the type field.
const (
	EncodeAS     uint8 = 0x00 // 2-octet AS specific
	EncodeIP     uint8 = 0x01 // IPv4 address specific
	EncodeAS4    uint8 = 0x02 // 4-octet AS specific
	EncodeOpaque uint8 = 0x03
	EncodeEVPN   uint8 = 0x06
)

// FlagNonTransitive marks a value that must not cross AS boundaries.
const FlagNonTransitive uint8 = 0x40

// Low-order octet (sub-type) of the type field.
const (
	SubTypeRouteTarget  uint8 = 0x02
	SubTypeSiteOfOrigin uint8 = 0x03
)

// EVPN sub-types.
const (
	EVPNSubTypeMACMobility uint8 = 0x00
	EVPNSubTypeESILabel    uint8 = 0x01
	EVPNSubTypeESImportRT  uint8 = 0x02
	EVPNSubTypeRouterMAC   uint8 = 0x03
	EVPNSubTypeDefaultGW   uint8 = 0x0d
)

// Opaque sub-types.
const (
	OpaqueSubTypeEncap uint8 = 0x0c
)

// Val is a single extended community value: type octet, sub-type octet,
// and six octets of type-specific payload.
type Val [ValSize]byte

// Type returns the high-order type octet with the transitive flag masked off.
func (v Val) Type() uint8 { return v[0] &^ FlagNonTransitive }

// SubType returns the low-order type octet.
func (v Val) SubType() uint8 { return v[1] }

// Transitive reports whether the value is propagated across AS boundaries.
func (v Val) Transitive() bool { return v[0]&FlagNonTransitive == 0 }

// EncodeRouteTargetAS encodes a Route Target in the 2-octet AS specific
// form (AS:nn). The ASN is truncated to 16 bits; callers are responsible
// for range correctness.
func EncodeRouteTargetAS(asn uint32, local uint32) Val {
	return encodeAS(SubTypeRouteTarget, asn, local)
}

// EncodeRouteTargetIP encodes a Route Target in the IPv4 address specific
// form (A.B.C.D:nn). ip must be an IPv4 address.
func EncodeRouteTargetIP(ip net.IP, local uint16) Val {
	return encodeIP(SubTypeRouteTarget, ip, local)
}

// EncodeRouteTargetAS4 encodes a Route Target in the 4-octet AS specific
// form (AS4:nn).
func EncodeRouteTargetAS4(asn uint32, local uint16) Val {
	return encodeAS4(SubTypeRouteTarget, asn, local)
}

// EncodeSiteOfOriginAS encodes a Site of Origin in the 2-octet AS specific form.
func EncodeSiteOfOriginAS(asn uint32, local uint32) Val {
	return encodeAS(SubTypeSiteOfOrigin, asn, local)
}

// EncodeSiteOfOriginIP encodes a Site of Origin in the IPv4 address specific form.
func EncodeSiteOfOriginIP(ip net.IP, local uint16) Val {
	return encodeIP(SubTypeSiteOfOrigin, ip, local)
}

// EncodeSiteOfOriginAS4 encodes a Site of Origin in the 4-octet AS specific form.
func EncodeSiteOfOriginAS4(asn uint32, local uint16) Val {
	return encodeAS4(SubTypeSiteOfOrigin, asn, local)
}

func encodeAS(subType uint8, asn uint32, local uint32) Val {
	var v Val
	v[0] = EncodeAS
	v[1] = subType
	binary.BigEndian.PutUint16(v[2:4], uint16(asn))
	binary.BigEndian.PutUint32(v[4:8], local)
	return v
}

func encodeIP(subType uint8, ip net.IP, local uint16) Val {
	var v Val
	v[0] = EncodeIP
	v[1] = subType
	copy(v[2:6], ip.To4())
	binary.BigEndian.PutUint16(v[6:8], local)
	return v
}

func encodeAS4(subType uint8, asn uint32, local uint16) Val {
	var v Val
	v[0] = EncodeAS4
	v[1] = subType
	binary.BigEndian.PutUint32(v[2:6], asn)
	binary.BigEndian.PutUint16(v[6:8], local)
	return v
}
