package proto

import (
	"fmt"
	"net"
	"net/netip"
)

// Family identifies the address kind carried by an Address value.
//
// Grounded on original_source/include/ServerAddress.h's Type enum
// (IPAddress / IPV6Address); kept as two kinds, no "unknown" state.
type Family uint8

const (
	FamilyV4 Family = iota
	FamilyV6
)

// Address is a tagged, by-value remote endpoint: either a 4-byte IPv4 host
// plus port, or a 16-byte IPv6 host plus port, flow label and scope id.
// The scope id is carried for round-tripping a net.UDPAddr zone; neither
// constructor fills the flow label. Both are excluded from Equal and Hash,
// matching spec §3.
type Address struct {
	family Family

	v4 [4]byte
	v6 [16]byte

	flowInfo uint32
	scopeID  uint32

	port uint16
}

// AddressFromUDP builds an Address from a socket address of either family.
func AddressFromUDP(a *net.UDPAddr) Address {
	if a == nil {
		return Address{}
	}
	if ip4 := a.IP.To4(); ip4 != nil {
		out := Address{family: FamilyV4, port: uint16(a.Port)}
		copy(out.v4[:], ip4)
		return out
	}
	out := Address{family: FamilyV6, port: uint16(a.Port)}
	ip16 := a.IP.To16()
	copy(out.v6[:], ip16)
	if a.Zone != "" {
		if zone, err := parseZoneScope(a.Zone); err == nil {
			out.scopeID = zone
		}
	}
	return out
}

// AddressFromAddrPort builds an Address from a netip.AddrPort, as produced by
// a transport that reads with ReadFromUDPAddrPort.
func AddressFromAddrPort(ap netip.AddrPort) Address {
	a := ap.Addr()
	if a.Is4() || a.Is4In6() {
		raw := a.As4()
		out := Address{family: FamilyV4, port: ap.Port()}
		out.v4 = raw
		return out
	}
	raw := a.As16()
	out := Address{family: FamilyV6, port: ap.Port()}
	out.v6 = raw
	if zone := a.Zone(); zone != "" {
		if scope, err := parseZoneScope(zone); err == nil {
			out.scopeID = scope
		}
	}
	return out
}

// parseZoneScope reads a numeric zone string as a scope id; both
// constructors leave the scope id at zero when it fails.
func parseZoneScope(zone string) (uint32, error) {
	var v uint32
	_, err := fmt.Sscanf(zone, "%d", &v)
	return v, err
}

// Family reports whether the address is IPv4 or IPv6.
func (a Address) Family() Family { return a.family }

// Port returns the UDP port.
func (a Address) Port() uint16 { return a.port }

// IsV6 reports whether the address is IPv6.
func (a Address) IsV6() bool { return a.family == FamilyV6 }

// Bytes4 returns the raw 4-byte IPv4 address; valid only when Family() == FamilyV4.
func (a Address) Bytes4() [4]byte { return a.v4 }

// Bytes16 returns the raw 16-byte IPv6 address; valid only when Family() == FamilyV6.
func (a Address) Bytes16() [16]byte { return a.v6 }

// Equal compares kind, bytes and port. Flow label and scope id are excluded,
// matching spec §3 ("Equality compares kind, bytes, and port").
func (a Address) Equal(b Address) bool {
	if a.family != b.family || a.port != b.port {
		return false
	}
	if a.family == FamilyV4 {
		return a.v4 == b.v4
	}
	return a.v6 == b.v6
}

// Hash derives a lookup key from kind + bytes + port, suitable as a Go map key
// (Address is already comparable, but Hash gives a cheap fixed-width summary
// for logging and metrics cardinality control).
func (a Address) Hash() uint64 {
	h := uint64(a.family)<<56 | uint64(a.port)
	if a.family == FamilyV4 {
		for _, b := range a.v4 {
			h = h*1099511628211 ^ uint64(b)
		}
		return h
	}
	for _, b := range a.v6 {
		h = h*1099511628211 ^ uint64(b)
	}
	return h
}

// String renders "a.b.c.d:port" or "[v6]:port", matching
// ServerAddress::toString in original_source/network/ServerAddress.cc.
func (a Address) String() string {
	if a.family == FamilyV4 {
		return fmt.Sprintf("%d.%d.%d.%d:%d", a.v4[0], a.v4[1], a.v4[2], a.v4[3], a.port)
	}
	ip := net.IP(a.v6[:])
	return fmt.Sprintf("[%s]:%d", ip.String(), a.port)
}

// UDPAddr converts back to a *net.UDPAddr suitable for a transport Send call.
func (a Address) UDPAddr() *net.UDPAddr {
	if a.family == FamilyV4 {
		ip := make(net.IP, 4)
		copy(ip, a.v4[:])
		return &net.UDPAddr{IP: ip, Port: int(a.port)}
	}
	ip := make(net.IP, 16)
	copy(ip, a.v6[:])
	out := &net.UDPAddr{IP: ip, Port: int(a.port)}
	if a.scopeID != 0 {
		out.Zone = fmt.Sprintf("%d", a.scopeID)
	}
	return out
}
