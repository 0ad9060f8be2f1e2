/*
Copyright (c) CSPTP Project

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package address implements Address, the UDPv4/UDPv6 sum type CSPTP's
// client and service engines use to name a peer, plus the string-to-binary
// resolution rules the command-line target argument and config files go
// through to produce one.
package address

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/csptp/csptp/protocol"
)

// Family identifies which variant of Address is populated.
type Family uint8

const (
	FamilyUDPv4 Family = iota
	FamilyUDPv6
)

func (f Family) String() string {
	switch f {
	case FamilyUDPv4:
		return "UDPv4"
	case FamilyUDPv6:
		return "UDPv6"
	default:
		return "unknown"
	}
}

// Address is a CSPTP peer address: either a UDP/IPv4 or UDP/IPv6 endpoint.
// It is a value type; the zero value is not a valid Address.
type Address struct {
	family Family
	ip     netip.Addr
	port   uint16
}

// DefaultPort is the PTP event port CSPTP unicast uses for both directions.
const DefaultPort = protocol.PortEvent

// NewUDPv4 builds an Address from a 4-byte IPv4 address and port.
func NewUDPv4(ip netip.Addr, port uint16) (Address, error) {
	if !ip.Is4() {
		return Address{}, fmt.Errorf("address: %s is not an IPv4 address", ip)
	}
	if ip.IsUnspecified() {
		return Address{}, fmt.Errorf("address: refusing the any-address %s", ip)
	}
	return Address{family: FamilyUDPv4, ip: ip, port: port}, nil
}

// NewUDPv6 builds an Address from a 16-byte IPv6 address and port.
func NewUDPv6(ip netip.Addr, port uint16) (Address, error) {
	if !ip.Is6() || ip.Is4In6() {
		return Address{}, fmt.Errorf("address: %s is not an IPv6 address", ip)
	}
	if ip.IsUnspecified() {
		return Address{}, fmt.Errorf("address: refusing the any-address %s", ip)
	}
	return Address{family: FamilyUDPv6, ip: ip, port: port}, nil
}

// Family reports which variant a is.
func (a Address) Family() Family {
	return a.family
}

// IP returns the address's IP.
func (a Address) IP() netip.Addr {
	return a.ip
}

// Port returns the address's UDP port.
func (a Address) Port() uint16 {
	return a.port
}

// NetworkProtocol returns the protocol.NetworkProtocol value a CSPTP_STATUS
// PortAddress field should carry for this address's family.
func (a Address) NetworkProtocol() protocol.NetworkProtocol {
	if a.family == FamilyUDPv6 {
		return protocol.NetworkProtocolUDPIPv6
	}
	return protocol.NetworkProtocolUDPIPv4
}

// Binary returns the address field bytes (4 for UDPv4, 16 for UDPv6) as used
// in a CSPTP_STATUS TLV's PortAddress.
func (a Address) Binary() []byte {
	if a.family == FamilyUDPv6 {
		b := a.ip.As16()
		return b[:]
	}
	b := a.ip.As4()
	return b[:]
}

// UDPAddr converts a to a *net.UDPAddr for use with the socket package.
func (a Address) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: a.ip.AsSlice(), Port: int(a.port)}
}

// Equal reports whether a and o name the same endpoint.
func (a Address) Equal(o Address) bool {
	return a.family == o.family && a.ip == o.ip && a.port == o.port
}

func (a Address) String() string {
	return net.JoinHostPort(a.ip.String(), fmt.Sprintf("%d", a.port))
}

// ResolveFlags control how StringToBinary resolves a host string that is not
// already a literal IP address.
type ResolveFlags uint8

const (
	// ResolvePreferIPv4 picks the first IPv4 result from DNS resolution
	// when both families are returned. Without it, the first result wins
	// regardless of family.
	ResolvePreferIPv4 ResolveFlags = 1 << iota
	// ResolvePreferIPv6 picks the first IPv6 result from DNS resolution.
	ResolvePreferIPv6
)

// StringToBinary resolves host (a literal IP or a DNS name) and port into an
// Address. Literal IPs are parsed directly; anything else is resolved via
// DNS. The any-address (0.0.0.0 or ::) is refused in both cases, since a
// CSPTP peer address must name a specific reachable endpoint.
func StringToBinary(host string, port uint16, flags ResolveFlags) (Address, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return fromParsedIP(ip, port)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return Address{}, fmt.Errorf("address: resolving %q: %w", host, err)
	}
	if len(ips) == 0 {
		return Address{}, fmt.Errorf("address: %q resolved to no addresses", host)
	}

	chosen, ok := pickPreferred(ips, flags)
	if !ok {
		return Address{}, fmt.Errorf("address: %q resolved only to addresses of the non-preferred family", host)
	}
	ip, ok := netip.AddrFromSlice(chosen)
	if !ok {
		return Address{}, fmt.Errorf("address: %q resolved to an unparseable address", host)
	}
	return fromParsedIP(ip.Unmap(), port)
}

func pickPreferred(ips []net.IP, flags ResolveFlags) (net.IP, bool) {
	wantV4 := flags&ResolvePreferIPv4 != 0
	wantV6 := flags&ResolvePreferIPv6 != 0
	if !wantV4 && !wantV6 {
		return ips[0], true
	}
	for _, ip := range ips {
		if wantV4 && ip.To4() != nil {
			return ip, true
		}
		if wantV6 && ip.To4() == nil {
			return ip, true
		}
	}
	return nil, false
}

func fromParsedIP(ip netip.Addr, port uint16) (Address, error) {
	if ip.Is4() || ip.Is4In6() {
		return NewUDPv4(ip.Unmap(), port)
	}
	return NewUDPv6(ip, port)
}
