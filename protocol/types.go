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

// Package protocol implements the bit-exact CSPTP unicast wire format: the
// 44-octet PTP Sync/Follow_Up header+timestamp, the CSPTP TLVs layered on
// top of it, and the Message codec that builds and parses them.
package protocol

import (
	"encoding/binary"
	"fmt"
)

// MessageType identifies the PTP message. CSPTP unicast only uses Sync and Follow_Up.
type MessageType uint8

// Recognized message types, Table 36 of IEEE 1588-2019.
const (
	MessageSync     MessageType = 0x0
	MessageFollowUp MessageType = 0x8
)

func (m MessageType) String() string {
	switch m {
	case MessageSync:
		return "SYNC"
	case MessageFollowUp:
		return "FOLLOW_UP"
	default:
		return fmt.Sprintf("UNKNOWN(%#x)", uint8(m))
	}
}

// MajorSdoID is the fixed sdoId nibble CSPTP unicast requires.
const MajorSdoID uint8 = 0x3

// MinorSdoID is the fixed minorSdoId octet CSPTP unicast requires.
const MinorSdoID uint8 = 0x00

// MajorVersion/MinorVersion/Version describe the PTP protocol version this
// codec speaks; Version is the single octet (minor<<4 | major).
const (
	MajorVersion uint8 = 2
	MinorVersion uint8 = 1
	Version      uint8 = MinorVersion<<4 | MajorVersion
)

// PortEvent is the IANA-assigned PTP event port. Unicast general traffic
// (which is all CSPTP uses) shares the same destination port.
const PortEvent = 320

// DomainNumber bounds as required by CSPTP unicast.
const (
	MinDomainNumber uint8 = 128
	MaxDomainNumber uint8 = 239
)

// Flag bits, Table 37, packed into one uint16 as flagField1<<8 | flagField0
// so a caller can OR them together before splitting them across the two
// wire octets with SplitFlags. Both CSPTP unicast flags live in flagField[0].
const (
	FlagTwoStep uint16 = 1 << 1 // flagField[0] bit 1
	FlagUnicast uint16 = 1 << 2 // flagField[0] bit 2
	// flagField1ReservedMask is the upper two bits of the second flag octet,
	// which must be zero under CSPTP unicast.
	flagField1ReservedMask uint8 = 0xC0
)

// SplitFlags splits a combined FlagTwoStep|FlagUnicast value into the wire's
// two flag octets.
func SplitFlags(flags uint16) (flagField0, flagField1 byte) {
	return byte(flags), byte(flags >> 8)
}

// ControlField values relevant to Sync/Follow_Up (the use of this field is
// obsolete per IEEE 1588 except that CSPTP still requires specific values).
const (
	ControlFieldSync     uint8 = 0
	ControlFieldFollowUp uint8 = 2
)

// LogMessageIntervalDefault is the fixed logMessageInterval CSPTP unicast uses.
const LogMessageIntervalDefault int8 = 0x7f

// ClockIdentity identifies a PTP clock.
type ClockIdentity uint64

func (c ClockIdentity) String() string {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(c))
	return fmt.Sprintf("%02x%02x%02x.%02x%02x.%02x%02x%02x",
		b[0], b[1], b[2], b[3], b[4], b[5], b[6], b[7])
}

// PortIdentity identifies a PTP port: a clock identity plus a port number.
// CSPTP unicast requires SourcePortIdentity to be all-zero.
type PortIdentity struct {
	ClockIdentity ClockIdentity
	PortNumber    uint16
}

// IsZero reports whether the port identity is the all-zero value CSPTP unicast requires.
func (p PortIdentity) IsZero() bool {
	return p.ClockIdentity == 0 && p.PortNumber == 0
}

// ClockClass and ClockAccuracy describe a clock's quality, carried in the
// CSPTP_STATUS TLV's grandmaster ClockQuality field.
type ClockClass uint8
type ClockAccuracy uint8

// ClockQuality bundles the three fields PTP uses to describe clock quality.
type ClockQuality struct {
	ClockClass              ClockClass
	ClockAccuracy           ClockAccuracy
	OffsetScaledLogVariance uint16
}

// NetworkProtocol identifies the address family carried in a PortAddress-shaped field.
type NetworkProtocol uint16

const (
	NetworkProtocolUDPIPv4 NetworkProtocol = 1
	NetworkProtocolUDPIPv6 NetworkProtocol = 2
)

func (n NetworkProtocol) String() string {
	switch n {
	case NetworkProtocolUDPIPv4:
		return "UDP_IPV4"
	case NetworkProtocolUDPIPv6:
		return "UDP_IPV6"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint16(n))
	}
}

// AddressLength returns the expected address length for the protocol, or 0 if unrecognized.
func (n NetworkProtocol) AddressLength() int {
	switch n {
	case NetworkProtocolUDPIPv4:
		return 4
	case NetworkProtocolUDPIPv6:
		return 16
	default:
		return 0
	}
}

// Header is the common 34-octet CSPTP/PTP message header (Table 35), not
// including the trailing 10-octet origin/precise-origin Timestamp.
type Header struct {
	MessageType        MessageType
	MajorSdoID         uint8
	Version            uint8
	MessageLength       uint16
	DomainNumber        uint8
	MinorSdoID          uint8
	FlagField0          uint8
	FlagField1          uint8
	CorrectionField     int64
	MessageTypeSpecific uint32
	SourcePortIdentity  PortIdentity
	SequenceID          uint16
	ControlField        uint8
	LogMessageInterval  int8
}

// HeaderSize is the fixed size of the common header, in bytes.
const HeaderSize = 34

func marshalHeader(h *Header, b []byte) {
	b[0] = byte(h.MajorSdoID<<4) | byte(h.MessageType)
	b[1] = h.Version
	binary.BigEndian.PutUint16(b[2:], h.MessageLength)
	b[4] = h.DomainNumber
	b[5] = h.MinorSdoID
	b[6] = h.FlagField0
	b[7] = h.FlagField1
	binary.BigEndian.PutUint64(b[8:], uint64(h.CorrectionField))
	binary.BigEndian.PutUint32(b[16:], h.MessageTypeSpecific)
	binary.BigEndian.PutUint64(b[20:], uint64(h.SourcePortIdentity.ClockIdentity))
	binary.BigEndian.PutUint16(b[28:], h.SourcePortIdentity.PortNumber)
	binary.BigEndian.PutUint16(b[30:], h.SequenceID)
	b[32] = h.ControlField
	b[33] = byte(h.LogMessageInterval)
}

func unmarshalHeader(h *Header, b []byte) {
	h.MajorSdoID = b[0] >> 4
	h.MessageType = MessageType(b[0] & 0x0f)
	h.Version = b[1]
	h.MessageLength = binary.BigEndian.Uint16(b[2:])
	h.DomainNumber = b[4]
	h.MinorSdoID = b[5]
	h.FlagField0 = b[6]
	h.FlagField1 = b[7]
	h.CorrectionField = int64(binary.BigEndian.Uint64(b[8:]))
	h.MessageTypeSpecific = binary.BigEndian.Uint32(b[16:])
	h.SourcePortIdentity.ClockIdentity = ClockIdentity(binary.BigEndian.Uint64(b[20:]))
	h.SourcePortIdentity.PortNumber = binary.BigEndian.Uint16(b[28:])
	h.SequenceID = binary.BigEndian.Uint16(b[30:])
	h.ControlField = b[32]
	h.LogMessageInterval = int8(b[33])
}
