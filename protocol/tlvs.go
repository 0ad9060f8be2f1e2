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

package protocol

import (
	"encoding/binary"
	"fmt"
)

// TLVType identifies the kind of TLV following the 4-octet TLV header.
type TLVType uint16

// TLV identifiers CSPTP unicast recognizes.
const (
	TLVAlternateTimeOffsetIndicator TLVType = 0x0009
	TLVCSPTPRequest                 TLVType = 0xff00
	TLVCSPTPResponse                TLVType = 0xff01
	TLVCSPTPStatus                  TLVType = 0xf002
	TLVPad                          TLVType = 0x8008
)

func (t TLVType) String() string {
	switch t {
	case TLVAlternateTimeOffsetIndicator:
		return "ALTERNATE_TIME_OFFSET_INDICATOR"
	case TLVCSPTPRequest:
		return "CSPTP_REQUEST"
	case TLVCSPTPResponse:
		return "CSPTP_RESPONSE"
	case TLVCSPTPStatus:
		return "CSPTP_STATUS"
	case TLVPad:
		return "PAD"
	default:
		return fmt.Sprintf("UNKNOWN(%#x)", uint16(t))
	}
}

// TLVHeadSize is the size of the common TLV header (tlvType + lengthField).
const TLVHeadSize = 4

// TLVHead is the 4-octet header common to every TLV.
type TLVHead struct {
	TLVType     TLVType
	LengthField uint16
}

func putTLVHead(b []byte, h TLVHead) {
	binary.BigEndian.PutUint16(b, uint16(h.TLVType))
	binary.BigEndian.PutUint16(b[2:], h.LengthField)
}

func getTLVHead(b []byte) TLVHead {
	return TLVHead{
		TLVType:     TLVType(binary.BigEndian.Uint16(b)),
		LengthField: binary.BigEndian.Uint16(b[2:]),
	}
}

// minTLVBodySize is the minimum body size (excluding the 4-octet header) for
// each recognized TLV type, per spec section 3's "Fixed bytes" table.
func minTLVBodySize(t TLVType) (int, bool) {
	switch t {
	case TLVAlternateTimeOffsetIndicator:
		return 16, true // 20 incl. header, minus the 4-octet header, plus PTPText length byte
	case TLVCSPTPRequest:
		return 4, true
	case TLVCSPTPResponse:
		return 24, true
	case TLVCSPTPStatus:
		return 28, true // 32 incl. header, minus the 4-octet header; + addressLength on top
	case TLVPad:
		return 0, true
	default:
		return 0, false
	}
}

// RequestFlags are the CSPTP_REQUEST flags[0] bits.
type RequestFlags uint8

const (
	RequestFlagStatus RequestFlags = 1 << 0
	RequestFlagAlt    RequestFlags = 1 << 1
	requestFlagsMask               = RequestFlagStatus | RequestFlagAlt
)

// CSPTPRequestTLV is the CSPTP_REQUEST TLV: a request for optional STATUS
// and/or ALTERNATE_TIME_OFFSET_INDICATOR TLVs in the response.
type CSPTPRequestTLV struct {
	TLVHead
	Flags0 RequestFlags
}

const csptpRequestBodySize = 4

func (t *CSPTPRequestTLV) marshalTo(b []byte) {
	putTLVHead(b, TLVHead{TLVType: TLVCSPTPRequest, LengthField: csptpRequestBodySize})
	b[TLVHeadSize] = byte(t.Flags0 & requestFlagsMask)
	b[TLVHeadSize+1] = 0
	b[TLVHeadSize+2] = 0
	b[TLVHeadSize+3] = 0
}

func (t *CSPTPRequestTLV) unmarshal(b []byte) error {
	t.TLVHead = getTLVHead(b)
	if t.TLVHead.LengthField != csptpRequestBodySize {
		return fmt.Errorf("protocol: CSPTP_REQUEST length field %d, want %d", t.TLVHead.LengthField, csptpRequestBodySize)
	}
	t.Flags0 = RequestFlags(b[TLVHeadSize])
	return nil
}

// CSPTPResponseTLV is the CSPTP_RESPONSE TLV carrying the service's view of
// the request: the client's ingress timestamp and correction field.
type CSPTPResponseTLV struct {
	TLVHead
	OrganizationID        [3]byte
	OrganizationSubType    [3]byte
	ReqIngressSeconds      [6]byte
	ReqIngressNanoseconds  uint32
	ReqCorrectionField     int64
}

const csptpResponseBodySize = 24

func (t *CSPTPResponseTLV) marshalTo(b []byte) {
	putTLVHead(b, TLVHead{TLVType: TLVCSPTPResponse, LengthField: csptpResponseBodySize})
	pos := TLVHeadSize
	copy(b[pos:], t.OrganizationID[:])
	pos += 3
	copy(b[pos:], t.OrganizationSubType[:])
	pos += 3
	copy(b[pos:], t.ReqIngressSeconds[:])
	pos += 6
	binary.BigEndian.PutUint32(b[pos:], t.ReqIngressNanoseconds)
	pos += 4
	binary.BigEndian.PutUint64(b[pos:], uint64(t.ReqCorrectionField))
}

func (t *CSPTPResponseTLV) unmarshal(b []byte) error {
	t.TLVHead = getTLVHead(b)
	if t.TLVHead.LengthField < csptpResponseBodySize {
		return fmt.Errorf("protocol: CSPTP_RESPONSE length field %d, want at least %d", t.TLVHead.LengthField, csptpResponseBodySize)
	}
	pos := TLVHeadSize
	copy(t.OrganizationID[:], b[pos:])
	pos += 3
	copy(t.OrganizationSubType[:], b[pos:])
	pos += 3
	copy(t.ReqIngressSeconds[:], b[pos:])
	pos += 6
	t.ReqIngressNanoseconds = binary.BigEndian.Uint32(b[pos:])
	pos += 4
	t.ReqCorrectionField = int64(binary.BigEndian.Uint64(b[pos:]))
	return nil
}

// CSPTPStatusTLV is the CSPTP_STATUS TLV: a grandmaster-quality summary and
// parent port address, sent when the client set RequestFlagStatus.
type CSPTPStatusTLV struct {
	TLVHead
	OrganizationID       [3]byte
	OrganizationSubType  [3]byte
	Priority1            uint8
	ClockQuality         ClockQuality
	Priority2            uint8
	StepsRemoved         uint16
	CurrentUTCOffset     int16
	ClockIdentity        ClockIdentity
	NetworkProtocol      NetworkProtocol
	AddressField         []byte
}

const csptpStatusFixedBodySize = 28

func (t *CSPTPStatusTLV) bodySize() int {
	return csptpStatusFixedBodySize + len(t.AddressField)
}

func (t *CSPTPStatusTLV) marshalTo(b []byte) error {
	if t.NetworkProtocol.AddressLength() != len(t.AddressField) {
		return fmt.Errorf("protocol: CSPTP_STATUS address field length %d does not match protocol %s", len(t.AddressField), t.NetworkProtocol)
	}
	putTLVHead(b, TLVHead{TLVType: TLVCSPTPStatus, LengthField: uint16(t.bodySize())})
	pos := TLVHeadSize
	copy(b[pos:], t.OrganizationID[:])
	pos += 3
	copy(b[pos:], t.OrganizationSubType[:])
	pos += 3
	b[pos] = t.Priority1
	pos++
	b[pos] = byte(t.ClockQuality.ClockClass)
	pos++
	b[pos] = byte(t.ClockQuality.ClockAccuracy)
	pos++
	binary.BigEndian.PutUint16(b[pos:], t.ClockQuality.OffsetScaledLogVariance)
	pos += 2
	b[pos] = t.Priority2
	pos++
	binary.BigEndian.PutUint16(b[pos:], t.StepsRemoved)
	pos += 2
	binary.BigEndian.PutUint16(b[pos:], uint16(t.CurrentUTCOffset))
	pos += 2
	binary.BigEndian.PutUint64(b[pos:], uint64(t.ClockIdentity))
	pos += 8
	binary.BigEndian.PutUint16(b[pos:], uint16(t.NetworkProtocol))
	pos += 2
	binary.BigEndian.PutUint16(b[pos:], uint16(len(t.AddressField)))
	pos += 2
	copy(b[pos:], t.AddressField)
	return nil
}

func (t *CSPTPStatusTLV) unmarshal(b []byte) error {
	t.TLVHead = getTLVHead(b)
	if int(t.TLVHead.LengthField) < csptpStatusFixedBodySize {
		return fmt.Errorf("protocol: CSPTP_STATUS length field %d, want at least %d", t.TLVHead.LengthField, csptpStatusFixedBodySize)
	}
	pos := TLVHeadSize
	copy(t.OrganizationID[:], b[pos:])
	pos += 3
	copy(t.OrganizationSubType[:], b[pos:])
	pos += 3
	t.Priority1 = b[pos]
	pos++
	t.ClockQuality.ClockClass = ClockClass(b[pos])
	pos++
	t.ClockQuality.ClockAccuracy = ClockAccuracy(b[pos])
	pos++
	t.ClockQuality.OffsetScaledLogVariance = binary.BigEndian.Uint16(b[pos:])
	pos += 2
	t.Priority2 = b[pos]
	pos++
	t.StepsRemoved = binary.BigEndian.Uint16(b[pos:])
	pos += 2
	t.CurrentUTCOffset = int16(binary.BigEndian.Uint16(b[pos:]))
	pos += 2
	t.ClockIdentity = ClockIdentity(binary.BigEndian.Uint64(b[pos:]))
	pos += 8
	t.NetworkProtocol = NetworkProtocol(binary.BigEndian.Uint16(b[pos:]))
	pos += 2
	addrLen := binary.BigEndian.Uint16(b[pos:])
	pos += 2
	wantLen := t.NetworkProtocol.AddressLength()
	if wantLen == 0 || int(addrLen) != wantLen {
		return fmt.Errorf("protocol: CSPTP_STATUS address length %d does not match protocol %s", addrLen, t.NetworkProtocol)
	}
	if int(t.TLVHead.LengthField) != csptpStatusFixedBodySize+wantLen {
		return fmt.Errorf("protocol: CSPTP_STATUS length field %d does not match fixed size + address length %d", t.TLVHead.LengthField, wantLen)
	}
	t.AddressField = make([]byte, addrLen)
	copy(t.AddressField, b[pos:])
	return nil
}

// ptpTextMarshal encodes s as a PTPText: a length octet followed by the
// UTF-8 bytes, padded with one zero byte if the length is odd.
func ptpTextMarshal(s string) ([]byte, error) {
	if len(s) > 255 {
		return nil, fmt.Errorf("protocol: text %q is too long for PTPText", s)
	}
	out := make([]byte, 1+len(s), 1+len(s)+1)
	out[0] = byte(len(s))
	copy(out[1:], s)
	if len(s)%2 != 0 {
		out = append(out, 0)
	}
	return out, nil
}

// ptpTextUnmarshal decodes a PTPText from b, returning the string and the
// number of bytes consumed including the even-padding byte, if any.
func ptpTextUnmarshal(b []byte) (string, int, error) {
	if len(b) < 1 {
		return "", 0, fmt.Errorf("protocol: not enough data for PTPText length")
	}
	length := int(b[0])
	if len(b) < 1+length {
		return "", 0, fmt.Errorf("protocol: not enough data for PTPText of length %d", length)
	}
	consumed := 1 + length
	if length%2 != 0 {
		consumed++
	}
	return string(b[1 : 1+length]), consumed, nil
}

// AlternateTimeOffsetIndicatorTLV carries an alternate timezone's offset
// bookkeeping (current offset, next leap jump, and a short display name).
type AlternateTimeOffsetIndicatorTLV struct {
	TLVHead
	KeyField       uint8
	CurrentOffset  int32
	JumpSeconds    int32
	TimeOfNextJump [6]byte // uint48
	DisplayName    string
}

const altFixedBodySize = 15 // keyField + currentOffset + jumpSeconds + timeOfNextJump

// MaxDisplayNameLength is the largest display name this TLV can carry.
const MaxDisplayNameLength = 10

func (t *AlternateTimeOffsetIndicatorTLV) bodySize() (int, error) {
	text, err := ptpTextMarshal(t.DisplayName)
	if err != nil {
		return 0, err
	}
	return altFixedBodySize + len(text), nil
}

func (t *AlternateTimeOffsetIndicatorTLV) marshalTo(b []byte) (int, error) {
	if len(t.DisplayName) > MaxDisplayNameLength {
		return 0, fmt.Errorf("protocol: ALTERNATE_TIME_OFFSET_INDICATOR display name %q exceeds %d octets", t.DisplayName, MaxDisplayNameLength)
	}
	text, err := ptpTextMarshal(t.DisplayName)
	if err != nil {
		return 0, err
	}
	size := altFixedBodySize + len(text)
	putTLVHead(b, TLVHead{TLVType: TLVAlternateTimeOffsetIndicator, LengthField: uint16(size)})
	pos := TLVHeadSize
	b[pos] = t.KeyField
	pos++
	binary.BigEndian.PutUint32(b[pos:], uint32(t.CurrentOffset))
	pos += 4
	binary.BigEndian.PutUint32(b[pos:], uint32(t.JumpSeconds))
	pos += 4
	copy(b[pos:], t.TimeOfNextJump[:])
	pos += 6
	copy(b[pos:], text)
	pos += len(text)
	return pos, nil
}

func (t *AlternateTimeOffsetIndicatorTLV) unmarshal(b []byte) error {
	t.TLVHead = getTLVHead(b)
	if int(t.TLVHead.LengthField) < altFixedBodySize {
		return fmt.Errorf("protocol: ALTERNATE_TIME_OFFSET_INDICATOR length field %d, want at least %d", t.TLVHead.LengthField, altFixedBodySize)
	}
	pos := TLVHeadSize
	t.KeyField = b[pos]
	pos++
	t.CurrentOffset = int32(binary.BigEndian.Uint32(b[pos:]))
	pos += 4
	t.JumpSeconds = int32(binary.BigEndian.Uint32(b[pos:]))
	pos += 4
	copy(t.TimeOfNextJump[:], b[pos:])
	pos += 6
	name, consumed, err := ptpTextUnmarshal(b[pos:])
	if err != nil {
		return fmt.Errorf("protocol: reading ALTERNATE_TIME_OFFSET_INDICATOR display name: %w", err)
	}
	if altFixedBodySize+consumed != int(t.TLVHead.LengthField) {
		return fmt.Errorf("protocol: ALTERNATE_TIME_OFFSET_INDICATOR length field %d does not match decoded body %d", t.TLVHead.LengthField, altFixedBodySize+consumed)
	}
	t.DisplayName = name
	return nil
}

// PadTLV is a zero-payload filler TLV used to round a message up to a fixed frame size.
type PadTLV struct {
	TLVHead
}

func (t *PadTLV) marshalTo(b []byte) {
	putTLVHead(b, TLVHead{TLVType: TLVPad, LengthField: t.LengthField})
	for i := 0; i < int(t.LengthField); i++ {
		b[TLVHeadSize+i] = 0
	}
}
