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
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/csptp/csptp/ptptime"
	"github.com/csptp/csptp/wire"
)

// messageState tracks where a Message sits in its build/send or parse
// lifecycle. A Message is either built up TLV-by-TLV and sent, or parsed
// whole from the wire; it never does both.
type messageState int

const (
	stateDetached messageState = iota
	stateBuilding
	stateSent
	stateParsed
)

// MaxTLVSlots is the largest number of TLVs a single CSPTP message carries:
// CSPTP_RESPONSE, CSPTP_STATUS, ALTERNATE_TIME_OFFSET_INDICATOR and PAD.
const MaxTLVSlots = 4

// timestampFieldSize is the size of the trailing originTimestamp /
// preciseOriginTimestamp field following the common header.
const timestampFieldSize = 10

// MaxMessageSize is the initial size of the wire.Buffer Init allocates: the
// header, the timestamp, and every TLV this codec knows about all fit
// comfortably within it. addTlv grows the buffer past it if a TLV does not
// fit, and Parse does not check a received datagram against it.
const MaxMessageSize = 256

// Message is the CSPTP Sync/Follow_Up message builder and parser. Callers
// either build one up (Init, then AddReqTlv/AddResponseTlv/... up to
// MaxTLVSlots times, then BuildDone) or parse one whole (Parse). A Message
// only ever does one of the two; calling a builder method on a parsed
// Message, or vice versa, is a caller contract error.
type Message struct {
	state     messageState
	header    Header
	timestamp ptptime.Timestamp

	// buf holds every byte of the message: building writes the header,
	// timestamp and each TLV directly into it as they're added; parsing
	// wraps the received datagram in place. Bytes/Parse/BuildDone never
	// copy out of it except to hand the caller their own buffer (Detach/Copy).
	buf *wire.Buffer

	nSlots int

	Request  *CSPTPRequestTLV
	Response *CSPTPResponseTLV
	Status   *CSPTPStatusTLV
	Alt      *AlternateTimeOffsetIndicatorTLV
	Pad      *PadTLV

	// Truncated reports whether Parse stopped before exhausting
	// MessageLength because it ran into a TLV it could not decode. The
	// header and any TLVs already decoded remain valid.
	Truncated bool
}

// Init resets m into the building state with the given header and
// origin/precise-origin timestamp. The header's MessageLength is
// recomputed by BuildDone and need not be set here. Init allocates the
// backing wire.Buffer every subsequent Add*Tlv/BuildDone call writes into.
func (m *Message) Init(h Header, timestamp ptptime.Timestamp) error {
	if h.DomainNumber < MinDomainNumber || h.DomainNumber > MaxDomainNumber {
		return fmt.Errorf("protocol: domain number %d out of CSPTP unicast range [%d, %d]", h.DomainNumber, MinDomainNumber, MaxDomainNumber)
	}
	if h.MessageType != MessageSync && h.MessageType != MessageFollowUp {
		return fmt.Errorf("protocol: unsupported message type %s", h.MessageType)
	}
	buf, err := wire.Alloc(MaxMessageSize)
	if err != nil {
		return fmt.Errorf("protocol: allocating message buffer: %w", err)
	}
	if err := buf.SetLen(HeaderSize + timestampFieldSize); err != nil {
		return err
	}
	*m = Message{state: stateBuilding, header: h, timestamp: timestamp, buf: buf}
	return nil
}

// NextTlv reserves the next TLV slot, failing if the message already holds
// MaxTLVSlots TLVs. Builder methods call this internally; it is exported so
// a caller that wants to pre-check capacity (e.g. before deciding whether to
// also request STATUS) can do so without building the TLV first.
func (m *Message) NextTlv() (int, error) {
	if m.state != stateBuilding {
		return 0, fmt.Errorf("protocol: NextTlv called on a message not in the building state")
	}
	if m.nSlots >= MaxTLVSlots {
		return 0, fmt.Errorf("protocol: message already holds the maximum %d TLVs", MaxTLVSlots)
	}
	return m.nSlots, nil
}

// addTlv appends an already-marshaled TLV's bytes at the buffer's current
// data length, growing the buffer if the TLV doesn't fit in its current
// capacity, and advances the length cursor past it.
func (m *Message) addTlv(bytes []byte) error {
	if _, err := m.NextTlv(); err != nil {
		return err
	}
	offset := m.buf.Len()
	needed := offset + len(bytes)
	if needed > m.buf.Size() {
		if err := m.buf.Resize(needed); err != nil {
			return fmt.Errorf("protocol: growing message buffer: %w", err)
		}
	}
	copy(m.buf.Bytes()[offset:needed], bytes)
	if err := m.buf.SetLen(needed); err != nil {
		return err
	}
	m.nSlots++
	return nil
}

// AddReqTlv appends a CSPTP_REQUEST TLV with the given flags.
func (m *Message) AddReqTlv(flags RequestFlags) error {
	t := &CSPTPRequestTLV{Flags0: flags}
	b := make([]byte, TLVHeadSize+csptpRequestBodySize)
	t.marshalTo(b)
	if err := m.addTlv(b); err != nil {
		return err
	}
	m.Request = t
	return nil
}

// AddResponseTlv appends a CSPTP_RESPONSE TLV.
func (m *Message) AddResponseTlv(t CSPTPResponseTLV) error {
	b := make([]byte, TLVHeadSize+csptpResponseBodySize)
	t.marshalTo(b)
	if err := m.addTlv(b); err != nil {
		return err
	}
	m.Response = &t
	return nil
}

// AddStatusTlv appends a CSPTP_STATUS TLV.
func (m *Message) AddStatusTlv(t CSPTPStatusTLV) error {
	b := make([]byte, TLVHeadSize+t.bodySize())
	if err := t.marshalTo(b); err != nil {
		return err
	}
	if err := m.addTlv(b); err != nil {
		return err
	}
	m.Status = &t
	return nil
}

// AddAltTlv appends an ALTERNATE_TIME_OFFSET_INDICATOR TLV.
func (m *Message) AddAltTlv(t AlternateTimeOffsetIndicatorTLV) error {
	size, err := t.bodySize()
	if err != nil {
		return err
	}
	b := make([]byte, TLVHeadSize+size)
	if _, err := t.marshalTo(b); err != nil {
		return err
	}
	if err := m.addTlv(b); err != nil {
		return err
	}
	m.Alt = &t
	return nil
}

// AddTlv appends an already-marshaled TLV (header included). It exists for
// the PAD TLV, whose body is arbitrary padding rather than a structured
// value, and for forwarding TLVs this codec does not itself interpret.
func (m *Message) AddTlv(raw []byte) error {
	if len(raw) < TLVHeadSize {
		return fmt.Errorf("protocol: raw TLV of %d bytes is smaller than the TLV header", len(raw))
	}
	return m.addTlv(raw)
}

// BuildDone finalizes the message: it computes MessageLength, pads with a
// PAD TLV to targetSize if targetSize is greater than the natural length,
// and marshals the header and timestamp into the buffer TLVs were already
// written into by Init/Add*Tlv. targetSize of 0 means "no padding, use the
// natural length". BuildDone moves the message into the sent state; it
// cannot be built further.
func (m *Message) BuildDone(targetSize int) ([]byte, error) {
	if m.state != stateBuilding {
		return nil, fmt.Errorf("protocol: BuildDone called on a message not in the building state")
	}
	natural := m.buf.Len()
	total := natural
	if targetSize > natural {
		padBody := targetSize - natural - TLVHeadSize
		if padBody < 0 {
			return nil, fmt.Errorf("protocol: target size %d leaves no room for the required PAD header", targetSize)
		}
		pad := &PadTLV{TLVHead: TLVHead{TLVType: TLVPad, LengthField: uint16(padBody)}}
		b := make([]byte, TLVHeadSize+padBody)
		pad.marshalTo(b)
		if err := m.addTlv(b); err != nil {
			return nil, err
		}
		m.Pad = pad
		total = targetSize
	} else if targetSize != 0 && targetSize < natural {
		return nil, fmt.Errorf("protocol: target size %d is smaller than the natural message size %d", targetSize, natural)
	}

	if total > 0xffff {
		return nil, fmt.Errorf("protocol: message length %d exceeds the 16-bit MessageLength field", total)
	}
	m.header.MessageLength = uint16(total)

	marshalHeader(&m.header, m.buf.Bytes())
	if err := PutWireTimestamp(m.buf.Bytes()[HeaderSize:], m.timestamp); err != nil {
		return nil, fmt.Errorf("protocol: writing origin timestamp: %w", err)
	}

	m.state = stateSent
	return m.buf.Data(), nil
}

// Header returns the message's header. Valid once Init or Parse has run.
func (m *Message) Header() Header {
	return m.header
}

// Timestamp returns the message's origin/precise-origin timestamp. Valid
// once Init or Parse has run.
func (m *Message) Timestamp() ptptime.Timestamp {
	return m.timestamp
}

// Bytes returns the fully marshaled wire representation, valid after
// BuildDone or Parse.
func (m *Message) Bytes() []byte {
	return m.buf.Data()
}

// Parse decodes a whole CSPTP message from b, moving m into the parsed
// state. Parsing the header and timestamp is strict: any malformation
// fails the whole call. TLV parsing is lenient: on the first TLV it cannot
// decode, Parse stops and sets Truncated, but does not fail, since the
// header and any TLVs already decoded are still usable.
func (m *Message) Parse(b []byte) error {
	if len(b) < HeaderSize+timestampFieldSize {
		return fmt.Errorf("protocol: message of %d bytes is smaller than the fixed header+timestamp", len(b))
	}
	var h Header
	unmarshalHeader(&h, b)
	if h.MajorSdoID != MajorSdoID {
		return fmt.Errorf("protocol: majorSdoId %#x is not the CSPTP unicast value %#x", h.MajorSdoID, MajorSdoID)
	}
	if h.MessageType != MessageSync && h.MessageType != MessageFollowUp {
		return fmt.Errorf("protocol: unsupported message type %s", h.MessageType)
	}
	wantControl := ControlFieldSync
	if h.MessageType == MessageFollowUp {
		wantControl = ControlFieldFollowUp
	}
	if h.ControlField != wantControl {
		log.Warnf("protocol: wrong controlField value %#x for message type %s", h.ControlField, h.MessageType)
		return fmt.Errorf("protocol: controlField %#x does not match message type %s", h.ControlField, h.MessageType)
	}
	if h.LogMessageInterval != LogMessageIntervalDefault {
		log.Warnf("protocol: wrong logMessageInterval value %#x", h.LogMessageInterval)
		return fmt.Errorf("protocol: logMessageInterval %#x is not the required %#x", h.LogMessageInterval, LogMessageIntervalDefault)
	}
	if h.Version != Version {
		log.Warnf("protocol: wrong versionPTP value %#x", h.Version)
		return fmt.Errorf("protocol: versionPTP %#x is not the required %#x", h.Version, Version)
	}
	if h.MinorSdoID != MinorSdoID {
		log.Warnf("protocol: wrong minorSdoId value %#x", h.MinorSdoID)
		return fmt.Errorf("protocol: minorSdoId %#x is not the required %#x", h.MinorSdoID, MinorSdoID)
	}
	if !h.SourcePortIdentity.IsZero() {
		log.Warnf("protocol: wrong sourcePortIdentity value %+v", h.SourcePortIdentity)
		return fmt.Errorf("protocol: sourcePortIdentity must be all-zero for CSPTP unicast")
	}
	if h.FlagField0&^byte(FlagTwoStep) != byte(FlagUnicast) {
		log.Warnf("protocol: wrong flagField[0] value %#x", h.FlagField0)
		return fmt.Errorf("protocol: flagField[0] %#x does not carry exactly the unicast (and optional two-step) bit", h.FlagField0)
	}
	if h.FlagField1&flagField1ReservedMask != 0 {
		log.Warnf("protocol: wrong flagField[1] value %#x", h.FlagField1)
		return fmt.Errorf("protocol: flagField[1] %#x sets a reserved bit", h.FlagField1)
	}
	if int(h.MessageLength) > len(b) {
		return fmt.Errorf("protocol: messageLength %d exceeds the %d bytes received", h.MessageLength, len(b))
	}
	ts, err := GetWireTimestamp(b[HeaderSize:])
	if err != nil {
		return fmt.Errorf("protocol: parsing origin timestamp: %w", err)
	}

	// Wrap the received datagram in place rather than copying it: buf's
	// length cursor is trimmed to the header's own MessageLength, so any
	// trailing bytes past the message (e.g. UDP datagram padding) are
	// excluded from Data()/Bytes() without reallocating.
	buf := wire.FromBytes(b)
	if err := buf.SetLen(int(h.MessageLength)); err != nil {
		return fmt.Errorf("protocol: trimming buffer to messageLength: %w", err)
	}

	*m = Message{state: stateParsed, header: h, timestamp: ts, buf: buf}

	data := buf.Data()
	pos := HeaderSize + timestampFieldSize
	end := len(data)
	for pos < end && m.nSlots < MaxTLVSlots {
		if end-pos < TLVHeadSize {
			m.Truncated = true
			break
		}
		head := getTLVHead(data[pos:])
		if int(head.LengthField) > end-pos-TLVHeadSize {
			m.Truncated = true
			break
		}
		tlvEnd := pos + TLVHeadSize + int(head.LengthField)

		switch head.TLVType {
		case TLVCSPTPRequest:
			t := &CSPTPRequestTLV{}
			if err := t.unmarshal(data[pos:tlvEnd]); err != nil {
				m.Truncated = true
			} else {
				m.Request = t
				m.nSlots++
			}
		case TLVCSPTPResponse:
			t := &CSPTPResponseTLV{}
			if err := t.unmarshal(data[pos:tlvEnd]); err != nil {
				m.Truncated = true
			} else {
				m.Response = t
				m.nSlots++
			}
		case TLVCSPTPStatus:
			t := &CSPTPStatusTLV{}
			if err := t.unmarshal(data[pos:tlvEnd]); err != nil {
				m.Truncated = true
			} else {
				m.Status = t
				m.nSlots++
			}
		case TLVAlternateTimeOffsetIndicator:
			t := &AlternateTimeOffsetIndicatorTLV{}
			if err := t.unmarshal(data[pos:tlvEnd]); err != nil {
				m.Truncated = true
			} else {
				m.Alt = t
				m.nSlots++
			}
		case TLVPad:
			m.Pad = &PadTLV{TLVHead: head}
			m.nSlots++
		default:
			// Unrecognized TLV: skip it using its own length field, per
			// the usual PTP TLV forward-compatibility rule.
		}
		if m.Truncated {
			break
		}
		pos = tlvEnd
	}
	return nil
}

// Detach returns an independent copy of m that owns its own backing bytes,
// safe to retain after the caller's receive buffer is reused. The detached
// copy is re-parsed from its own buffer so its TLV pointers are independent too.
func (m *Message) Detach() (*Message, error) {
	if m.buf == nil {
		return nil, fmt.Errorf("protocol: cannot detach a message with no backing bytes")
	}
	owned := m.buf.Spawn()
	if m.state == stateParsed {
		detached := &Message{}
		if err := detached.Parse(owned.Data()); err != nil {
			return nil, err
		}
		return detached, nil
	}
	detached := *m
	detached.buf = owned
	return &detached, nil
}

// Copy returns a deep copy of m in its current state, independent of m.
func (m *Message) Copy() *Message {
	c := *m
	if m.buf != nil {
		c.buf = m.buf.Spawn()
	}
	return &c
}
