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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csptp/csptp/ptptime"
)

func testHeader(msgType MessageType, seq uint16) Header {
	return Header{
		MessageType:        msgType,
		MajorSdoID:         MajorSdoID,
		Version:            Version,
		DomainNumber:       128,
		FlagField0:         byte(FlagUnicast),
		SourcePortIdentity: PortIdentity{},
		SequenceID:         seq,
		ControlField:       ControlFieldSync,
		LogMessageInterval: LogMessageIntervalDefault,
	}
}

// TestHeaderRoundTrip covers scenario S1: a PTP header marshaled then
// unmarshaled reproduces every field exactly.
func TestHeaderRoundTrip(t *testing.T) {
	h := testHeader(MessageSync, 7)
	h.CorrectionField = -42
	h.SourcePortIdentity = PortIdentity{ClockIdentity: 0x1122334455667788, PortNumber: 1}

	b := make([]byte, HeaderSize)
	marshalHeader(&h, b)

	var got Header
	unmarshalHeader(&got, b)
	assert.Equal(t, h, got)
}

// TestClientSyncRequestPad covers scenario S2: a client Sync message with a
// CSPTP_REQUEST TLV, padded to 160 octets.
func TestClientSyncRequestPad(t *testing.T) {
	var m Message
	require.NoError(t, m.Init(testHeader(MessageSync, 1), ptptime.FromScalarNanoseconds(123456789)))
	require.NoError(t, m.AddReqTlv(RequestFlagStatus|RequestFlagAlt))

	buf, err := m.BuildDone(160)
	require.NoError(t, err)
	assert.Len(t, buf, 160)
	assert.Equal(t, uint16(160), m.Header().MessageLength)
	require.NotNil(t, m.Pad)

	var parsed Message
	require.NoError(t, parsed.Parse(buf))
	assert.False(t, parsed.Truncated)
	require.NotNil(t, parsed.Request)
	assert.Equal(t, RequestFlagStatus|RequestFlagAlt, parsed.Request.Flags0)
	require.NotNil(t, parsed.Pad)
	assert.Equal(t, m.timestamp, parsed.Timestamp())
}

// TestServiceResponseAllTLVs covers scenario S3: a service RespSync message
// carrying CSPTP_RESPONSE, CSPTP_STATUS and ALTERNATE_TIME_OFFSET_INDICATOR.
func TestServiceResponseAllTLVs(t *testing.T) {
	var m Message
	require.NoError(t, m.Init(testHeader(MessageSync, 2), ptptime.FromScalarNanoseconds(1_700_000_000_000_000_000)))

	require.NoError(t, m.AddResponseTlv(CSPTPResponseTLV{
		OrganizationID:        [3]byte{0x1c, 0x12, 0x9d},
		ReqIngressSeconds:     [6]byte{0, 0, 0, 0, 0, 5},
		ReqIngressNanoseconds: 500,
		ReqCorrectionField:    10,
	}))
	require.NoError(t, m.AddStatusTlv(CSPTPStatusTLV{
		OrganizationID:   [3]byte{0x1c, 0x12, 0x9d},
		Priority1:        128,
		Priority2:        128,
		ClockQuality:     ClockQuality{ClockClass: 6, ClockAccuracy: 0x20},
		ClockIdentity:    0xaabbccddeeff0011,
		NetworkProtocol:  NetworkProtocolUDPIPv4,
		AddressField:     []byte{10, 0, 0, 1},
	}))
	require.NoError(t, m.AddAltTlv(AlternateTimeOffsetIndicatorTLV{
		KeyField:      0,
		CurrentOffset: -18000,
		JumpSeconds:   3600,
		DisplayName:   "PST",
	}))

	buf, err := m.BuildDone(0)
	require.NoError(t, err)

	var parsed Message
	require.NoError(t, parsed.Parse(buf))
	assert.False(t, parsed.Truncated)

	require.NotNil(t, parsed.Response)
	assert.EqualValues(t, 10, parsed.Response.ReqCorrectionField)

	require.NotNil(t, parsed.Status)
	assert.EqualValues(t, 6, parsed.Status.ClockQuality.ClockClass)
	assert.Equal(t, []byte{10, 0, 0, 1}, parsed.Status.AddressField)

	require.NotNil(t, parsed.Alt)
	assert.Equal(t, "PST", parsed.Alt.DisplayName)
	assert.EqualValues(t, -18000, parsed.Alt.CurrentOffset)
}

func TestNextTlvCapacity(t *testing.T) {
	var m Message
	require.NoError(t, m.Init(testHeader(MessageSync, 1), ptptime.Timestamp{}))
	for i := 0; i < MaxTLVSlots; i++ {
		require.NoError(t, m.AddTlv(make([]byte, TLVHeadSize)))
	}
	_, err := m.NextTlv()
	assert.Error(t, err)
}

func TestBuildDoneRejectsSmallerTarget(t *testing.T) {
	var m Message
	require.NoError(t, m.Init(testHeader(MessageSync, 1), ptptime.Timestamp{}))
	require.NoError(t, m.AddReqTlv(RequestFlagStatus))
	_, err := m.BuildDone(HeaderSize + timestampFieldSize)
	assert.Error(t, err)
}

func TestParseTruncatedTLVStopsLeniently(t *testing.T) {
	var m Message
	require.NoError(t, m.Init(testHeader(MessageSync, 1), ptptime.Timestamp{}))
	require.NoError(t, m.AddReqTlv(RequestFlagStatus))
	buf, err := m.BuildDone(0)
	require.NoError(t, err)

	// Corrupt the TLV's length field to claim more bytes than are present.
	buf[HeaderSize+timestampFieldSize+2] = 0xff
	buf[HeaderSize+timestampFieldSize+3] = 0xff

	var parsed Message
	require.NoError(t, parsed.Parse(buf))
	assert.True(t, parsed.Truncated)
	assert.Nil(t, parsed.Request)
}

func TestDetachIsIndependent(t *testing.T) {
	var m Message
	require.NoError(t, m.Init(testHeader(MessageSync, 1), ptptime.FromScalarNanoseconds(42)))
	require.NoError(t, m.AddReqTlv(RequestFlagStatus))
	buf, err := m.BuildDone(0)
	require.NoError(t, err)

	var parsed Message
	require.NoError(t, parsed.Parse(buf))
	detached, err := parsed.Detach()
	require.NoError(t, err)

	for i := range buf {
		buf[i] = 0
	}
	require.NotNil(t, detached.Request)
	assert.Equal(t, RequestFlagStatus, detached.Request.Flags0)
}
