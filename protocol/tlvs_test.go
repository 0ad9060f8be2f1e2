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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSPTPRequestTLVRoundTrip(t *testing.T) {
	orig := CSPTPRequestTLV{Flags0: RequestFlagStatus}
	b := make([]byte, TLVHeadSize+csptpRequestBodySize)
	orig.marshalTo(b)

	var got CSPTPRequestTLV
	require.NoError(t, got.unmarshal(b))
	assert.Equal(t, RequestFlagStatus, got.Flags0)
	assert.Equal(t, TLVCSPTPRequest, got.TLVType)
}

func TestCSPTPStatusTLVRejectsAddressLengthMismatch(t *testing.T) {
	status := CSPTPStatusTLV{
		NetworkProtocol: NetworkProtocolUDPIPv4,
		AddressField:    []byte{1, 2, 3, 4, 5}, // 5 bytes, IPv4 wants 4
	}
	b := make([]byte, TLVHeadSize+status.bodySize())
	err := status.marshalTo(b)
	assert.Error(t, err)
}

func TestCSPTPStatusTLVRoundTripIPv6(t *testing.T) {
	addr := make([]byte, 16)
	for i := range addr {
		addr[i] = byte(i)
	}
	orig := CSPTPStatusTLV{
		Priority1:        10,
		Priority2:        20,
		ClockQuality:     ClockQuality{ClockClass: 6, ClockAccuracy: 0x21, OffsetScaledLogVariance: 0xffff},
		StepsRemoved:     3,
		CurrentUTCOffset: 37,
		ClockIdentity:    0x0102030405060708,
		NetworkProtocol:  NetworkProtocolUDPIPv6,
		AddressField:     addr,
	}
	b := make([]byte, TLVHeadSize+orig.bodySize())
	require.NoError(t, orig.marshalTo(b))

	var got CSPTPStatusTLV
	require.NoError(t, got.unmarshal(b))
	assert.Equal(t, orig.Priority1, got.Priority1)
	assert.Equal(t, orig.ClockQuality, got.ClockQuality)
	assert.Equal(t, orig.ClockIdentity, got.ClockIdentity)
	assert.Equal(t, addr, got.AddressField)
}

func TestPTPTextRoundTripOddLength(t *testing.T) {
	encoded, err := ptpTextMarshal("PST")
	require.NoError(t, err)
	assert.Equal(t, 5, len(encoded)) // length octet + 3 text octets + 1 pad octet for the odd text length

	s, consumed, err := ptpTextUnmarshal(encoded)
	require.NoError(t, err)
	assert.Equal(t, "PST", s)
	assert.Equal(t, len(encoded), consumed)
}

func TestAlternateTimeOffsetIndicatorRejectsLongName(t *testing.T) {
	alt := AlternateTimeOffsetIndicatorTLV{DisplayName: strings.Repeat("x", MaxDisplayNameLength+1)}
	b := make([]byte, 64)
	_, err := alt.marshalTo(b)
	assert.Error(t, err)
}

func TestAlternateTimeOffsetIndicatorRoundTrip(t *testing.T) {
	orig := AlternateTimeOffsetIndicatorTLV{
		KeyField:       1,
		CurrentOffset:  -18000,
		JumpSeconds:    3600,
		TimeOfNextJump: [6]byte{0, 0, 0, 0, 0, 9},
		DisplayName:    "PDT",
	}
	size, err := orig.bodySize()
	require.NoError(t, err)
	b := make([]byte, TLVHeadSize+size)
	n, err := orig.marshalTo(b)
	require.NoError(t, err)
	assert.Equal(t, TLVHeadSize+size, n)

	var got AlternateTimeOffsetIndicatorTLV
	require.NoError(t, got.unmarshal(b))
	assert.Equal(t, orig.CurrentOffset, got.CurrentOffset)
	assert.Equal(t, orig.DisplayName, got.DisplayName)
}

func TestTLVTypeString(t *testing.T) {
	assert.Equal(t, "CSPTP_REQUEST", TLVCSPTPRequest.String())
	assert.Contains(t, TLVType(0x1234).String(), "UNKNOWN")
}
