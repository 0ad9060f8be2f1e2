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

package address

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csptp/csptp/protocol"
)

func TestStringToBinaryLiteralIPv4(t *testing.T) {
	a, err := StringToBinary("192.0.2.1", 320, 0)
	require.NoError(t, err)
	assert.Equal(t, FamilyUDPv4, a.Family())
	assert.Equal(t, protocol.NetworkProtocolUDPIPv4, a.NetworkProtocol())
	assert.Equal(t, []byte{192, 0, 2, 1}, a.Binary())
	assert.Equal(t, "192.0.2.1:320", a.String())
}

func TestStringToBinaryLiteralIPv6(t *testing.T) {
	a, err := StringToBinary("2001:db8::1", 320, 0)
	require.NoError(t, err)
	assert.Equal(t, FamilyUDPv6, a.Family())
	assert.Len(t, a.Binary(), 16)
}

func TestStringToBinaryRefusesAnyAddress(t *testing.T) {
	_, err := StringToBinary("0.0.0.0", 320, 0)
	assert.Error(t, err)

	_, err = StringToBinary("::", 320, 0)
	assert.Error(t, err)
}

func TestAddressEqual(t *testing.T) {
	a, err := StringToBinary("192.0.2.1", 320, 0)
	require.NoError(t, err)
	b, err := StringToBinary("192.0.2.1", 320, 0)
	require.NoError(t, err)
	c, err := StringToBinary("192.0.2.2", 320, 0)
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestNewUDPv4RejectsIPv6(t *testing.T) {
	ip, err := netip.ParseAddr("2001:db8::1")
	require.NoError(t, err)
	_, err = NewUDPv4(ip, 320)
	assert.Error(t, err)
}
