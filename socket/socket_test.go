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

package socket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csptp/csptp/address"
)

// TestSendRecvLoopback exchanges a single datagram over loopback, covering
// bind/send/poll/recv together the way a real client<->service exchange would.
func TestSendRecvLoopback(t *testing.T) {
	serverAddr, err := address.StringToBinary("127.0.0.1", 0, 0)
	require.NoError(t, err)
	server, err := Bind(serverAddr)
	require.NoError(t, err)
	defer server.Close()

	boundPort, err := server.LocalPort()
	require.NoError(t, err)
	serverAddr, err = address.StringToBinary("127.0.0.1", boundPort, 0)
	require.NoError(t, err)

	clientAddr, err := address.StringToBinary("127.0.0.1", 0, 0)
	require.NoError(t, err)
	client, err := Bind(clientAddr)
	require.NoError(t, err)
	defer client.Close()

	payload := []byte("csptp-test-datagram")
	require.NoError(t, client.Send(payload, serverAddr))

	ready, err := server.Poll(time.Second)
	require.NoError(t, err)
	require.True(t, ready)

	buf := make([]byte, 256)
	rcv, err := server.Recv(buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf[:rcv.N])
	assert.False(t, rcv.RxTime.IsZero())
}

func TestPollTimesOutWithNoData(t *testing.T) {
	a, err := address.StringToBinary("127.0.0.1", 0, 0)
	require.NoError(t, err)
	s, err := Bind(a)
	require.NoError(t, err)
	defer s.Close()

	ready, err := s.Poll(50 * time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ready)
}
