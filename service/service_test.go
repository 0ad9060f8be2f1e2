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

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csptp/csptp/address"
	"github.com/csptp/csptp/protocol"
	"github.com/csptp/csptp/ptptime"
	"github.com/csptp/csptp/socket"
)

// TestServeAnswersRequestWithStatus covers scenario S3: a client requesting
// STATUS alongside the default response gets both TLVs back.
func TestServeAnswersRequestWithStatus(t *testing.T) {
	local, err := address.StringToBinary("127.0.0.1", 0, 0)
	require.NoError(t, err)

	parentAddr, err := address.StringToBinary("127.0.0.1", 320, 0)
	require.NoError(t, err)

	engine, err := New(local, Config{
		Domain:       128,
		PollInterval: 20 * time.Millisecond,
		Clock: ClockInfo{
			ClockIdentity: 0xaabbccddeeff0011,
			ClockQuality:  protocol.ClockQuality{ClockClass: 6, ClockAccuracy: 0x20},
			Priority1:     128,
			Priority2:     128,
			ParentAddress: parentAddr,
		},
	})
	require.NoError(t, err)
	defer engine.Close()

	servicePort, err := engine.sock.LocalPort()
	require.NoError(t, err)
	serviceAddr, err := address.StringToBinary("127.0.0.1", servicePort, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = engine.Serve(ctx)
	}()
	defer cancel()

	clientLocal, err := address.StringToBinary("127.0.0.1", 0, 0)
	require.NoError(t, err)
	clientSock, err := socket.Bind(clientLocal)
	require.NoError(t, err)
	defer clientSock.Close()

	var req protocol.Message
	header := protocol.Header{
		MessageType:        protocol.MessageSync,
		MajorSdoID:         protocol.MajorSdoID,
		Version:            protocol.Version,
		DomainNumber:       128,
		FlagField0:         byte(protocol.FlagUnicast),
		SequenceID:         9,
		ControlField:       protocol.ControlFieldSync,
		LogMessageInterval: protocol.LogMessageIntervalDefault,
	}
	require.NoError(t, req.Init(header, ptptime.FromTime(time.Now())))
	require.NoError(t, req.AddReqTlv(protocol.RequestFlagStatus))
	buf, err := req.BuildDone(0)
	require.NoError(t, err)
	require.NoError(t, clientSock.Send(buf, serviceAddr))

	ready, err := clientSock.Poll(time.Second)
	require.NoError(t, err)
	require.True(t, ready)

	respBuf := make([]byte, maxMessageSize)
	rcv, err := clientSock.Recv(respBuf)
	require.NoError(t, err)

	var resp protocol.Message
	require.NoError(t, resp.Parse(respBuf[:rcv.N]))
	assert.Equal(t, uint16(9), resp.Header().SequenceID)
	require.NotNil(t, resp.Response)
	require.NotNil(t, resp.Status)
	assert.EqualValues(t, 6, resp.Status.ClockQuality.ClockClass)
}

