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

package client

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

// TestRunOnceAgainstStubService exercises RunOnce end to end over loopback
// against a goroutine standing in for a real service engine.
func TestRunOnceAgainstStubService(t *testing.T) {
	serviceLocal, err := address.StringToBinary("127.0.0.1", 0, 0)
	require.NoError(t, err)
	serviceSock, err := socket.Bind(serviceLocal)
	require.NoError(t, err)
	defer serviceSock.Close()
	servicePort, err := serviceSock.LocalPort()
	require.NoError(t, err)
	serviceAddr, err := address.StringToBinary("127.0.0.1", servicePort, 0)
	require.NoError(t, err)

	clientLocal, err := address.StringToBinary("127.0.0.1", 0, 0)
	require.NoError(t, err)

	engine, err := New(clientLocal, Config{
		Server:       serviceAddr,
		Domain:       128,
		WaitLoop:     20,
		PollInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	defer engine.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, maxMessageSize)
		ready, err := serviceSock.Poll(time.Second)
		if err != nil || !ready {
			return
		}
		rcv, err := serviceSock.Recv(buf)
		if err != nil {
			return
		}
		r1 := rcv.RxTime

		var req protocol.Message
		if err := req.Parse(buf[:rcv.N]); err != nil {
			return
		}

		var resp protocol.Message
		h := req.Header()
		if err := resp.Init(h, ptptime.FromTime(time.Now())); err != nil {
			return
		}
		var seconds [6]byte
		secsField, nsField, err := r1.ToWire()
		if err != nil {
			return
		}
		if err := protocol.Put48(seconds[:], secsField); err != nil {
			return
		}
		if err := resp.AddResponseTlv(protocol.CSPTPResponseTLV{
			ReqIngressSeconds:     seconds,
			ReqIngressNanoseconds: nsField,
		}); err != nil {
			return
		}
		out, err := resp.BuildDone(0)
		if err != nil {
			return
		}

		_ = serviceSock.Send(out, rcv.From)
	}()

	result, err := engine.RunOnce(context.Background())
	<-done
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.EqualValues(t, 1, result.SequenceID)
}

func TestSequenceWrapsAtMax(t *testing.T) {
	e := &Engine{seq: 0xffff}
	got := e.nextSequence()
	assert.EqualValues(t, 0xffff, got)
	assert.EqualValues(t, 1, e.seq)
}

func TestComputeOffsetSymmetricDelay(t *testing.T) {
	t1 := ptptime.FromScalarNanoseconds(1_000_000_000)
	r1 := ptptime.FromScalarNanoseconds(1_000_010_000) // +10us path delay
	r2 := ptptime.FromScalarNanoseconds(1_000_010_500) // +500ns processing
	t2 := ptptime.FromScalarNanoseconds(1_000_020_500) // +10us path delay back

	offset, roundTrip := computeOffset(t1, r1, r2, t2)
	assert.InDelta(t, 0, offset.Nanoseconds(), 1)
	assert.EqualValues(t, 19500, roundTrip.Nanoseconds())
}
