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

// Package client implements the CSPTP client engine: one request/response
// cycle against a service, repeated on a steady cadence, producing an
// offset measurement each time.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/csptp/csptp/address"
	"github.com/csptp/csptp/protocol"
	"github.com/csptp/csptp/ptptime"
	"github.com/csptp/csptp/socket"
	"github.com/csptp/csptp/stats"
)

// defaultWaitLoop/defaultPollInterval bound how long RunOnce waits for a
// response: up to defaultWaitLoop polls, defaultPollInterval apart.
const (
	defaultWaitLoop      = 50
	defaultPollInterval  = 50 * time.Millisecond
	maxMessageSize       = 256
)

// Config configures a client Engine.
type Config struct {
	Server        address.Address
	ClockIdentity protocol.ClockIdentity
	Domain        uint8
	TwoStep       bool
	RequestStatus bool
	RequestAlt    bool
	WaitLoop      int           // 0 means defaultWaitLoop
	PollInterval  time.Duration // 0 means defaultPollInterval
	Counters      *stats.Counters // nil disables counting
}

func (c Config) counters() *stats.Counters {
	if c.Counters != nil {
		return c.Counters
	}
	return stats.New()
}

func (c Config) waitLoop() int {
	if c.WaitLoop > 0 {
		return c.WaitLoop
	}
	return defaultWaitLoop
}

func (c Config) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return defaultPollInterval
}

// Result is the outcome of one RunOnce exchange.
type Result struct {
	SequenceID uint16
	Offset     time.Duration
	RoundTrip  time.Duration
	Status     *protocol.CSPTPStatusTLV
	Alt        *protocol.AlternateTimeOffsetIndicatorTLV
}

// Engine runs repeated CSPTP exchanges against one service over one bound
// socket, advancing its own sequence ID between requests the way the sptp
// client advances its packet sequence counter between cycles.
type Engine struct {
	config   Config
	sock     *socket.Socket
	seq      uint16
	counters *stats.Counters
}

// New builds an Engine bound to local and talking to config.Server.
func New(local address.Address, config Config) (*Engine, error) {
	sock, err := socket.Bind(local)
	if err != nil {
		return nil, fmt.Errorf("client: binding local socket: %w", err)
	}
	return &Engine{config: config, sock: sock, seq: 1, counters: config.counters()}, nil
}

// Close releases the underlying socket.
func (e *Engine) Close() error {
	return e.sock.Close()
}

func (e *Engine) nextSequence() uint16 {
	seq := e.seq
	if e.seq == 0xffff {
		e.seq = 1
	} else {
		e.seq++
	}
	return seq
}

func (e *Engine) logSent(format string, v ...interface{}) {
	log.Debugf(color.GreenString("[client -> %s] "+format, append([]interface{}{e.config.Server}, v...)...))
}

func (e *Engine) logReceived(format string, v ...interface{}) {
	log.Debugf(color.BlueString("[%s -> client] "+format, append([]interface{}{e.config.Server}, v...)...))
}

// RunOnce performs one request/response cycle: sends a Sync carrying a
// CSPTP_REQUEST (optionally followed by a Follow_Up in two-step mode),
// waits for the matching response, and reports the measured offset.
func (e *Engine) RunOnce(ctx context.Context) (*Result, error) {
	seq := e.nextSequence()

	flags := protocol.RequestFlags(0)
	if e.config.RequestStatus {
		flags |= protocol.RequestFlagStatus
	}
	if e.config.RequestAlt {
		flags |= protocol.RequestFlagAlt
	}

	flagBits := protocol.FlagUnicast
	if e.config.TwoStep {
		flagBits |= protocol.FlagTwoStep
	}
	flagField0, flagField1 := protocol.SplitFlags(flagBits)

	var req protocol.Message
	header := protocol.Header{
		MessageType:        protocol.MessageSync,
		MajorSdoID:         protocol.MajorSdoID,
		Version:            protocol.Version,
		DomainNumber:       e.config.Domain,
		FlagField0:         flagField0,
		FlagField1:         flagField1,
		SourcePortIdentity: protocol.PortIdentity{},
		SequenceID:         seq,
		ControlField:       protocol.ControlFieldSync,
		LogMessageInterval: protocol.LogMessageIntervalDefault,
	}

	t1 := ptptime.FromTime(time.Now())
	if err := req.Init(header, t1); err != nil {
		return nil, fmt.Errorf("client: building request: %w", err)
	}
	if err := req.AddReqTlv(flags); err != nil {
		return nil, fmt.Errorf("client: adding CSPTP_REQUEST TLV: %w", err)
	}
	buf, err := req.BuildDone(0)
	if err != nil {
		return nil, fmt.Errorf("client: finalizing request: %w", err)
	}

	// T1 is captured just before the send so it reflects the actual wire time as closely as a software timestamp can.
	t1 = ptptime.FromTime(time.Now())
	if err := e.sock.Send(buf, e.config.Server); err != nil {
		return nil, fmt.Errorf("client: sending Sync: %w", err)
	}
	e.counters.IncTX(protocol.MessageSync)
	e.logSent("seq=%d Sync sent, T1=%s", seq, t1)

	if e.config.TwoStep {
		if err := e.sendFollowUp(header, t1); err != nil {
			return nil, err
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	var result *Result
	eg.Go(func() error {
		r, err := e.waitForResponse(egCtx, seq, t1)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) sendFollowUp(syncHeader protocol.Header, preciseOrigin ptptime.Timestamp) error {
	var fu protocol.Message
	h := syncHeader
	h.MessageType = protocol.MessageFollowUp
	h.ControlField = protocol.ControlFieldFollowUp
	if err := fu.Init(h, preciseOrigin); err != nil {
		return fmt.Errorf("client: building Follow_Up: %w", err)
	}
	buf, err := fu.BuildDone(0)
	if err != nil {
		return fmt.Errorf("client: finalizing Follow_Up: %w", err)
	}
	if err := e.sock.Send(buf, e.config.Server); err != nil {
		return fmt.Errorf("client: sending Follow_Up: %w", err)
	}
	e.counters.IncTX(protocol.MessageFollowUp)
	e.logSent("seq=%d Follow_Up sent", h.SequenceID)
	return nil
}

// waitForResponse polls the socket up to config.waitLoop() times,
// config.pollInterval() apart, until it sees a response matching seq.
func (e *Engine) waitForResponse(ctx context.Context, seq uint16, t1 ptptime.Timestamp) (*Result, error) {
	buf := make([]byte, maxMessageSize)
	for i := 0; i < e.config.waitLoop(); i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		ready, err := e.sock.Poll(e.config.pollInterval())
		if err != nil {
			return nil, fmt.Errorf("client: polling for response: %w", err)
		}
		if !ready {
			continue
		}

		rcv, err := e.sock.Recv(buf)
		if err != nil {
			return nil, fmt.Errorf("client: receiving response: %w", err)
		}
		t2 := rcv.RxTime

		var resp protocol.Message
		if err := resp.Parse(buf[:rcv.N]); err != nil {
			e.counters.IncParseError()
			log.Debugf("client: discarding malformed datagram: %v", err)
			continue
		}
		e.counters.IncRX(resp.Header().MessageType)
		if resp.Header().SequenceID != seq {
			log.Debugf("client: discarding response for seq=%d, want %d", resp.Header().SequenceID, seq)
			continue
		}
		if resp.Response == nil {
			log.Debugf("client: discarding response with no CSPTP_RESPONSE TLV")
			continue
		}

		r1, err := ptptime.FromWire(protocol.Get48(resp.Response.ReqIngressSeconds[:]), resp.Response.ReqIngressNanoseconds)
		if err != nil {
			return nil, fmt.Errorf("client: decoding request ingress timestamp: %w", err)
		}
		r2 := resp.Timestamp()

		offset, roundTrip := computeOffset(t1, r1, r2, t2)
		e.counters.SetOffsetNanoseconds(offset.Nanoseconds())
		e.counters.SetRoundTripNanoseconds(roundTrip.Nanoseconds())
		e.logReceived("seq=%d offset=%s round-trip=%s", seq, offset, roundTrip)

		return &Result{
			SequenceID: seq,
			Offset:     offset,
			RoundTrip:  roundTrip,
			Status:     resp.Status,
			Alt:        resp.Alt,
		}, nil
	}
	e.counters.IncTimeout()
	return nil, fmt.Errorf("client: no response for seq=%d after %d polls", seq, e.config.waitLoop())
}

// computeOffset derives the clock offset and round-trip delay from the four
// CSPTP timestamps: T1 (client send), R1 (service receive), R2 (service
// send), T2 (client receive). This assumes symmetric path delay.
func computeOffset(t1, r1, r2, t2 ptptime.Timestamp) (offset, roundTrip time.Duration) {
	roundTrip = t2.Sub(t1) - r2.Sub(r1)
	offset = (r1.Sub(t1) - t2.Sub(r2)) / 2
	return offset, roundTrip
}

// Run repeats RunOnce every cycle until ctx is canceled, calling report with
// each result (or error).
func (e *Engine) Run(ctx context.Context, cycle time.Duration, report func(*Result, error)) {
	ticker := time.NewTicker(cycle)
	defer ticker.Stop()
	for {
		result, err := e.RunOnce(ctx)
		report(result, err)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
