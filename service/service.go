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

// Package service implements the CSPTP service engine: a unicast responder
// that timestamps each client's Sync on receipt and answers with a
// CSPTP_RESPONSE (plus optional CSPTP_STATUS/ALTERNATE_TIME_OFFSET_INDICATOR),
// tracking per-client state in a store.Store the way the ptp4u server
// tracks per-client subscriptions.
package service

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/csptp/csptp/address"
	"github.com/csptp/csptp/protocol"
	"github.com/csptp/csptp/ptptime"
	"github.com/csptp/csptp/socket"
	"github.com/csptp/csptp/stats"
	"github.com/csptp/csptp/store"
)

// defaultPollInterval is how long Serve's accept loop waits for a datagram
// before re-checking for context cancellation.
const defaultPollInterval = 3 * time.Second

const maxMessageSize = 256

// ClockInfo describes the grandmaster quality this service reports in
// CSPTP_STATUS, and the timezone it reports in
// ALTERNATE_TIME_OFFSET_INDICATOR.
type ClockInfo struct {
	ClockIdentity    protocol.ClockIdentity
	ClockQuality     protocol.ClockQuality
	Priority1        uint8
	Priority2        uint8
	StepsRemoved     uint16
	CurrentUTCOffset int16
	ParentAddress    address.Address

	AltKeyField      uint8
	AltCurrentOffset int32
	AltJumpSeconds   int32
	AltNextJump      time.Time
	AltDisplayName   string
}

// Config configures a service Engine.
type Config struct {
	Domain       uint8
	TwoStep      bool
	PollInterval time.Duration // 0 means defaultPollInterval
	ClientMaxAge time.Duration // 0 disables store cleanup
	Clock        ClockInfo
	Counters     *stats.Counters // nil disables counting
}

func (c Config) counters() *stats.Counters {
	if c.Counters != nil {
		return c.Counters
	}
	return stats.New()
}

func (c Config) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return defaultPollInterval
}

// Engine answers CSPTP requests arriving on one bound socket.
type Engine struct {
	config   Config
	sock     *socket.Socket
	store    *store.Store
	counters *stats.Counters
}

// New builds an Engine bound to local.
func New(local address.Address, config Config) (*Engine, error) {
	sock, err := socket.Bind(local)
	if err != nil {
		return nil, fmt.Errorf("service: binding local socket: %w", err)
	}
	return &Engine{config: config, sock: sock, store: store.New(), counters: config.counters()}, nil
}

// Close releases the underlying socket.
func (e *Engine) Close() error {
	return e.sock.Close()
}

// Serve runs the accept loop until ctx is canceled: poll, receive, answer,
// repeat. It never returns an error for a single malformed or unanswerable
// datagram; those are logged and skipped so one bad client can't wedge the
// service for every other client.
func (e *Engine) Serve(ctx context.Context) error {
	buf := make([]byte, maxMessageSize)
	var lastCleanup time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if e.config.ClientMaxAge > 0 && time.Since(lastCleanup) > e.config.ClientMaxAge {
			removed := e.store.Cleanup(e.config.ClientMaxAge)
			if removed > 0 {
				log.Debugf("service: cleaned up %d stale client(s)", removed)
			}
			lastCleanup = time.Now()
		}

		ready, err := e.sock.Poll(e.config.pollInterval())
		if err != nil {
			return fmt.Errorf("service: polling: %w", err)
		}
		if !ready {
			continue
		}

		rcv, err := e.sock.Recv(buf)
		if err != nil {
			log.Errorf("service: receiving datagram: %v", err)
			continue
		}

		e.counters.SetClientCount(int64(e.store.Len()))
		if err := e.handle(buf[:rcv.N], rcv.From, rcv.RxTime); err != nil {
			e.counters.IncParseError()
			log.Errorf("service: handling request from %s: %v", rcv.From, err)
		}
	}
}

func (e *Engine) handle(buf []byte, clientAddr address.Address, r1 ptptime.Timestamp) error {
	var req protocol.Message
	if err := req.Parse(buf); err != nil {
		return fmt.Errorf("parsing request: %w", err)
	}
	e.counters.IncRX(req.Header().MessageType)
	if req.Header().MessageType != protocol.MessageSync {
		return fmt.Errorf("ignoring non-Sync message type %s", req.Header().MessageType)
	}
	if req.Request == nil {
		return fmt.Errorf("ignoring Sync with no CSPTP_REQUEST TLV")
	}

	reqCorrection := req.Header().CorrectionField
	reqSeconds, reqNanos, err := r1.ToWire()
	if err != nil {
		return fmt.Errorf("converting ingress timestamp: %w", err)
	}
	var reqIngressSeconds [6]byte
	if err := protocol.Put48(reqIngressSeconds[:], reqSeconds); err != nil {
		return err
	}

	var resp protocol.Message
	header := req.Header()
	header.ControlField = protocol.ControlFieldSync
	t := ptptime.FromTime(time.Now())
	if err := resp.Init(header, t); err != nil {
		return fmt.Errorf("building response: %w", err)
	}
	if err := resp.AddResponseTlv(protocol.CSPTPResponseTLV{
		ReqIngressSeconds:     reqIngressSeconds,
		ReqIngressNanoseconds: reqNanos,
		ReqCorrectionField:    reqCorrection,
	}); err != nil {
		return fmt.Errorf("adding CSPTP_RESPONSE TLV: %w", err)
	}

	if req.Request.Flags0&protocol.RequestFlagStatus != 0 {
		if err := resp.AddStatusTlv(e.statusTLV()); err != nil {
			return fmt.Errorf("adding CSPTP_STATUS TLV: %w", err)
		}
	}
	if req.Request.Flags0&protocol.RequestFlagAlt != 0 {
		if err := resp.AddAltTlv(e.altTLV()); err != nil {
			return fmt.Errorf("adding ALTERNATE_TIME_OFFSET_INDICATOR TLV: %w", err)
		}
	}

	out, err := resp.BuildDone(0)
	if err != nil {
		return fmt.Errorf("finalizing response: %w", err)
	}
	if err := e.sock.Send(out, clientAddr); err != nil {
		return fmt.Errorf("sending response to %s: %w", clientAddr, err)
	}
	e.counters.IncTX(protocol.MessageSync)

	if e.config.TwoStep {
		var fu protocol.Message
		fuHeader := header
		fuHeader.MessageType = protocol.MessageFollowUp
		fuHeader.ControlField = protocol.ControlFieldFollowUp
		if err := fu.Init(fuHeader, t); err != nil {
			return fmt.Errorf("building Follow_Up: %w", err)
		}
		fuBuf, err := fu.BuildDone(0)
		if err != nil {
			return fmt.Errorf("finalizing Follow_Up: %w", err)
		}
		if err := e.sock.Send(fuBuf, clientAddr); err != nil {
			return fmt.Errorf("sending Follow_Up to %s: %w", clientAddr, err)
		}
		e.counters.IncTX(protocol.MessageFollowUp)
	}

	e.store.Update(clientAddr.IP(), store.Record{
		SequenceID: req.Header().SequenceID,
		R1:         r1,
		R2:         t,
		LastSeen:   time.Now(),
	})
	log.Debugf("service: answered seq=%d from %s", req.Header().SequenceID, clientAddr)
	return nil
}

func (e *Engine) statusTLV() protocol.CSPTPStatusTLV {
	c := e.config.Clock
	return protocol.CSPTPStatusTLV{
		Priority1:        c.Priority1,
		ClockQuality:     c.ClockQuality,
		Priority2:        c.Priority2,
		StepsRemoved:     c.StepsRemoved,
		CurrentUTCOffset: c.CurrentUTCOffset,
		ClockIdentity:    c.ClockIdentity,
		NetworkProtocol:  c.ParentAddress.NetworkProtocol(),
		AddressField:     c.ParentAddress.Binary(),
	}
}

func (e *Engine) altTLV() protocol.AlternateTimeOffsetIndicatorTLV {
	c := e.config.Clock
	var timeOfNextJump [6]byte
	if !c.AltNextJump.IsZero() {
		_ = protocol.Put48(timeOfNextJump[:], uint64(c.AltNextJump.Unix()))
	}
	return protocol.AlternateTimeOffsetIndicatorTLV{
		KeyField:       c.AltKeyField,
		CurrentOffset:  c.AltCurrentOffset,
		JumpSeconds:    c.AltJumpSeconds,
		TimeOfNextJump: timeOfNextJump,
		DisplayName:    c.AltDisplayName,
	}
}
