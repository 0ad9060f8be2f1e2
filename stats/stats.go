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

// Package stats implements counter collection and reporting for the
// client and service engines: named counters updated atomically as
// messages are sent and received, reported as a JSON map over HTTP and,
// optionally, exported as Prometheus gauges.
package stats

import (
	"fmt"
	"strings"
	"sync"

	"github.com/csptp/csptp/protocol"
)

// message direction/kind counter name prefixes.
const (
	RXPrefix = "rx."
	TXPrefix = "tx."
)

// syncMapInt64 is a mutex-guarded map of string counters, incremented and
// snapshotted far more often than it's enumerated.
type syncMapInt64 struct {
	mu sync.Mutex
	m  map[string]int64
}

func newSyncMapInt64() *syncMapInt64 {
	return &syncMapInt64{m: make(map[string]int64)}
}

func (s *syncMapInt64) inc(key string) {
	s.add(key, 1)
}

func (s *syncMapInt64) add(key string, delta int64) {
	s.mu.Lock()
	s.m[key] += delta
	s.mu.Unlock()
}

func (s *syncMapInt64) set(key string, value int64) {
	s.mu.Lock()
	s.m[key] = value
	s.mu.Unlock()
}

func (s *syncMapInt64) snapshot() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}

func (s *syncMapInt64) reset() {
	s.mu.Lock()
	for k := range s.m {
		s.m[k] = 0
	}
	s.mu.Unlock()
}

// Counters holds every counter and gauge a client or service engine
// reports: packets by type and direction, parse errors, and the latest
// offset/round-trip gauges.
type Counters struct {
	counts *syncMapInt64
	gauges *syncMapInt64
}

// New returns an empty, ready-to-use Counters.
func New() *Counters {
	return &Counters{counts: newSyncMapInt64(), gauges: newSyncMapInt64()}
}

// IncRX records receipt of a message of type t.
func (c *Counters) IncRX(t protocol.MessageType) {
	c.counts.inc(RXPrefix + strings.ToLower(t.String()))
}

// IncTX records transmission of a message of type t.
func (c *Counters) IncTX(t protocol.MessageType) {
	c.counts.inc(TXPrefix + strings.ToLower(t.String()))
}

// IncParseError records a datagram that failed to parse or validate.
func (c *Counters) IncParseError() {
	c.counts.inc("errors.parse")
}

// IncTimeout records a request cycle that got no response within its
// poll budget.
func (c *Counters) IncTimeout() {
	c.counts.inc("errors.timeout")
}

// SetOffsetNanoseconds records the most recent computed offset.
func (c *Counters) SetOffsetNanoseconds(ns int64) {
	c.gauges.set("offset_ns", ns)
}

// SetRoundTripNanoseconds records the most recent computed round trip.
func (c *Counters) SetRoundTripNanoseconds(ns int64) {
	c.gauges.set("round_trip_ns", ns)
}

// SetClientCount records the current number of tracked clients, for a
// service engine reporting its store size.
func (c *Counters) SetClientCount(n int64) {
	c.gauges.set("clients", n)
}

// Reset zeros every counter and gauge.
func (c *Counters) Reset() {
	c.counts.reset()
	c.gauges.reset()
}

// Snapshot returns every counter and gauge as a flat map, suitable for
// JSON serialization or Prometheus scraping.
func (c *Counters) Snapshot() map[string]int64 {
	out := c.counts.snapshot()
	for k, v := range c.gauges.snapshot() {
		out[k] = v
	}
	return out
}

// String renders a human-readable summary, handy for debug logging.
func (c *Counters) String() string {
	snap := c.Snapshot()
	var b strings.Builder
	for k, v := range snap {
		fmt.Fprintf(&b, "%s=%d ", k, v)
	}
	return strings.TrimSpace(b.String())
}
