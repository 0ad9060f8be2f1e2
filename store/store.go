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

// Package store implements the service engine's per-client timestamp
// store: a record of the most recent Sync exchange for each client IP,
// fanned out across hashed buckets the way the ptp4u server worker fans
// subscription clients out across per-message-type maps, but keyed by
// address instead of PortIdentity since CSPTP unicast clients are
// identified by IP, not by sequence or domain.
package store

import (
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/csptp/csptp/ptptime"
)

// Record is what the store keeps for a single client: the timestamps of its
// most recent request, used for diagnostic listings and to age the entry
// out once the client goes quiet.
type Record struct {
	SequenceID uint16
	R1         ptptime.Timestamp // service RX timestamp of the client's Sync
	R2         ptptime.Timestamp // service TX timestamp of the response
	LastSeen   time.Time
}

type node struct {
	ip     netip.Addr
	record Record
}

// bucketBits is the number of low bits of an IP's hash used to select a
// bucket; the store fans out across 2^bucketBits independent lists so a
// single mutex never serializes every client.
const bucketBits = 6

type bucket struct {
	mu    sync.Mutex
	nodes []node // kept sorted by ip.Compare for early-exit lookups
}

// Store is the per-client timestamp store. The zero value is not usable;
// construct one with New.
type Store struct {
	buckets [1 << bucketBits]*bucket
}

// New builds an empty Store.
func New() *Store {
	s := &Store{}
	for i := range s.buckets {
		s.buckets[i] = &bucket{}
	}
	return s
}

func bucketIndex(ip netip.Addr) int {
	b := ip.As16()
	var h uint32
	for _, c := range b {
		h = h*31 + uint32(c)
	}
	return int(h & (1<<bucketBits - 1))
}

func (s *Store) bucketFor(ip netip.Addr) *bucket {
	return s.buckets[bucketIndex(ip)]
}

// search finds ip's position in a sorted node slice: (index, found).
// Because the slice is kept in ip.Compare order, a miss still returns the
// correct insertion point so Update can splice in a new node in one pass.
func search(nodes []node, ip netip.Addr) (int, bool) {
	i := sort.Search(len(nodes), func(i int) bool {
		return nodes[i].ip.Compare(ip) >= 0
	})
	if i < len(nodes) && nodes[i].ip.Compare(ip) == 0 {
		return i, true
	}
	return i, false
}

// Update records rec as the latest state for ip, replacing any prior record.
func (s *Store) Update(ip netip.Addr, rec Record) {
	b := s.bucketFor(ip)
	b.mu.Lock()
	defer b.mu.Unlock()

	i, found := search(b.nodes, ip)
	if found {
		b.nodes[i].record = rec
		return
	}
	b.nodes = append(b.nodes, node{})
	copy(b.nodes[i+1:], b.nodes[i:])
	b.nodes[i] = node{ip: ip, record: rec}
}

// Fetch returns ip's most recent record, if any.
func (s *Store) Fetch(ip netip.Addr) (Record, bool) {
	b := s.bucketFor(ip)
	b.mu.Lock()
	defer b.mu.Unlock()

	i, found := search(b.nodes, ip)
	if !found {
		return Record{}, false
	}
	return b.nodes[i].record, true
}

// Delete removes ip's record, if any.
func (s *Store) Delete(ip netip.Addr) {
	b := s.bucketFor(ip)
	b.mu.Lock()
	defer b.mu.Unlock()

	i, found := search(b.nodes, ip)
	if !found {
		return
	}
	b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)
}

// Entry pairs a client IP with its stored record, for read-only
// enumeration of the whole store (e.g. diagnostic listings).
type Entry struct {
	IP     netip.Addr
	Record Record
}

// Snapshot returns every tracked client and its record in no particular
// order. It's for diagnostics, not the hot path: it copies out of every
// bucket while holding that bucket's lock just long enough to copy.
func (s *Store) Snapshot() []Entry {
	var out []Entry
	for _, b := range s.buckets {
		b.mu.Lock()
		for _, n := range b.nodes {
			out = append(out, Entry{IP: n.ip, Record: n.record})
		}
		b.mu.Unlock()
	}
	return out
}

// Len returns the total number of tracked clients across all buckets.
func (s *Store) Len() int {
	n := 0
	for _, b := range s.buckets {
		b.mu.Lock()
		n += len(b.nodes)
		b.mu.Unlock()
	}
	return n
}

// Cleanup removes every record whose LastSeen is older than maxAge. It
// checks one node at a time and drops the bucket's mutex between checks, so
// a long cleanup pass never blocks Update/Fetch calls against that bucket
// for longer than a single comparison.
func (s *Store) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, b := range s.buckets {
		removed += cleanupBucket(b, cutoff)
	}
	return removed
}

func cleanupBucket(b *bucket, cutoff time.Time) int {
	removed := 0
	i := 0
	for {
		b.mu.Lock()
		if i >= len(b.nodes) {
			b.mu.Unlock()
			return removed
		}
		stale := b.nodes[i].record.LastSeen.Before(cutoff)
		if stale {
			b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)
			removed++
			b.mu.Unlock()
			continue // re-check the same index: the next node slid into it
		}
		i++
		b.mu.Unlock()
	}
}
