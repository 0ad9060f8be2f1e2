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

package store

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateFetchRoundTrip(t *testing.T) {
	s := New()
	ip := netip.MustParseAddr("192.0.2.1")
	s.Update(ip, Record{SequenceID: 5, LastSeen: time.Now()})

	got, ok := s.Fetch(ip)
	require.True(t, ok)
	assert.EqualValues(t, 5, got.SequenceID)
}

func TestUpdateOverwritesExisting(t *testing.T) {
	s := New()
	ip := netip.MustParseAddr("192.0.2.1")
	s.Update(ip, Record{SequenceID: 1})
	s.Update(ip, Record{SequenceID: 2})

	got, ok := s.Fetch(ip)
	require.True(t, ok)
	assert.EqualValues(t, 2, got.SequenceID)
	assert.Equal(t, 1, s.Len())
}

func TestFetchMissingReturnsFalse(t *testing.T) {
	s := New()
	_, ok := s.Fetch(netip.MustParseAddr("192.0.2.1"))
	assert.False(t, ok)
}

func TestDeleteRemovesRecord(t *testing.T) {
	s := New()
	ip := netip.MustParseAddr("192.0.2.1")
	s.Update(ip, Record{})
	s.Delete(ip)

	_, ok := s.Fetch(ip)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestManyClientsAcrossBuckets(t *testing.T) {
	s := New()
	for i := 0; i < 200; i++ {
		ip := netip.AddrFrom4([4]byte{192, 0, byte(i / 256), byte(i % 256)})
		s.Update(ip, Record{SequenceID: uint16(i)})
	}
	assert.Equal(t, 200, s.Len())

	ip := netip.AddrFrom4([4]byte{192, 0, 0, 57})
	got, ok := s.Fetch(ip)
	require.True(t, ok)
	assert.EqualValues(t, 57, got.SequenceID)
}

func TestCleanupRemovesStaleEntriesOnly(t *testing.T) {
	s := New()
	fresh := netip.MustParseAddr("192.0.2.1")
	stale := netip.MustParseAddr("192.0.2.2")

	s.Update(fresh, Record{LastSeen: time.Now()})
	s.Update(stale, Record{LastSeen: time.Now().Add(-time.Hour)})

	removed := s.Cleanup(time.Minute)
	assert.Equal(t, 1, removed)

	_, ok := s.Fetch(fresh)
	assert.True(t, ok)
	_, ok = s.Fetch(stale)
	assert.False(t, ok)
}
