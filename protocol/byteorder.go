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
	"encoding/binary"
	"fmt"

	"github.com/csptp/csptp/ptptime"
)

// Max48 is the largest value that fits in a network-order 48-bit field.
const Max48 = (1 << 48) - 1

// Get48 reads a 48-bit unsigned value from p, network order (high 16 bits first).
func Get48(p []byte) uint64 {
	high := binary.BigEndian.Uint16(p)
	low := binary.BigEndian.Uint32(p[2:])
	return uint64(low) | (uint64(high) << 32)
}

// Put48 writes a 48-bit unsigned value to p, network order. Fails if v > Max48.
func Put48(p []byte, v uint64) error {
	if v > Max48 {
		return fmt.Errorf("protocol: value %d does not fit in 48 bits", v)
	}
	binary.BigEndian.PutUint16(p, uint16(v>>32))
	binary.BigEndian.PutUint32(p[2:], uint32(v))
	return nil
}

// WireTimestamp is the on-wire 48-bit-seconds/32-bit-nanoseconds pair shared
// by originTimestamp, preciseOriginTimestamp and every TLV timestamp field.
type WireTimestamp struct {
	SecondsField     [6]byte
	NanosecondsField uint32
}

const wireTimestampSize = 10

// PutWireTimestamp converts t to its wire representation and writes it to b (10 bytes).
func PutWireTimestamp(b []byte, t ptptime.Timestamp) error {
	secs, nsec, err := t.ToWire()
	if err != nil {
		return fmt.Errorf("protocol: converting timestamp to wire: %w", err)
	}
	if err := Put48(b, secs); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b[6:], nsec)
	return nil
}

// GetWireTimestamp parses a 10-byte wire timestamp into a ptptime.Timestamp.
func GetWireTimestamp(b []byte) (ptptime.Timestamp, error) {
	secs := Get48(b)
	nsec := binary.BigEndian.Uint32(b[6:])
	return ptptime.FromWire(secs, nsec)
}
