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

// Package ptptime implements the CSPTP Timestamp value type: a 48-bit-wire
// seconds/nanoseconds pair together with the scaled clock-discipline
// conversions the client and service engines need (scalar nanoseconds,
// millisecond bumps, OS timespec interop).
package ptptime

import (
	"fmt"
	"time"
)

const nanosPerSecond = int64(1_000_000_000)

// MaxSeconds48 is the largest value representable in the 48-bit wire seconds field.
const MaxSeconds48 = (1 << 48) - 1

// Timestamp is a point in time expressed as signed seconds plus nanoseconds.
// When it represents an actual point in time (as opposed to a duration),
// 0 <= Nanoseconds < 1e9 holds.
type Timestamp struct {
	Seconds     int64
	Nanoseconds int32
}

// Timespec mirrors an OS timespec without depending on a particular platform package.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// New builds a Timestamp, validating 0 <= nsec < 1e9.
func New(sec int64, nsec int32) (Timestamp, error) {
	if nsec < 0 || int64(nsec) >= nanosPerSecond {
		return Timestamp{}, fmt.Errorf("ptptime: nanoseconds %d out of range [0, %d)", nsec, nanosPerSecond)
	}
	return Timestamp{Seconds: sec, Nanoseconds: nsec}, nil
}

// FromTimespec builds a Timestamp from an OS timespec, validating the nanosecond range.
func FromTimespec(ts Timespec) (Timestamp, error) {
	if ts.Nsec < 0 || ts.Nsec >= nanosPerSecond {
		return Timestamp{}, fmt.Errorf("ptptime: timespec nanoseconds %d out of range [0, %d)", ts.Nsec, nanosPerSecond)
	}
	return Timestamp{Seconds: ts.Sec, Nanoseconds: int32(ts.Nsec)}, nil
}

// Timespec converts the Timestamp back to an OS timespec.
func (t Timestamp) Timespec() Timespec {
	return Timespec{Sec: t.Seconds, Nsec: int64(t.Nanoseconds)}
}

// FromTime builds a Timestamp from a time.Time.
func FromTime(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanoseconds: int32(t.Nanosecond())}
}

// Time converts the Timestamp to a time.Time (UTC, as PTP carries no location).
func (t Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanoseconds)).UTC()
}

// FromWire builds a Timestamp from the wire's unsigned 48-bit seconds field and
// 32-bit nanoseconds field. Fails if the wire nanoseconds are out of range.
func FromWire(secondsField uint64, nanosecondsField uint32) (Timestamp, error) {
	if int64(nanosecondsField) >= nanosPerSecond {
		return Timestamp{}, fmt.Errorf("ptptime: wire nanoseconds %d out of range [0, %d)", nanosecondsField, nanosPerSecond)
	}
	if secondsField > MaxSeconds48 {
		return Timestamp{}, fmt.Errorf("ptptime: wire seconds %d exceeds 48-bit range", secondsField)
	}
	return Timestamp{Seconds: int64(secondsField), Nanoseconds: int32(nanosecondsField)}, nil
}

// ToWire converts the Timestamp to the wire's unsigned 48-bit seconds field and
// 32-bit nanoseconds field. Fails when seconds is negative, exceeds the 48-bit
// range, or nanoseconds is out of range.
func (t Timestamp) ToWire() (secondsField uint64, nanosecondsField uint32, err error) {
	if t.Seconds < 0 {
		return 0, 0, fmt.Errorf("ptptime: negative seconds %d cannot be represented on the wire", t.Seconds)
	}
	if t.Seconds > MaxSeconds48 {
		return 0, 0, fmt.Errorf("ptptime: seconds %d exceeds 48-bit wire range", t.Seconds)
	}
	if t.Nanoseconds < 0 || int64(t.Nanoseconds) >= nanosPerSecond {
		return 0, 0, fmt.Errorf("ptptime: nanoseconds %d out of range [0, %d)", t.Nanoseconds, nanosPerSecond)
	}
	return uint64(t.Seconds), uint32(t.Nanoseconds), nil
}

// normalizeScalar implements lldiv semantics: the remainder is always
// non-negative, even for negative scalar nanosecond counts.
func normalizeScalar(ns int64) (secs int64, nsec int32) {
	secs = ns / nanosPerSecond
	rem := ns % nanosPerSecond
	if rem < 0 {
		rem += nanosPerSecond
		secs--
	}
	return secs, int32(rem)
}

// FromScalarNanoseconds builds a Timestamp from a signed whole-nanoseconds
// scalar, normalizing so the resulting Nanoseconds is non-negative.
func FromScalarNanoseconds(ns int64) Timestamp {
	secs, nsec := normalizeScalar(ns)
	return Timestamp{Seconds: secs, Nanoseconds: nsec}
}

// Scalar returns the signed whole-nanoseconds scalar seconds*1e9 + nanoseconds.
func (t Timestamp) Scalar() int64 {
	return t.Seconds*nanosPerSecond + int64(t.Nanoseconds)
}

// AddMilliseconds returns t shifted by n milliseconds (n may be negative),
// renormalized to a non-negative nanosecond remainder.
func (t Timestamp) AddMilliseconds(n int64) Timestamp {
	return FromScalarNanoseconds(t.Scalar() + n*1_000_000)
}

// Equal reports whether t and o represent the same instant.
func (t Timestamp) Equal(o Timestamp) bool {
	return t.Seconds == o.Seconds && t.Nanoseconds == o.Nanoseconds
}

// Less reports whether t sorts before o, lexicographically on (seconds, nanoseconds).
func (t Timestamp) Less(o Timestamp) bool {
	if t.Seconds != o.Seconds {
		return t.Seconds < o.Seconds
	}
	return t.Nanoseconds < o.Nanoseconds
}

// LessEqual reports whether t sorts before or equal to o.
func (t Timestamp) LessEqual(o Timestamp) bool {
	return t.Less(o) || t.Equal(o)
}

// Sub returns t - o as a signed time.Duration.
func (t Timestamp) Sub(o Timestamp) time.Duration {
	return time.Duration(t.Scalar() - o.Scalar())
}

// IsZero reports whether the Timestamp is the zero value.
func (t Timestamp) IsZero() bool {
	return t.Seconds == 0 && t.Nanoseconds == 0
}

func (t Timestamp) String() string {
	return fmt.Sprintf("Timestamp(%ds%dns)", t.Seconds, t.Nanoseconds)
}

// Sleep blocks the calling goroutine for d. A zero or negative duration is a
// no-op, mirroring the "secs > 0" guard of the original sleep() primitive;
// callers that want the signal-interruption log line wrap this themselves
// since that's a concern of the engine loop, not of the timestamp type.
func Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	time.Sleep(d)
}
