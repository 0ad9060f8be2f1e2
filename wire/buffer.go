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

// Package wire implements Buffer, a sized mutable octet region with a
// data-length cursor, used by the protocol package to build and parse PTP
// messages in place.
package wire

import "fmt"

// Buffer is a fixed-capacity byte region plus a cursor tracking how many of
// those bytes currently hold meaningful data. 0 <= Len() <= Size().
type Buffer struct {
	storage []byte
	length  int
}

// Alloc allocates a new Buffer of the given size. Refuses size 0.
func Alloc(size int) (*Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("wire: cannot allocate a zero-size buffer")
	}
	return &Buffer{storage: make([]byte, size)}, nil
}

// FromBytes wraps an existing slice as a Buffer whose length equals its capacity.
func FromBytes(b []byte) *Buffer {
	return &Buffer{storage: b, length: len(b)}
}

// Bytes returns the full storage region (size, not length).
func (b *Buffer) Bytes() []byte {
	return b.storage
}

// Data returns the storage bytes up to the current length.
func (b *Buffer) Data() []byte {
	return b.storage[:b.length]
}

// Size returns the total capacity of the buffer.
func (b *Buffer) Size() int {
	return len(b.storage)
}

// Len returns the current data length.
func (b *Buffer) Len() int {
	return b.length
}

// SetLen sets the data length cursor. Refuses n > Size().
func (b *Buffer) SetLen(n int) error {
	if n > len(b.storage) {
		return fmt.Errorf("wire: cannot set length %d beyond buffer size %d", n, len(b.storage))
	}
	if n < 0 {
		return fmt.Errorf("wire: cannot set negative length %d", n)
	}
	b.length = n
	return nil
}

// Resize grows the buffer to newSize, preserving existing contents. Refuses
// to shrink: newSize < Size() is an error, and newSize == Size() is a no-op.
func (b *Buffer) Resize(newSize int) error {
	if newSize < len(b.storage) {
		return fmt.Errorf("wire: refusing to shrink buffer from %d to %d", len(b.storage), newSize)
	}
	if newSize == len(b.storage) {
		return nil
	}
	grown := make([]byte, newSize)
	copy(grown, b.storage)
	b.storage = grown
	return nil
}

// Spawn returns a same-size, same-content copy of b with the same length cursor.
func (b *Buffer) Spawn() *Buffer {
	storage := make([]byte, len(b.storage))
	copy(storage, b.storage)
	return &Buffer{storage: storage, length: b.length}
}
