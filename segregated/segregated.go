/*
 * Copyright 2025 OpenHeap Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package segregated implements a size-class segregated free-list
// allocator over a caller-owned byte region. Blocks carry an in-band
// header and are bucketed into blockmath.NClasses first-fit lists;
// there is no physical coalescing of adjacent blocks on free — an
// explicit, accepted fragmentation trade-off.
package segregated

import (
	"errors"
	"unsafe"

	"github.com/openheap/heapalloc/blockmath"
)

// headerSize is sizeof(header).
const headerSize = 16

const nullOffset = -1

var (
	// ErrOutOfMemory is returned when no class from class_index(need)
	// upward has a block large enough.
	ErrOutOfMemory = errors.New("segregated: out of memory")
	// ErrDoubleFree is a fatal contract violation.
	ErrDoubleFree = errors.New("segregated: double free")
	// ErrUnmanagedPointer is a fatal contract violation.
	ErrUnmanagedPointer = errors.New("segregated: pointer not owned by this region")
)

// header is the in-band block header overlaid on the region bytes.
// size is a byte count (including the header itself), always a
// multiple of blockmath.Align.
type header struct {
	size   uint32
	isFree int32
	prev   int32
	next   int32
}

// Counters mirrors the spec's observational statistics for this
// subsystem.
type Counters struct {
	AllocationCount uint64
	FreeCount       uint64
	TotalAllocated  uint64
	TotalFree       uint64
}

// Allocator manages region as a segregated-list heap. Not safe for
// concurrent use.
type Allocator struct {
	region   []byte
	base     unsafe.Pointer
	freeHead [blockmath.NClasses]int32

	counters Counters
}

// New creates a segregated allocator over region, seeding it as one
// giant free block in the class for len(region).
func New(region []byte) (*Allocator, error) {
	if len(region) < headerSize+blockmath.MinBlock {
		return nil, errors.New("segregated: region too small")
	}

	a := &Allocator{
		region: region,
		base:   unsafe.Pointer(&region[0]),
	}
	for i := range a.freeHead {
		a.freeHead[i] = nullOffset
	}

	h := a.headerAt(0)
	h.size = uint32(len(region))
	h.isFree = 1
	h.prev = nullOffset
	h.next = nullOffset

	class := blockmath.ClassIndex(uint64(len(region)))
	a.freeHead[class] = 0
	a.counters.TotalFree = uint64(len(region))

	return a, nil
}

func (a *Allocator) headerAt(offset int32) *header {
	return (*header)(unsafe.Add(a.base, offset))
}

func (a *Allocator) unlink(class int, offset int32) {
	h := a.headerAt(offset)
	if h.prev != nullOffset {
		a.headerAt(h.prev).next = h.next
	} else {
		a.freeHead[class] = h.next
	}
	if h.next != nullOffset {
		a.headerAt(h.next).prev = h.prev
	}
}

func (a *Allocator) pushFront(class int, offset int32) {
	h := a.headerAt(offset)
	h.isFree = 1
	h.prev = nullOffset
	h.next = a.freeHead[class]
	if h.next != nullOffset {
		a.headerAt(h.next).prev = offset
	}
	a.freeHead[class] = offset
}

func classOf(size uint64) int {
	c := blockmath.ClassIndex(size)
	if c >= blockmath.NClasses {
		return blockmath.NClasses - 1
	}
	return c
}

// Alloc allocates a block able to hold size bytes of payload. It walks
// classes class_index(need)..NClasses-1, taking the first free block
// in each class whose size is large enough (first-fit).
func (a *Allocator) Alloc(size uint64) ([]byte, error) {
	need := blockmath.AlignUp(size + headerSize)
	startClass := blockmath.ClassIndex(need)

	for class := startClass; class < blockmath.NClasses; class++ {
		offset := a.freeHead[class]
		for offset != nullOffset {
			h := a.headerAt(offset)
			next := h.next
			if uint64(h.size) >= need {
				a.unlink(class, offset)
				a.allocateBlock(offset, h, need)
				data := unsafe.Add(a.base, int(offset)+headerSize)
				payloadCap := uint64(h.size) - headerSize
				return unsafe.Slice((*byte)(data), payloadCap)[:size], nil
			}
			offset = next
		}
	}
	return nil, ErrOutOfMemory
}

// allocateBlock finishes allocating the block at offset (already
// unlinked from its free list), splitting off a free tail when the
// remainder is large enough to stand on its own.
func (a *Allocator) allocateBlock(offset int32, h *header, need uint64) {
	size := uint64(h.size)
	if size >= need+headerSize+blockmath.MinBlock {
		tailOffset := offset + int32(need)
		tailSize := size - need
		tail := a.headerAt(tailOffset)
		tail.size = uint32(tailSize)
		a.pushFront(classOf(tailSize), tailOffset)

		h.size = uint32(need)
	}

	h.isFree = 0
	h.prev = nullOffset
	h.next = nullOffset

	a.counters.AllocationCount++
	a.counters.TotalAllocated += uint64(h.size)
	a.counters.TotalFree -= uint64(h.size)
}

// Free releases block, which must be a slice previously returned by
// Alloc on this allocator.
func (a *Allocator) Free(block []byte) error {
	if cap(block) == 0 {
		return nil
	}
	dataPtr := *(*uintptr)(unsafe.Pointer(&block))
	offset := int64(dataPtr-uintptr(a.base)) - headerSize
	if offset < 0 || offset >= int64(len(a.region)) {
		return ErrUnmanagedPointer
	}

	h := a.headerAt(int32(offset))
	if h.isFree != 0 {
		return ErrDoubleFree
	}

	size := uint64(h.size)
	a.counters.FreeCount++
	a.counters.TotalAllocated -= size
	a.counters.TotalFree += size

	a.pushFront(classOf(size), int32(offset))
	return nil
}

// PayloadCapacity returns the usable payload capacity of the block
// that owns ptr.
func (a *Allocator) PayloadCapacity(ptr []byte) uint64 {
	dataPtr := *(*uintptr)(unsafe.Pointer(&ptr))
	offset := int64(dataPtr-uintptr(a.base)) - headerSize
	h := a.headerAt(int32(offset))
	return uint64(h.size) - headerSize
}

// Owns reports whether ptr's backing pointer lies within this
// allocator's region.
func (a *Allocator) Owns(ptr []byte) bool {
	if cap(ptr) == 0 {
		return false
	}
	dataPtr := *(*uintptr)(unsafe.Pointer(&ptr))
	if dataPtr < uintptr(a.base) {
		return false
	}
	offset := dataPtr - uintptr(a.base)
	return offset < uintptr(len(a.region))
}

// Stats returns a snapshot of this subsystem's counters.
func (a *Allocator) Stats() Counters {
	return a.counters
}

// FreeListCounts returns, for each class, the number of free blocks
// currently on that class's list.
func (a *Allocator) FreeListCounts() [blockmath.NClasses]int {
	var counts [blockmath.NClasses]int
	for class := 0; class < blockmath.NClasses; class++ {
		n := 0
		for off := a.freeHead[class]; off != nullOffset; {
			n++
			off = a.headerAt(off).next
		}
		counts[class] = n
	}
	return counts
}

// RegionSize returns the total size of the managed region.
func (a *Allocator) RegionSize() uint64 {
	return uint64(len(a.region))
}
