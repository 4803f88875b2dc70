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

// Package buddy implements a buddy-system allocator over a caller-owned
// byte region. Every block, free or allocated, carries an in-band
// 16-byte header overlaid on the region itself; free blocks of the
// same order are linked through that header into a doubly linked list.
package buddy

import (
	"errors"
	"unsafe"

	"github.com/openheap/heapalloc/blockmath"
)

// headerSize is sizeof(header), and equals blockmath.MinBlock: an
// order-0 block is exactly one header with no payload.
const headerSize = 16

const nullOffset = -1

var (
	// ErrTooLarge is returned when the request, plus header, exceeds
	// what any order below MaxOrder can hold.
	ErrTooLarge = errors.New("buddy: requested size too large")
	// ErrOutOfMemory is returned when every order from the requested
	// one up has an empty free list.
	ErrOutOfMemory = errors.New("buddy: out of memory")
	// ErrDoubleFree is a fatal contract violation: freeing a block
	// that is already marked free.
	ErrDoubleFree = errors.New("buddy: double free")
	// ErrUnmanagedPointer is a fatal contract violation: the slice
	// passed to Free does not point into this allocator's region.
	ErrUnmanagedPointer = errors.New("buddy: pointer not owned by this region")
	// ErrRegionNotPowerOfTwo is returned by New when the region size
	// is not a power-of-two multiple of blockmath.MinBlock.
	ErrRegionNotPowerOfTwo = errors.New("buddy: region size must be a power of two")
)

// header is the in-band block header. It is overlaid directly on the
// region bytes via unsafe.Pointer, so its layout (four int32 fields,
// 16 bytes) must not change.
type header struct {
	order  int32
	isFree int32
	prev   int32 // offset of previous free block in this order's list, or nullOffset
	next   int32 // offset of next free block in this order's list, or nullOffset
}

// Counters mirrors the spec's observational statistics for this
// subsystem.
type Counters struct {
	AllocationCount    uint64
	FreeCount          uint64
	TotalAllocated     uint64
	TotalFree          uint64
	FragmentationCount uint64
}

// Allocator manages region as a buddy-system heap. It is not safe for
// concurrent use; callers serialize their own access.
type Allocator struct {
	region   []byte
	base     unsafe.Pointer
	order    int // order of the whole region (order_of_region)
	freeHead [blockmath.MaxOrder]int32

	counters Counters
}

// New creates a buddy allocator over region. region's length must be
// a power-of-two multiple of blockmath.MinBlock; New fails fast
// otherwise rather than leaving an unreachable tail dark.
func New(region []byte) (*Allocator, error) {
	n := len(region)
	if n < blockmath.MinBlock || n&(n-1) != 0 {
		return nil, ErrRegionNotPowerOfTwo
	}

	a := &Allocator{
		region: region,
		base:   unsafe.Pointer(&region[0]),
	}
	for i := range a.freeHead {
		a.freeHead[i] = nullOffset
	}

	order := blockmath.Order(uint64(n))
	if blockmath.BlockSize(order) != uint64(n) {
		return nil, ErrRegionNotPowerOfTwo
	}
	a.order = order

	seed := a.headerAt(0)
	seed.order = int32(order)
	seed.isFree = 1
	seed.prev = nullOffset
	seed.next = nullOffset
	a.freeHead[order] = 0
	a.counters.TotalFree = uint64(n)

	return a, nil
}

func (a *Allocator) headerAt(offset int32) *header {
	return (*header)(unsafe.Add(a.base, offset))
}

func (a *Allocator) unlink(order int32, offset int32) {
	h := a.headerAt(offset)
	if h.prev != nullOffset {
		a.headerAt(h.prev).next = h.next
	} else {
		a.freeHead[order] = h.next
	}
	if h.next != nullOffset {
		a.headerAt(h.next).prev = h.prev
	}
}

func (a *Allocator) pushFront(order int32, offset int32) {
	h := a.headerAt(offset)
	h.order = order
	h.isFree = 1
	h.prev = nullOffset
	h.next = a.freeHead[order]
	if h.next != nullOffset {
		a.headerAt(h.next).prev = offset
	}
	a.freeHead[order] = offset
}

// Alloc allocates a block able to hold size bytes of payload, returning
// a slice over the region whose length is size and whose capacity is
// the full payload capacity of the block actually used.
func (a *Allocator) Alloc(size uint64) ([]byte, error) {
	need := blockmath.AlignUp(size + headerSize)
	if need > blockmath.MinBlock<<uint(blockmath.MaxOrder-1) {
		return nil, ErrTooLarge
	}
	k := blockmath.Order(need)

	found := -1
	for i := k; i < blockmath.MaxOrder; i++ {
		if a.freeHead[i] != nullOffset {
			found = i
			break
		}
	}
	if found == -1 {
		a.counters.FragmentationCount++
		return nil, ErrOutOfMemory
	}

	offset := a.freeHead[found]
	a.unlink(int32(found), offset)

	for cur := found; cur > k; cur-- {
		blockSize := int32(blockmath.BlockSize(cur - 1))
		buddyOffset := offset + blockSize
		a.pushFront(int32(cur-1), buddyOffset)
	}

	h := a.headerAt(offset)
	h.order = int32(k)
	h.isFree = 0
	h.prev = nullOffset
	h.next = nullOffset

	blockSize := blockmath.BlockSize(k)
	a.counters.AllocationCount++
	a.counters.TotalAllocated += blockSize
	a.counters.TotalFree -= blockSize

	payloadCap := blockSize - headerSize
	data := unsafe.Add(a.base, int(offset)+headerSize)
	return unsafe.Slice((*byte)(data), payloadCap)[:size], nil
}

// Free releases block, which must be a slice previously returned by
// Alloc on this allocator (not a re-sliced sub-view — the original
// header is recovered from the slice's backing pointer).
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

	order := h.order
	blockSize := blockmath.BlockSize(int(order))
	h.isFree = 1
	a.counters.FreeCount++
	a.counters.TotalAllocated -= blockSize
	a.counters.TotalFree += blockSize

	cur := int32(offset)
	for int(order) < blockmath.MaxOrder-1 {
		buddyOffset := cur ^ int32(blockmath.BlockSize(int(order)))
		if buddyOffset < 0 || int(buddyOffset) >= len(a.region) {
			break
		}
		buddy := a.headerAt(buddyOffset)
		if buddy.isFree == 0 || buddy.order != order {
			break
		}
		a.unlink(order, buddyOffset)
		if buddyOffset < cur {
			cur = buddyOffset
		}
		order++
	}

	a.pushFront(order, cur)
	return nil
}

// PayloadCapacity returns the usable payload capacity of the block
// that owns ptr; Realloc uses it to bound how many bytes it copies.
func (a *Allocator) PayloadCapacity(ptr []byte) uint64 {
	dataPtr := *(*uintptr)(unsafe.Pointer(&ptr))
	offset := int64(dataPtr-uintptr(a.base)) - headerSize
	h := a.headerAt(int32(offset))
	return blockmath.BlockSize(int(h.order)) - headerSize
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

// FreeListCounts returns, for each order, the number of free blocks
// currently on that order's list — the reporter's per-order view.
func (a *Allocator) FreeListCounts() [blockmath.MaxOrder]int {
	var counts [blockmath.MaxOrder]int
	for order := 0; order < blockmath.MaxOrder; order++ {
		n := 0
		for off := a.freeHead[order]; off != nullOffset; {
			n++
			off = a.headerAt(off).next
		}
		counts[order] = n
	}
	return counts
}

// RegionSize returns the total size of the managed region.
func (a *Allocator) RegionSize() uint64 {
	return uint64(len(a.region))
}
