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

package heapalloc

import (
	"fmt"
	"io"
	"log"
	"unsafe"

	"github.com/bytedance/gopkg/lang/dirtmake"

	"github.com/openheap/heapalloc/blockmath"
	"github.com/openheap/heapalloc/buddy"
	"github.com/openheap/heapalloc/segregated"
)

// Allocator owns one backing region, split into a buddy half (large
// requests) and a segregated half (small requests), and dispatches
// Malloc/Free/Realloc between them. It is not safe for concurrent use.
type Allocator struct {
	region       []byte
	regionBase   uintptr
	segBase      uintptr
	regionEnd    uintptr
	bigThreshold uint64

	buddy      *buddy.Allocator
	segregated *segregated.Allocator
}

// New reserves a backing region and seeds both subsystems over its two
// halves. opts are merged onto sensible defaults (see Option); the
// last non-zero-valued field in each Option wins.
//
// New fails with ErrInitFailed if HeapBytes is not a power of two, if
// either half isn't big enough to seed its subsystem, or if
// BigThreshold doesn't sit strictly below the segregated allocator's
// largest class size.
func New(opts ...Option) (*Allocator, error) {
	o := applyOptions(opts)

	if o.HeapBytes < 2*buddyHeaderSize || o.HeapBytes&(o.HeapBytes-1) != 0 {
		return nil, fmt.Errorf("%w: HeapBytes must be a power of two", ErrInitFailed)
	}
	if o.BigThreshold >= blockmath.ClassSize(blockmath.NClasses-1) {
		return nil, fmt.Errorf("%w: BigThreshold must be below the largest segregated class size", ErrInitFailed)
	}
	half := o.HeapBytes / 2

	region := dirtmake.Bytes(int(o.HeapBytes), int(o.HeapBytes))

	buddyHeap, err := buddy.New(region[:half])
	if err != nil {
		return nil, fmt.Errorf("%w: buddy region: %v", ErrInitFailed, err)
	}
	segHeap, err := segregated.New(region[half:])
	if err != nil {
		return nil, fmt.Errorf("%w: segregated region: %v", ErrInitFailed, err)
	}

	a := &Allocator{
		region:       region,
		regionBase:   uintptr(unsafe.Pointer(&region[0])),
		segBase:      uintptr(unsafe.Pointer(&region[half])),
		regionEnd:    uintptr(unsafe.Pointer(&region[0])) + uintptr(len(region)),
		bigThreshold: o.BigThreshold,
		buddy:        buddyHeap,
		segregated:   segHeap,
	}

	if o.Verbose {
		log.Printf("heapalloc: initialized heap=%d buddy=%d segregated=%d", o.HeapBytes, half, half)
	}

	return a, nil
}

// Malloc allocates size bytes, returning nil for size == 0. Requests
// above BigThreshold go straight to the buddy subsystem; smaller
// requests try the segregated subsystem first and fall back to buddy
// on ErrOutOfMemory. A small request served by buddy still lands in
// the buddy region, so its eventual Free dispatches correctly — this
// wastes space but is the spec's documented, intentional behavior.
func (a *Allocator) Malloc(size uint64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}

	if size > a.bigThreshold {
		block, err := a.buddy.Alloc(size)
		if err != nil {
			return nil, translateBuddyErr(err)
		}
		return block, nil
	}

	block, err := a.segregated.Alloc(size)
	if err == nil {
		return block, nil
	}
	if err != segregated.ErrOutOfMemory {
		return nil, err
	}

	block, err = a.buddy.Alloc(size)
	if err != nil {
		return nil, translateBuddyErr(err)
	}
	return block, nil
}

// Free releases ptr. A nil or zero-capacity ptr is a no-op. Free determines
// ownership by comparing ptr's backing address against the region
// boundary; an address outside both halves is a fatal contract
// violation (UnmanagedPointer), as is double-freeing a live block.
func (a *Allocator) Free(ptr []byte) error {
	if cap(ptr) == 0 {
		return nil
	}

	addr := *(*uintptr)(unsafe.Pointer(&ptr))
	switch {
	case addr >= a.regionBase && addr < a.segBase:
		if err := a.buddy.Free(ptr); err != nil {
			fatal("%v", err)
			return err
		}
		return nil
	case addr >= a.segBase && addr < a.regionEnd:
		if err := a.segregated.Free(ptr); err != nil {
			fatal("%v", err)
			return err
		}
		return nil
	default:
		fatal("attempt to free unmanaged pointer")
		return fmt.Errorf("heapalloc: unmanaged pointer")
	}
}

// Realloc resizes ptr to newSize. ptr == nil behaves like Malloc;
// newSize == 0 behaves like Free and returns nil. Otherwise Realloc
// always allocates a fresh block, copies min(old payload, newSize)
// bytes, and frees the old block — only after the new allocation
// succeeds, so a failed Realloc leaves ptr valid and returns nil, per
// the spec's no-op-on-failure guarantee.
func (a *Allocator) Realloc(ptr []byte, newSize uint64) ([]byte, error) {
	if cap(ptr) == 0 {
		return a.Malloc(newSize)
	}
	if newSize == 0 {
		return nil, a.Free(ptr)
	}

	oldCap := a.payloadCapacity(ptr)
	newPtr, err := a.Malloc(newSize)
	if err != nil {
		return nil, nil
	}

	n := oldCap
	if newSize < n {
		n = newSize
	}
	copy(newPtr, ptr[:n])

	if err := a.Free(ptr); err != nil {
		return newPtr, err
	}
	return newPtr, nil
}

// payloadCapacity returns the usable payload capacity of the block
// that owns ptr, recovered from whichever subsystem's header governs
// it — never the size originally requested from Malloc.
func (a *Allocator) payloadCapacity(ptr []byte) uint64 {
	addr := *(*uintptr)(unsafe.Pointer(&ptr))
	if addr < a.segBase {
		return a.buddy.PayloadCapacity(ptr)
	}
	return a.segregated.PayloadCapacity(ptr)
}

// Cleanup releases the backing region. The Allocator is unusable
// afterward; a fresh New is required to allocate again.
func (a *Allocator) Cleanup() {
	a.region = nil
	a.buddy = nil
	a.segregated = nil
}

func translateBuddyErr(err error) error {
	switch err {
	case buddy.ErrTooLarge:
		return ErrSizeTooLarge
	case buddy.ErrOutOfMemory:
		return ErrOutOfMemory
	default:
		return err
	}
}

// --- package-level singleton, mirroring concurrency/gopool's
// defaultGoPool + package-level Go()/CtxGo() wrappers. ---

var defaultAllocator *Allocator

// Init creates the process-wide default allocator. It must precede
// any call to Malloc, Free, Realloc, StatsPrint, or Cleanup.
func Init(opts ...Option) error {
	a, err := New(opts...)
	if err != nil {
		return err
	}
	defaultAllocator = a
	return nil
}

// Malloc allocates from the process-wide default allocator.
func Malloc(size uint64) ([]byte, error) {
	if defaultAllocator == nil {
		return nil, ErrNotInitialized
	}
	return defaultAllocator.Malloc(size)
}

// Free releases ptr back to the process-wide default allocator.
func Free(ptr []byte) error {
	if defaultAllocator == nil {
		return ErrNotInitialized
	}
	return defaultAllocator.Free(ptr)
}

// Realloc resizes ptr via the process-wide default allocator.
func Realloc(ptr []byte, newSize uint64) ([]byte, error) {
	if defaultAllocator == nil {
		return nil, ErrNotInitialized
	}
	return defaultAllocator.Realloc(ptr, newSize)
}

// StatsPrint writes the process-wide default allocator's statistics to w.
func StatsPrint(w io.Writer) {
	if defaultAllocator == nil {
		return
	}
	defaultAllocator.StatsPrint(w)
}

// Cleanup releases the process-wide default allocator's backing region.
func Cleanup() {
	if defaultAllocator != nil {
		defaultAllocator.Cleanup()
		defaultAllocator = nil
	}
}
