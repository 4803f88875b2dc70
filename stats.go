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

	"github.com/openheap/heapalloc/blockmath"
)

// Stats is a snapshot of the allocator's observational counters,
// aggregated from both subsystems. TotalAllocated+TotalFree always
// equals the heap size, and AllocationCount-FreeCount equals the number
// of live blocks; other exact values are not contractual.
type Stats struct {
	AllocationCount    uint64
	FreeCount          uint64
	TotalAllocated     uint64
	TotalFree          uint64
	FragmentationCount uint64
}

// Stats returns a snapshot of the allocator's aggregate counters.
func (a *Allocator) Stats() Stats {
	bc := a.buddy.Stats()
	sc := a.segregated.Stats()
	return Stats{
		AllocationCount:    bc.AllocationCount + sc.AllocationCount,
		FreeCount:          bc.FreeCount + sc.FreeCount,
		TotalAllocated:     bc.TotalAllocated + sc.TotalAllocated,
		TotalFree:          bc.TotalFree + sc.TotalFree,
		FragmentationCount: bc.FragmentationCount,
	}
}

// StatsPrint writes a human-readable summary of the allocator's state
// to w: aggregate counters, then per-order buddy free-list counts and
// per-class segregated free-list counts, each only where nonzero.
func (a *Allocator) StatsPrint(w io.Writer) {
	s := a.Stats()
	fmt.Fprintln(w, "=== heapalloc statistics ===")
	fmt.Fprintf(w, "allocations: %d\n", s.AllocationCount)
	fmt.Fprintf(w, "frees: %d\n", s.FreeCount)
	fmt.Fprintf(w, "allocated: %d bytes\n", s.TotalAllocated)
	fmt.Fprintf(w, "free: %d bytes\n", s.TotalFree)
	fmt.Fprintf(w, "fragmentation events: %d\n", s.FragmentationCount)

	fmt.Fprintln(w, "\nbuddy free lists:")
	for order, count := range a.buddy.FreeListCounts() {
		if count == 0 {
			continue
		}
		blockSize := blockmath.BlockSize(order)
		fmt.Fprintf(w, "  order %d (block %d bytes): %d free\n", order, blockSize, count)
	}

	fmt.Fprintln(w, "\nsegregated free lists:")
	for class, count := range a.segregated.FreeListCounts() {
		if count == 0 {
			continue
		}
		fmt.Fprintf(w, "  class %d (nominal %d bytes): %d free\n", class, blockmath.ClassSize(class), count)
	}
}
