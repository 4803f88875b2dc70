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

package buddy

import (
	"fmt"
	"testing"
	"unsafe"

	"github.com/openheap/heapalloc/blockmath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T, size int) *Allocator {
	t.Helper()
	a, err := New(make([]byte, size))
	require.NoError(t, err)
	return a
}

func TestNewRejectsNonPowerOfTwo(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"pow2_512k", 512 * 1024, false},
		{"pow2_16", 16, false},
		{"not_pow2", 768 * 1024, true},
		{"too_small", 8, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(make([]byte, tt.size))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAllocFree(t *testing.T) {
	a := newTestAllocator(t, 512*1024)

	b1, err := a.Alloc(1024)
	require.NoError(t, err)
	assert.Equal(t, 1024, len(b1))

	for i := range b1 {
		b1[i] = byte(i)
	}

	b2, err := a.Alloc(8192)
	require.NoError(t, err)
	assert.NotEqual(t, blockPtr(b1), blockPtr(b2)) // distinct backing storage

	require.NoError(t, a.Free(b1))
	b3, err := a.Alloc(512)
	require.NoError(t, err)
	require.NotNil(t, b3)
}

func TestAllocSizes(t *testing.T) {
	a := newTestAllocator(t, 1024*1024)

	sizes := []uint64{1, 100, 1024, 4096, 8192, 16384, 32768}
	blocks := make([][]byte, 0, len(sizes))
	for _, sz := range sizes {
		b, err := a.Alloc(sz)
		require.NoError(t, err, "size=%d", sz)
		assert.EqualValues(t, sz, len(b))
		blocks = append(blocks, b)
	}
	for _, b := range blocks {
		require.NoError(t, a.Free(b))
	}
}

func TestAllocTooLarge(t *testing.T) {
	a := newTestAllocator(t, 512*1024)
	// MinBlock<<(MaxOrder-1) = 16<<19 = 8 MiB: above that, no order can
	// ever hold the request regardless of region size.
	_, err := a.Alloc(9 * 1024 * 1024)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestAllocLargerThanRegionIsOutOfMemory(t *testing.T) {
	a := newTestAllocator(t, 512*1024)
	// 1 MiB fits under the MaxOrder ceiling but not in a 512 KiB region:
	// the order exists, its free list is just empty.
	_, err := a.Alloc(1024 * 1024)
	assert.ErrorIs(t, err, ErrOutOfMemory)
}

func TestAllocExhaustion(t *testing.T) {
	a := newTestAllocator(t, 512*1024)

	var blocks [][]byte
	for {
		b, err := a.Alloc(1024)
		if err != nil {
			assert.ErrorIs(t, err, ErrOutOfMemory)
			break
		}
		blocks = append(blocks, b)
	}
	assert.NotEmpty(t, blocks)

	for _, b := range blocks {
		require.NoError(t, a.Free(b))
	}

	large, err := a.Alloc(256 * 1024)
	require.NoError(t, err)
	assert.EqualValues(t, 256*1024, len(large))
}

// TestCoalesceRestoresSignature allocates a block sized to force a
// buddy split across the whole region and checks that freeing it
// restores the free-list signature to what New produced.
func TestCoalesceRestoresSignature(t *testing.T) {
	a := newTestAllocator(t, 512*1024)
	before := a.FreeListCounts()

	b, err := a.Alloc(5000)
	require.NoError(t, err)
	require.NoError(t, a.Free(b))

	after := a.FreeListCounts()
	assert.Equal(t, before, after)
}

func TestDoubleFree(t *testing.T) {
	a := newTestAllocator(t, 512*1024)
	b, err := a.Alloc(64)
	require.NoError(t, err)
	require.NoError(t, a.Free(b))
	assert.ErrorIs(t, a.Free(b), ErrDoubleFree)
}

func TestNoBuddiesOfSameOrderAreBuddies(t *testing.T) {
	a := newTestAllocator(t, 1024*1024)

	var blocks [][]byte
	for i := 0; i < 4; i++ {
		b, err := a.Alloc(1024)
		require.NoError(t, err)
		blocks = append(blocks, b)
	}
	// free two of four (0 and 2): each one's buddy is still live, so
	// neither can merge
	require.NoError(t, a.Free(blocks[0]))
	require.NoError(t, a.Free(blocks[2]))

	counts := a.FreeListCounts()
	total := 0
	for _, c := range counts {
		total += c
	}
	assert.Greater(t, total, 0)

	for order := 0; order < blockmath.MaxOrder; order++ {
		free := map[int32]bool{}
		for off := a.freeHead[order]; off != nullOffset; off = a.headerAt(off).next {
			free[off] = true
		}
		size := int32(blockmath.BlockSize(order))
		for off := range free {
			assert.False(t, free[off^size], "order %d: free blocks %d and %d are buddies", order, off, off^size)
		}
	}
}

func TestReuseAfterFreeHeadInsertion(t *testing.T) {
	a := newTestAllocator(t, 512*1024)

	aBlk, err := a.Alloc(64)
	require.NoError(t, err)
	bBlk, err := a.Alloc(64)
	require.NoError(t, err)
	_, err = a.Alloc(64)
	require.NoError(t, err)

	require.NoError(t, a.Free(bBlk))
	dBlk, err := a.Alloc(64)
	require.NoError(t, err)

	assert.Equal(t, blockPtr(bBlk), blockPtr(dBlk))

	_ = aBlk
}

func blockPtr(b []byte) uintptr {
	return *(*uintptr)(unsafe.Pointer(&b))
}

func TestStatsRoundTrip(t *testing.T) {
	a := newTestAllocator(t, 512*1024)
	total := a.RegionSize()

	b, err := a.Alloc(1024)
	require.NoError(t, err)
	require.NoError(t, a.Free(b))

	stats := a.Stats()
	assert.Equal(t, total, stats.TotalFree)
	assert.Zero(t, stats.TotalAllocated)
	assert.EqualValues(t, 1, stats.AllocationCount)
	assert.EqualValues(t, 1, stats.FreeCount)
}

func BenchmarkAlloc(b *testing.B) {
	sizes := []uint64{64, 1024, 8192, 65536}
	for _, sz := range sizes {
		sz := sz
		b.Run(fmt.Sprintf("Size_%d", sz), func(b *testing.B) {
			a, err := New(make([]byte, 1024*1024))
			require.NoError(b, err)

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				blk, err := a.Alloc(sz)
				if err != nil {
					b.Fatalf("alloc failed: %v", err)
				}
				if err := a.Free(blk); err != nil {
					b.Fatalf("free failed: %v", err)
				}
			}
		})
	}
}
