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

// Package blockmath holds the pure size arithmetic shared by the buddy
// and segregated allocators: alignment, buddy order, and size-class
// index. None of it touches memory or state.
package blockmath

import "math/bits"

const (
	// MinBlock is the smallest addressable block, in bytes, and the
	// buddy system's order-0 block size.
	MinBlock = 16

	// MaxOrder is the exclusive upper bound on buddy order. Order k
	// maps to a block of MinBlock * 2^k bytes.
	MaxOrder = 20

	// NClasses is the number of segregated-list size classes. Class i
	// has nominal size MinBlock * 2^i.
	NClasses = 12

	// Align is the alignment, in bytes, that both subsystems apply to
	// every block size (request plus header).
	Align = 8

	minBlockShift = 4 // log2(MinBlock)
)

// AlignUp rounds n up to a multiple of Align. Callers guarantee n will
// not overflow.
func AlignUp(n uint64) uint64 {
	return (n + Align - 1) &^ (Align - 1)
}

// Order returns the smallest k in [0, MaxOrder) such that
// MinBlock*2^k >= n, saturating at MaxOrder-1 for larger requests.
// Callers that need to distinguish "saturated" from "fits exactly"
// (to reject truly oversized requests) compare n against
// MinBlock<<(MaxOrder-1) themselves; Order never reports failure.
func Order(n uint64) int {
	if n <= MinBlock {
		return 0
	}
	// Smallest k with MinBlock<<k >= n  <=>  k >= log2(ceil(n/MinBlock)).
	k := bits.Len64(n-1) - minBlockShift
	if k < 0 {
		k = 0
	}
	if k >= MaxOrder {
		return MaxOrder - 1
	}
	return k
}

// ClassIndex returns the smallest i in [0, NClasses) such that
// n <= MinBlock*2^i, saturating at NClasses-1 for larger sizes.
func ClassIndex(n uint64) int {
	if n <= MinBlock {
		return 0
	}
	i := bits.Len64((n - 1) >> minBlockShift)
	if i >= NClasses {
		return NClasses - 1
	}
	return i
}

// BlockSize returns the total block size, including header, for buddy
// order k.
func BlockSize(k int) uint64 {
	return MinBlock << uint(k)
}

// ClassSize returns the nominal block size of segregated class i.
func ClassSize(i int) uint64 {
	return MinBlock << uint(i)
}
