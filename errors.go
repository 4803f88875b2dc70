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

import "errors"

var (
	// ErrSizeTooLarge is returned when the buddy subsystem can't fit a
	// request, plus its header, in any order below MaxOrder.
	ErrSizeTooLarge = errors.New("heapalloc: requested size too large")

	// ErrOutOfMemory is returned when no subsystem Malloc tries has
	// room: buddy alone for requests above BigThreshold, or segregated
	// and then buddy for smaller ones.
	ErrOutOfMemory = errors.New("heapalloc: out of memory")

	// ErrInitFailed is returned by Init when the backing region could
	// not be reserved, or when the configured sizes violate the
	// invariants in Option's doc comments.
	ErrInitFailed = errors.New("heapalloc: init failed")

	// ErrNotInitialized is returned by operations called before Init
	// or after Cleanup.
	ErrNotInitialized = errors.New("heapalloc: allocator not initialized")
)

// fatal reports a contract violation by the caller — double free or an
// unmanaged pointer — that the spec requires terminating on rather
// than returning. It is a var so tests can intercept it instead of
// exiting the test binary.
var fatal = func(format string, args ...interface{}) {
	logFatalf(format, args...)
}
