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

// Option configures Init. Every field is a compile-time constant in
// the spec this package implements; they are exposed here as runtime
// knobs instead, the way concurrency/gopool.Option exposes its pool
// tunables.
type Option struct {
	// HeapBytes is the total size of the backing region. Must be a
	// power of two >= 2 * blockmath.MinBlock, so both halves are
	// themselves powers of two. Defaults to 1 MiB.
	HeapBytes uint64

	// BigThreshold is the size above which Malloc goes straight to the
	// buddy subsystem. Defaults to 4096 - buddy header size (4080).
	// Must be < the segregated allocator's largest class size.
	BigThreshold uint64

	// Verbose, when true, logs a one-line startup summary from Init
	// (heap size and the buddy/segregated split), matching the
	// original C driver's startup banner.
	Verbose bool
}

const defaultHeapBytes = 1024 * 1024

// buddyHeaderSize mirrors buddy's in-band header size; kept here too
// so BigThreshold's default doesn't need to import buddy's internals.
const buddyHeaderSize = 16

func defaultOption() Option {
	return Option{
		HeapBytes:    defaultHeapBytes,
		BigThreshold: 4096 - buddyHeaderSize,
	}
}

// applyOptions merges zero or more partial Options onto the default,
// last write wins per nonzero field — the way DefaultOption() in
// concurrency/gopool is merged against caller overrides.
func applyOptions(opts []Option) Option {
	o := defaultOption()
	for _, override := range opts {
		if override.HeapBytes != 0 {
			o.HeapBytes = override.HeapBytes
		}
		if override.BigThreshold != 0 {
			o.BigThreshold = override.BigThreshold
		}
		if override.Verbose {
			o.Verbose = true
		}
	}
	return o
}
