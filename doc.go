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

// Package heapalloc is a malloc/free/realloc-style allocator over one
// backing region reserved once from the OS. Large requests are served
// by a buddy-system half of the region (package buddy); small requests
// are served by a segregated free-list half (package segregated). This
// package is the dispatcher: it owns the region, partitions it, routes
// each request by size, and routes each Free/Realloc by the address of
// the slice being released.
//
// The allocator is not safe for concurrent use — callers serialize
// their own access, same as the subsystems it wraps.
package heapalloc
