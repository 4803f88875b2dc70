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
	"log"
	"os"
)

// exitFunc is called by logFatalf after logging. It is a var, like
// concurrency/gopool routes its panic recovery through the plain log
// package rather than a logging framework, so tests can swap it out
// instead of killing the test binary.
var exitFunc = os.Exit

func logFatalf(format string, args ...interface{}) {
	log.Printf("FATAL: "+format, args...)
	exitFunc(1)
}
