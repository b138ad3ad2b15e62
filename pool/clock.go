/*
Copyright 2025 The Apache Software Foundation.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pool

import "time"

// Clock is a monotonic millisecond time source, injected so tests can
// control staleness windows without sleeping.
type Clock interface {
	NowMillis() int64
}

// systemClock is the default Clock, backed by time.Now's monotonic reading:
// it reports milliseconds elapsed since start.
type systemClock struct {
	start time.Time
}

func (c systemClock) NowMillis() int64 {
	return time.Since(c.start).Milliseconds()
}

// SystemClock is the default, real-time Clock.
var SystemClock Clock = systemClock{start: time.Now()}
