/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package cache

import "sync/atomic"

// Counters are the lock-free statistics spec.md §4.8 mandates, exposed through
// /_migux/cache as a JSON snapshot.
type Counters struct {
	MemoryHits       int64 `json:"memory_hits"`
	MemoryMisses     int64 `json:"memory_misses"`
	DiskHits         int64 `json:"disk_hits"`
	DiskMisses       int64 `json:"disk_misses"`
	DiskEvictions    int64 `json:"disk_evictions"`
	DiskEvictedBytes int64 `json:"disk_evicted_bytes"`
	DiskBytes        int64 `json:"disk_bytes"`
	DiskEntries      int64 `json:"disk_entries"`
}

type counters struct {
	memoryHits       int64
	memoryMisses     int64
	diskHits         int64
	diskMisses       int64
	diskEvictions    int64
	diskEvictedBytes int64
}

func (c *counters) snapshot(diskBytes, diskEntries int64) Counters {
	return Counters{
		MemoryHits:       atomic.LoadInt64(&c.memoryHits),
		MemoryMisses:     atomic.LoadInt64(&c.memoryMisses),
		DiskHits:         atomic.LoadInt64(&c.diskHits),
		DiskMisses:       atomic.LoadInt64(&c.diskMisses),
		DiskEvictions:    atomic.LoadInt64(&c.diskEvictions),
		DiskEvictedBytes: atomic.LoadInt64(&c.diskEvictedBytes),
		DiskBytes:        diskBytes,
		DiskEntries:      diskEntries,
	}
}
