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

import (
	"sync/atomic"
	"time"

	"github.com/nabbar/migux/internal/config"
)

// Policy is the resolved, effective cache decision for one request: whether
// caching applies at all and, if so, the TTL to write with.
type Policy struct {
	Enabled bool
	TTL     time.Duration
}

// Resolve implements the enabled predicate spec.md §4.8 pins: GET only, a cache
// directory configured, the location's tri-state not explicitly False, and a
// non-zero effective TTL (Open Question decision: unset/zero means never cache).
func Resolve(method string, httpConf config.HTTP, locCache config.TriState) Policy {
	if method != "GET" {
		return Policy{}
	}
	if httpConf.CacheDir == "" {
		return Policy{}
	}
	if locCache == config.False {
		return Policy{}
	}
	ttl := httpConf.CacheDefaultTTL()
	if ttl <= 0 {
		return Policy{}
	}
	return Policy{Enabled: true, TTL: ttl}
}

// Cache is the process-wide two-tier cache: an in-memory tier backed by a
// slower, size-bounded disk tier, counted for the /_migux/cache endpoint
// spec.md §6 mandates.
type Cache struct {
	mem       *memory
	dsk       *disk
	cnt       counters
	maxObject int64
}

// New builds the cache from the resolved HTTP config. A blank CacheDir disables
// the disk tier entirely; the memory tier is always available.
func New(httpConf config.HTTP) *Cache {
	c := &Cache{
		mem:       newMemory(),
		maxObject: httpConf.CacheMaxObjectBytes,
	}
	c.dsk = newDisk(httpConf.CacheDir, httpConf.CacheMaxTotalBytes, int64(httpConf.CacheMaxEntries), httpConf.CacheInactive(), &c.cnt)
	return c
}

// Get checks memory first, then disk, promoting a disk hit back into memory so
// subsequent requests avoid the filesystem (spec.md §4.8 "read-through").
func (c *Cache) Get(k Key, ttl time.Duration) ([]byte, bool) {
	if data, ok := c.mem.Get(k); ok {
		atomic.AddInt64(&c.cnt.memoryHits, 1)
		return data, true
	}
	atomic.AddInt64(&c.cnt.memoryMisses, 1)

	if data, ok := c.dsk.Get(k); ok {
		atomic.AddInt64(&c.cnt.diskHits, 1)
		c.mem.Put(k, data, ttl)
		return data, true
	}
	atomic.AddInt64(&c.cnt.diskMisses, 1)
	return nil, false
}

// Put writes through both tiers, respecting the per-object size ceiling
// (0 = unlimited) independently of the disk tier's own total-bytes cap.
func (c *Cache) Put(k Key, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if c.maxObject > 0 && int64(len(data)) > c.maxObject {
		return
	}
	c.mem.Put(k, data, ttl)
	_ = c.dsk.Put(k, data, ttl)
}

// Snapshot renders the current Counters for the /_migux/cache endpoint.
func (c *Cache) Snapshot() Counters {
	bytes, entries := c.dsk.Stats()
	return c.cnt.snapshot(bytes, entries)
}
