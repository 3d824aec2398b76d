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
	"sync"
	"time"
)

type memEntry struct {
	data   []byte
	expiry time.Time
}

// memory is the single shared, lock-around-a-map tier spec.md §4.8 describes:
// short critical sections, lazy eviction of expired entries on access.
type memory struct {
	mu sync.RWMutex
	m  map[Key]memEntry
}

func newMemory() *memory {
	return &memory{m: make(map[Key]memEntry)}
}

// Get returns the cached bytes if present and unexpired; an expired entry is
// dropped on access.
func (m *memory) Get(k Key) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.m[k]
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiry) {
		m.mu.Lock()
		delete(m.m, k)
		m.mu.Unlock()
		return nil, false
	}
	return e.data, true
}

// Put writes through the memory tier. A zero or negative TTL is a no-op: spec.md
// §4.8 "writes require a non-zero TTL".
func (m *memory) Put(k Key, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.mu.Lock()
	m.m[k] = memEntry{data: data, expiry: time.Now().Add(ttl)}
	m.mu.Unlock()
}
