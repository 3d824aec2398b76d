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

// Package cache is C8: the two-tier (memory + disk) write-through/read-through
// cache with LRU eviction on the disk tier, keyed by (path, length, mtime,
// hsts-flag).
package cache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Key is the 64-bit cache key spec.md §3 defines.
type Key uint64

// NewKey hashes (path, length, mtimeNanos, hsts) into a Key.
func NewKey(path string, length, mtimeNanos int64, hsts bool) Key {
	h := xxhash.New()
	_, _ = h.WriteString(path)
	_, _ = fmt.Fprintf(h, "|%d|%d|%t", length, mtimeNanos, hsts)
	return Key(h.Sum64())
}

// Hex renders the key as the lowercase, zero-padded 16-digit hex string the disk
// layout uses for file names (spec.md §6).
func (k Key) Hex() string {
	return fmt.Sprintf("%016x", uint64(k))
}
