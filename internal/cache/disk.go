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
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// diskNode is one disk-tier entry. The LRU list is modelled as two optional keys
// per node plus head/tail keys on the index (spec.md §9 "Cyclic structures") so
// there is no pointer cycle to manage.
type diskNode struct {
	expiresAt  int64
	lastAccess int64
	size       int64
	hasPrev    bool
	prev       Key
	hasNext    bool
	next       Key
}

// disk is the on-disk tier: a flat directory of <hex>.cache/<hex>.meta pairs,
// indexed in memory with an LRU-by-last_access eviction list.
type disk struct {
	mu         sync.Mutex
	dir        string
	index      map[Key]*diskNode
	hasHead    bool
	head       Key
	hasTail    bool
	tail       Key
	totalBytes int64

	maxTotalBytes int64
	maxEntries    int64
	inactive      time.Duration

	loaded bool
	cnt    *counters
}

func newDisk(dir string, maxTotalBytes, maxEntries int64, inactive time.Duration, cnt *counters) *disk {
	return &disk{
		dir:           dir,
		index:         make(map[Key]*diskNode),
		maxTotalBytes: maxTotalBytes,
		maxEntries:    maxEntries,
		inactive:      inactive,
		cnt:           cnt,
	}
}

func (d *disk) dataPath(k Key) string { return filepath.Join(d.dir, k.Hex()+".cache") }
func (d *disk) metaPath(k Key) string { return filepath.Join(d.dir, k.Hex()+".meta") }

// ensureLoaded lazily populates the index from *.meta files on first access,
// per spec.md §4.8: drop malformed/expired/stale/oversize/orphaned entries, then
// insert survivors in last_access ascending order and run eviction-to-limits.
func (d *disk) ensureLoaded() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loaded || d.dir == "" {
		d.loaded = true
		return
	}
	d.loaded = true

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return
	}

	type survivor struct {
		key  Key
		node *diskNode
	}
	var survivors []survivor
	now := time.Now().Unix()

	for _, ent := range entries {
		name := ent.Name()
		if !strings.HasSuffix(name, ".meta") {
			continue
		}
		hex := strings.TrimSuffix(name, ".meta")
		key, err := parseHexKey(hex)
		if err != nil {
			continue
		}

		metaBytes, err := os.ReadFile(filepath.Join(d.dir, name))
		if err != nil {
			continue
		}
		expiresAt, lastAccess, size, ok := parseMeta(metaBytes)
		if !ok {
			continue
		}
		if expiresAt <= now {
			continue
		}
		if d.inactive > 0 && now-lastAccess > int64(d.inactive/time.Second) {
			continue
		}

		fi, err := os.Stat(d.dataPath(key))
		if err != nil {
			continue
		}
		if size == 0 && !strings.Contains(string(metaBytes), "=") {
			// legacy single-integer meta carries no size: take the data file's.
			size = fi.Size()
		}
		if fi.Size() != size {
			continue
		}
		if d.maxTotalBytes > 0 && size > d.maxTotalBytes {
			continue
		}

		survivors = append(survivors, survivor{
			key: key,
			node: &diskNode{
				expiresAt:  expiresAt,
				lastAccess: lastAccess,
				size:       size,
			},
		})
	}

	// ascending last_access so the oldest ends up at the head of the LRU list.
	for i := 0; i < len(survivors); i++ {
		for j := i + 1; j < len(survivors); j++ {
			if survivors[j].node.lastAccess < survivors[i].node.lastAccess {
				survivors[i], survivors[j] = survivors[j], survivors[i]
			}
		}
	}

	for _, s := range survivors {
		d.index[s.key] = s.node
		d.linkTail(s.key)
		d.totalBytes += s.node.size
	}

	d.evictToLimitsLocked(nil)
}

func parseHexKey(hex string) (Key, error) {
	v, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return 0, err
	}
	return Key(v), nil
}

// parseMeta accepts the stable three-line key=value form and the legacy
// single-integer expires_at-only form.
func parseMeta(b []byte) (expiresAt, lastAccess, size int64, ok bool) {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, 0, 0, false
	}

	if v, err := strconv.ParseInt(s, 10, 64); err == nil && !strings.Contains(s, "=") {
		return v, v, 0, true
	}

	fields := map[string]int64{}
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			return 0, 0, 0, false
		}
		key := strings.TrimSpace(line[:idx])
		val, err := strconv.ParseInt(strings.TrimSpace(line[idx+1:]), 10, 64)
		if err != nil {
			return 0, 0, 0, false
		}
		fields[key] = val
	}

	expiresAt, hasExp := fields["expires_at"]
	lastAccess, hasLA := fields["last_access"]
	size, hasSize := fields["size"]
	if !hasExp || !hasLA || !hasSize {
		return 0, 0, 0, false
	}
	return expiresAt, lastAccess, size, true
}

func encodeMeta(expiresAt, lastAccess, size int64) []byte {
	return []byte(fmt.Sprintf("expires_at=%d\nlast_access=%d\nsize=%d\n", expiresAt, lastAccess, size))
}

// writeAtomic writes data to path via write-tmp + rename, per spec.md §4.8
// atomicity invariant; on failure the temp file is removed.
func writeAtomic(path string, data []byte) error {
	tmp := fmt.Sprintf("%s.tmp-%d", path, time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Get reads an entry, bumping its last_access and moving it to the LRU tail on
// hit (rewriting the meta file atomically), per spec.md §3 DiskCacheEntry
// invariant (c).
func (d *disk) Get(k Key) ([]byte, bool) {
	if d.dir == "" {
		return nil, false
	}
	d.ensureLoaded()

	d.mu.Lock()
	node, ok := d.index[k]
	if !ok {
		d.mu.Unlock()
		return nil, false
	}
	now := time.Now().Unix()
	if node.expiresAt <= now {
		d.unlinkLocked(k)
		delete(d.index, k)
		d.totalBytes -= node.size
		d.mu.Unlock()
		_ = os.Remove(d.dataPath(k))
		_ = os.Remove(d.metaPath(k))
		return nil, false
	}
	node.lastAccess = now
	d.moveToTailLocked(k)
	d.mu.Unlock()

	data, err := os.ReadFile(d.dataPath(k))
	if err != nil {
		return nil, false
	}

	_ = writeAtomic(d.metaPath(k), encodeMeta(node.expiresAt, node.lastAccess, node.size))

	return data, true
}

// Put writes the data+meta files atomically and inserts/updates the LRU index,
// evicting from the head until the configured limits are satisfied. An object
// larger than the total-bytes cap is not cached at all (spec.md §4.8).
func (d *disk) Put(k Key, data []byte, ttl time.Duration) error {
	if d.dir == "" || ttl <= 0 {
		return nil
	}
	d.ensureLoaded()

	size := int64(len(data))
	if d.maxTotalBytes > 0 && size > d.maxTotalBytes {
		return nil
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return err
	}
	if err := writeAtomic(d.dataPath(k), data); err != nil {
		return err
	}

	now := time.Now().Unix()
	expiresAt := now + int64(ttl/time.Second)

	if err := writeAtomic(d.metaPath(k), encodeMeta(expiresAt, now, size)); err != nil {
		_ = os.Remove(d.dataPath(k))
		return err
	}

	d.mu.Lock()
	if old, exists := d.index[k]; exists {
		d.unlinkLocked(k)
		d.totalBytes -= old.size
	}
	node := &diskNode{expiresAt: expiresAt, lastAccess: now, size: size}
	d.index[k] = node
	d.linkTail(k)
	d.totalBytes += size

	var evicted []Key
	d.evictToLimitsLocked(&evicted)
	d.sweepInactiveLocked(&evicted)
	d.mu.Unlock()

	for _, ek := range evicted {
		_ = os.Remove(d.dataPath(ek))
		_ = os.Remove(d.metaPath(ek))
	}

	return nil
}

// evictToLimitsLocked pops from the LRU head while either the total-bytes or
// entry-count cap is exceeded (0 = unlimited), per spec.md §4.8/§8 property 9.
func (d *disk) evictToLimitsLocked(evicted *[]Key) {
	for {
		overBytes := d.maxTotalBytes > 0 && d.totalBytes > d.maxTotalBytes
		overCount := d.maxEntries > 0 && int64(len(d.index)) > d.maxEntries
		if !overBytes && !overCount {
			return
		}
		if !d.hasHead {
			return
		}
		victim := d.head
		node := d.index[victim]
		d.unlinkLocked(victim)
		delete(d.index, victim)
		d.totalBytes -= node.size
		if d.cnt != nil {
			atomic.AddInt64(&d.cnt.diskEvictions, 1)
			atomic.AddInt64(&d.cnt.diskEvictedBytes, node.size)
		}
		if evicted != nil {
			*evicted = append(*evicted, victim)
		}
	}
}

// sweepInactiveLocked pops from the head while it is older than the inactivity
// window; runs on every write, per spec.md §4.8.
func (d *disk) sweepInactiveLocked(evicted *[]Key) {
	if d.inactive <= 0 {
		return
	}
	cutoff := time.Now().Add(-d.inactive).Unix()
	for d.hasHead {
		node := d.index[d.head]
		if node.lastAccess >= cutoff {
			return
		}
		victim := d.head
		d.unlinkLocked(victim)
		delete(d.index, victim)
		d.totalBytes -= node.size
		if d.cnt != nil {
			atomic.AddInt64(&d.cnt.diskEvictions, 1)
			atomic.AddInt64(&d.cnt.diskEvictedBytes, node.size)
		}
		if evicted != nil {
			*evicted = append(*evicted, victim)
		}
	}
}

func (d *disk) linkTail(k Key) {
	node := d.index[k]
	node.hasPrev = false
	node.hasNext = false
	if !d.hasHead {
		d.head, d.hasHead = k, true
		d.tail, d.hasTail = k, true
		return
	}
	node.hasPrev = true
	node.prev = d.tail
	d.index[d.tail].hasNext = true
	d.index[d.tail].next = k
	d.tail = k
}

func (d *disk) moveToTailLocked(k Key) {
	if d.hasTail && d.tail == k {
		return
	}
	d.unlinkLocked(k)
	d.linkTail(k)
}

func (d *disk) unlinkLocked(k Key) {
	node, ok := d.index[k]
	if !ok {
		return
	}
	switch {
	case node.hasPrev && node.hasNext:
		d.index[node.prev].hasNext, d.index[node.prev].next = true, node.next
		d.index[node.next].hasPrev, d.index[node.next].prev = true, node.prev
	case node.hasPrev:
		d.index[node.prev].hasNext = false
		d.tail = node.prev
	case node.hasNext:
		d.index[node.next].hasPrev = false
		d.head = node.next
	default:
		d.hasHead = false
		d.hasTail = false
	}
}

// Stats returns the current disk-tier totals for the counters snapshot.
func (d *disk) Stats() (bytes, entries int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalBytes, int64(len(d.index))
}
