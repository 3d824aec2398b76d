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

package worker

import (
	"encoding/json"
	"net"
	"net/textproto"
	"strconv"

	"github.com/nabbar/migux/internal/reqread"
	"github.com/nabbar/migux/internal/respwrite"
)

// cacheSnapshot is the exact wire contract spec.md §6 pins for /_migux/cache:
// four counters, no more -- deliberately narrower than cache.Counters, which
// also carries disk eviction/size bookkeeping meant for internal use only.
type cacheSnapshot struct {
	MemoryHits   int64 `json:"memory_hits"`
	MemoryMisses int64 `json:"memory_misses"`
	DiskHits     int64 `json:"disk_hits"`
	DiskMisses   int64 `json:"disk_misses"`
}

// serveCacheEndpoint answers /_migux/cache: GET/HEAD only, loopback only.
func (w *Worker) serveCacheEndpoint(conn net.Conn, req *reqread.ParsedRequest, clientIP string) {
	if req.Method != "GET" && req.Method != "HEAD" {
		_, _ = conn.Write(respwrite.Error(405, "", textproto.MIMEHeader{"Allow": {"GET, HEAD"}}))
		return
	}
	if !isLoopback(clientIP) {
		_, _ = conn.Write(respwrite.Error(404, "", nil))
		return
	}

	snap := w.deps.Cache.Snapshot()
	body, err := json.Marshal(cacheSnapshot{
		MemoryHits:   snap.MemoryHits,
		MemoryMisses: snap.MemoryMisses,
		DiskHits:     snap.DiskHits,
		DiskMisses:   snap.DiskMisses,
	})
	if err != nil {
		_, _ = conn.Write(respwrite.Error(500, "", nil))
		return
	}

	extra := textproto.MIMEHeader{"Content-Type": {"application/json"}}
	if req.Method == "HEAD" {
		extra.Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = conn.Write(respwrite.Header(200, extra))
		return
	}
	_, _ = conn.Write(respwrite.Simple(200, extra, body))
}
