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
	"fmt"
	"io"
	"net"
	"net/textproto"
	"os"

	"github.com/nabbar/migux/internal/cache"
	"github.com/nabbar/migux/internal/reqread"
	"github.com/nabbar/migux/internal/respwrite"
	"github.com/nabbar/migux/internal/router"
	"github.com/nabbar/migux/internal/staticfile"
)

const defaultStreamThreshold = 1 << 20 // 1 MiB, spec.md §4.7

// dispatchStatic serves a Static location (C7, backed by C8). It returns true
// if the connection must close after the response (method-not-allowed keeps
// the loop alive; every other error path here does too, since a synthesised
// response never leaves the body framing ambiguous).
func (w *Worker) dispatchStatic(conn net.Conn, req *reqread.ParsedRequest, loc *router.LocationRule, server *router.ServerRuntime, isTLS bool) bool {
	if req.Method != "GET" && req.Method != "HEAD" {
		_, _ = conn.Write(respwrite.Error(405, "", textproto.MIMEHeader{"Allow": {"GET, HEAD"}}))
		return false
	}

	effective := *loc
	if effective.Root == "" {
		effective.Root = server.Root
	}
	index := loc.Index
	if index == "" {
		index = server.Index
	}

	diskPath, ok := staticfile.ResolveRelativePath(req.Path, &effective, index)
	if !ok {
		_, _ = conn.Write(respwrite.Error(404, "", nil))
		return false
	}

	rf, err := staticfile.Stat(diskPath)
	if err != nil {
		if os.IsNotExist(err) {
			_, _ = conn.Write(respwrite.Error(404, "", nil))
		} else {
			_, _ = conn.Write(respwrite.Error(500, "", nil))
		}
		return false
	}

	hsts := isTLS && server.TLS != nil && server.TLS.HSTSMaxAgeSecs > 0

	extra := textproto.MIMEHeader{
		"Content-Type":  {rf.ContentType},
		"ETag":          {rf.ETag},
		"Last-Modified": {rf.LastMod},
	}
	if hsts {
		extra.Set("Strict-Transport-Security", hstsValue(server.TLS.HSTSMaxAgeSecs, server.TLS.HSTSIncludeSubdomains))
	}

	if staticfile.ShouldReturnNotModified(req.Method, req.Header, rf.ETag) {
		_, _ = conn.Write(respwrite.Header(304, extra))
		return false
	}

	policy := cache.Resolve(req.Method, w.deps.HTTPConf, loc.Cache)
	var key cache.Key
	if policy.Enabled {
		key = cache.NewKey(diskPath, rf.Size, rf.ModNanos, hsts)
		if data, ok := w.deps.Cache.Get(key, policy.TTL); ok {
			extra.Set("Content-Length", fmt.Sprintf("%d", len(data)))
			_, _ = conn.Write(respwrite.Header(200, extra))
			if req.Method != "HEAD" {
				_, _ = conn.Write(data)
			}
			return false
		}
	}

	threshold := w.deps.HTTPConf.CacheMaxObjectBytes
	if threshold <= 0 {
		threshold = defaultStreamThreshold
	}
	if !w.deps.HTTPConf.Sendfile {
		threshold *= 4
	}

	if req.Method == "HEAD" {
		extra.Set("Content-Length", fmt.Sprintf("%d", rf.Size))
		_, _ = conn.Write(respwrite.Header(200, extra))
		return false
	}

	f, err := os.Open(diskPath)
	if err != nil {
		_, _ = conn.Write(respwrite.Error(500, "", nil))
		return false
	}
	defer f.Close()

	if rf.Size >= threshold {
		extra.Set("Content-Length", fmt.Sprintf("%d", rf.Size))
		_, _ = conn.Write(respwrite.Header(200, extra))
		_, _ = io.Copy(conn, f)
		return false
	}

	data, err := io.ReadAll(f)
	if err != nil {
		_, _ = conn.Write(respwrite.Error(500, "", nil))
		return false
	}

	extra.Set("Content-Length", fmt.Sprintf("%d", len(data)))
	_, _ = conn.Write(respwrite.Header(200, extra))
	_, _ = conn.Write(data)

	if policy.Enabled {
		w.deps.Cache.Put(key, data, policy.TTL)
	}
	return false
}

func hstsValue(maxAge int, includeSub bool) string {
	v := fmt.Sprintf("max-age=%d", maxAge)
	if includeSub {
		v += "; includeSubDomains"
	}
	return v
}
