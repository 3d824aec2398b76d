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
	"net"
	"net/textproto"
	"strconv"

	"github.com/nabbar/migux/internal/metrics"
	"github.com/nabbar/migux/internal/reqread"
	"github.com/nabbar/migux/internal/respwrite"
)

// serveMetricsEndpoint answers /_migux/metrics: GET/HEAD only, loopback
// only, same contract as serveCacheEndpoint but rendering the Prometheus
// text exposition format instead of JSON.
func (w *Worker) serveMetricsEndpoint(conn net.Conn, req *reqread.ParsedRequest, clientIP string) {
	if req.Method != "GET" && req.Method != "HEAD" {
		_, _ = conn.Write(respwrite.Error(405, "", textproto.MIMEHeader{"Allow": {"GET, HEAD"}}))
		return
	}
	if !isLoopback(clientIP) {
		_, _ = conn.Write(respwrite.Error(404, "", nil))
		return
	}

	body, contentType, err := metrics.Render()
	if err != nil {
		_, _ = conn.Write(respwrite.Error(500, "", nil))
		return
	}

	extra := textproto.MIMEHeader{"Content-Type": {contentType}}
	if req.Method == "HEAD" {
		extra.Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = conn.Write(respwrite.Header(200, extra))
		return
	}
	_, _ = conn.Write(respwrite.Simple(200, extra, body))
}
