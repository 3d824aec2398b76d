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
	"bytes"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/nabbar/migux/internal/metrics"
	"github.com/nabbar/migux/internal/proxy"
	"github.com/nabbar/migux/internal/reqread"
	"github.com/nabbar/migux/internal/respwrite"
	"github.com/nabbar/migux/internal/router"
)

// countingWriter tallies bytes written so the worker can report proxied
// response sizes to internal/metrics without the proxy package itself taking
// a metrics dependency.
type countingWriter struct {
	dst io.Writer
	n   int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.dst.Write(p)
	c.n += n
	return n, err
}

// responseHopByHop are the headers stripped when relaying an upstream
// response to the client. Unlike internal/proxy's own hopByHop set (which
// also governs the outbound request and therefore strips Transfer-Encoding),
// the relay here must preserve Content-Length/Transfer-Encoding verbatim: the
// worker forwards the upstream's exact body framing, it only renegotiates
// Connection based on its own keep-alive decision.
var responseHopByHop = map[string]bool{
	"Connection":       true,
	"Keep-Alive":       true,
	"Proxy-Connection": true,
	"Te":               true,
	"Trailer":          true,
	"Upgrade":          true,
}

// dispatchProxy serves a Proxy location (C9, backed by pool/health/C10-C11).
// It returns true when the connection must be force-closed regardless of the
// request's own keep-alive preference.
func (w *Worker) dispatchProxy(conn net.Conn, reader *reqread.Reader, req *reqread.ParsedRequest, loc *router.LocationRule, clientIP string, isTLS bool) bool {
	up, ok := w.deps.Upstreams[loc.Upstream]
	if !ok {
		_, _ = conn.Write(respwrite.Error(502, "unknown upstream", nil))
		return true
	}
	pl := w.deps.Pools[loc.Upstream]
	counters := w.deps.Counters[loc.Upstream]

	upstreamPath := req.Path
	if loc.StripPrefix {
		upstreamPath = proxy.StripPrefixPath(req.Path, loc.Path)
	}
	if req.RawQuery != "" {
		upstreamPath += "?" + req.RawQuery
	}

	var body proxy.BodySource
	if req.HasBody() {
		body = w.buildBodySource(reader, req)
	} else {
		reader.Discard(req.BodyStart)
	}

	lim := proxy.Limits{
		ConnectTimeout:         w.deps.HTTPConf.ProxyConnectTimeout(),
		WriteTimeout:           w.deps.HTTPConf.ProxyWriteTimeout(),
		ReadTimeout:            w.deps.HTTPConf.ProxyReadTimeout(),
		MaxResponseHeaderBytes: w.deps.HTTPConf.MaxUpstreamResponseHeaderBytes,
		MaxResponseBodyBytes:   w.deps.HTTPConf.MaxUpstreamResponseBodyBytes,
	}

	out, err := proxy.Forward(loc.Upstream, up, counters, pl, w.deps.Tracker, lim, proxy.Request{
		Method:       req.Method,
		Path:         upstreamPath,
		ClientHTTP11: !req.IsHTTP10(),
		Header:       req.Header,
		ClientIP:     clientIP,
		ClientTLS:    isTLS,
		Body:         body,
	})
	if err != nil {
		log.Debugf("proxy %s: %v", loc.Upstream, err)
		metrics.RecordProxyRequest(loc.Upstream, "error")
		_, _ = conn.Write(respwrite.Error(502, "", nil))
		return true
	}
	metrics.RecordProxyRequest(loc.Upstream, strconv.Itoa(out.StatusCode))
	metrics.SetUpstreamHealthy(loc.Upstream, out.Address, true)

	keepAlive := !req.CloseAfter
	w.writeProxyResponse(conn, out, keepAlive)

	cw := &countingWriter{dst: conn}
	if werr := out.WriteBody(cw); werr != nil {
		log.Debugf("proxy %s: body relay: %v", loc.Upstream, werr)
		metrics.RecordProxyBytes(loc.Upstream, cw.n)
		return true
	}
	metrics.RecordProxyBytes(loc.Upstream, cw.n)
	return false
}

func (w *Worker) writeProxyResponse(conn net.Conn, out *proxy.Outcome, keepAlive bool) {
	var buf bytes.Buffer
	reason := out.Reason
	if reason == "" {
		reason = respwrite.StatusText(out.StatusCode)
	}
	fmt.Fprintf(&buf, "HTTP/1.1 %d %s\r\n", out.StatusCode, reason)
	fmt.Fprintf(&buf, "Server: %s\r\n", respwrite.ServerIdent)

	for k, vs := range out.Header {
		if responseHopByHop[k] {
			continue
		}
		for _, v := range vs {
			fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
		}
	}

	if keepAlive {
		buf.WriteString("Connection: keep-alive\r\n")
	} else {
		buf.WriteString("Connection: close\r\n")
	}
	buf.WriteString("\r\n")

	_, _ = conn.Write(buf.Bytes())
}

// buildBodySource adapts the client's buffered reqread.Reader into a
// proxy.BodySource, the caller-supplied closure the proxy package expects
// instead of reaching into reqread itself.
func (w *Worker) buildBodySource(reader *reqread.Reader, req *reqread.ParsedRequest) proxy.BodySource {
	timeout := w.deps.HTTPConf.ClientReadTimeout()
	maxBody := w.deps.HTTPConf.MaxRequestBodyBytes
	return func(dst io.Writer) error {
		if req.IsChunked {
			return reader.CopyChunkedBody(dst, req.BodyStart, maxBody, timeout)
		}
		return reader.CopyLengthBody(dst, req.BodyStart, req.ContentLength, maxBody, timeout)
	}
}
