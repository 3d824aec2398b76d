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

	"github.com/nabbar/migux/internal/config"
	"github.com/nabbar/migux/internal/reqread"
	"github.com/nabbar/migux/internal/respwrite"
	"github.com/nabbar/migux/internal/router"
	"github.com/nabbar/migux/internal/xerr"
	"github.com/nabbar/migux/internal/xlog"
)

var log = xlog.Named("worker")

// ServeConn drives the keep-alive loop of spec.md §4.5 over conn. isTLS marks
// a connection that was TLS-terminated (directly, or synthetically by the C3
// bridge) so the static engine can decide on HSTS and the proxy engine can
// set X-Forwarded-Proto correctly.
func (w *Worker) ServeConn(conn net.Conn, isTLS bool) {
	defer conn.Close()

	reader := reqread.New(conn)
	remoteIP := clientIP(conn)

	to := reqread.Timeouts{
		Active: w.deps.HTTPConf.ClientReadTimeout(),
		Idle:   w.deps.HTTPConf.KeepaliveTimeout(),
	}
	lim := reqread.Limits{
		MaxHeaderBytes: w.deps.HTTPConf.MaxRequestHeadersBytes,
		MaxBodyBytes:   w.deps.HTTPConf.MaxRequestBodyBytes,
	}

	for {
		req, err := reader.ReadRequest(to, lim)
		if err != nil {
			w.writeReadError(conn, err)
			return
		}

		if req.Path == "/_migux/cache" {
			w.serveCacheEndpoint(conn, req, remoteIP)
			return
		}

		if req.Path == "/_migux/metrics" {
			w.serveMetricsEndpoint(conn, req, remoteIP)
			return
		}

		server := router.SelectFirst(w.deps.Servers, req.Header.Get("Host"))
		if server == nil {
			_ = w.consumeOrDiscardBody(reader, req)
			_, _ = conn.Write(respwrite.Error(500, "no server configured for this listener", nil))
			return
		}

		if !isTLS && server.TLS != nil && server.TLS.RedirectHTTP {
			_ = w.consumeOrDiscardBody(reader, req)
			w.redirectHTTPS(conn, req, server)
			return
		}

		loc := router.Match(server.Locations, req.Path)

		var forceClose bool
		switch loc.Kind {
		case config.LocationProxy:
			forceClose = w.dispatchProxy(conn, reader, req, loc, remoteIP, isTLS)
		default:
			_ = w.consumeOrDiscardBody(reader, req)
			forceClose = w.dispatchStatic(conn, req, loc, server, isTLS)
		}

		if forceClose || req.CloseAfter {
			return
		}
	}
}

// consumeOrDiscardBody advances the connection buffer past a request body
// the dispatcher will not forward, per spec.md §4.5's "advance buffer past
// the header block" step.
func (w *Worker) consumeOrDiscardBody(reader *reqread.Reader, req *reqread.ParsedRequest) error {
	if !req.HasBody() {
		reader.Discard(req.BodyStart)
		return nil
	}
	timeout := w.deps.HTTPConf.ClientReadTimeout()
	if req.IsChunked {
		return reader.DiscardChunkedBody(req.BodyStart, w.deps.HTTPConf.MaxRequestBodyBytes, timeout)
	}
	return reader.DiscardLengthBody(req.BodyStart, req.ContentLength, w.deps.HTTPConf.MaxRequestBodyBytes, timeout)
}

func (w *Worker) writeReadError(conn net.Conn, err error) {
	kind := errKind(err)
	if kind == xerr.KindNone {
		return
	}
	log.Debugf("client read error: %v", err)
	_, _ = conn.Write(respwrite.Error(kind.Status(), "", nil))
}

// redirectHTTPS implements spec.md §6's HTTPS-redirect rule.
func (w *Worker) redirectHTTPS(conn net.Conn, req *reqread.ParsedRequest, server *router.ServerRuntime) {
	host := req.Header.Get("Host")
	if host == "" {
		host = server.Name
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	port := ""
	if server.TLS != nil {
		if _, p, err := net.SplitHostPort(server.TLS.Listen); err == nil {
			port = p
		}
	}

	target := "https://" + host
	if port != "" && port != "443" {
		target += ":" + port
	}
	target += req.PathAndQuery

	_, _ = conn.Write(respwrite.Simple(301, textproto.MIMEHeader{"Location": {target}}, nil))
}

func clientIP(conn net.Conn) string {
	addr := conn.RemoteAddr()
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func isLoopback(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}
