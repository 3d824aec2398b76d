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

package proxy

import (
	"fmt"
	"io"
	"net"
	"net/textproto"
	"time"

	"github.com/nabbar/migux/internal/config"
	"github.com/nabbar/migux/internal/health"
	"github.com/nabbar/migux/internal/pool"
	"github.com/nabbar/migux/internal/reqread"
	"github.com/nabbar/migux/internal/xerr"
)

// BodySource streams the client's request body to w, or does nothing if the
// request has no body. The caller (the connection worker) builds this from
// the buffered reqread.Reader so the proxy package never needs to know how
// the client framed its body.
type BodySource func(w io.Writer) error

// Limits bundles the timeouts and size caps the forwarding algorithm enforces
// at every hop (spec.md §4.9/§5). Forward does not read ConnectTimeout:
// checkout and fresh dials run under the pool's own dial timeout.
type Limits struct {
	ConnectTimeout         time.Duration
	WriteTimeout           time.Duration
	ReadTimeout            time.Duration
	MaxResponseHeaderBytes int
	MaxResponseBodyBytes   int64
}

// Request is everything Forward needs from the client side of the connection.
type Request struct {
	Method        string
	Path          string
	ClientHTTP11  bool
	Header        textproto.MIMEHeader
	ClientIP      string
	ClientTLS     bool
	Body          BodySource
}

// Outcome is a successfully obtained upstream response, still bound to its
// connection: the caller writes the status line and headers itself (through
// respwrite or its own framing), then calls WriteBody once the client is ready
// to receive the body, which also returns the connection to the pool.
type Outcome struct {
	StatusCode int
	Reason     string
	Version    string
	Header     textproto.MIMEHeader
	Address    string

	bodyCopier func(dst io.Writer) error
	reusable   bool
	conn       net.Conn
	pool       *pool.Pool
}

// WriteBody streams the upstream response body (if any) to dst and then
// either checks the connection back into the pool or discards it, depending
// on the reusability determined while parsing the response.
func (o *Outcome) WriteBody(dst io.Writer) error {
	if o.bodyCopier == nil {
		o.pool.Checkin(o.Address, o.conn, o.reusable)
		return nil
	}
	if err := o.bodyCopier(dst); err != nil {
		o.pool.Discard(o.conn)
		return err
	}
	o.pool.Checkin(o.Address, o.conn, o.reusable)
	return nil
}

// Forward implements spec.md §4.9's full candidate loop: order candidates,
// checkout/connect, write the rewritten request, stream the body, read the
// response, and decide reusability — trying the next candidate whenever a
// connection-level step fails, and returning a BadGateway error once every
// candidate has been exhausted. A failure while streaming the request body is
// returned at once; no further candidate is tried.
func Forward(name string, up config.Upstream, counters *Counters, pl *pool.Pool, tracker *health.Tracker, lim Limits, req Request) (*Outcome, error) {
	candidates := Order(name, up, counters, tracker)
	if len(candidates) == 0 {
		return nil, xerr.New(xerr.MinPkgProxy+1, xerr.KindBadGateway, "no upstream candidates", nil)
	}

	healthKey := func(addr string) health.Key { return health.Key{Upstream: name, Address: addr} }
	threshold := up.HealthCfg.FailThreshold
	cooldown := up.HealthCfg.Cooldown()

	headers := RewriteHeaders(req.Header, req.ClientIP, req.Header.Get("Host"), req.ClientTLS, req.ClientHTTP11)
	reqBytes := buildRequestHeaderBlock(req.Method, req.Path, headers)

	var lastErr error
	for _, addr := range candidates {
		conn, err := pl.Checkout(addr)
		if err != nil {
			if tracker != nil {
				tracker.RecordFailure(healthKey(addr), threshold, cooldown)
			}
			lastErr = err
			continue
		}

		if werr := writeWithTimeout(conn, reqBytes, lim.WriteTimeout); werr != nil {
			pl.Discard(conn)
			fresh, derr := pl.DialFresh(addr)
			if derr != nil {
				if tracker != nil {
					tracker.RecordFailure(healthKey(addr), threshold, cooldown)
				}
				lastErr = derr
				continue
			}
			if werr2 := writeWithTimeout(fresh, reqBytes, lim.WriteTimeout); werr2 != nil {
				pl.Discard(fresh)
				if tracker != nil {
					tracker.RecordFailure(healthKey(addr), threshold, cooldown)
				}
				lastErr = werr2
				continue
			}
			conn = fresh
		}

		if req.Body != nil {
			if berr := req.Body(conn); berr != nil {
				pl.Discard(conn)
				if tracker != nil {
					tracker.RecordFailure(healthKey(addr), threshold, cooldown)
				}
				return nil, berr
			}
		}

		respReader := reqread.New(conn)
		resp, rerr := respReader.ReadResponse(
			reqread.Timeouts{Active: lim.ReadTimeout, Idle: lim.ReadTimeout},
			reqread.Limits{MaxHeaderBytes: lim.MaxResponseHeaderBytes},
		)
		if rerr != nil {
			pl.Discard(conn)
			if tracker != nil {
				tracker.RecordFailure(healthKey(addr), threshold, cooldown)
			}
			lastErr = rerr
			continue
		}

		if tracker != nil {
			tracker.RecordSuccess(healthKey(addr), threshold, cooldown)
		}

		out := &Outcome{
			StatusCode: resp.StatusCode,
			Reason:     resp.Reason,
			Version:    resp.Version,
			Header:     resp.Header,
			Address:    addr,
			conn:       conn,
			pool:       pl,
		}
		out.bodyCopier, out.reusable = responseBodyPlan(respReader, resp, req.Method, lim)
		return out, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("all candidates exhausted")
	}
	return nil, xerr.New(xerr.MinPkgProxy+2, xerr.KindBadGateway, "upstream unreachable", lastErr)
}

func writeWithTimeout(conn net.Conn, data []byte, timeout time.Duration) error {
	if timeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	_, err := conn.Write(data)
	return err
}

func buildRequestHeaderBlock(method, path string, headers textproto.MIMEHeader) []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, method...)
	buf = append(buf, ' ')
	buf = append(buf, path...)
	buf = append(buf, " HTTP/1.1\r\n"...)
	for k, vs := range headers {
		for _, v := range vs {
			buf = append(buf, k...)
			buf = append(buf, ':', ' ')
			buf = append(buf, v...)
			buf = append(buf, '\r', '\n')
		}
	}
	buf = append(buf, '\r', '\n')
	return buf
}

// responseBodyPlan implements steps 5-7 of spec.md §4.9: pick how to relay
// the body (or suppress it for HEAD) and determine post-transfer reusability.
func responseBodyPlan(r *reqread.Reader, resp *reqread.ParsedResponse, method string, lim Limits) (func(io.Writer) error, bool) {
	if method == "HEAD" {
		return nil, !resp.CloseAfter
	}

	switch {
	case resp.IsChunked:
		return func(dst io.Writer) error {
			return r.CopyChunkedBody(dst, resp.BodyStart, lim.MaxResponseBodyBytes, lim.ReadTimeout)
		}, false
	case resp.HasLength:
		return func(dst io.Writer) error {
			return r.CopyLengthBody(dst, resp.BodyStart, resp.ContentLength, lim.MaxResponseBodyBytes, lim.ReadTimeout)
		}, !resp.CloseAfter
	default:
		return func(dst io.Writer) error {
			return copyToEOF(dst, r, resp.BodyStart, lim.ReadTimeout)
		}, false
	}
}

func copyToEOF(dst io.Writer, r *reqread.Reader, bodyStart int, timeout time.Duration) error {
	if buffered := r.BufferedBody(bodyStart, -1); len(buffered) > 0 {
		if _, err := dst.Write(buffered); err != nil {
			return err
		}
	}
	conn := r.Conn()
	if timeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
	}
	_, err := io.Copy(dst, conn)
	if err == io.EOF {
		return nil
	}
	return err
}
