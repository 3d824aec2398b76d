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

package reqread

import (
	"bytes"
	"net"
	"time"
)

// Timeouts bundles the per-hop deadlines spec.md §4.4 step 1 requires: a read on
// an empty carry-over buffer (including the first read of a request) uses idle,
// a read once some bytes of the request are buffered uses active.
type Timeouts struct {
	Active time.Duration
	Idle   time.Duration
}

// Limits bundles the header/body size caps spec.md §4.4 enforces.
type Limits struct {
	MaxHeaderBytes int
	MaxBodyBytes   int64
}

const growChunk = 4096

// Reader is a per-connection incremental byte reader. Its internal buffer
// survives across requests so a pipelined keep-alive connection keeps the
// leftover bytes of the next request instead of discarding them.
type Reader struct {
	conn net.Conn
	buf  []byte
}

// New wraps conn with a fresh, empty carry-over buffer.
func New(conn net.Conn) *Reader {
	return &Reader{conn: conn}
}

// ReadRequest implements spec.md §4.4 steps 1-5: it grows the buffer until the
// header terminator appears (applying Active/Idle timeouts per the rule in step
// 1), parses the request line and framing headers, and returns a ParsedRequest
// whose BodyStart indexes into the connection's carry-over buffer.
func (r *Reader) ReadRequest(to Timeouts, lim Limits) (*ParsedRequest, error) {
	headerEnd := bytes.Index(r.buf, []byte("\r\n\r\n"))

	for headerEnd < 0 {
		if lim.MaxHeaderBytes > 0 && len(r.buf) > lim.MaxHeaderBytes {
			return nil, errHeaderTooLarge()
		}

		timeout := to.Active
		if len(r.buf) == 0 {
			timeout = to.Idle
		}

		n, err := r.readMore(timeout)
		if err != nil {
			if isTimeout(err) {
				if len(r.buf) == 0 {
					return nil, ErrEOF
				}
				return nil, errTimeout()
			}
			if len(r.buf) == 0 {
				return nil, ErrEOF
			}
			return nil, err
		}
		if n == 0 {
			if len(r.buf) == 0 {
				return nil, ErrEOF
			}
			return nil, ErrEOF
		}

		headerEnd = bytes.Index(r.buf, []byte("\r\n\r\n"))
	}

	if lim.MaxHeaderBytes > 0 && headerEnd > lim.MaxHeaderBytes {
		return nil, errHeaderTooLarge()
	}

	block := r.buf[:headerEnd]
	req, err := parseHeaderBlock(block)
	if err != nil {
		return nil, err
	}
	req.HeaderBytes = headerEnd
	req.BodyStart = headerEnd + 4

	if !req.IsChunked && lim.MaxBodyBytes > 0 && req.ContentLength > lim.MaxBodyBytes {
		return nil, errBodyTooLarge()
	}

	return req, nil
}

// readMore reads whatever is available into the carry-over buffer, honouring a
// read deadline of 0 (no deadline).
func (r *Reader) readMore(timeout time.Duration) (int, error) {
	if timeout > 0 {
		_ = r.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		_ = r.conn.SetReadDeadline(time.Time{})
	}

	tmp := make([]byte, growChunk)
	n, err := r.conn.Read(tmp)
	if n > 0 {
		r.buf = append(r.buf, tmp[:n]...)
	}
	return n, err
}

func isTimeout(err error) bool {
	type timeoutErr interface{ Timeout() bool }
	te, ok := err.(timeoutErr)
	return ok && te.Timeout()
}

// BufferedBody returns bytes already read into the carry-over buffer starting at
// bodyStart, at most n of them (n < 0 means "all that are buffered").
func (r *Reader) BufferedBody(bodyStart, n int) []byte {
	avail := r.buf[bodyStart:]
	if n < 0 || n > len(avail) {
		return avail
	}
	return avail[:n]
}

// ReadExactly reads from the connection until at least n bytes are buffered
// starting at offset (bytes already in the carry-over buffer count), applying
// timeout to each underlying read.
func (r *Reader) ReadExactly(offset, n int, timeout time.Duration) ([]byte, error) {
	for len(r.buf)-offset < n {
		if _, err := r.readMore(timeout); err != nil {
			return nil, err
		}
	}
	return r.buf[offset : offset+n], nil
}

// ReadLine reads from the connection (reusing carry-over bytes first) until a
// "\r\n" terminated line starting at offset is available, returning the line
// (without the terminator) and the offset just past it.
func (r *Reader) ReadLine(offset int, timeout time.Duration) (line []byte, next int, err error) {
	for {
		idx := bytes.Index(r.buf[offset:], []byte("\r\n"))
		if idx >= 0 {
			return r.buf[offset : offset+idx], offset + idx + 2, nil
		}
		if _, err = r.readMore(timeout); err != nil {
			return nil, offset, err
		}
	}
}

// Len reports how many bytes are currently buffered (read but not yet
// discarded).
func (r *Reader) Len() int { return len(r.buf) }

// Conn exposes the underlying connection for direct streaming (e.g. copying a
// static file or an upstream response straight to the socket).
func (r *Reader) Conn() net.Conn { return r.conn }

// Discard drops the first n bytes of the carry-over buffer: the header block
// plus whatever body bytes the caller consumed, readying the buffer for the next
// request's header scan (spec.md §4.5 "advance buffer past the header block").
func (r *Reader) Discard(n int) {
	if n <= 0 {
		return
	}
	if n >= len(r.buf) {
		r.buf = r.buf[:0]
		return
	}
	copy(r.buf, r.buf[n:])
	r.buf = r.buf[:len(r.buf)-n]
}
