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

// Package reqread is C4: the incremental HTTP/1 request reader. It reads into a
// reusable growable buffer across requests on the same connection, finds the
// header terminator, parses the request line and the handful of framing headers
// the router/static/proxy code needs, and leaves body consumption to the caller.
package reqread

import "net/textproto"

// ParsedRequest is the ephemeral per-request value spec.md §3 describes.
type ParsedRequest struct {
	Method        string
	PathAndQuery  string
	Path          string
	RawQuery      string
	Version       string // "HTTP/1.0" or "HTTP/1.1"
	Header        textproto.MIMEHeader
	ContentLength int64
	IsChunked     bool
	CloseAfter    bool
	HeaderBytes   int
	BodyStart     int // offset into the connection buffer where the body begins
}

// IsHTTP10 reports whether the request line declared HTTP/1.0.
func (p *ParsedRequest) IsHTTP10() bool { return p.Version == "HTTP/1.0" }

// HasBody reports whether the request declares a body (chunked or length > 0).
func (p *ParsedRequest) HasBody() bool { return p.IsChunked || p.ContentLength > 0 }
