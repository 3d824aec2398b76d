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
	"net/textproto"
	"strconv"
	"strings"
)

// ParsedResponse is an upstream HTTP/1 response's status line and headers,
// read the same way ParsedRequest is (spec.md §4.9 step 4).
type ParsedResponse struct {
	Version       string
	StatusCode    int
	Reason        string
	Header        textproto.MIMEHeader
	ContentLength int64
	HasLength     bool
	IsChunked     bool
	CloseAfter    bool
	HeaderBytes   int
	BodyStart     int
}

// ReadResponse grows the buffer until the header terminator appears, then
// parses the status line and framing headers, mirroring ReadRequest.
func (r *Reader) ReadResponse(to Timeouts, lim Limits) (*ParsedResponse, error) {
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
				return nil, errTimeout()
			}
			return nil, err
		}
		if n == 0 {
			return nil, ErrEOF
		}
		headerEnd = bytes.Index(r.buf, []byte("\r\n\r\n"))
	}

	if lim.MaxHeaderBytes > 0 && headerEnd > lim.MaxHeaderBytes {
		return nil, errHeaderTooLarge()
	}

	resp, err := parseResponseBlock(r.buf[:headerEnd])
	if err != nil {
		return nil, err
	}
	resp.HeaderBytes = headerEnd
	resp.BodyStart = headerEnd + 4
	return resp, nil
}

func parseResponseBlock(block []byte) (*ParsedResponse, error) {
	lines := strings.Split(string(block), "\r\n")
	if len(lines) == 0 {
		return nil, errBadRequest("empty response")
	}

	fields := strings.SplitN(lines[0], " ", 3)
	if len(fields) < 2 {
		return nil, errBadRequest("malformed status line")
	}
	version := strings.ToUpper(fields[0])
	if version != "HTTP/1.0" && version != "HTTP/1.1" {
		return nil, errBadRequest("unsupported response version")
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, errBadRequest("malformed status code")
	}
	reason := ""
	if len(fields) == 3 {
		reason = fields[2]
	}

	resp := &ParsedResponse{
		Version:    version,
		StatusCode: code,
		Reason:     reason,
		Header:     make(textproto.MIMEHeader),
	}

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		key := textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(line[:idx]))
		val := strings.TrimSpace(line[idx+1:])
		resp.Header.Add(key, val)

		switch key {
		case "Content-Length":
			n, perr := strconv.ParseInt(val, 10, 64)
			if perr == nil {
				resp.ContentLength = n
				resp.HasLength = true
			}
		case "Transfer-Encoding":
			if strings.Contains(strings.ToLower(val), "chunked") {
				resp.IsChunked = true
			}
		}
	}
	if resp.IsChunked {
		resp.HasLength = false
	}

	resp.CloseAfter = computeResponseCloseAfter(resp)
	return resp, nil
}

// computeResponseCloseAfter implements reusability per spec.md §4.9 step 7:
// HTTP/1.1 is reusable unless Connection: close; HTTP/1.0 is reusable only with
// an explicit Connection: keep-alive.
func computeResponseCloseAfter(resp *ParsedResponse) bool {
	tokens := splitTokens(resp.Header.Get("Connection"))
	hasClose, hasKeepAlive := false, false
	for _, t := range tokens {
		switch strings.ToLower(t) {
		case "close":
			hasClose = true
		case "keep-alive":
			hasKeepAlive = true
		}
	}
	if resp.Version == "HTTP/1.0" {
		return !hasKeepAlive
	}
	return hasClose
}
