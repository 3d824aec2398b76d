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
	"net/textproto"
	"strconv"
	"strings"
)

// parseHeaderBlock implements spec.md §4.4 step 2-3: whitespace-split request
// line, then every header line, with the specific framing-header extraction the
// core needs (Content-Length, Connection/Proxy-Connection, Transfer-Encoding).
func parseHeaderBlock(block []byte) (*ParsedRequest, error) {
	lines := strings.Split(string(block), "\r\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, errBadRequest("empty request line")
	}

	parts := strings.Fields(lines[0])
	if len(parts) != 3 {
		return nil, errBadRequest("malformed request line")
	}

	req := &ParsedRequest{
		Method:  parts[0],
		Version: strings.ToUpper(parts[2]),
		Header:  make(textproto.MIMEHeader),
	}
	pathAndQuery := parts[1]
	req.PathAndQuery = pathAndQuery
	if idx := strings.IndexByte(pathAndQuery, '?'); idx >= 0 {
		req.Path = pathAndQuery[:idx]
		req.RawQuery = pathAndQuery[idx+1:]
	} else {
		req.Path = pathAndQuery
	}

	if req.Version != "HTTP/1.0" && req.Version != "HTTP/1.1" {
		return nil, errBadRequest("unsupported version")
	}

	var (
		contentLengths []string
		hasChunked     bool
	)

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			return nil, errBadRequest("malformed header line")
		}
		name := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		req.Header.Add(name, value)

		switch textproto.CanonicalMIMEHeaderKey(name) {
		case "Content-Length":
			contentLengths = append(contentLengths, value)
		case "Transfer-Encoding":
			for _, tok := range splitTokens(value) {
				if strings.EqualFold(tok, "chunked") {
					hasChunked = true
				}
			}
		}
	}

	if len(contentLengths) > 0 {
		first := contentLengths[0]
		for _, v := range contentLengths[1:] {
			if v != first {
				return nil, errBadRequest("conflicting Content-Length values")
			}
		}
		n, err := strconv.ParseInt(first, 10, 64)
		if err != nil || n < 0 {
			return nil, errBadRequest("non-numeric Content-Length")
		}
		req.ContentLength = n
	}

	req.IsChunked = hasChunked
	if hasChunked {
		// spec.md §4.4 step 2: chunked wins, any declared length is discarded.
		req.ContentLength = 0
	}

	req.CloseAfter = computeCloseAfter(req)

	return req, nil
}

// computeCloseAfter implements the version rule from spec.md §3: HTTP/1.0 closes
// unless Connection: keep-alive is present; HTTP/1.1 closes iff Connection: close
// is present. Proxy-Connection is folded in the same way the teacher's own proxy
// examples treat it as a legacy alias.
func computeCloseAfter(req *ParsedRequest) bool {
	var hasClose, hasKeepAlive bool

	for _, h := range []string{"Connection", "Proxy-Connection"} {
		for _, v := range req.Header.Values(h) {
			for _, tok := range splitTokens(v) {
				switch {
				case strings.EqualFold(tok, "close"):
					hasClose = true
				case strings.EqualFold(tok, "keep-alive"):
					hasKeepAlive = true
				}
			}
		}
	}

	if req.IsHTTP10() {
		return !hasKeepAlive
	}
	return hasClose
}

// splitTokens comma-splits a header value and trims whitespace and surrounding
// quotes from each token, per spec.md §4.4 step 2.
func splitTokens(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, `"`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
