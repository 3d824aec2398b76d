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

package bridge

import (
	"io"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

// hopByHop mirrors proxy.hopByHop: headers that never cross the H2-to-H1
// conversion, since this synthetic request is a new hop in its own right.
var hopByHop = map[string]bool{
	"Connection":        true,
	"Keep-Alive":        true,
	"Proxy-Connection":  true,
	"Te":                true,
	"Trailer":           true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
}

func isHopByHopHeader(key string) bool {
	return hopByHop[textproto.CanonicalMIMEHeaderKey(key)]
}

// serializeRequest turns an HTTP/2 *http.Request into a synthetic HTTP/1.1
// request: status line, headers with Content-Length forced from the
// fully-buffered body, per spec.md §4.3 ("collect the full request body into
// memory, serialize a synthetic HTTP/1.1 request").
func serializeRequest(r *http.Request) ([]byte, error) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
	}

	path := r.URL.RequestURI()
	if path == "" {
		path = "/"
	}

	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte(' ')
	b.WriteString(path)
	b.WriteString(" HTTP/1.1\r\n")

	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	b.WriteString("Host: ")
	b.WriteString(host)
	b.WriteString("\r\n")

	for k, vs := range r.Header {
		if isHopByHopHeader(k) || textproto.CanonicalMIMEHeaderKey(k) == "Host" {
			continue
		}
		canon := textproto.CanonicalMIMEHeaderKey(k)
		for _, v := range vs {
			b.WriteString(canon)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\r\n")
		}
	}

	b.WriteString("Content-Length: ")
	b.WriteString(strconv.Itoa(len(body)))
	b.WriteString("\r\n")
	b.WriteString("Connection: close\r\n")
	b.WriteString("\r\n")

	out := make([]byte, 0, b.Len()+len(body))
	out = append(out, []byte(b.String())...)
	out = append(out, body...)
	return out, nil
}
