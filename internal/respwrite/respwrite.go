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

// Package respwrite builds raw HTTP/1 response byte blocks. Every component that
// synthesises a response (static engine, worker error paths, the worker's
// cache and metrics endpoints)
// shares this instead of hand-formatting status lines in three places.
package respwrite

import (
	"bytes"
	"fmt"
	"net/textproto"
	"time"
)

// httpTimeFormat is net/http.TimeFormat, duplicated here so this package
// doesn't pull in net/http just for the constant: the HTTP-date layout RFC
// 7231 requires, always GMT regardless of the input time's own location.
const httpTimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

var statusText = map[int]string{
	200: "OK",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	413: "Payload Too Large",
	431: "Request Header Fields Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
}

// StatusText returns the reason phrase for code, falling back to "Unknown".
func StatusText(code int) string {
	if t, ok := statusText[code]; ok {
		return t
	}
	return "Unknown"
}

// ServerIdent is the Server header value emitted on synthesised responses
// (spec.md §6).
var ServerIdent = "migux/1.0"

// Header builds the status line + header block for a response with no body
// (headers only, terminated by the blank line). Callers append the body, if
// any, themselves.
func Header(code int, extra textproto.MIMEHeader) []byte {
	var b bytes.Buffer

	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", code, StatusText(code))
	fmt.Fprintf(&b, "Server: %s\r\n", ServerIdent)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(httpTimeFormat))

	for k, vs := range extra {
		for _, v := range vs {
			fmt.Fprintf(&b, "%s: %s\r\n", k, v)
		}
	}

	b.WriteString("\r\n")
	return b.Bytes()
}

// Simple builds a full response (headers + body) for small synthesised bodies
// (errors, the cache JSON endpoint, redirects).
func Simple(code int, extra textproto.MIMEHeader, body []byte) []byte {
	if extra == nil {
		extra = make(textproto.MIMEHeader)
	}
	extra.Set("Content-Length", fmt.Sprintf("%d", len(body)))
	out := Header(code, extra)
	return append(out, body...)
}

// Error builds a synthesised plain-text error response, per spec.md §7.
func Error(code int, msg string, extra textproto.MIMEHeader) []byte {
	if extra == nil {
		extra = make(textproto.MIMEHeader)
	}
	extra.Set("Content-Type", "text/plain; charset=utf-8")
	if msg == "" {
		msg = StatusText(code)
	}
	return Simple(code, extra, []byte(msg+"\n"))
}
