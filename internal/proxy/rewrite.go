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
	"net/textproto"
	"strings"
)

// hopByHop are the headers spec.md §4.9 says never to forward, in either
// direction.
var hopByHop = map[string]bool{
	"Connection":        true,
	"Keep-Alive":        true,
	"Proxy-Connection":  true,
	"Te":                true,
	"Trailer":           true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
}

var forwardedHeaders = map[string]bool{
	"X-Forwarded-For":   true,
	"X-Real-Ip":         true,
	"X-Forwarded-Proto": true,
	"X-Forwarded-Host":  true,
}

// StripPrefixPath removes locPath from the front of reqPath when present,
// always returning a non-empty, "/"-rooted result (spec.md §4.9 URL rewrite).
func StripPrefixPath(reqPath, locPath string) string {
	if !strings.HasPrefix(reqPath, locPath) {
		return reqPath
	}
	rest := strings.TrimPrefix(reqPath, locPath)
	if rest == "" || rest[0] != '/' {
		rest = "/" + rest
	}
	return rest
}

// RewriteHeaders clones orig with hop-by-hop and pre-existing forwarded
// headers removed, then appends the X-Forwarded-*/Connection set spec.md §4.9
// mandates.
func RewriteHeaders(orig textproto.MIMEHeader, clientIP, host string, clientTLS, clientHTTP11 bool) textproto.MIMEHeader {
	out := make(textproto.MIMEHeader, len(orig)+4)
	for k, v := range orig {
		canon := textproto.CanonicalMIMEHeaderKey(k)
		if hopByHop[canon] || forwardedHeaders[canon] {
			continue
		}
		out[canon] = append([]string(nil), v...)
	}

	if clientIP != "" {
		out.Set("X-Forwarded-For", clientIP)
		out.Set("X-Real-Ip", clientIP)
	}
	proto := "http"
	if clientTLS {
		proto = "https"
	}
	out.Set("X-Forwarded-Proto", proto)
	if host != "" {
		out.Set("X-Forwarded-Host", host)
	}
	if clientHTTP11 {
		out.Set("Connection", "keep-alive")
	} else {
		out.Set("Connection", "close")
	}
	return out
}
