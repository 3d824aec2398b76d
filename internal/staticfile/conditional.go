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

package staticfile

import (
	"net/textproto"
	"strings"
)

// ShouldReturnNotModified implements spec.md §4.7/§8 property 4: true iff method
// is GET or HEAD and any If-None-Match token equals etag (W/ prefix and quotes
// ignored) or is the wildcard "*".
func ShouldReturnNotModified(method string, header textproto.MIMEHeader, etag string) bool {
	if method != "GET" && method != "HEAD" {
		return false
	}

	values := header.Values("If-None-Match")
	if len(values) == 0 {
		return false
	}

	want := normalizeETag(etag)

	for _, v := range values {
		for _, raw := range strings.Split(v, ",") {
			tok := strings.TrimSpace(raw)
			if tok == "*" {
				return true
			}
			if normalizeETag(tok) == want {
				return true
			}
		}
	}
	return false
}

func normalizeETag(tok string) string {
	tok = strings.TrimSpace(tok)
	tok = strings.TrimPrefix(tok, "W/")
	tok = strings.TrimSpace(tok)
	tok = strings.Trim(tok, `"`)
	return tok
}
