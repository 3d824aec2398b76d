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

package proxy_test

import (
	"net/textproto"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/migux/internal/proxy"
)

var _ = Describe("StripPrefixPath", func() {
	It("removes a matching prefix and keeps a leading slash", func() {
		Expect(proxy.StripPrefixPath("/api/v1/users", "/api")).To(Equal("/v1/users"))
	})

	It("collapses to / when the prefix consumes the whole path", func() {
		Expect(proxy.StripPrefixPath("/api", "/api")).To(Equal("/"))
	})

	It("passes the path through unchanged when it doesn't match", func() {
		Expect(proxy.StripPrefixPath("/other", "/api")).To(Equal("/other"))
	})
})

var _ = Describe("RewriteHeaders", func() {
	It("drops hop-by-hop and stale forwarded headers, adding the canonical set", func() {
		orig := textproto.MIMEHeader{}
		orig.Set("Connection", "keep-alive")
		orig.Set("X-Forwarded-For", "1.2.3.4")
		orig.Set("Host", "example.com")
		orig.Set("Accept", "text/html")

		out := proxy.RewriteHeaders(orig, "127.0.0.1", "example.com", false, true)

		Expect(out.Get("Connection")).To(Equal("keep-alive"))
		Expect(out.Get("X-Forwarded-For")).To(Equal("127.0.0.1"))
		Expect(out.Get("X-Real-Ip")).To(Equal("127.0.0.1"))
		Expect(out.Get("X-Forwarded-Proto")).To(Equal("http"))
		Expect(out.Get("X-Forwarded-Host")).To(Equal("example.com"))
		Expect(out.Get("Accept")).To(Equal("text/html"))
	})

	It("uses https for a TLS client and close for HTTP/1.0", func() {
		out := proxy.RewriteHeaders(textproto.MIMEHeader{}, "127.0.0.1", "", true, false)
		Expect(out.Get("X-Forwarded-Proto")).To(Equal("https"))
		Expect(out.Get("Connection")).To(Equal("close"))
	})
})
