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

package metrics_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/migux/internal/metrics"
)

var _ = Describe("Render", func() {
	It("encodes recorded samples in the Prometheus text format", func() {
		metrics.RecordProxyRequest("api", "200")
		metrics.RecordProxyBytes("api", 128)
		metrics.SetUpstreamHealthy("api", "127.0.0.1:9000", true)
		metrics.SyncCacheGauges(metrics.CacheSnapshot{
			MemoryHits: 3, MemoryMisses: 1, DiskHits: 2, DiskMisses: 0, DiskBytes: 4096,
		})

		body, contentType, err := metrics.Render()
		Expect(err).NotTo(HaveOccurred())
		Expect(contentType).To(ContainSubstring("text/plain"))

		out := string(body)
		Expect(out).To(ContainSubstring("migux_proxy_requests_total"))
		Expect(out).To(ContainSubstring(`upstream="api"`))
		Expect(out).To(ContainSubstring("migux_proxy_response_bytes_total"))
		Expect(out).To(ContainSubstring("migux_upstream_healthy"))
		Expect(out).To(ContainSubstring("migux_cache_disk_bytes"))
	})

	It("ignores non-positive byte counts", func() {
		_, _, err := metrics.Render()
		Expect(err).NotTo(HaveOccurred())
		metrics.RecordProxyBytes("noop-upstream", 0)
		metrics.RecordProxyBytes("noop-upstream", -5)
		body, _, err := metrics.Render()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).NotTo(ContainSubstring(`upstream="noop-upstream"`))
	})
})
