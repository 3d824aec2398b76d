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

// Package metrics is a supplemented observability surface (see SPEC_FULL.md
// DOMAIN STACK): Prometheus counters/gauges mirroring the same cache, proxy
// and health activity the mandated /_migux/cache JSON endpoint exposes, plus
// request-level detail it doesn't carry. Grounded on the teacher's
// package-level promauto vars + small Record* setter functions (etalazz-vsa's
// ratelimiter/core/metrics.go, xg2g's internal/api/metrics.go).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheMemoryHits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "migux_cache_memory_hits",
		Help: "Cumulative memory-tier cache hits.",
	})
	cacheMemoryMisses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "migux_cache_memory_misses",
		Help: "Cumulative memory-tier cache misses.",
	})
	cacheDiskHits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "migux_cache_disk_hits",
		Help: "Cumulative disk-tier cache hits.",
	})
	cacheDiskMisses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "migux_cache_disk_misses",
		Help: "Cumulative disk-tier cache misses.",
	})
	cacheDiskBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "migux_cache_disk_bytes",
		Help: "Current bytes occupied by the disk cache.",
	})

	proxyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "migux_proxy_requests_total",
		Help: "Proxied requests by upstream and outcome status.",
	}, []string{"upstream", "status"})

	proxyResponseBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "migux_proxy_response_bytes_total",
		Help: "Bytes relayed from upstream responses, by upstream.",
	}, []string{"upstream"})

	upstreamHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "migux_upstream_healthy",
		Help: "1 if the last outcome for this (upstream, address) pair was healthy, 0 otherwise.",
	}, []string{"upstream", "address"})
)

// CacheSnapshot is the subset of cache.Counters the gauge sync needs; kept as
// its own type so this package does not import internal/cache only for a
// struct shape (mirrors internal/worker's cacheSnapshot narrowing).
type CacheSnapshot struct {
	MemoryHits   int64
	MemoryMisses int64
	DiskHits     int64
	DiskMisses   int64
	DiskBytes    int64
}

// SyncCacheGauges sets the cache gauges from an absolute counter snapshot
// (cache.Counters are cumulative totals, not deltas, so Set is correct here
// rather than Add/Inc).
func SyncCacheGauges(snap CacheSnapshot) {
	cacheMemoryHits.Set(float64(snap.MemoryHits))
	cacheMemoryMisses.Set(float64(snap.MemoryMisses))
	cacheDiskHits.Set(float64(snap.DiskHits))
	cacheDiskMisses.Set(float64(snap.DiskMisses))
	cacheDiskBytes.Set(float64(snap.DiskBytes))
}

// RecordProxyRequest counts one proxied request's outcome for an upstream.
func RecordProxyRequest(upstream, status string) {
	proxyRequestsTotal.WithLabelValues(upstream, status).Inc()
}

// RecordProxyBytes adds n response bytes relayed from an upstream.
func RecordProxyBytes(upstream string, n int) {
	if n <= 0 {
		return
	}
	proxyResponseBytesTotal.WithLabelValues(upstream).Add(float64(n))
}

// SetUpstreamHealthy records the health of the specific address that served
// (or failed to serve) the last request against an upstream.
func SetUpstreamHealthy(upstream, address string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	upstreamHealthy.WithLabelValues(upstream, address).Set(v)
}
