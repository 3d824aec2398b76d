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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/migux/internal/config"
	"github.com/nabbar/migux/internal/health"
	"github.com/nabbar/migux/internal/proxy"
)

var _ = Describe("Order", func() {
	It("returns a single-address upstream unchanged", func() {
		up := config.Upstream{Addresses: []string{"a:1"}, Strategy: config.StrategyRoundRobin}
		out := proxy.Order("u", up, proxy.NewCounters(), nil)
		Expect(out).To(Equal([]string{"a:1"}))
	})

	It("leaves the list unrotated for strategy=single", func() {
		up := config.Upstream{Addresses: []string{"a:1", "b:1"}, Strategy: config.StrategySingle}
		out := proxy.Order("u", up, proxy.NewCounters(), nil)
		Expect(out).To(Equal([]string{"a:1", "b:1"}))
	})

	It("distributes first-place turns fairly over many rotations", func() {
		up := config.Upstream{Addresses: []string{"a:1", "b:1", "c:1"}, Strategy: config.StrategyRoundRobin}
		counters := proxy.NewCounters()

		tally := map[string]int{}
		const n = 30
		for i := 0; i < n; i++ {
			out := proxy.Order("u", up, counters, nil)
			tally[out[0]]++
		}

		for _, addr := range up.Addresses {
			Expect(tally[addr]).To(Equal(n / len(up.Addresses)))
		}
	})

	It("falls back to the unfiltered rotation when every address is unhealthy", func() {
		up := config.Upstream{
			Addresses: []string{"a:1", "b:1"},
			Strategy:  config.StrategyRoundRobin,
			HealthCfg: config.Health{FailThreshold: 1, CooldownSecs: 60},
		}
		tracker := health.NewTracker()
		tracker.RecordFailure(health.Key{Upstream: "u", Address: "a:1"}, 1, time.Minute)
		tracker.RecordFailure(health.Key{Upstream: "u", Address: "b:1"}, 1, time.Minute)

		out := proxy.Order("u", up, proxy.NewCounters(), tracker)
		Expect(out).To(HaveLen(2))
	})

	It("excludes only the unhealthy address when at least one is healthy", func() {
		up := config.Upstream{
			Addresses: []string{"a:1", "b:1"},
			Strategy:  config.StrategyRoundRobin,
			HealthCfg: config.Health{FailThreshold: 1, CooldownSecs: 60},
		}
		tracker := health.NewTracker()
		tracker.RecordFailure(health.Key{Upstream: "u", Address: "a:1"}, 1, time.Minute)

		out := proxy.Order("u", up, proxy.NewCounters(), tracker)
		Expect(out).To(ConsistOf("b:1"))
	})
})
