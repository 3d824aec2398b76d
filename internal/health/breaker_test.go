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

package health_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/migux/internal/health"
)

var _ = Describe("Tracker", func() {
	It("reports a fresh address as healthy", func() {
		tr := health.NewTracker()
		k := health.Key{Upstream: "backend", Address: "10.0.0.1:80"}
		Expect(tr.IsHealthy(k, 3, time.Second)).To(BeTrue())
	})

	It("stays closed below the failure threshold", func() {
		tr := health.NewTracker()
		k := health.Key{Upstream: "backend", Address: "10.0.0.2:80"}

		tr.RecordFailure(k, 3, time.Second)
		tr.RecordFailure(k, 3, time.Second)
		Expect(tr.IsHealthy(k, 3, time.Second)).To(BeTrue())
	})

	It("trips open once the threshold is reached, then recovers after cooldown", func() {
		tr := health.NewTracker()
		k := health.Key{Upstream: "backend", Address: "10.0.0.3:80"}

		tr.RecordFailure(k, 2, 30*time.Millisecond)
		tr.RecordFailure(k, 2, 30*time.Millisecond)
		Expect(tr.IsHealthy(k, 2, 30*time.Millisecond)).To(BeFalse())

		time.Sleep(50 * time.Millisecond)
		Expect(tr.IsHealthy(k, 2, 30*time.Millisecond)).To(BeTrue())
	})

	It("resets the failure count on success", func() {
		tr := health.NewTracker()
		k := health.Key{Upstream: "backend", Address: "10.0.0.4:80"}

		tr.RecordFailure(k, 3, time.Second)
		tr.RecordFailure(k, 3, time.Second)
		tr.RecordSuccess(k, 3, time.Second)
		tr.RecordFailure(k, 3, time.Second)
		Expect(tr.IsHealthy(k, 3, time.Second)).To(BeTrue())
	})

	It("filters unhealthy addresses out of a candidate list", func() {
		tr := health.NewTracker()
		addrs := []string{"10.0.0.5:80", "10.0.0.6:80", "10.0.0.7:80"}

		tr.RecordFailure(health.Key{Upstream: "pool", Address: addrs[1]}, 1, time.Second)

		healthy := tr.FilterHealthy("pool", addrs, 1, time.Second)
		Expect(healthy).To(ConsistOf(addrs[0], addrs[2]))
	})
})
