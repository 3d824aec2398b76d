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

package pool_test

import (
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/migux/internal/pool"
)

var _ = Describe("Pool", func() {
	It("reuses a checked-in connection on the next checkout", func() {
		p := pool.New(2, time.Minute, time.Second)
		a, b := net.Pipe()
		DeferCleanup(func() { _ = a.Close(); _ = b.Close() })

		p.Checkin("10.0.0.1:80", a, true)
		Expect(p.Idle("10.0.0.1:80")).To(Equal(1))

		got, err := p.Checkout("10.0.0.1:80")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(a))
		Expect(p.Idle("10.0.0.1:80")).To(Equal(0))
	})

	It("closes a non-reusable connection instead of pooling it", func() {
		p := pool.New(2, time.Minute, time.Second)
		a, b := net.Pipe()
		DeferCleanup(func() { _ = b.Close() })

		p.Checkin("10.0.0.2:80", a, false)
		Expect(p.Idle("10.0.0.2:80")).To(Equal(0))

		_, err := a.Write([]byte("x"))
		Expect(err).To(HaveOccurred())
	})

	It("drops connections beyond the per-address capacity", func() {
		p := pool.New(1, time.Minute, time.Second)
		a, a2 := net.Pipe()
		c, c2 := net.Pipe()
		DeferCleanup(func() { _ = a2.Close(); _ = c2.Close() })

		p.Checkin("10.0.0.3:80", a, true)
		p.Checkin("10.0.0.3:80", c, true)
		Expect(p.Idle("10.0.0.3:80")).To(Equal(1))
	})

	It("never pools when capacity is zero", func() {
		p := pool.New(0, time.Minute, time.Second)
		a, b := net.Pipe()
		DeferCleanup(func() { _ = b.Close() })

		p.Checkin("10.0.0.4:80", a, true)
		Expect(p.Idle("10.0.0.4:80")).To(Equal(0))
	})
})
