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

package cache_test

import (
	"os"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/migux/internal/cache"
	"github.com/nabbar/migux/internal/config"
)

var _ = Describe("Key", func() {
	It("hashes deterministically and changes with any input", func() {
		k1 := cache.NewKey("/index.html", 100, 1000, false)
		k2 := cache.NewKey("/index.html", 100, 1000, false)
		Expect(k1).To(Equal(k2))

		Expect(cache.NewKey("/other.html", 100, 1000, false)).NotTo(Equal(k1))
		Expect(cache.NewKey("/index.html", 101, 1000, false)).NotTo(Equal(k1))
		Expect(cache.NewKey("/index.html", 100, 1001, false)).NotTo(Equal(k1))
		Expect(cache.NewKey("/index.html", 100, 1000, true)).NotTo(Equal(k1))
	})

	It("renders as a 16-digit lowercase hex string", func() {
		k := cache.NewKey("/a", 1, 1, false)
		Expect(k.Hex()).To(HaveLen(16))
		Expect(k.Hex()).To(Equal(strings.ToLower(k.Hex())))
	})
})

var _ = Describe("Resolve", func() {
	baseHTTP := func() config.HTTP {
		return config.HTTP{
			CacheDir:            "/tmp/does-not-matter",
			CacheDefaultTTLSecs: 60,
		}
	}

	It("is disabled for non-GET methods", func() {
		p := cache.Resolve("POST", baseHTTP(), config.Unset)
		Expect(p.Enabled).To(BeFalse())
	})

	It("is disabled when no cache dir is configured", func() {
		h := baseHTTP()
		h.CacheDir = ""
		p := cache.Resolve("GET", h, config.Unset)
		Expect(p.Enabled).To(BeFalse())
	})

	It("is disabled when the location explicitly opts out", func() {
		p := cache.Resolve("GET", baseHTTP(), config.False)
		Expect(p.Enabled).To(BeFalse())
	})

	It("is disabled when the effective TTL is zero", func() {
		h := baseHTTP()
		h.CacheDefaultTTLSecs = 0
		p := cache.Resolve("GET", h, config.Unset)
		Expect(p.Enabled).To(BeFalse())
	})

	It("is enabled for GET with a configured dir, non-excluded location and positive TTL", func() {
		p := cache.Resolve("GET", baseHTTP(), config.True)
		Expect(p.Enabled).To(BeTrue())
		Expect(p.TTL).To(Equal(60 * time.Second))
	})
})

var _ = Describe("Cache", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "migux-cache-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(dir)
	})

	It("serves a memory hit without touching disk", func() {
		c := cache.New(config.HTTP{CacheDir: dir, CacheDefaultTTLSecs: 60})
		k := cache.NewKey("/a", 1, 1, false)
		c.Put(k, []byte("hello"), time.Minute)

		data, ok := c.Get(k, time.Minute)
		Expect(ok).To(BeTrue())
		Expect(data).To(Equal([]byte("hello")))

		snap := c.Snapshot()
		Expect(snap.MemoryHits).To(Equal(int64(1)))
	})

	It("persists to disk and can be recovered by a fresh Cache instance", func() {
		k := cache.NewKey("/b", 2, 2, false)

		c1 := cache.New(config.HTTP{CacheDir: dir, CacheDefaultTTLSecs: 60})
		c1.Put(k, []byte("persisted"), time.Minute)

		c2 := cache.New(config.HTTP{CacheDir: dir, CacheDefaultTTLSecs: 60})
		data, ok := c2.Get(k, time.Minute)
		Expect(ok).To(BeTrue())
		Expect(data).To(Equal([]byte("persisted")))
	})

	It("does not cache objects above the per-object size ceiling", func() {
		c := cache.New(config.HTTP{CacheDir: dir, CacheDefaultTTLSecs: 60, CacheMaxObjectBytes: 4})
		k := cache.NewKey("/big", 10, 10, false)
		c.Put(k, []byte("way too long"), time.Minute)

		_, ok := c.Get(k, time.Minute)
		Expect(ok).To(BeFalse())
	})

	It("evicts the oldest entry once the total-bytes cap is exceeded", func() {
		c := cache.New(config.HTTP{CacheDir: dir, CacheDefaultTTLSecs: 60, CacheMaxTotalBytes: 10})

		k1 := cache.NewKey("/1", 1, 1, false)
		k2 := cache.NewKey("/2", 2, 2, false)
		k3 := cache.NewKey("/3", 3, 3, false)

		c.Put(k1, []byte("12345"), time.Minute)
		c.Put(k2, []byte("12345"), time.Minute)
		c.Put(k3, []byte("12345"), time.Minute)

		snap := c.Snapshot()
		Expect(snap.DiskEvictions).To(BeNumerically(">=", int64(1)))
	})
})
