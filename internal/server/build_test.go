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

package server_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/migux/internal/config"
	"github.com/nabbar/migux/internal/server"
)

func baseConfig() config.Config {
	return config.Config{
		Global:   config.Global{WorkerConnections: 64},
		HTTPConf: config.HTTP{
			ClientReadTimeoutSecs:          5,
			KeepaliveTimeoutSecs:           5,
			ProxyConnectTimeoutSecs:        5,
			ProxyWriteTimeoutSecs:          5,
			ProxyReadTimeoutSecs:           5,
			MaxRequestHeadersBytes:         8192,
			MaxRequestBodyBytes:            1 << 20,
			MaxUpstreamResponseHeaderBytes: 8192,
			MaxUpstreamResponseBodyBytes:   1 << 20,
		},
	}
}

var _ = Describe("Build", func() {
	It("groups locations by server listen address and keeps explicit root rules", func() {
		cfg := baseConfig()
		cfg.Servers = []config.Server{
			{Listen: "127.0.0.1:8080", Root: "/var/www", Index: "index.html"},
		}
		cfg.Locations = []config.Location{
			{ServerListen: "127.0.0.1:8080", Path: "/", Kind: config.LocationStatic, Root: "/var/www"},
			{ServerListen: "127.0.0.1:8080", Path: "/app", Kind: config.LocationStatic, Root: "/var/app"},
		}

		built, err := server.Build(&cfg)
		Expect(err).NotTo(HaveOccurred())

		servers := built.PlainListeners["127.0.0.1:8080"]
		Expect(servers).To(HaveLen(1))
		Expect(servers[0].Locations).To(HaveLen(2))
	})

	It("injects a synthetic root rule when no location matches '/'", func() {
		cfg := baseConfig()
		cfg.Servers = []config.Server{
			{Listen: "127.0.0.1:8081", Root: "/var/www", Index: "index.html"},
		}
		cfg.Locations = []config.Location{
			{ServerListen: "127.0.0.1:8081", Path: "/app", Kind: config.LocationStatic, Root: "/var/app"},
		}

		built, err := server.Build(&cfg)
		Expect(err).NotTo(HaveOccurred())

		locs := built.PlainListeners["127.0.0.1:8081"][0].Locations
		var hasRoot bool
		for _, l := range locs {
			if l.Path == "/" {
				hasRoot = true
				Expect(l.Root).To(Equal("/var/www"))
			}
		}
		Expect(hasRoot).To(BeTrue())
	})

	It("registers a server under both its plain and TLS listen addresses", func() {
		cfg := baseConfig()
		cfg.Servers = []config.Server{
			{
				Listen: "127.0.0.1:8080", Root: "/var/www", Index: "index.html",
				TLS: &config.TLS{Listen: "127.0.0.1:8443", CertPath: "cert.pem", KeyPath: "key.pem"},
			},
		}

		built, err := server.Build(&cfg)
		Expect(err).NotTo(HaveOccurred())

		Expect(built.PlainListeners).To(HaveKey("127.0.0.1:8080"))
		Expect(built.TLSListeners).To(HaveKey("127.0.0.1:8443"))
		Expect(built.TLSSpec["127.0.0.1:8443"].CertPath).To(Equal("cert.pem"))
	})

	It("rejects two servers sharing the same listen address", func() {
		cfg := baseConfig()
		cfg.Servers = []config.Server{
			{Listen: "127.0.0.1:9000", Root: "/a"},
			{Listen: "127.0.0.1:9000", Root: "/b"},
		}

		_, err := server.Build(&cfg)
		Expect(err).To(HaveOccurred())
	})

	It("builds one pool and counter set per upstream", func() {
		cfg := baseConfig()
		cfg.Servers = []config.Server{{Listen: "127.0.0.1:8080", Root: "/var/www"}}
		cfg.Upstreams = map[string]config.Upstream{
			"backend": {ServerRaw: "127.0.0.1:9001"},
		}
		cfg.Locations = []config.Location{
			{ServerListen: "127.0.0.1:8080", Path: "/api", Kind: config.LocationProxy, Upstream: "backend"},
		}

		built, err := server.Build(&cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(built.Pools).To(HaveKey("backend"))
		Expect(built.Counters).To(HaveKey("backend"))
		Expect(built.Upstreams["backend"].Addresses).To(Equal([]string{"127.0.0.1:9001"}))
	})
})
