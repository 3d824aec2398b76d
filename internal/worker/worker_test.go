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

package worker_test

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/migux/internal/cache"
	"github.com/nabbar/migux/internal/config"
	"github.com/nabbar/migux/internal/health"
	"github.com/nabbar/migux/internal/pool"
	"github.com/nabbar/migux/internal/proxy"
	"github.com/nabbar/migux/internal/router"
	"github.com/nabbar/migux/internal/worker"
)

func baseHTTPConf() config.HTTP {
	return config.HTTP{
		ClientReadTimeoutSecs:          5,
		KeepaliveTimeoutSecs:           5,
		ProxyConnectTimeoutSecs:        5,
		ProxyWriteTimeoutSecs:          5,
		ProxyReadTimeoutSecs:           5,
		MaxRequestHeadersBytes:         8192,
		MaxRequestBodyBytes:            1 << 20,
		MaxUpstreamResponseHeaderBytes: 8192,
		MaxUpstreamResponseBodyBytes:   1 << 20,
	}
}

func newStaticDeps(root string) *worker.Deps {
	server := &router.ServerRuntime{
		Name:  "static.local",
		Root:  root,
		Index: "index.html",
		Locations: []router.LocationRule{
			{Path: "/", Kind: config.LocationStatic, Root: root, Index: "index.html"},
		},
	}
	return &worker.Deps{
		Servers:  []*router.ServerRuntime{server},
		HTTPConf: baseHTTPConf(),
		Cache:    cache.New(baseHTTPConf()),
	}
}

// roundTrip sends a raw HTTP/1.1 request and returns the status line, headers
// and body read back from conn.
func roundTrip(conn net.Conn, raw string) (status string, headers map[string]string, body string) {
	_, _ = conn.Write([]byte(raw))
	r := bufio.NewReader(conn)
	status, _ = r.ReadString('\n')
	status = strings.TrimSpace(status)

	headers = map[string]string{}
	for {
		line, _ := r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if i := strings.Index(line, ":"); i > 0 {
			headers[strings.TrimSpace(line[:i])] = strings.TrimSpace(line[i+1:])
		}
	}
	if cl, ok := headers["Content-Length"]; ok {
		n, _ := strconv.Atoi(cl)
		buf := make([]byte, n)
		_, _ = r.Read(buf)
		body = string(buf)
	}
	return
}

var _ = Describe("Worker static engine", func() {
	var root string

	BeforeEach(func() {
		root = GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(root, "index.html"), []byte("hello world"), 0o644)).To(Succeed())
		Expect(os.MkdirAll(filepath.Join(root, "secret"), 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(root, "secret", "data.txt"), []byte("top secret"), 0o644)).To(Succeed())
	})

	It("serves a file and reports a weak ETag", func() {
		deps := newStaticDeps(root)
		w := worker.New(deps)

		clientConn, serverConn := net.Pipe()
		go w.ServeConn(serverConn, false)

		status, headers, body := roundTrip(clientConn, "GET /index.html HTTP/1.1\r\nHost: static.local\r\nConnection: close\r\n\r\n")
		Expect(status).To(ContainSubstring("200"))
		Expect(body).To(Equal("hello world"))
		Expect(headers["ETag"]).To(HavePrefix(`W/"`))
	})

	It("returns 304 when If-None-Match matches the current ETag", func() {
		deps := newStaticDeps(root)
		w := worker.New(deps)

		clientConn, serverConn := net.Pipe()
		go w.ServeConn(serverConn, false)
		_, headers, _ := roundTrip(clientConn, "GET /index.html HTTP/1.1\r\nHost: static.local\r\nConnection: keep-alive\r\n\r\n")
		etag := headers["ETag"]

		status, _, _ := roundTrip(clientConn, "GET /index.html HTTP/1.1\r\nHost: static.local\r\nIf-None-Match: "+etag+"\r\nConnection: close\r\n\r\n")
		Expect(status).To(ContainSubstring("304"))
	})

	It("rejects a traversal attempt with 404", func() {
		deps := newStaticDeps(root)
		w := worker.New(deps)

		clientConn, serverConn := net.Pipe()
		go w.ServeConn(serverConn, false)

		status, _, _ := roundTrip(clientConn, "GET /../secret/data.txt HTTP/1.1\r\nHost: static.local\r\nConnection: close\r\n\r\n")
		Expect(status).To(ContainSubstring("404"))
	})
})

// acceptOnceEcho accepts exactly one connection and writes a fixed response
// that echoes the request line it received, then closes.
func acceptOnceEcho(keepAlive bool) (addr string, stop func()) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())

	go func() {
		conn, aerr := ln.Accept()
		if aerr != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		line, _ := r.ReadString('\n')
		for {
			h, _ := r.ReadString('\n')
			if h == "\r\n" || h == "" {
				break
			}
		}
		body := "upstream saw: " + strings.TrimSpace(line)
		connState := "close"
		if keepAlive {
			connState = "keep-alive"
		}
		resp := "HTTP/1.1 200 OK\r\nContent-Length: " + strconv.Itoa(len(body)) +
			"\r\nConnection: " + connState + "\r\n\r\n" + body
		_, _ = conn.Write([]byte(resp))
	}()

	return ln.Addr().String(), func() { _ = ln.Close() }
}

var _ = Describe("Worker proxy engine", func() {
	It("strips the location prefix before forwarding to the upstream", func() {
		addr, stop := acceptOnceEcho(false)
		defer stop()

		up := config.Upstream{Addresses: []string{addr}, Strategy: config.StrategySingle}

		server := &router.ServerRuntime{
			Name: "proxy.local",
			Locations: []router.LocationRule{
				{Path: "/api", Kind: config.LocationProxy, Upstream: "backend", StripPrefix: true},
			},
		}

		deps := &worker.Deps{
			Servers:   []*router.ServerRuntime{server},
			HTTPConf:  baseHTTPConf(),
			Upstreams: map[string]config.Upstream{"backend": up},
			Pools:     map[string]*pool.Pool{"backend": pool.New(4, time.Minute, time.Second)},
			Counters:  map[string]*proxy.Counters{"backend": proxy.NewCounters()},
			Tracker:   health.NewTracker(),
			Cache:     cache.New(baseHTTPConf()),
		}
		w := worker.New(deps)

		clientConn, serverConn := net.Pipe()
		go w.ServeConn(serverConn, false)

		status, _, body := roundTrip(clientConn, "GET /api/widgets HTTP/1.1\r\nHost: proxy.local\r\nConnection: close\r\n\r\n")
		Expect(status).To(ContainSubstring("200"))
		Expect(body).To(ContainSubstring("GET /widgets"))
	})
})
