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
	"bufio"
	"bytes"
	"net"
	"net/textproto"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/migux/internal/config"
	"github.com/nabbar/migux/internal/health"
	"github.com/nabbar/migux/internal/pool"
	"github.com/nabbar/migux/internal/proxy"
)

// echoUpstream accepts one connection and replies with a fixed, fully-buffered
// HTTP/1.1 response whose body echoes the request path, closing after one
// exchange unless keepAlive is set.
func echoUpstream(keepAlive bool) (addr string, stop func()) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())

	go func() {
		for {
			conn, aerr := ln.Accept()
			if aerr != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				reader := bufio.NewReader(c)
				line, _ := reader.ReadString('\n')
				for {
					h, _ := reader.ReadString('\n')
					if h == "\r\n" || h == "" {
						break
					}
				}
				body := "upstream saw: " + line
				conn := "close"
				if keepAlive {
					conn = "keep-alive"
				}
				resp := "HTTP/1.1 200 OK\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\nConnection: " + conn + "\r\n\r\n" + body
				_, _ = c.Write([]byte(resp))
			}(conn)
		}
	}()

	return ln.Addr().String(), func() { _ = ln.Close() }
}

var _ = Describe("Forward", func() {
	It("relays a simple GET to a single-address upstream", func() {
		addr, stop := echoUpstream(false)
		defer stop()

		up := config.Upstream{Addresses: []string{addr}, Strategy: config.StrategySingle}
		pl := pool.New(4, time.Minute, time.Second)
		tracker := health.NewTracker()
		counters := proxy.NewCounters()

		req := proxy.Request{
			Method:       "GET",
			Path:         "/v1/users",
			ClientHTTP11: true,
			Header:       textproto.MIMEHeader{"Host": []string{"example.com"}},
			ClientIP:     "127.0.0.1",
		}

		out, err := proxy.Forward("app", up, counters, pl, tracker, proxy.Limits{
			ConnectTimeout:         time.Second,
			WriteTimeout:           time.Second,
			ReadTimeout:            time.Second,
			MaxResponseHeaderBytes: 8192,
			MaxResponseBodyBytes:   1 << 20,
		}, req)

		Expect(err).NotTo(HaveOccurred())
		Expect(out.StatusCode).To(Equal(200))

		var body bytes.Buffer
		Expect(out.WriteBody(&body)).To(Succeed())
		Expect(body.String()).To(ContainSubstring("GET /v1/users HTTP/1.1"))
	})

	It("returns a BadGateway-kind error when every candidate is unreachable", func() {
		up := config.Upstream{Addresses: []string{"127.0.0.1:1"}, Strategy: config.StrategySingle}
		pl := pool.New(4, time.Minute, 50*time.Millisecond)
		tracker := health.NewTracker()
		counters := proxy.NewCounters()

		req := proxy.Request{Method: "GET", Path: "/", ClientHTTP11: true, Header: textproto.MIMEHeader{}}

		_, err := proxy.Forward("app", up, counters, pl, tracker, proxy.Limits{
			ConnectTimeout: 50 * time.Millisecond,
			WriteTimeout:   50 * time.Millisecond,
			ReadTimeout:    50 * time.Millisecond,
		}, req)

		Expect(err).To(HaveOccurred())
	})
})
